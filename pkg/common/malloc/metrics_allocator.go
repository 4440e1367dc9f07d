// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package malloc

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsAllocator instruments an upstream allocator with prometheus
// counters. Hot-path updates go to sharded atomics and are flushed to
// prometheus at most once per second.
type MetricsAllocator[U Allocator] struct {
	upstream U

	allocateBytesCounter   prometheus.Counter
	inuseBytesGauge        prometheus.Gauge
	allocateObjectsCounter prometheus.Counter
	inuseObjectsGauge      prometheus.Gauge

	allocateBytes   ShardedCounter[uint64, atomic.Uint64, *atomic.Uint64]
	inuseBytes      ShardedCounter[int64, atomic.Int64, *atomic.Int64]
	allocateObjects ShardedCounter[uint64, atomic.Uint64, *atomic.Uint64]
	inuseObjects    ShardedCounter[int64, atomic.Int64, *atomic.Int64]

	updating atomic.Bool
}

func NewMetricsAllocator[U Allocator](
	upstream U,
	allocateBytesCounter prometheus.Counter,
	inuseBytesGauge prometheus.Gauge,
	allocateObjectsCounter prometheus.Counter,
	inuseObjectsGauge prometheus.Gauge,
) *MetricsAllocator[U] {

	ret := &MetricsAllocator[U]{
		upstream:               upstream,
		allocateBytesCounter:   allocateBytesCounter,
		inuseBytesGauge:        inuseBytesGauge,
		allocateObjectsCounter: allocateObjectsCounter,
		inuseObjectsGauge:      inuseObjectsGauge,
	}

	ret.allocateBytes = *NewShardedCounter[uint64, atomic.Uint64](runtime.GOMAXPROCS(0))
	ret.inuseBytes = *NewShardedCounter[int64, atomic.Int64](runtime.GOMAXPROCS(0))
	ret.allocateObjects = *NewShardedCounter[uint64, atomic.Uint64](runtime.GOMAXPROCS(0))
	ret.inuseObjects = *NewShardedCounter[int64, atomic.Int64](runtime.GOMAXPROCS(0))

	return ret
}

var _ Allocator = new(MetricsAllocator[Allocator])

func (m *MetricsAllocator[U]) Allocate(size int, align int) ([]byte, error) {
	buf, err := m.upstream.Allocate(size, align)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, nil
	}
	m.allocateBytes.Add(uint64(len(buf)))
	m.inuseBytes.Add(int64(len(buf)))
	m.allocateObjects.Add(1)
	m.inuseObjects.Add(1)
	m.triggerUpdate()
	return buf, nil
}

func (m *MetricsAllocator[U]) Deallocate(buf []byte, align int) {
	if buf == nil {
		return
	}
	size := len(buf)
	m.upstream.Deallocate(buf, align)
	m.inuseBytes.Add(-int64(size))
	m.inuseObjects.Add(-1)
	m.triggerUpdate()
}

func (m *MetricsAllocator[U]) Reallocate(buf []byte, align int, newSize int) ([]byte, error) {
	if buf == nil {
		return m.Allocate(newSize, align)
	}
	oldSize := len(buf)
	newBuf, err := m.upstream.Reallocate(buf, align, newSize)
	if err != nil {
		return nil, err
	}
	if newBuf == nil {
		m.inuseBytes.Add(-int64(oldSize))
		m.inuseObjects.Add(-1)
		m.triggerUpdate()
		return nil, nil
	}
	m.allocateBytes.Add(uint64(len(newBuf)))
	m.allocateObjects.Add(1)
	m.inuseBytes.Add(int64(len(newBuf)) - int64(oldSize))
	m.triggerUpdate()
	return newBuf, nil
}

func (m *MetricsAllocator[U]) triggerUpdate() {
	if m.updating.CompareAndSwap(false, true) {
		time.AfterFunc(time.Second, func() {

			if m.allocateBytesCounter != nil {
				var n uint64
				m.allocateBytes.Each(func(v *atomic.Uint64) {
					n += v.Swap(0)
				})
				m.allocateBytesCounter.Add(float64(n))
			}

			if m.inuseBytesGauge != nil {
				var n int64
				m.inuseBytes.Each(func(v *atomic.Int64) {
					n += v.Swap(0)
				})
				m.inuseBytesGauge.Add(float64(n))
			}

			if m.allocateObjectsCounter != nil {
				var n uint64
				m.allocateObjects.Each(func(v *atomic.Uint64) {
					n += v.Swap(0)
				})
				m.allocateObjectsCounter.Add(float64(n))
			}

			if m.inuseObjectsGauge != nil {
				var n int64
				m.inuseObjects.Each(func(v *atomic.Int64) {
					n += v.Swap(0)
				})
				m.inuseObjectsGauge.Add(float64(n))
			}

			m.updating.Store(false)
		})
	}
}
