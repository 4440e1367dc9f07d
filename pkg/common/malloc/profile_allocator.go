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
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/pprof/profile"
)

type HeapSampleValues struct {
	Objects struct {
		Allocated ShardedCounter[uint64, atomic.Uint64, *atomic.Uint64]
		Inuse     ShardedCounter[int64, atomic.Int64, *atomic.Int64]
	}
	Bytes struct {
		Allocated ShardedCounter[uint64, atomic.Uint64, *atomic.Uint64]
		Inuse     ShardedCounter[int64, atomic.Int64, *atomic.Int64]
	}
}

var _ SampleValues[*HeapSampleValues] = new(HeapSampleValues)

func (h *HeapSampleValues) Init() {
	h.Objects.Allocated = *NewShardedCounter[uint64, atomic.Uint64](runtime.GOMAXPROCS(0))
	h.Objects.Inuse = *NewShardedCounter[int64, atomic.Int64](runtime.GOMAXPROCS(0))
	h.Bytes.Allocated = *NewShardedCounter[uint64, atomic.Uint64](runtime.GOMAXPROCS(0))
	h.Bytes.Inuse = *NewShardedCounter[int64, atomic.Int64](runtime.GOMAXPROCS(0))
}

func (h *HeapSampleValues) DefaultSampleType() string {
	return "inuse_bytes"
}

func (h *HeapSampleValues) SampleTypes() []*profile.ValueType {
	return []*profile.ValueType{
		{
			Type: "allocated_objects",
			Unit: "object",
		},
		{
			Type: "allocated_bytes",
			Unit: "bytes",
		},
		{
			Type: "inuse_objects",
			Unit: "object",
		},
		{
			Type: "inuse_bytes",
			Unit: "bytes",
		},
	}
}

func (h *HeapSampleValues) Values() []int64 {
	return []int64{
		int64(h.Objects.Allocated.Load()),
		int64(h.Bytes.Allocated.Load()),
		h.Objects.Inuse.Load(),
		h.Bytes.Inuse.Load(),
	}
}

// ProfileAllocator attributes allocations to call sites and keeps the
// live counts per site, so a heap profile of allocator memory can be
// dumped at any time.
type ProfileAllocator[U Allocator] struct {
	upstream U
	profiler *Profiler[HeapSampleValues, *HeapSampleValues]
	fraction uint32
	inflight sync.Map // buffer address -> *HeapSampleValues
}

func NewProfileAllocator[U Allocator](
	upstream U,
	profiler *Profiler[HeapSampleValues, *HeapSampleValues],
	fraction uint32,
) *ProfileAllocator[U] {
	return &ProfileAllocator[U]{
		upstream: upstream,
		profiler: profiler,
		fraction: fraction,
	}
}

var _ Allocator = new(ProfileAllocator[Allocator])

const largeAllocationThreshold = 128 * 1024

func (p *ProfileAllocator[U]) Allocate(size int, align int) ([]byte, error) {
	buf, err := p.upstream.Allocate(size, align)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, nil
	}
	const skip = 1 // p.Allocate
	var values *HeapSampleValues
	if len(buf) >= largeAllocationThreshold {
		// no sampling for large allocations
		values = p.profiler.Sample(skip, 1)
	} else {
		values = p.profiler.Sample(skip, p.fraction)
	}
	values.Bytes.Allocated.Add(uint64(len(buf)))
	values.Objects.Allocated.Add(1)
	values.Bytes.Inuse.Add(int64(len(buf)))
	values.Objects.Inuse.Add(1)
	p.inflight.Store(bufAddr(buf), values)
	return buf, nil
}

func (p *ProfileAllocator[U]) Deallocate(buf []byte, align int) {
	if buf == nil {
		return
	}
	if v, ok := p.inflight.LoadAndDelete(bufAddr(buf)); ok {
		values := v.(*HeapSampleValues)
		values.Bytes.Inuse.Add(-int64(len(buf)))
		values.Objects.Inuse.Add(-1)
	}
	p.upstream.Deallocate(buf, align)
}

func (p *ProfileAllocator[U]) Reallocate(buf []byte, align int, newSize int) ([]byte, error) {
	if buf == nil {
		return p.Allocate(newSize, align)
	}
	oldAddr := bufAddr(buf)
	oldSize := len(buf)
	newBuf, err := p.upstream.Reallocate(buf, align, newSize)
	if err != nil {
		return nil, err
	}
	if v, ok := p.inflight.LoadAndDelete(oldAddr); ok {
		values := v.(*HeapSampleValues)
		values.Bytes.Inuse.Add(-int64(oldSize))
		values.Objects.Inuse.Add(-1)
	}
	if newBuf == nil {
		return nil, nil
	}
	const skip = 1 // p.Reallocate
	values := p.profiler.Sample(skip, p.fraction)
	values.Bytes.Allocated.Add(uint64(len(newBuf)))
	values.Objects.Allocated.Add(1)
	values.Bytes.Inuse.Add(int64(len(newBuf)))
	values.Objects.Inuse.Add(1)
	p.inflight.Store(bufAddr(newBuf), values)
	return newBuf, nil
}

var globalHeapProfiler = NewProfiler[HeapSampleValues]()

// WriteHeapProfile dumps the default allocator's heap profile in pprof
// format. Only meaningful when the default allocator was built with a
// non-zero profile fraction.
func WriteHeapProfile(w io.Writer) error {
	return globalHeapProfiler.Write(w)
}
