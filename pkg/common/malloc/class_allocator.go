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
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/matrixorigin/sovec/pkg/logutil"
)

const (
	minClassSize    = 128
	maxClassSize    = 1 << 20
	classSizeFactor = 1.5
	numShards       = 16
)

// ClassAllocator recycles buffers through per-class freelists. Classes
// grow geometrically from minClassSize up to maxClassSize; requests
// larger than the largest class bypass the freelists. Freelists are
// sharded by the calling P to keep channel contention low.
type ClassAllocator struct {
	classSizes []int
	shards     []classShard
}

type classShard struct {
	numAlloc atomic.Int64
	numFree  atomic.Int64
	pools    []chan []byte
}

func NewClassAllocator(maxBufferSize int) *ClassAllocator {
	classSizes := func() (ret []int) {
		for size := minClassSize; size <= maxClassSize; size = int(float64(size) * classSizeFactor) {
			ret = append(ret, size)
		}
		return
	}()

	classSumSize := func() (ret int) {
		for _, size := range classSizes {
			ret += size
		}
		return
	}()

	bufferedObjectsPerClass := func() int {
		n := maxBufferSize / numShards / classSumSize
		logutil.Info("malloc",
			zap.Any("max buffer size", maxBufferSize),
			zap.Any("num shards", numShards),
			zap.Any("classes", len(classSizes)),
			zap.Any("min class size", minClassSize),
			zap.Any("max class size", maxClassSize),
			zap.Any("buffer objects per class", n),
		)
		return n
	}()

	shards := func() (ret []classShard) {
		ret = make([]classShard, numShards)
		for i := 0; i < numShards; i++ {
			for range classSizes {
				ret[i].pools = append(
					ret[i].pools,
					make(chan []byte, bufferedObjectsPerClass),
				)
			}
		}
		return
	}()

	return &ClassAllocator{
		classSizes: classSizes,
		shards:     shards,
	}
}

var _ Allocator = new(ClassAllocator)

func (c *ClassAllocator) requestSizeToClass(size int) int {
	for class, classSize := range c.classSizes {
		if classSize >= size {
			return class
		}
	}
	return -1
}

// capToClass maps a buffer back to its class. Class buffers always carry
// the full class size in cap, so the lookup is an exact match. Buffers
// larger than the largest class were never pooled.
func (c *ClassAllocator) capToClass(buf []byte) int {
	if cap(buf) > c.classSizes[len(c.classSizes)-1] {
		return -1
	}
	for class, classSize := range c.classSizes {
		if classSize == cap(buf) {
			return class
		}
	}
	return -2
}

func (c *ClassAllocator) classAllocate(class int) []byte {
	pid := runtime_procPin()
	runtime_procUnpin()
	shard := &c.shards[pid%numShards]
	select {
	case buf := <-shard.pools[class]:
		shard.numAlloc.Add(1)
		clear(buf)
		return buf
	default:
		return make([]byte, c.classSizes[class])
	}
}

func (c *ClassAllocator) Allocate(size int, align int) ([]byte, error) {
	if err := checkAllocArgs(size, align); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	class := c.requestSizeToClass(size)
	if class == -1 {
		return make([]byte, size), nil
	}
	return c.classAllocate(class)[:size], nil
}

func (c *ClassAllocator) Deallocate(buf []byte, align int) {
	if buf == nil {
		return
	}
	class := c.capToClass(buf)
	if class == -1 {
		// oversize buffer, collector-owned
		return
	}
	if class == -2 {
		panic("invalid free: buffer not allocated here")
	}
	pid := runtime_procPin()
	runtime_procUnpin()
	shard := &c.shards[pid%numShards]
	select {
	case shard.pools[class] <- buf[:cap(buf)]:
		shard.numFree.Add(1)
	default:
	}
}

func (c *ClassAllocator) Reallocate(buf []byte, align int, newSize int) ([]byte, error) {
	if buf == nil {
		return c.Allocate(newSize, align)
	}
	if newSize == len(buf) {
		return buf, nil
	}

	// same class, reslice in place
	if newSize > 0 && newSize <= cap(buf) {
		if class := c.capToClass(buf); class >= 0 && c.requestSizeToClass(newSize) == class {
			newBuf := buf[:newSize]
			if newSize > len(buf) {
				// the spare capacity may hold stale writes
				clear(newBuf[len(buf):])
			}
			return newBuf, nil
		}
	}

	newBuf, err := c.Allocate(newSize, align)
	if err != nil {
		return nil, err
	}
	copy(newBuf, buf)
	c.Deallocate(buf, align)
	return newBuf, nil
}
