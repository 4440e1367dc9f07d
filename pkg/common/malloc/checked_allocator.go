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
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/matrixorigin/sovec/pkg/common/moerr"
)

// Stats is the counter block of a checked allocator.
type Stats struct {
	NumAlloc      atomic.Int64
	NumFree       atomic.Int64
	NumRealloc    atomic.Int64
	NumAllocBytes atomic.Int64
	NumFreeBytes  atomic.Int64
	NumCurrBytes  atomic.Int64
	HighWaterMark atomic.Int64
}

func (s *Stats) RecordAlloc(sz int64) int64 {
	s.NumAlloc.Add(1)
	s.NumAllocBytes.Add(sz)
	curr := s.NumCurrBytes.Add(sz)
	for {
		hwm := s.HighWaterMark.Load()
		if curr <= hwm {
			break
		}
		if s.HighWaterMark.CompareAndSwap(hwm, curr) {
			break
		}
	}
	return curr
}

func (s *Stats) RecordFree(sz int64) int64 {
	s.NumFree.Add(1)
	s.NumFreeBytes.Add(sz)
	return s.NumCurrBytes.Add(-sz)
}

// CheckedAllocator verifies that its client balances every allocation
// with exactly one deallocation of the same buffer. Violations are
// client bugs and are reported by panic. An optional byte limit turns
// allocations beyond it into OOM errors.
type CheckedAllocator[U Allocator] struct {
	name     string
	upstream U
	limit    int64
	stats    Stats
	detail   atomic.Bool

	mu    sync.Mutex
	live  map[uintptr]*liveAllocation
	freed map[uintptr]StacktraceID
}

type liveAllocation struct {
	size       int
	align      int
	allocStack StacktraceID
}

// NewCheckedAllocator wraps upstream. name registers the allocator for
// ReportMemUsage; limit caps live bytes, 0 means unlimited.
func NewCheckedAllocator[U Allocator](name string, upstream U, limit int64) *CheckedAllocator[U] {
	c := &CheckedAllocator[U]{
		name:     name,
		upstream: upstream,
		limit:    limit,
		live:     make(map[uintptr]*liveAllocation),
		freed:    make(map[uintptr]StacktraceID),
	}
	registerAllocator(name, c)
	return c
}

var _ Allocator = new(CheckedAllocator[Allocator])

// EnableDetailRecording turns on stack trace capture for subsequent
// allocations and frees. Leak and double-free reports then name the
// offending sites.
func (c *CheckedAllocator[U]) EnableDetailRecording() {
	c.detail.Store(true)
}

func (c *CheckedAllocator[U]) Stats() *Stats {
	return &c.stats
}

// CurrNB returns the net live bytes, the balance probe tests assert
// back to zero.
func (c *CheckedAllocator[U]) CurrNB() int64 {
	return c.stats.NumCurrBytes.Load()
}

func (c *CheckedAllocator[U]) Allocate(size int, align int) ([]byte, error) {
	if c.limit > 0 && c.stats.NumCurrBytes.Load()+int64(size) > c.limit {
		return nil, moerr.NewOOMNoCtx()
	}
	buf, err := c.upstream.Allocate(size, align)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, nil
	}
	c.stats.RecordAlloc(int64(len(buf)))

	entry := &liveAllocation{
		size:  len(buf),
		align: align,
	}
	if c.detail.Load() {
		entry.allocStack = GetStacktraceID(1)
	}
	addr := bufAddr(buf)
	c.mu.Lock()
	c.live[addr] = entry
	delete(c.freed, addr)
	c.mu.Unlock()

	return buf, nil
}

func (c *CheckedAllocator[U]) Deallocate(buf []byte, align int) {
	if buf == nil {
		return
	}
	entry := c.retire(buf, align)
	c.stats.RecordFree(int64(entry.size))
	c.upstream.Deallocate(buf, align)
}

func (c *CheckedAllocator[U]) Reallocate(buf []byte, align int, newSize int) ([]byte, error) {
	if buf == nil {
		return c.Allocate(newSize, align)
	}
	if c.limit > 0 &&
		c.stats.NumCurrBytes.Load()-int64(len(buf))+int64(newSize) > c.limit {
		return nil, moerr.NewOOMNoCtx()
	}

	entry := c.retire(buf, align)
	newBuf, err := c.upstream.Reallocate(buf, align, newSize)
	if err != nil {
		// the old buffer is still live
		c.mu.Lock()
		c.live[bufAddr(buf)] = entry
		delete(c.freed, bufAddr(buf))
		c.mu.Unlock()
		return nil, err
	}

	c.stats.NumRealloc.Add(1)
	c.stats.RecordFree(int64(entry.size))
	if newBuf != nil {
		c.stats.RecordAlloc(int64(len(newBuf)))
		newEntry := &liveAllocation{
			size:  len(newBuf),
			align: align,
		}
		if c.detail.Load() {
			newEntry.allocStack = GetStacktraceID(1)
		}
		addr := bufAddr(newBuf)
		c.mu.Lock()
		c.live[addr] = newEntry
		delete(c.freed, addr)
		c.mu.Unlock()
	}
	return newBuf, nil
}

// retire removes buf from the live set, panicking on anything that is
// not a first free of a known buffer.
func (c *CheckedAllocator[U]) retire(buf []byte, align int) *liveAllocation {
	addr := bufAddr(buf)
	c.mu.Lock()
	entry, ok := c.live[addr]
	if !ok {
		freeStack, freedBefore := c.freed[addr]
		c.mu.Unlock()
		if !freedBefore {
			panic("invalid free: buffer not allocated here")
		}
		if freeStack != 0 {
			panic(fmt.Sprintf("Double Free\nfirst freed at:\n%s", freeStack))
		}
		panic("Double Free")
	}
	if entry.size != len(buf) {
		c.mu.Unlock()
		panic(fmt.Sprintf("free with wrong size: allocated %d bytes, freeing %d", entry.size, len(buf)))
	}
	if entry.align != align {
		c.mu.Unlock()
		panic(fmt.Sprintf("free with wrong alignment: allocated with %d, freeing with %d", entry.align, align))
	}
	delete(c.live, addr)
	if c.detail.Load() {
		c.freed[addr] = GetStacktraceID(2)
	} else {
		c.freed[addr] = 0
	}
	c.mu.Unlock()
	return entry
}

// Close unregisters the allocator and panics if the client leaked.
func (c *CheckedAllocator[U]) Close() {
	unregisterAllocator(c.name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.live) == 0 {
		return
	}
	msg := new(strings.Builder)
	fmt.Fprintf(msg, "Memory Leak! %d allocations, %d bytes outstanding",
		len(c.live), c.stats.NumCurrBytes.Load())
	for _, entry := range c.live {
		fmt.Fprintf(msg, "\n%d bytes", entry.size)
		if entry.allocStack != 0 {
			fmt.Fprintf(msg, " allocated at:\n%s", entry.allocStack)
		}
	}
	panic(msg.String())
}
