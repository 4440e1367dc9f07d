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
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const defaultMmapThreshold = 1 * MB

// MmapAllocator maps buffers of at least threshold bytes directly from
// the OS and delegates smaller requests to an upstream allocator. Mapped
// buffers live outside the Go heap, so Deallocate must unmap them
// promptly or the memory is lost until process exit.
type MmapAllocator struct {
	upstream  Allocator
	threshold int
	mappings  sync.Map // start address -> struct{}
}

func NewMmapAllocator(upstream Allocator, threshold int) *MmapAllocator {
	if threshold <= 0 {
		threshold = defaultMmapThreshold
	}
	return &MmapAllocator{
		upstream:  upstream,
		threshold: threshold,
	}
}

var _ Allocator = new(MmapAllocator)

func bufAddr(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

func (m *MmapAllocator) owned(buf []byte) bool {
	_, ok := m.mappings.Load(bufAddr(buf))
	return ok
}

func (m *MmapAllocator) mmapAllocate(size int) ([]byte, error) {
	slice, err := unix.Mmap(
		-1, 0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, err
	}
	m.mappings.Store(bufAddr(slice), struct{}{})
	return slice, nil
}

func (m *MmapAllocator) munmap(buf []byte) {
	m.mappings.Delete(bufAddr(buf))
	if err := unix.Munmap(buf[:cap(buf)]); err != nil {
		panic(err)
	}
}

func (m *MmapAllocator) Allocate(size int, align int) ([]byte, error) {
	if err := checkAllocArgs(size, align); err != nil {
		return nil, err
	}
	if size < m.threshold {
		return m.upstream.Allocate(size, align)
	}
	return m.mmapAllocate(size)
}

func (m *MmapAllocator) Deallocate(buf []byte, align int) {
	if buf == nil {
		return
	}
	if m.owned(buf) {
		m.munmap(buf)
		return
	}
	m.upstream.Deallocate(buf, align)
}

func (m *MmapAllocator) Reallocate(buf []byte, align int, newSize int) ([]byte, error) {
	if buf == nil {
		return m.Allocate(newSize, align)
	}

	if !m.owned(buf) {
		if newSize < m.threshold {
			return m.upstream.Reallocate(buf, align, newSize)
		}
		// crossed the threshold, move to a mapping
		newBuf, err := m.mmapAllocate(newSize)
		if err != nil {
			return nil, err
		}
		copy(newBuf, buf)
		m.upstream.Deallocate(buf, align)
		return newBuf, nil
	}

	if newSize < m.threshold {
		// dropped below the threshold, move back upstream
		newBuf, err := m.upstream.Allocate(newSize, align)
		if err != nil {
			return nil, err
		}
		copy(newBuf, buf)
		m.munmap(buf)
		return newBuf, nil
	}

	return m.remap(buf, newSize)
}
