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
	_ "unsafe"

	"github.com/matrixorigin/sovec/pkg/common/moerr"
)

const (
	KB = 1 << 10
	MB = 1 << 20
	GB = 1 << 30

	// MaxAlign is the largest alignment an allocator is required to honor.
	// Every fixed-size element type this module stores aligns to 8 or less.
	MaxAlign = 8
)

// Allocator is the memory capability. Buffers are handed out as byte
// slices so the collector keeps the backing memory alive exactly as long
// as the owner holds the slice. len(buf) is always the requested size;
// cap(buf) may be larger when the allocator rounds to a size class.
type Allocator interface {
	// Allocate returns a zeroed buffer of exactly size bytes whose first
	// byte is aligned to align. Allocate(0, align) returns a nil buffer.
	Allocate(size int, align int) ([]byte, error)

	// Reallocate resizes buf to newSize bytes, preserving the contents up
	// to min(len(buf), newSize) and zeroing any extension. It may return
	// the same backing memory or a freshly allocated buffer; in the latter
	// case buf is released. Reallocate(nil, align, n) behaves as Allocate.
	Reallocate(buf []byte, align int, newSize int) ([]byte, error)

	// Deallocate releases buf. buf must be exactly the slice returned by
	// Allocate or Reallocate with the same align. Deallocate(nil, align)
	// is a no-op.
	Deallocate(buf []byte, align int)
}

func checkAllocArgs(size int, align int) error {
	if size < 0 {
		return moerr.NewInvalidArgNoCtx("size", size)
	}
	if align <= 0 || align > MaxAlign || align&(align-1) != 0 {
		return moerr.NewInvalidArgNoCtx("align", align)
	}
	return nil
}

var (
	defaultAllocator     Allocator
	defaultAllocatorOnce sync.Once
)

// Default returns the process-wide allocator, building it from the
// default config on first use.
func Default() Allocator {
	defaultAllocatorOnce.Do(func() {
		defaultAllocator = NewDefault(nil)
	})
	return defaultAllocator
}

//go:linkname runtime_procPin runtime.procPin
func runtime_procPin() int

//go:linkname runtime_procUnpin runtime.procUnpin
func runtime_procUnpin() int
