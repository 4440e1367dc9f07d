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

package sovec

import (
	"unsafe"

	"github.com/matrixorigin/sovec/pkg/container/types"
)

const (
	// heapTag marks the heap representation; inline lengths stop at 254.
	heapTag      uint8 = 255
	maxInlineLen       = 254

	stackSize  = int(unsafe.Sizeof(heapStore{}))
	stackWords = stackSize / 8
)

// heapStore is the heap representation: an exact-fit backing buffer and
// the live element count. len(data) is always capacity*sizeof(T).
type heapStore struct {
	data   []byte
	length int
}

// stackStore is the inline representation. The word array doubles as
// the element region and is exactly one heap descriptor wide, so the
// small-size optimization costs no footprint.
type stackStore struct {
	words [stackWords]uint64
	tag   uint8
}

// layout checks, the inline region must cover the heap descriptor
var (
	_ [unsafe.Sizeof(heapStore{})]struct{}  = [unsafe.Sizeof(stackStore{}.words)]struct{}{}
	_ [unsafe.Alignof(heapStore{})]struct{} = [unsafe.Alignof(stackStore{}.words)]struct{}{}
)

func (s *stackStore) bytes() []byte {
	return types.EncodeSlice(s.words[:])
}

// inlineCap is the element capacity of the inline region, bounded by
// the largest length the tag byte can express.
func inlineCap[T types.FixedSizeT]() int {
	c := stackSize / types.TypeSize[T]()
	if c > maxInlineLen {
		c = maxInlineLen
	}
	return c
}
