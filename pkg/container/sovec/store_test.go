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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestStoreLayout(t *testing.T) {
	// the inline region and the heap descriptor have the same footprint
	require.Equal(t, unsafe.Sizeof(heapStore{}), unsafe.Sizeof(stackStore{}.words))
	require.Equal(t, stackSize, stackWords*8)

	// 255 is reserved for the heap tag
	require.Equal(t, 255, int(heapTag))
	require.True(t, maxInlineLen < int(heapTag))
}

func TestInlineCap(t *testing.T) {
	require.Equal(t, stackSize, inlineCap[bool]())
	require.Equal(t, stackSize, inlineCap[int8]())
	require.Equal(t, stackSize/2, inlineCap[int16]())
	require.Equal(t, stackSize/4, inlineCap[float32]())
	require.Equal(t, stackSize/8, inlineCap[int64]())
	require.Equal(t, stackSize/16, inlineCap[complex128]())

	require.True(t, inlineCap[bool]() <= maxInlineLen)
	require.True(t, inlineCap[complex128]() >= 1)
}

func TestStackStoreBytes(t *testing.T) {
	var s stackStore
	b := s.bytes()
	require.Equal(t, stackSize, len(b))

	b[0] = 0xAB
	require.Equal(t, uint64(0xAB), s.words[0])
}
