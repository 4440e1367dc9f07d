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

package types

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// OrderedT is the constraint of element types that have a total order.
type OrderedT interface {
	constraints.Integer | constraints.Float
}

// FixedSizeT is the constraint of element types that occupy a fixed
// number of bytes and contain no pointers. Values of these types can be
// stored in raw allocator memory and reinterpreted byte for byte.
type FixedSizeT interface {
	bool | OrderedT | constraints.Complex
}

// TypeSize returns the number of bytes a value of T occupies.
func TypeSize[T FixedSizeT]() int {
	var t T
	return int(unsafe.Sizeof(t))
}

// TypeAlign returns the alignment requirement of T in bytes.
func TypeAlign[T FixedSizeT]() int {
	var t T
	return int(unsafe.Alignof(t))
}
