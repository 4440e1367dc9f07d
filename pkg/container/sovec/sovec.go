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

// Package sovec provides a generic vector of fixed-size elements with a
// small-size optimization. Short vectors live entirely inside the
// Vector value; longer ones move, once and permanently, to an exact-fit
// heap buffer owned through an injected malloc.Allocator.
//
// The cheap operations are deliberately unchecked. Push, At and
// SetLength trust the caller the way raw slice writes do; builds with
// the debug tag turn the preconditions into panics. Allocation failure
// and byte-size overflow always panic, in every build.
package sovec

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/matrixorigin/sovec/pkg/common/malloc"
	"github.com/matrixorigin/sovec/pkg/common/moerr"
	"github.com/matrixorigin/sovec/pkg/container/types"
)

// Vector is a sequence of T. The zero value is not usable, construct
// with New or NewWithCapacity. A Vector must not be copied after first
// use and must be released with Free.
type Vector[T types.FixedSizeT, A malloc.Allocator] struct {
	stack stackStore
	heap  heapStore // valid only when stack.tag == heapTag
	alloc A
}

var (
	_ encoding.BinaryMarshaler   = new(Vector[int64, malloc.Allocator])
	_ encoding.BinaryUnmarshaler = new(Vector[int64, malloc.Allocator])
	_ fmt.Stringer               = new(Vector[int64, malloc.Allocator])
)

// New returns an empty vector in the inline representation.
func New[T types.FixedSizeT, A malloc.Allocator](alloc A) *Vector[T, A] {
	return &Vector[T, A]{
		alloc: alloc,
	}
}

// NewWithCapacity returns a vector that can hold at least n elements
// before growing. Capacities beyond the inline region start out
// heap-backed with exactly n slots.
func NewWithCapacity[T types.FixedSizeT, A malloc.Allocator](n int, alloc A) *Vector[T, A] {
	assert(n >= 0, "negative capacity")
	v := New[T](alloc)
	if n > inlineCap[T]() {
		v.toHeap(n)
	}
	return v
}

// Length returns the number of live elements.
func (v *Vector[T, A]) Length() int {
	if v.stack.tag == heapTag {
		return v.heap.length
	}
	return int(v.stack.tag)
}

// IsEmpty reports whether the vector holds no elements.
func (v *Vector[T, A]) IsEmpty() bool {
	return v.Length() == 0
}

// Capacity returns the number of elements the vector can hold without
// growing. Inline vectors always report the full inline capacity.
func (v *Vector[T, A]) Capacity() int {
	if v.stack.tag == heapTag {
		return len(v.heap.data) / types.TypeSize[T]()
	}
	return inlineCap[T]()
}

// InlineActive reports whether the inline representation is active.
// The transition to the heap representation happens at most once and
// is never reversed.
func (v *Vector[T, A]) InlineActive() bool {
	return v.stack.tag != heapTag
}

// region is the full capacity window of the active representation.
func (v *Vector[T, A]) region() []T {
	if v.stack.tag == heapTag {
		return types.DecodeSlice[T](v.heap.data)
	}
	return types.DecodeSlice[T](v.stack.bytes())[:inlineCap[T]()]
}

func (v *Vector[T, A]) setLengthRaw(n int) {
	if v.stack.tag == heapTag {
		v.heap.length = n
		return
	}
	v.stack.tag = uint8(n)
}

// SetLength sets the length without touching element storage. The
// caller initializes slots it exposes and zeroes slots it drops,
// 0 <= n <= Capacity().
func (v *Vector[T, A]) SetLength(n int) {
	assert(n >= 0 && n <= v.Capacity(), "length out of range")
	v.setLengthRaw(n)
}

// heapBytes is the byte size of a store of n elements.
func heapBytes[T types.FixedSizeT](n int) int {
	sz := types.TypeSize[T]()
	if n > math.MaxInt/sz {
		panic(moerr.NewInternalErrorNoCtx("vector size overflows: %d elements of %d bytes", n, sz))
	}
	return n * sz
}

// toHeap moves the inline elements to a heap store of exactly capacity
// slots. This is the only place the representation changes.
func (v *Vector[T, A]) toHeap(capacity int) {
	size := heapBytes[T](capacity)
	data, err := v.alloc.Allocate(size, types.TypeAlign[T]())
	if err != nil {
		panic(err)
	}
	length := int(v.stack.tag)
	copy(data, v.stack.bytes()[:length*types.TypeSize[T]()])
	clear(v.stack.words[:])
	v.stack.tag = heapTag
	v.heap.data = data
	v.heap.length = length
}

// ReserveExact grows the capacity to exactly Length()+additional
// elements. It is a no-op when the capacity already suffices. Any view
// returned by RawSlice or UnsafeGetRawData is invalidated.
func (v *Vector[T, A]) ReserveExact(additional int) {
	assert(additional >= 0, "negative reserve")
	target := v.Length() + additional
	if target <= v.Capacity() {
		return
	}
	if v.stack.tag != heapTag {
		v.toHeap(target)
		return
	}
	data, err := v.alloc.Reallocate(v.heap.data, types.TypeAlign[T](), heapBytes[T](target))
	if err != nil {
		panic(err)
	}
	v.heap.data = data
}

// Push appends val. The caller guarantees Length() < Capacity().
func (v *Vector[T, A]) Push(val T) {
	length := v.Length()
	assert(length < v.Capacity(), "push past capacity")
	v.region()[length] = val
	v.setLengthRaw(length + 1)
}

// Pop removes and returns the last element. It reports false on an
// empty vector. The vacated slot is zeroed.
func (v *Vector[T, A]) Pop() (T, bool) {
	var zero T
	length := v.Length()
	if length == 0 {
		return zero, false
	}
	region := v.region()
	val := region[length-1]
	region[length-1] = zero
	v.setLengthRaw(length - 1)
	return val, true
}

// Truncate drops the elements from index n on, zeroing their slots.
// It is a no-op when n >= Length(). Capacity and representation never
// change.
func (v *Vector[T, A]) Truncate(n int) {
	assert(n >= 0, "negative length")
	length := v.Length()
	if n >= length {
		return
	}
	clear(v.region()[n:length])
	v.setLengthRaw(n)
}

// Clear drops all elements, keeping capacity and representation.
func (v *Vector[T, A]) Clear() {
	v.Truncate(0)
}

// ShrinkToFit reallocates a heap store down to exactly Length()
// elements, at least one slot. Inline vectors are left alone.
func (v *Vector[T, A]) ShrinkToFit() {
	if v.stack.tag != heapTag {
		return
	}
	target := v.heap.length
	if target == 0 {
		// a heap store keeps a positive capacity
		target = 1
	}
	if target == v.Capacity() {
		return
	}
	data, err := v.alloc.Reallocate(v.heap.data, types.TypeAlign[T](), heapBytes[T](target))
	if err != nil {
		panic(err)
	}
	v.heap.data = data
}

// At returns the element at index i, 0 <= i < Length().
func (v *Vector[T, A]) At(i int) T {
	assert(i >= 0 && i < v.Length(), "index out of range")
	return v.region()[i]
}

// RawSlice returns the live elements as a slice over the backing
// store. Writes through it are visible to the vector. The view is
// invalidated by ReserveExact, ShrinkToFit, UnmarshalBinary and Free.
func (v *Vector[T, A]) RawSlice() []T {
	return v.region()[:v.Length()]
}

// UnsafeGetRawData returns the bytes of the live elements, under the
// same invalidation rules as RawSlice.
func (v *Vector[T, A]) UnsafeGetRawData() []byte {
	sz := types.TypeSize[T]()
	if v.stack.tag == heapTag {
		return v.heap.data[:v.heap.length*sz]
	}
	return v.stack.bytes()[:int(v.stack.tag)*sz]
}

// Append pushes val, growing the store by exactly one slot when full.
func (v *Vector[T, A]) Append(val T) {
	if v.Length() == v.Capacity() {
		v.ReserveExact(1)
	}
	v.Push(val)
}

// AppendList pushes vals with at most one growth.
func (v *Vector[T, A]) AppendList(vals ...T) {
	v.ReserveExact(len(vals))
	length := v.Length()
	copy(v.region()[length:], vals)
	v.setLengthRaw(length + len(vals))
}

// Dup deep-copies the vector through the same allocator.
func (v *Vector[T, A]) Dup() *Vector[T, A] {
	dup := NewWithCapacity[T](v.Length(), v.alloc)
	dup.AppendList(v.RawSlice()...)
	return dup
}

func (v *Vector[T, A]) String() string {
	mode := "inline"
	if v.stack.tag == heapTag {
		mode = "heap"
	}
	return fmt.Sprintf("%s[%d/%d]%v", mode, v.Length(), v.Capacity(), v.RawSlice())
}

// MarshalBinary encodes the vector as a little-endian element count
// followed by the raw element bytes.
func (v *Vector[T, A]) MarshalBinary() ([]byte, error) {
	data := v.UnsafeGetRawData()
	buf := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint64(buf, uint64(v.Length()))
	copy(buf[8:], data)
	return buf, nil
}

// UnmarshalBinary replaces the contents with the encoded elements,
// allocating through the vector's own allocator.
func (v *Vector[T, A]) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return moerr.NewInvalidInputNoCtx("vector frame too short: %d bytes", len(data))
	}
	length := binary.LittleEndian.Uint64(data)
	sz := uint64(types.TypeSize[T]())
	if length > uint64(math.MaxInt)/sz {
		return moerr.NewInvalidInputNoCtx("vector frame length out of range: %d", length)
	}
	if body := data[8:]; uint64(len(body)) != length*sz {
		return moerr.NewInvalidInputNoCtx(
			"vector frame size mismatch: %d elements, %d bytes", length, len(body))
	}
	v.Truncate(0)
	v.ReserveExact(int(length))
	copy(types.EncodeSlice(v.region()), data[8:])
	v.setLengthRaw(int(length))
	return nil
}

// Free destroys the elements and releases the heap backing, if any,
// through the owned allocator. The vector is reset to the empty inline
// state. Using it after Free is a contract violation, though the reset
// keeps the misuse memory-safe.
func (v *Vector[T, A]) Free() {
	v.Clear()
	if v.stack.tag == heapTag {
		v.alloc.Deallocate(v.heap.data, types.TypeAlign[T]())
		v.heap.data = nil
		v.heap.length = 0
	}
	clear(v.stack.words[:])
	v.stack.tag = 0
}
