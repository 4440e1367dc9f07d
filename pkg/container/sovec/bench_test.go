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

	"github.com/matrixorigin/sovec/pkg/common/malloc"
)

func BenchmarkPushPopInline(b *testing.B) {
	vec := New[int64](malloc.Default())
	defer vec.Free()
	for i := 0; i < b.N; i++ {
		vec.Push(int64(i))
		vec.Pop()
	}
}

func BenchmarkPushHeap(b *testing.B) {
	vec := NewWithCapacity[int64](8192, malloc.Default())
	defer vec.Free()
	for i := 0; i < b.N; i++ {
		if vec.Length() == vec.Capacity() {
			vec.Clear()
		}
		vec.Push(int64(i))
	}
}

func BenchmarkAt(b *testing.B) {
	vec := NewWithCapacity[int64](8192, malloc.Default())
	defer vec.Free()
	for i := 0; i < 8192; i++ {
		vec.Push(int64(i))
	}
	b.ResetTimer()
	var sum int64
	for i := 0; i < b.N; i++ {
		sum += vec.At(i % 8192)
	}
	_ = sum
}

func BenchmarkNewFree(b *testing.B) {
	allocator := malloc.NewClassAllocator(256 * malloc.MB)
	for i := 0; i < b.N; i++ {
		vec := NewWithCapacity[int64](1024, allocator)
		vec.Free()
	}
}
