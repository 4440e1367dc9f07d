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
	"testing"
)

func benchmarkAllocator(b *testing.B, newAllocator func() Allocator) {

	b.Run("allocate free", func(b *testing.B) {
		allocator := newAllocator()
		for i := 0; i < b.N; i++ {
			buf, err := allocator.Allocate(4096, 8)
			if err != nil {
				b.Fatal(err)
			}
			allocator.Deallocate(buf, 8)
		}
	})

	b.Run("parallel allocate free", func(b *testing.B) {
		allocator := newAllocator()
		b.RunParallel(func(pb *testing.PB) {
			for size := 1; pb.Next(); size++ {
				buf, err := allocator.Allocate(size%65536, 8)
				if err != nil {
					b.Fatal(err)
				}
				allocator.Deallocate(buf, 8)
			}
		})
	})

	b.Run("reallocate", func(b *testing.B) {
		allocator := newAllocator()
		buf, err := allocator.Allocate(1, 8)
		if err != nil {
			b.Fatal(err)
		}
		for i := 0; i < b.N; i++ {
			buf, err = allocator.Reallocate(buf, 8, i%65536+1)
			if err != nil {
				b.Fatal(err)
			}
		}
		allocator.Deallocate(buf, 8)
	})

}

func BenchmarkGoAllocator(b *testing.B) {
	benchmarkAllocator(b, func() Allocator {
		return NewGoAllocator()
	})
}

func BenchmarkClassAllocator(b *testing.B) {
	benchmarkAllocator(b, func() Allocator {
		return NewClassAllocator(256 * MB)
	})
}

func BenchmarkMmapAllocator(b *testing.B) {
	benchmarkAllocator(b, func() Allocator {
		return NewMmapAllocator(NewClassAllocator(256*MB), 0)
	})
}

func BenchmarkCheckedAllocator(b *testing.B) {
	benchmarkAllocator(b, func() Allocator {
		return NewCheckedAllocator("bench", NewClassAllocator(256*MB), 0)
	})
}

func BenchmarkMetricsAllocator(b *testing.B) {
	benchmarkAllocator(b, func() Allocator {
		return NewMetricsAllocator(
			NewClassAllocator(256*MB),
			MallocAllocateBytesCounter,
			MallocInuseBytesGauge,
			MallocAllocateObjectsCounter,
			MallocInuseObjectsGauge,
		)
	})
}

func BenchmarkProfileAllocator(b *testing.B) {
	benchmarkAllocator(b, func() Allocator {
		return NewProfileAllocator(
			NewClassAllocator(256*MB),
			NewProfiler[HeapSampleValues](),
			1000,
		)
	})
}
