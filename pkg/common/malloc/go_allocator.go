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

// GoAllocator allocates from the Go heap. Deallocate drops the
// reference and lets the collector reclaim the memory.
type GoAllocator struct{}

func NewGoAllocator() *GoAllocator {
	return &GoAllocator{}
}

var _ Allocator = new(GoAllocator)

func (g *GoAllocator) Allocate(size int, align int) ([]byte, error) {
	if err := checkAllocArgs(size, align); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	if size < 16 {
		// the runtime's tiny allocator packs sub-16-byte noscan objects at
		// sub-word offsets, pad the backing to keep 8-byte alignment
		return make([]byte, size, 16), nil
	}
	return make([]byte, size), nil
}

func (g *GoAllocator) Reallocate(buf []byte, align int, newSize int) ([]byte, error) {
	if buf == nil {
		return g.Allocate(newSize, align)
	}
	if newSize == len(buf) {
		return buf, nil
	}
	newBuf, err := g.Allocate(newSize, align)
	if err != nil {
		return nil, err
	}
	copy(newBuf, buf)
	g.Deallocate(buf, align)
	return newBuf, nil
}

func (g *GoAllocator) Deallocate(buf []byte, align int) {
}
