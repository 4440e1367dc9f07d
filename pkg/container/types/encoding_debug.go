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

//go:build debug
// +build debug

package types

import (
	"unsafe"

	"github.com/matrixorigin/sovec/pkg/common/moerr"
)

func EncodeSliceWithCap[T FixedSizeT](v []T) []byte {
	var t T
	sz := int(unsafe.Sizeof(t))
	if cap(v) > 0 {
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[:1][0])), cap(v)*sz)[:len(v)*sz]
	}
	return nil
}

func EncodeSlice[T FixedSizeT](v []T) []byte {
	var t T
	sz := int(unsafe.Sizeof(t))
	if len(v) > 0 {
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*sz)
	}
	return nil
}

func DecodeSlice[T FixedSizeT](v []byte) []T {
	var t T
	sz := int(unsafe.Sizeof(t))

	if len(v)%sz != 0 {
		panic(moerr.NewInternalErrorNoCtx("decode slice that is not a multiple of element size"))
	}
	if len(v) > 0 && uintptr(unsafe.Pointer(&v[0]))%uintptr(unsafe.Alignof(t)) != 0 {
		panic(moerr.NewInternalErrorNoCtx("decode slice that is not aligned to element alignment"))
	}

	if len(v) > 0 {
		return unsafe.Slice((*T)(unsafe.Pointer(&v[0])), len(v)/sz)
	}
	return nil
}

func EncodeFixed[T FixedSizeT](v T) []byte {
	sz := unsafe.Sizeof(v)
	return unsafe.Slice((*byte)(unsafe.Pointer(&v)), sz)
}

func DecodeFixed[T FixedSizeT](v []byte) T {
	var t T
	if len(v) < int(unsafe.Sizeof(t)) {
		panic(moerr.NewInternalErrorNoCtx("decode fixed value from a short buffer"))
	}
	return *(*T)(unsafe.Pointer(&v[0]))
}
