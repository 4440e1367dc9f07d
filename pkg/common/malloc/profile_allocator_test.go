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
	"bytes"
	"strings"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/require"
)

func TestProfileAllocator(t *testing.T) {
	testAllocator(t, func() Allocator {
		return NewProfileAllocator(
			NewClassAllocator(64*MB),
			NewProfiler[HeapSampleValues](),
			1,
		)
	})

	t.Run("write profile", func(t *testing.T) {
		profiler := NewProfiler[HeapSampleValues]()
		p := NewProfileAllocator(NewGoAllocator(), profiler, 1)

		bufs := make([][]byte, 0, 10)
		for i := 0; i < 10; i++ {
			buf, err := p.Allocate(1*KB, 8)
			require.Nil(t, err)
			bufs = append(bufs, buf)
		}
		for _, buf := range bufs[:5] {
			p.Deallocate(buf, 8)
		}

		out := new(bytes.Buffer)
		require.Nil(t, profiler.Write(out))
		prof, err := profile.Parse(out)
		require.Nil(t, err)
		require.Equal(t, 4, len(prof.SampleType))
		require.True(t, len(prof.Sample) > 0)

		indexOf := func(name string) int {
			for i, sampleType := range prof.SampleType {
				if sampleType.Type == name {
					return i
				}
			}
			t.Fatalf("no sample type %v", name)
			return -1
		}

		var allocatedObjects, inuseBytes int64
		for _, sample := range prof.Sample {
			allocatedObjects += sample.Value[indexOf("allocated_objects")]
			inuseBytes += sample.Value[indexOf("inuse_bytes")]
		}
		require.Equal(t, int64(10), allocatedObjects)
		require.Equal(t, int64(5*KB), inuseBytes)

		// with fraction 1 the call site is attributed
		var found bool
		for _, sample := range prof.Sample {
			for _, location := range sample.Location {
				for _, line := range location.Line {
					if strings.Contains(line.Function.Name, "TestProfileAllocator") {
						found = true
					}
				}
			}
		}
		require.True(t, found)

		for _, buf := range bufs[5:] {
			p.Deallocate(buf, 8)
		}
	})

	t.Run("reallocate moves attribution", func(t *testing.T) {
		profiler := NewProfiler[HeapSampleValues]()
		p := NewProfileAllocator(NewGoAllocator(), profiler, 1)

		buf, err := p.Allocate(1*KB, 8)
		require.Nil(t, err)
		buf, err = p.Reallocate(buf, 8, 4*KB)
		require.Nil(t, err)

		out := new(bytes.Buffer)
		require.Nil(t, profiler.Write(out))
		prof, err := profile.Parse(out)
		require.Nil(t, err)

		var inuseBytes int64
		for i, sampleType := range prof.SampleType {
			if sampleType.Type != "inuse_bytes" {
				continue
			}
			for _, sample := range prof.Sample {
				inuseBytes += sample.Value[i]
			}
		}
		require.Equal(t, int64(4*KB), inuseBytes)

		p.Deallocate(buf, 8)
	})

	t.Run("large allocations are always sampled", func(t *testing.T) {
		profiler := NewProfiler[HeapSampleValues]()
		// a fraction this sparse samples nothing small
		p := NewProfileAllocator(NewGoAllocator(), profiler, 1<<30)

		buf, err := p.Allocate(largeAllocationThreshold, 8)
		require.Nil(t, err)

		out := new(bytes.Buffer)
		require.Nil(t, profiler.Write(out))
		prof, err := profile.Parse(out)
		require.Nil(t, err)

		var found bool
		for _, sample := range prof.Sample {
			for _, location := range sample.Location {
				for _, line := range location.Line {
					if strings.Contains(line.Function.Name, "TestProfileAllocator") {
						found = true
					}
				}
			}
		}
		require.True(t, found)

		p.Deallocate(buf, 8)
	})
}

func TestWriteHeapProfile(t *testing.T) {
	p := NewProfileAllocator(NewGoAllocator(), globalHeapProfiler, 1)
	buf, err := p.Allocate(4096, 8)
	require.Nil(t, err)

	out := new(bytes.Buffer)
	require.Nil(t, WriteHeapProfile(out))
	prof, parseErr := profile.Parse(out)
	require.Nil(t, parseErr)
	require.Equal(t, 4, len(prof.SampleType))

	p.Deallocate(buf, 8)
}
