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
	"io"
	"math/rand"
	"runtime"
	"strconv"
	"sync"

	"github.com/google/pprof/profile"
)

// SampleValues aggregates the measurements of one sampled call site.
type SampleValues[P any] interface {
	Init()
	DefaultSampleType() string
	SampleTypes() []*profile.ValueType
	Values() []int64
}

// Profiler aggregates per-call-site sample values and renders them as a
// pprof profile.
type Profiler[T any, P interface {
	*T
	SampleValues[P]
}] struct {
	samples sync.Map // StacktraceID -> *profilerSample[T]
}

type profilerSample[T any] struct {
	stack  StacktraceID
	values T
}

func NewProfiler[T any, P interface {
	*T
	SampleValues[P]
}]() *Profiler[T, P] {
	return &Profiler[T, P]{}
}

// Sample returns the values cell for the calling site. fraction 0
// disables stack collection, 1 always collects, n collects one in n;
// sites that miss the sample aggregate into a shared cell.
func (p *Profiler[T, P]) Sample(skip int, fraction uint32) P {
	var id StacktraceID
	if fraction > 0 && (fraction == 1 || rand.Uint32()%fraction == 0) {
		id = GetStacktraceID(skip + 1)
	}
	if v, ok := p.samples.Load(id); ok {
		return P(&v.(*profilerSample[T]).values)
	}
	sample := &profilerSample[T]{
		stack: id,
	}
	P(&sample.values).Init()
	v, _ := p.samples.LoadOrStore(id, sample)
	return P(&v.(*profilerSample[T]).values)
}

func (p *Profiler[T, P]) Write(w io.Writer) error {
	var zero T
	prof := &profile.Profile{
		SampleType:        P(&zero).SampleTypes(),
		DefaultSampleType: P(&zero).DefaultSampleType(),
		PeriodType: &profile.ValueType{
			Type: "space",
			Unit: "bytes",
		},
		Period: 1,
	}
	builder := profileBuilder{
		prof:      prof,
		functions: make(map[string]*profile.Function),
		locations: make(map[string]*profile.Location),
	}

	p.samples.Range(func(_, v any) bool {
		sample := v.(*profilerSample[T])

		var locations []*profile.Location
		if pcs := sample.stack.pcs(); len(pcs) > 0 {
			frames := runtime.CallersFrames(pcs)
			for {
				frame, more := frames.Next()
				if frame.Function != "" {
					locations = append(locations,
						builder.location(frame.Function, frame.File, int64(frame.Line)))
				}
				if !more {
					break
				}
			}
		} else {
			locations = append(locations, builder.location("sampled", "", 0))
		}

		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: locations,
			Value:    P(&sample.values).Values(),
		})
		return true
	})

	return prof.Write(w)
}

type profileBuilder struct {
	prof      *profile.Profile
	functions map[string]*profile.Function
	locations map[string]*profile.Location
}

func (b *profileBuilder) location(function string, file string, line int64) *profile.Location {
	key := function + ":" + strconv.FormatInt(line, 10)
	if loc, ok := b.locations[key]; ok {
		return loc
	}

	fn, ok := b.functions[function]
	if !ok {
		fn = &profile.Function{
			ID:         uint64(len(b.prof.Function) + 1),
			Name:       function,
			SystemName: function,
			Filename:   file,
		}
		b.functions[function] = fn
		b.prof.Function = append(b.prof.Function, fn)
	}

	loc := &profile.Location{
		ID: uint64(len(b.prof.Location) + 1),
		Line: []profile.Line{
			{
				Function: fn,
				Line:     line,
			},
		},
	}
	b.locations[key] = loc
	b.prof.Location = append(b.prof.Location, loc)
	return loc
}
