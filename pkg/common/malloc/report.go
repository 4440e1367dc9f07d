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
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// MemUsage is the reportable state of one named allocator.
type MemUsage struct {
	Name          string        `json:"name"`
	NumAlloc      int64         `json:"num_alloc"`
	NumFree       int64         `json:"num_free"`
	NumRealloc    int64         `json:"num_realloc"`
	CurrNB        int64         `json:"curr_nb"`
	HighWaterMark int64         `json:"high_water_mark"`
	Details       []UsageDetail `json:"details,omitempty"`
}

// UsageDetail describes one outstanding allocation. Stack is empty
// unless detail recording was on when the allocation happened.
type UsageDetail struct {
	Size  int    `json:"size"`
	Stack string `json:"stack,omitempty"`
}

type usageReporter interface {
	memUsage() MemUsage
}

var namedAllocators sync.Map // name -> usageReporter

func registerAllocator(name string, reporter usageReporter) {
	namedAllocators.Store(name, reporter)
}

func unregisterAllocator(name string) {
	namedAllocators.Delete(name)
}

func (c *CheckedAllocator[U]) memUsage() MemUsage {
	usage := MemUsage{
		Name:          c.name,
		NumAlloc:      c.stats.NumAlloc.Load(),
		NumFree:       c.stats.NumFree.Load(),
		NumRealloc:    c.stats.NumRealloc.Load(),
		CurrNB:        c.stats.NumCurrBytes.Load(),
		HighWaterMark: c.stats.HighWaterMark.Load(),
	}
	c.mu.Lock()
	for _, entry := range c.live {
		detail := UsageDetail{
			Size: entry.size,
		}
		if entry.allocStack != 0 {
			detail.Stack = entry.allocStack.String()
		}
		usage.Details = append(usage.Details, detail)
	}
	c.mu.Unlock()
	sort.Slice(usage.Details, func(i, j int) bool {
		return usage.Details[i].Size > usage.Details[j].Size
	})
	return usage
}

// ReportMemUsage serializes the stats of the named allocator, or of all
// registered allocators when name is empty, to JSON.
func ReportMemUsage(name string) string {
	var usages []MemUsage
	namedAllocators.Range(func(k, v any) bool {
		if name != "" && k.(string) != name {
			return true
		}
		usages = append(usages, v.(usageReporter).memUsage())
		return true
	})
	sort.Slice(usages, func(i, j int) bool {
		return usages[i].Name < usages[j].Name
	})
	data, err := json.Marshal(usages)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
