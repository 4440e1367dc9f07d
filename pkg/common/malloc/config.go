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
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/matrixorigin/sovec/pkg/common/moerr"
	"github.com/matrixorigin/sovec/pkg/logutil"
)

type Config struct {
	// Kind selects the base allocator of the default allocator.
	// go, class or mmap.
	Kind *string `toml:"kind"`

	// MaxBufferSize caps the bytes buffered in the class allocator
	// freelists.
	MaxBufferSize *int `toml:"max-buffer-size"`

	// MmapThreshold is the minimum request size served by mmap when Kind
	// is mmap.
	MmapThreshold *int `toml:"mmap-threshold"`

	// Limit caps the live bytes of the default allocator. Requests beyond
	// it fail with an OOM error. 0 means no limit, and no checking
	// allocator is installed unless CheckDetail asks for one.
	Limit *int64 `toml:"limit"`

	// CheckDetail makes the checking allocator record allocate and free
	// stack traces.
	CheckDetail *bool `toml:"check-detail"`

	// EnableMetrics exposes allocation metrics to prometheus.
	EnableMetrics *bool `toml:"enable-metrics"`

	// ProfileFraction samples one in ProfileFraction allocations for the
	// heap profile. 0 disables profiling.
	ProfileFraction *uint32 `toml:"profile-fraction"`
}

func ptrTo[T any](v T) *T {
	return &v
}

func builtinConfig() Config {
	return Config{
		Kind:            ptrTo("mmap"),
		MaxBufferSize:   ptrTo(256 * MB),
		MmapThreshold:   ptrTo(defaultMmapThreshold),
		Limit:           ptrTo(int64(0)),
		CheckDetail:     ptrTo(false),
		EnableMetrics:   ptrTo(false),
		ProfileFraction: ptrTo(uint32(0)),
	}
}

func patchConfig(config Config, delta Config) Config {
	if delta.Kind != nil {
		config.Kind = delta.Kind
	}
	if delta.MaxBufferSize != nil {
		config.MaxBufferSize = delta.MaxBufferSize
	}
	if delta.MmapThreshold != nil {
		config.MmapThreshold = delta.MmapThreshold
	}
	if delta.Limit != nil {
		config.Limit = delta.Limit
	}
	if delta.CheckDetail != nil {
		config.CheckDetail = delta.CheckDetail
	}
	if delta.EnableMetrics != nil {
		config.EnableMetrics = delta.EnableMetrics
	}
	if delta.ProfileFraction != nil {
		config.ProfileFraction = delta.ProfileFraction
	}
	return config
}

var defaultConfig = func() *atomic.Pointer[Config] {
	ret := new(atomic.Pointer[Config])
	ret.Store(&Config{})
	return ret
}()

// SetDefaultConfig replaces the config the default allocator is built
// from. It has no effect once Default has been called.
func SetDefaultConfig(c Config) {
	defaultConfig.Store(&c)
}

func GetDefaultConfig() Config {
	return *defaultConfig.Load()
}

// LoadConfig reads a Config from a toml file.
func LoadConfig(path string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// NewDefault builds an allocator from config, falling back to the
// process default config for nil fields.
func NewDefault(config *Config) (allocator Allocator) {
	if config == nil {
		c := GetDefaultConfig()
		config = &c
	}
	c := patchConfig(builtinConfig(), *config)

	switch *c.Kind {
	case "go":
		allocator = NewGoAllocator()
	case "class":
		allocator = NewClassAllocator(*c.MaxBufferSize)
	case "mmap":
		allocator = NewMmapAllocator(
			NewClassAllocator(*c.MaxBufferSize),
			*c.MmapThreshold,
		)
	default:
		panic(moerr.NewBadConfigNoCtx("unknown allocator kind %q", *c.Kind))
	}

	if *c.EnableMetrics {
		allocator = NewMetricsAllocator(
			allocator,
			MallocAllocateBytesCounter,
			MallocInuseBytesGauge,
			MallocAllocateObjectsCounter,
			MallocInuseObjectsGauge,
		)
	}

	if *c.ProfileFraction > 0 {
		allocator = NewProfileAllocator(allocator, globalHeapProfiler, *c.ProfileFraction)
	}

	if *c.Limit > 0 || *c.CheckDetail {
		checked := NewCheckedAllocator("default", allocator, *c.Limit)
		if *c.CheckDetail {
			checked.EnableDetailRecording()
		}
		allocator = checked
	}

	logutil.Info("malloc",
		zap.Any("kind", *c.Kind),
		zap.Any("limit", *c.Limit),
		zap.Any("check detail", *c.CheckDetail),
		zap.Any("enable metrics", *c.EnableMetrics),
		zap.Any("profile fraction", *c.ProfileFraction),
	)

	return allocator
}
