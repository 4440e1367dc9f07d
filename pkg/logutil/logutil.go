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

package logutil

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/matrixorigin/sovec/pkg/common/moerr"
)

// LogConfig describes one logger setup. Zero values fall back to an
// info-level console logger writing to stderr.
type LogConfig struct {
	// Level is the minimum enabled level: debug, info, warn, error,
	// dpanic, panic or fatal. Default info.
	Level string `toml:"level"`
	// Format is the encoder format, console or json. Default console.
	Format string `toml:"format"`
	// Filename, when set, routes output to a rotated file instead of
	// stderr.
	Filename string `toml:"filename"`
	// MaxSize is the size in MB that triggers a rotation.
	MaxSize int `toml:"max-size"`
	// MaxDays is how many days rotated files are retained, 0 keeps all.
	MaxDays int `toml:"max-days"`
	// MaxBackups is how many rotated files are retained, 0 keeps all.
	MaxBackups int `toml:"max-backups"`
	// StacktraceLevel is the level at which entries capture a stacktrace.
	// Default fatal.
	StacktraceLevel string `toml:"stacktrace-level"`
}

// ZapSink pairs an encoder with its write syncer.
type ZapSink struct {
	enc zapcore.Encoder
	out zapcore.WriteSyncer
}

// SetupMOLogger builds the logger described by conf and installs it as
// the process-global logger.
func SetupMOLogger(conf *LogConfig) {
	logger := conf.newLogger()
	setGlobalLogger(logger)
	logger.Info("MO logger init",
		zap.String("level", conf.Level),
		zap.String("format", conf.Format),
		zap.String("log file", conf.Filename))
}

func (cfg *LogConfig) newLogger() *zap.Logger {
	var cores []zapcore.Core
	level := cfg.getLevel()
	for _, sink := range cfg.getSinks() {
		cores = append(cores, zapcore.NewCore(sink.enc, sink.out, level))
	}
	return zap.New(zapcore.NewTee(cores...), cfg.getOptions()...)
}

func (cfg *LogConfig) getLevel() zap.AtomicLevel {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if l, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level = l
		}
	}
	return zap.NewAtomicLevelAt(level)
}

func (cfg *LogConfig) getStacktraceLevel() zapcore.Level {
	level := zapcore.FatalLevel
	if cfg.StacktraceLevel != "" {
		if l, err := zapcore.ParseLevel(cfg.StacktraceLevel); err == nil {
			level = l
		}
	}
	return level
}

func (cfg *LogConfig) getOptions() []zap.Option {
	return []zap.Option{zap.AddStacktrace(cfg.getStacktraceLevel()), zap.AddCaller()}
}

func (cfg *LogConfig) getSyncer() zapcore.WriteSyncer {
	if cfg.Filename != "" {
		if stat, err := os.Stat(cfg.Filename); err == nil && stat.IsDir() {
			panic("log file can't be a directory")
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxDays,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  true,
		})
	}
	return getConsoleSyncer()
}

func (cfg *LogConfig) getEncoder() zapcore.Encoder {
	return getLoggerEncoder(cfg.Format)
}

func (cfg *LogConfig) getSinks() []ZapSink {
	return []ZapSink{{cfg.getEncoder(), cfg.getSyncer()}}
}

func getConsoleSyncer() zapcore.WriteSyncer {
	return zapcore.Lock(os.Stderr)
}

func getLoggerEncoder(format string) zapcore.Encoder {
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(getLoggerEncoderConfig())
	case "console", "":
		return zapcore.NewConsoleEncoder(getLoggerEncoderConfig())
	default:
		panic(moerr.NewInternalError(context.TODO(), "unsupported log format: %s", format))
	}
}

func getLoggerEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "name",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000 -0700"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

var (
	_globalLogger atomic.Value // *zap.Logger
	_skip1Logger  atomic.Value // *zap.Logger
	initOnce      sync.Once
)

func setGlobalLogger(logger *zap.Logger) {
	_skip1Logger.Store(logger.WithOptions(zap.AddCallerSkip(1)))
	_globalLogger.Store(logger)
}

// GetGlobalLogger returns the process-global logger, installing an
// info-level console logger on first use if none was set up.
func GetGlobalLogger() *zap.Logger {
	if l := _globalLogger.Load(); l != nil {
		return l.(*zap.Logger)
	}
	initOnce.Do(func() {
		if _globalLogger.Load() == nil {
			conf := &LogConfig{Level: "info", Format: "console"}
			setGlobalLogger(conf.newLogger())
		}
	})
	return _globalLogger.Load().(*zap.Logger)
}

// GetSkip1Logger returns the global logger with one caller frame
// skipped, for the package-level helpers in api.go.
func GetSkip1Logger() *zap.Logger {
	GetGlobalLogger()
	return _skip1Logger.Load().(*zap.Logger)
}
