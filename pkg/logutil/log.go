// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultLogLevel      = "info"
	defaultLogMaxSize    = 300 // MB
	defaultLogMaxDays    = 0
	defaultLogMaxBackups = 0
	defaultLogFormat     = "text"
)

// Config is the supervisor's log configuration. It is not passed to worker
// subprocesses, whose arguments carry only the run's config.Config.
type Config struct {
	File               string `toml:"log-file" json:"log-file"`
	Level              string `toml:"log-level" json:"log-level"`
	Format             string `toml:"log-format" json:"log-format"`
	FileMaxSize        int    `toml:"log-file-max-size" json:"log-file-max-size"`
	FileMaxDays        int    `toml:"log-file-max-days" json:"log-file-max-days"`
	FileMaxBackups     int    `toml:"log-file-max-backups" json:"log-file-max-backups"`
	SamplingInitial    int    `toml:"log-sampling-initial" json:"log-sampling-initial"`
	SamplingThereafter int    `toml:"log-sampling-thereafter" json:"log-sampling-thereafter"`
}

// Adjust fills in the zero-valued fields of cfg with defaults.
func (cfg *Config) Adjust() {
	if len(cfg.Level) == 0 {
		cfg.Level = defaultLogLevel
	}
	if len(cfg.Format) == 0 {
		cfg.Format = defaultLogFormat
	}
	if cfg.FileMaxSize == 0 {
		cfg.FileMaxSize = defaultLogMaxSize
	}
	if cfg.FileMaxDays == 0 {
		cfg.FileMaxDays = defaultLogMaxDays
	}
	if cfg.FileMaxBackups == 0 {
		cfg.FileMaxBackups = defaultLogMaxBackups
	}
}

// InitLogger initializes a global logger from cfg. When cfg.File is empty,
// pingcap/log's default console output is used.
func InitLogger(cfg *Config) error {
	pcConfig := &log.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		File: log.FileLogConfig{
			Filename:   cfg.File,
			MaxSize:    cfg.FileMaxSize,
			MaxDays:    cfg.FileMaxDays,
			MaxBackups: cfg.FileMaxBackups,
		},
	}
	if cfg.SamplingInitial > 0 || cfg.SamplingThereafter > 0 {
		pcConfig.Sampling = &zap.SamplingConfig{
			Initial:    cfg.SamplingInitial,
			Thereafter: cfg.SamplingThereafter,
		}
	}

	logger, props, err := log.InitLogger(pcConfig)
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// SetLogLevel changes the level of the global logger at runtime.
func SetLogLevel(level string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return errors.Trace(err)
	}
	log.SetLevel(l)
	return nil
}

// ZapErrorFilter returns zap.Error(nil) if err's cause matches one of
// filters, otherwise zap.Error(err). Useful for silencing expected errors
// like context.Canceled from showing up as noise at shutdown.
func ZapErrorFilter(err error, filters ...error) zap.Field {
	cause := errors.Cause(err)
	for _, filter := range filters {
		if cause == filter {
			return zap.Error(nil)
		}
	}
	return zap.Error(err)
}
