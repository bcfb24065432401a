// Copyright 2026 PageDB Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads engine configuration from the data directory.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pagedb/internal/common"
)

// Config is the engine configuration loaded from {dataDir}/pagedb.yaml.
type Config struct {
	// Fsync controls whether sync requests actually reach the disk. With fsync
	// off, checkpoint passes drop pending entries without issuing I/O. The
	// toggle is consulted per entry at dispatch time so flipping it mid-run
	// behaves sensibly.
	Fsync *bool `yaml:"fsync"` // default: true (pointer to detect missing)

	// AbsorbInterval is the number of table entries (or unlink queue entries)
	// visited between intake absorptions during a checkpoint pass.
	AbsorbInterval int `yaml:"absorb_interval"` // default: 10

	// RetryPasses bounds the outer retry loop of a sync pass.
	RetryPasses int `yaml:"retry_passes"` // default: 5

	// IntakeQueueDepth is the capacity of the writer->checkpointer queue.
	IntakeQueueDepth int `yaml:"intake_queue_depth"` // default: 1024

	// IOWorkers is the async write engine's worker count.
	IOWorkers int `yaml:"io_workers"` // default: 8

	// LogLevel sets the logging level: trace, debug, info, warn, off (default: off)
	LogLevel string `yaml:"log_level"`
}

// ApplyDefaults fills zero-value fields with their defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Fsync == nil {
		t := true
		cfg.Fsync = &t
	}
	if cfg.AbsorbInterval <= 0 {
		cfg.AbsorbInterval = 10
	}
	if cfg.RetryPasses <= 0 {
		cfg.RetryPasses = 5
	}
	if cfg.IntakeQueueDepth <= 0 {
		cfg.IntakeQueueDepth = 1024
	}
	if cfg.IOWorkers <= 0 {
		cfg.IOWorkers = 8
	}
}

// FsyncEnabled returns whether fsync is enabled (defaults to true).
func (cfg *Config) FsyncEnabled() bool {
	if cfg.Fsync == nil {
		return true
	}
	return *cfg.Fsync
}

// LoggingEnabled returns whether logging is enabled (any level other than "off" or empty).
func (cfg *Config) LoggingEnabled() bool {
	level := strings.ToLower(cfg.LogLevel)
	return level != "" && level != "off" && level != "none"
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load loads the config from {dataDir}/pagedb.yaml.
// Returns defaults if the config file does not exist.
func Load(dataDir string) (*Config, error) {
	data, err := os.ReadFile(common.ConfigFilePath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Save writes the config to {dataDir}/pagedb.yaml.
func Save(dataDir string, cfg *Config) error {
	if err := common.EnsureDataDir(dataDir); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	header := []byte("# PageDB engine settings\n# See: pagedb init --help\n\n")
	return os.WriteFile(common.ConfigFilePath(dataDir), append(header, data...), 0600)
}
