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

package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pagedb/internal/common"
	"pagedb/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// dataDirFlag overrides the data directory (default: PAGEDB_DATA_DIR or ~/.pagedb).
var dataDirFlag string

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// dataDir resolves the effective data directory.
func dataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	return common.DataDir()
}

var rootCmd = &cobra.Command{
	Use:   "pagedb",
	Short: "Disk-based relational storage engine",
	Long:  `Disk-based relational storage engine. The checkpoint subcommands drive and inspect the durability scheduler that fsyncs dirty segments and defers file deletion across checkpoint boundaries.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		cfg, err := config.Load(dataDir())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		configureLogging(cfg)
		return nil
	},
}

// configureLogging sets the log level from config (case insensitive).
// Logging is discarded unless a level is configured.
func configureLogging(cfg *config.Config) {
	if !cfg.LoggingEnabled() {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(os.Stderr)
	switch strings.ToLower(cfg.LogLevel) {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("pagedb version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "engine data directory (default: PAGEDB_DATA_DIR or ~/.pagedb)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
