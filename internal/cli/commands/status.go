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
	"os"
	"time"

	"github.com/spf13/cobra"

	"pagedb/internal/checkpoint"
	"pagedb/internal/common"
	"pagedb/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine configuration and the last checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := dataDir()
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}

		fmt.Printf("Data directory: %s\n", dir)
		fmt.Printf("Fsync:          %v\n", cfg.FsyncEnabled())
		fmt.Printf("Absorb every:   %d entries\n", cfg.AbsorbInterval)
		fmt.Printf("Retry passes:   %d\n", cfg.RetryPasses)
		fmt.Printf("Intake depth:   %d\n", cfg.IntakeQueueDepth)
		fmt.Printf("I/O workers:    %d\n", cfg.IOWorkers)

		metaPath := common.MetaFilePath(dir)
		if _, err := os.Stat(metaPath); os.IsNotExist(err) {
			fmt.Println("\nNot initialized (run: pagedb init)")
			return nil
		}

		store, err := checkpoint.OpenStore(metaPath)
		if err != nil {
			return err
		}
		defer store.Close()

		last, err := store.LastCheckpoint(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read last checkpoint: %w", err)
		}
		if last == nil {
			fmt.Println("\nNo checkpoints recorded yet.")
			return nil
		}

		fmt.Printf("\nLast checkpoint: %s\n", last.ID)
		fmt.Printf("  Started:  %s\n", time.Unix(last.StartedAt, 0).Format(time.RFC3339))
		fmt.Printf("  Status:   %s\n", last.Status)
		fmt.Printf("  Synced:   %d files (longest %.3f ms, total %.3f ms)\n",
			last.FilesSynced,
			float64(last.LongestSyncMicros)/1000,
			float64(last.TotalSyncMicros)/1000)
		fmt.Printf("  Unlinked: %d files\n", last.UnlinksProcessed)
		if last.Error != "" {
			fmt.Printf("  Error:    %s\n", last.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
