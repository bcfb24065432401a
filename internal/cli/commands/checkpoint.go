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

	"github.com/spf13/cobra"

	"pagedb/internal/checkpoint"
	"pagedb/internal/config"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Run one checkpoint over the data directory",
	Long: `Run one checkpoint: fsync every data segment registered as dirty since the
last checkpoint, then delete files whose deferred unlink has cleared its
checkpoint boundary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := dataDir()
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}

		cp, err := checkpoint.Open(dir, cfg)
		if err != nil {
			return err
		}
		defer cp.Close()

		rec, err := cp.Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Checkpoint %s complete: %d files synced (longest %.3f ms, total %.3f ms), %d files removed\n",
			rec.ID, rec.FilesSynced,
			float64(rec.LongestSyncMicros)/1000, float64(rec.TotalSyncMicros)/1000,
			rec.UnlinksProcessed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
}
