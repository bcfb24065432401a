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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pagedb/internal/checkpoint"
	"pagedb/internal/common"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := checkpoint.OpenStore(common.MetaFilePath(dataDir()))
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.ListCheckpoints(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list checkpoints: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No checkpoints recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tSTATUS\tSYNCED\tUNLINKED\tLONGEST\tTOTAL\tID")
		for _, rec := range recs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.3f ms\t%.3f ms\t%s\n",
				time.Unix(rec.StartedAt, 0).Format(time.RFC3339),
				rec.Status,
				rec.FilesSynced,
				rec.UnlinksProcessed,
				float64(rec.LongestSyncMicros)/1000,
				float64(rec.TotalSyncMicros)/1000,
				rec.ID)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of checkpoints to list")
	rootCmd.AddCommand(historyCmd)
}
