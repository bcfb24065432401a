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

package checkpoint

import (
	"github.com/uptrace/bun"
)

// Checkpoint record status values.
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// CheckpointModel represents the checkpoints table: one row per attempted
// checkpoint, recording the sync pass outcome for the summary report.
type CheckpointModel struct {
	bun.BaseModel `bun:"table:checkpoints"`

	ID                string `bun:"id,pk"`
	StartedAt         int64  `bun:"started_at,notnull"`  // Unix timestamp
	FinishedAt        int64  `bun:"finished_at,notnull"` // Unix timestamp
	SyncCycle         int64  `bun:"sync_cycle,notnull"`
	CheckpointCycle   int64  `bun:"checkpoint_cycle,notnull"`
	FilesSynced       int64  `bun:"files_synced,notnull"`
	LongestSyncMicros int64  `bun:"longest_sync_micros,notnull"`
	TotalSyncMicros   int64  `bun:"total_sync_micros,notnull"`
	UnlinksProcessed  int64  `bun:"unlinks_processed,notnull"`
	Status            string `bun:"status,notnull"` // "complete" or "failed"
	Error             string `bun:"error"`
}
