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

// Package checkpoint runs checkpoints: it owns the sync scheduler, drives the
// pre-checkpoint / sync-pass / post-checkpoint sequence, and records each
// attempt in the metadata store.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pagedb/internal/aio"
	"pagedb/internal/common"
	"pagedb/internal/config"
	"pagedb/internal/storage"
	"pagedb/internal/sync"
)

// Checkpointer is the single process-wide owner of the pending-ops table.
// Exactly one instance can exist per data directory; the flock enforces this
// across processes, construction enforces it within one.
type Checkpointer struct {
	dataDir string
	cfg     *config.Config

	lock  *flock.Flock
	pool  *aio.Pool
	store *Store
	sched *sync.Scheduler
	segs  *storage.SegmentStore
}

// Open acquires ownership of the data directory and builds the scheduler
// stack: handler registry, async I/O pool, segment store and metadata store.
func Open(dataDir string, cfg *config.Config) (*Checkpointer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := common.EnsureDataDir(dataDir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(common.LockFilePath(dataDir))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire checkpointer lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another checkpointer already owns %s", dataDir)
	}

	c, err := open(osfs.New(dataDir), cfg)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	c.dataDir = dataDir
	c.lock = lock

	store, err := OpenStore(common.MetaFilePath(dataDir))
	if err != nil {
		c.pool.Close()
		lock.Unlock()
		return nil, err
	}
	c.store = store

	log.Infof("checkpointer started for %s", dataDir)
	return c, nil
}

// OpenEphemeral builds a checkpointer over an arbitrary filesystem with no
// lock file and no metadata store. Used by tests and recovery tooling that
// run against in-memory storage.
func OpenEphemeral(fs billy.Filesystem, cfg *config.Config) (*Checkpointer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	return open(fs, cfg)
}

func open(fs billy.Filesystem, cfg *config.Config) (*Checkpointer, error) {
	pool := aio.NewPool(cfg.IOWorkers)
	registry := sync.NewRegistry()

	sched := sync.NewScheduler(registry, pool, sync.Options{
		Fsync:          cfg.FsyncEnabled(),
		AbsorbInterval: cfg.AbsorbInterval,
		RetryPasses:    cfg.RetryPasses,
		IntakeDepth:    cfg.IntakeQueueDepth,
	})

	// The checkpointer's own writes register directly: it owns the table.
	segs := storage.NewSegmentStore(fs, sched.RegisterSyncRequest)
	registry.Register(sync.HandlerRelData, storage.NewRelDataHandler(segs))
	registry.Register(sync.HandlerWAL, storage.NewWALHandler(segs))

	return &Checkpointer{cfg: cfg, pool: pool, sched: sched, segs: segs}, nil
}

// Scheduler returns the owned sync scheduler.
func (c *Checkpointer) Scheduler() *sync.Scheduler {
	return c.sched
}

// SegmentStore returns the segment store wired to the scheduler.
func (c *Checkpointer) SegmentStore() *storage.SegmentStore {
	return c.segs
}

// Intake returns the forwarding queue for writers on other goroutines.
func (c *Checkpointer) Intake() *sync.Intake {
	return c.sched.Intake()
}

// Run performs one checkpoint: advance the unlink cycle, process every sync
// request registered before this point, then delete files whose deferred
// unlink has cleared its checkpoint boundary. Each attempt is recorded in the
// metadata store; a sync failure fails the checkpoint (the caller retries it
// wholesale later).
func (c *Checkpointer) Run(ctx context.Context) (*CheckpointModel, error) {
	started := time.Now()

	// Advance the checkpoint cycle before the durability point is fixed, so
	// unlinks requested during this checkpoint are deferred past it.
	c.sched.SyncPreCheckpoint()

	// The buffer manager's write-out of dirty pages would sit here; every
	// write it performs registers a sync request that the pass below absorbs.

	stats, syncErr := c.sched.ProcessSyncRequests()

	unlinked := 0
	if syncErr == nil {
		unlinked = c.sched.SyncPostCheckpoint()
	}

	syncCycle, checkpointCycle := c.sched.Cycles()
	rec := &CheckpointModel{
		ID:                uuid.NewString(),
		StartedAt:         started.Unix(),
		FinishedAt:        time.Now().Unix(),
		SyncCycle:         int64(syncCycle),
		CheckpointCycle:   int64(checkpointCycle),
		FilesSynced:       int64(stats.Processed),
		LongestSyncMicros: stats.Longest.Microseconds(),
		TotalSyncMicros:   stats.Total.Microseconds(),
		UnlinksProcessed:  int64(unlinked),
		Status:            StatusComplete,
	}
	if syncErr != nil {
		rec.Status = StatusFailed
		rec.Error = syncErr.Error()
	}

	if c.store != nil {
		if err := c.store.RecordCheckpoint(ctx, rec); err != nil {
			log.Warnf("could not record checkpoint %s: %v", rec.ID, err)
		}
	}

	c.reportStats(rec)

	if syncErr != nil {
		return rec, fmt.Errorf("checkpoint %s failed: %w", rec.ID, syncErr)
	}
	return rec, nil
}

// reportStats emits the counters the external reporting subsystem consumes.
func (c *Checkpointer) reportStats(rec *CheckpointModel) {
	log.WithFields(log.Fields{
		"checkpoint":      rec.ID,
		"status":          rec.Status,
		"files_synced":    rec.FilesSynced,
		"longest_us":      rec.LongestSyncMicros,
		"total_us":        rec.TotalSyncMicros,
		"unlinks":         rec.UnlinksProcessed,
		"pending_syncs":   c.sched.PendingSyncs(),
		"pending_unlinks": c.sched.PendingUnlinks(),
	}).Info("checkpoint finished")
}

// Store returns the checkpoint metadata store (nil for ephemeral instances).
func (c *Checkpointer) Store() *Store {
	return c.store
}

// Close releases the I/O pool, metadata store and ownership lock.
func (c *Checkpointer) Close() error {
	c.pool.Close()
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			log.Warnf("could not close metadata store: %v", err)
		}
	}
	if c.lock != nil {
		return c.lock.Unlock()
	}
	return nil
}
