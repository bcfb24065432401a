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

// Package integration exercises the full checkpoint stack against a real data
// directory: OS filesystem, flock ownership, metadata store and the sync
// scheduler working together.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"pagedb/internal/checkpoint"
	"pagedb/internal/common"
	"pagedb/internal/config"
	"pagedb/internal/storage"
	"pagedb/internal/sync"
)

// TestCheckpointLifecycle walks a data directory through writes, checkpoints,
// drops and reopening, sharing one directory across ordered subtests.
func TestCheckpointLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dataDir := t.TempDir()
	cfg := config.Default()

	cp, err := checkpoint.Open(dataDir, cfg)
	if err != nil {
		t.Fatalf("Failed to open checkpointer: %v", err)
	}
	defer cp.Close()

	ctx := context.Background()
	segs := cp.SegmentStore()

	t.Run("WriteAndCheckpoint", func(t *testing.T) {
		g := NewWithT(t)

		g.Expect(segs.WriteRelSegment(1, 16384, 0, 0, []byte("heap page"))).To(Succeed())
		g.Expect(segs.WriteRelSegment(1, 16385, 0, 0, []byte("index page"))).To(Succeed())
		g.Expect(segs.WriteWALSegment(1, []byte("wal records"))).To(Succeed())

		rec, err := cp.Run(ctx)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(rec.Status).To(Equal(checkpoint.StatusComplete))
		g.Expect(rec.FilesSynced).To(Equal(int64(3)))

		// Files landed where the path scheme says they should.
		g.Expect(filepath.Join(dataDir, "base", "1", "16384")).To(BeARegularFile())
		g.Expect(filepath.Join(dataDir, "wal", "0000000000000001")).To(BeARegularFile())
	})

	t.Run("RepeatedWritesDeduplicate", func(t *testing.T) {
		g := NewWithT(t)

		// Many writes to the same segment cost one fsync at the checkpoint.
		for i := 0; i < 10; i++ {
			g.Expect(segs.WriteRelSegment(1, 16384, 0, int64(i*4), []byte("page"))).To(Succeed())
		}

		rec, err := cp.Run(ctx)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(rec.FilesSynced).To(Equal(int64(1)))
	})

	t.Run("DropRelationDefersUnlink", func(t *testing.T) {
		g := NewWithT(t)

		g.Expect(segs.WriteRelSegment(1, 20000, 0, 0, []byte("doomed"))).To(Succeed())
		g.Expect(segs.WriteRelSegment(1, 20000, 1, 0, []byte("doomed too"))).To(Succeed())

		rec, err := cp.Run(ctx)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(rec.FilesSynced).To(Equal(int64(2)))

		g.Expect(segs.DropRelation(1, 20000)).To(Succeed())

		// Still on disk: the unlink waits for the next checkpoint.
		g.Expect(filepath.Join(dataDir, "base", "1", "20000")).To(BeARegularFile())

		rec, err = cp.Run(ctx)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(rec.UnlinksProcessed).To(Equal(int64(2)))

		_, err = os.Stat(filepath.Join(dataDir, "base", "1", "20000"))
		g.Expect(os.IsNotExist(err)).To(BeTrue())
		_, err = os.Stat(filepath.Join(dataDir, "base", "1", "20000.1"))
		g.Expect(os.IsNotExist(err)).To(BeTrue())
	})

	t.Run("DropDatabaseCancelsPendingSyncs", func(t *testing.T) {
		g := NewWithT(t)

		g.Expect(segs.WriteRelSegment(9, 16384, 0, 0, []byte("short lived"))).To(Succeed())
		g.Expect(segs.WriteRelSegment(1, 16384, 0, 0, []byte("survivor"))).To(Succeed())
		g.Expect(segs.DropDatabase(9)).To(Succeed())

		// The dropped database's files are already gone, yet the checkpoint
		// must not fail over their pending sync requests.
		rec, err := cp.Run(ctx)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(rec.Status).To(Equal(checkpoint.StatusComplete))
		g.Expect(rec.FilesSynced).To(Equal(int64(1)))

		g.Expect(filepath.Join(dataDir, "base", "9")).NotTo(BeADirectory())
	})

	t.Run("HistoryIsRecorded", func(t *testing.T) {
		g := NewWithT(t)

		recs, err := cp.Store().ListCheckpoints(ctx, 0)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(len(recs)).To(BeNumerically(">=", 5))
		for _, rec := range recs {
			g.Expect(rec.Status).To(Equal(checkpoint.StatusComplete))
		}

		last, err := cp.Store().LastCheckpoint(ctx)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(last).NotTo(BeNil())
	})
}

// TestIntakeFromWriterGoroutines drives the forwarding queue from concurrent
// writers while the checkpointer absorbs, the way backend processes feed the
// real scheduler.
func TestIntakeFromWriterGoroutines(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	g := NewWithT(t)

	dataDir := t.TempDir()
	cp, err := checkpoint.Open(dataDir, config.Default())
	g.Expect(err).NotTo(HaveOccurred())
	defer cp.Close()

	ctx := context.Background()

	// Writers do not own the pending-ops table, so their store forwards every
	// obligation through the intake queue instead of registering directly.
	writerStore := storage.NewSegmentStore(cp.SegmentStore().Filesystem(),
		func(tag sync.FileTag, kind sync.RequestKind) {
			cp.Intake().Register(ctx, tag, kind, true)
		})

	const writers = 4
	const segsPerWriter = 8
	done := make(chan error, writers)
	for w := 0; w < writers; w++ {
		go func(rel uint32) {
			for seg := uint64(0); seg < segsPerWriter; seg++ {
				if err := writerStore.WriteRelSegment(1, rel, seg, 0, []byte("w")); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(uint32(16384 + w))
	}
	for w := 0; w < writers; w++ {
		g.Expect(<-done).NotTo(HaveOccurred())
	}

	rec, err := cp.Run(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(rec.FilesSynced).To(Equal(int64(writers * segsPerWriter)))
}

// TestReopenDataDirectory verifies lock release and metadata persistence
// across checkpointer restarts.
func TestReopenDataDirectory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	g := NewWithT(t)

	dataDir := t.TempDir()
	ctx := context.Background()

	cp, err := checkpoint.Open(dataDir, config.Default())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cp.SegmentStore().WriteRelSegment(1, 16384, 0, 0, []byte("x"))).To(Succeed())
	first, err := cp.Run(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cp.Close()).To(Succeed())

	cp, err = checkpoint.Open(dataDir, config.Default())
	g.Expect(err).NotTo(HaveOccurred())
	defer cp.Close()

	last, err := cp.Store().LastCheckpoint(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(last).NotTo(BeNil())
	g.Expect(last.ID).To(Equal(first.ID))

	// The segment written before the restart is still there.
	g.Expect(filepath.Join(dataDir, common.RelSegmentPath(1, 16384, 0))).To(BeARegularFile())
}
