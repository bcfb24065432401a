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

package sync

import (
	"time"

	log "github.com/sirupsen/logrus"

	"pagedb/internal/common"
)

// pendingOp is a live sync obligation for one file.
type pendingOp struct {
	cycle    CycleCtr // sync cycle of the oldest outstanding request
	canceled bool     // a forget/filter request arrived after the last sync request
}

// pendingUnlink is a deferred deletion, stamped with the checkpoint cycle that
// was current when it was requested.
type pendingUnlink struct {
	tag   FileTag
	cycle CycleCtr
}

// Engine is the asynchronous I/O boundary the driver dispatches sync
// operations through. Completion callbacks are delivered, in unspecified
// order, on the goroutine calling WaitAll.
type Engine interface {
	Submit(run func() error, done func(error))
	WaitAll()
}

// Options configures a Scheduler.
type Options struct {
	// Fsync controls whether dispatched entries actually reach the disk.
	// With it off, entries are dropped without I/O at dispatch time.
	Fsync bool
	// AbsorbInterval is the number of table or unlink entries visited between
	// intake absorptions; the backpressure valve against an unbounded
	// writer->checkpointer queue.
	AbsorbInterval int
	// RetryPasses bounds the outer retry loop of a sync pass.
	RetryPasses int
	// IntakeDepth is the capacity of the writer->checkpointer queue.
	IntakeDepth int
}

// PassStats summarizes one checkpoint sync pass, reported to the checkpoint's
// summary at completion.
type PassStats struct {
	Processed int           // files successfully synced
	Longest   time.Duration // longest single-operation latency
	Total     time.Duration // aggregate latency across operations
}

// Scheduler owns the pending-request table, the unlink queue and the cycle
// counters for one process. Exactly one goroutine (the checkpointer) may call
// the table-mutating methods; other writers enqueue through Intake. This
// ownership is by construction: only the checkpointer creates a Scheduler.
type Scheduler struct {
	handlers *Registry
	engine   Engine
	intake   *Intake

	fsync          bool
	absorbInterval int
	retryPasses    int

	pending map[FileTag]*pendingOp
	unlinks []pendingUnlink

	syncCycle       CycleCtr
	checkpointCycle CycleCtr

	// Transient driver state for the pass in progress.
	inflight       []*inflightSync
	retries        []*inflightSync
	syncInProgress bool
	absorbCounter  int
	stats          PassStats
	hardErr        error
}

// NewScheduler creates the pending-ops table and its owning scheduler.
func NewScheduler(handlers *Registry, engine Engine, opts Options) *Scheduler {
	if opts.AbsorbInterval <= 0 {
		opts.AbsorbInterval = 10
	}
	if opts.RetryPasses <= 0 {
		opts.RetryPasses = 5
	}
	if opts.IntakeDepth <= 0 {
		opts.IntakeDepth = 1024
	}
	return &Scheduler{
		handlers:       handlers,
		engine:         engine,
		intake:         newIntake(opts.IntakeDepth),
		fsync:          opts.Fsync,
		absorbInterval: opts.AbsorbInterval,
		retryPasses:    opts.RetryPasses,
		pending:        make(map[FileTag]*pendingOp),
	}
}

// Intake returns the forwarding queue writers use to register requests.
func (s *Scheduler) Intake() *Intake {
	return s.intake
}

// SetFsync flips the fsync toggle. The toggle is consulted per entry at
// dispatch time, so flipping it mid-run behaves sensibly.
func (s *Scheduler) SetFsync(enabled bool) {
	s.fsync = enabled
}

// RegisterSyncRequest records a request from the table owner itself. Writers
// on other goroutines must go through Intake().Register instead.
func (s *Scheduler) RegisterSyncRequest(tag FileTag, kind RequestKind) {
	s.RememberSyncRequest(tag, kind)
}

// RememberSyncRequest enters a request into the local bookkeeping. Sync
// requests land in the pending table for the next sync pass; unlink requests
// go to the ordered unlink queue because they are processed separately.
func (s *Scheduler) RememberSyncRequest(tag FileTag, kind RequestKind) {
	switch kind {
	case ForgetRequest:
		// Cancel a previously entered request. The entry is not removed here:
		// removal happens during pass or retry processing, so an in-progress
		// scan never has entries deleted out from under it.
		if op, ok := s.pending[tag]; ok {
			op.canceled = true
		}

	case FilterRequest:
		h := s.handlers.lookup(tag.Handler)

		// Cancel matching sync requests.
		for candidate, op := range s.pending {
			if candidate.Handler == tag.Handler && h.FileTagMatches(tag, candidate) {
				op.canceled = true
			}
		}

		// Remove matching unlink requests outright. Unlike sync entries,
		// queued unlinks are safe to drop immediately.
		kept := s.unlinks[:0]
		for _, u := range s.unlinks {
			if u.tag.Handler == tag.Handler && h.FileTagMatches(tag, u.tag) {
				continue
			}
			kept = append(kept, u)
		}
		s.unlinks = kept

	case UnlinkRequest:
		s.unlinks = append(s.unlinks, pendingUnlink{tag: tag, cycle: s.checkpointCycle})

	case SyncRequest:
		op, ok := s.pending[tag]
		if !ok {
			s.pending[tag] = &pendingOp{cycle: s.syncCycle}
			return
		}
		if op.canceled {
			op.cycle = s.syncCycle
			op.canceled = false
		}
		// NB: an existing live entry keeps its cycle. The cycle must represent
		// the oldest sync request that could be covered by the entry.
	}
}

// AbsorbSyncRequests drains the intake queue into the local bookkeeping.
// Called at the start of a sync pass and periodically during long scans so a
// full queue never stalls writers for long.
func (s *Scheduler) AbsorbSyncRequests() {
	for {
		select {
		case r := <-s.intake.ch:
			s.RememberSyncRequest(r.tag, r.kind)
		default:
			return
		}
	}
}

// SyncPreCheckpoint does pre-checkpoint work. Unlink requests arriving after
// this point are stamped with the next cycle and won't be unlinked until the
// next checkpoint. Must be called before the checkpoint's durability point is
// fixed, so files are never deleted too soon.
func (s *Scheduler) SyncPreCheckpoint() {
	s.checkpointCycle++
}

// SyncPostCheckpoint removes files that can now be safely deleted, in arrival
// order, stopping at the first entry stamped with the current checkpoint
// cycle. Returns the number of files unlinked.
//
// If just the right number of consecutive checkpoints fail, cycle wraparound
// could make an old entry look current; the only consequence is delaying its
// unlink by one more checkpoint.
func (s *Scheduler) SyncPostCheckpoint() int {
	absorbCounter := s.absorbInterval
	unlinked := 0
	for len(s.unlinks) > 0 {
		entry := s.unlinks[0]

		// New entries are appended at the tail, so the first current-cycle
		// entry marks the end of the old ones.
		if entry.cycle == s.checkpointCycle {
			break
		}

		path, err := s.handlers.lookup(entry.tag.Handler).UnlinkFileTag(entry.tag)
		if err != nil && !common.IsFileMissing(err) {
			// Another deletion path (drop database, drop table) may have
			// removed the file first; anything else is worth a warning but
			// must not fail the checkpoint that already completed.
			log.Warnf("could not remove file %q: %v", path, err)
		} else if err == nil {
			unlinked++
		}

		s.unlinks = s.unlinks[1:]

		// Keep absorbing so a long deletion backlog doesn't starve writers.
		// Absorbed filter requests may prune entries from the queue.
		absorbCounter--
		if absorbCounter <= 0 {
			s.AbsorbSyncRequests()
			absorbCounter = s.absorbInterval
		}
	}
	return unlinked
}

// PendingSyncs returns the number of live (non-canceled) entries in the
// pending table. Reported in stats snapshots.
func (s *Scheduler) PendingSyncs() int {
	n := 0
	for _, op := range s.pending {
		if !op.canceled {
			n++
		}
	}
	return n
}

// PendingUnlinks returns the length of the unlink queue.
func (s *Scheduler) PendingUnlinks() int {
	return len(s.unlinks)
}

// Cycles returns the current sync and checkpoint cycle counters.
func (s *Scheduler) Cycles() (syncCycle, checkpointCycle CycleCtr) {
	return s.syncCycle, s.checkpointCycle
}
