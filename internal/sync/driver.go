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
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"pagedb/internal/common"
)

// inflightSync is a sync operation dispatched to the async engine and not yet
// resolved. Exclusively owned by the driver: it moves between the in-flight
// and retry sets and is discarded on successful completion.
type inflightSync struct {
	tag        FileTag
	op         *pendingOp
	retryCount int
	startedAt  time.Time
	path       string // resolved by the handler, for diagnostics
}

// maxEntryRetries is the per-entry attempt cap. The error taxonomy already
// stops retrying after a second failure, so exceeding this means the retry
// bookkeeping itself is broken.
const maxEntryRetries = 5

// ProcessSyncRequests processes queued fsync requests: one scan of the
// pending table, asynchronous dispatch of every live old-cycle entry, a drain
// of all in-flight operations, then bounded retry passes.
//
// A hard sync failure is returned as an error and fails the checkpoint; the
// pending entries involved stay in the table so the wholesale checkpoint retry
// picks them up. Corrupted bookkeeping (a completion with no table entry,
// non-empty in-flight or retry sets at exit, a breached retry cap) panics:
// continuing with untrustworthy state risks undetected data loss.
func (s *Scheduler) ProcessSyncRequests() (PassStats, error) {
	if s.pending == nil {
		panic("pagedb: cannot sync without a pending-ops table")
	}

	// The sync must cover every request a writer queued before this point.
	// The tightest race is a segment written and forwarded just before the
	// writer cleared its dirty flag; absorbing here makes it visible.
	s.AbsorbSyncRequests()

	// Old entries are told apart from new ones by cycle number, so a pass
	// that failed partway leaves stale cycle values behind. Enough repeated
	// failures would wrap the counter until a stale entry looks new and gets
	// skipped, letting a checkpoint complete that should not have. Re-stamp
	// everything before starting over.
	//
	// This loop stays separate from the scan below precisely because the scan
	// may fail before visiting every entry.
	if s.syncInProgress {
		log.Warn("previous sync pass did not complete; normalizing stale cycle values")
		for _, op := range s.pending {
			op.cycle = s.syncCycle
		}
	}

	s.stats = PassStats{}
	s.hardErr = nil

	// Advance the counter so entries arriving from here on are
	// distinguishable as next-checkpoint work.
	s.syncCycle++

	// Cleared only when the pass reaches the end.
	s.syncInProgress = true

	// Snapshot the keys so completions removing earlier entries never mutate
	// the structure we are iterating.
	tags := make([]FileTag, 0, len(s.pending))
	for tag := range s.pending {
		tags = append(tags, tag)
	}

	s.absorbCounter = s.absorbInterval
	for _, tag := range tags {
		op, ok := s.pending[tag]
		if !ok {
			continue
		}

		// A new entry belongs to the next pass. Processing it now could chase
		// an arrival stream forever and never terminate the checkpoint.
		if op.cycle == s.syncCycle {
			continue
		}
		if CycleCtr(op.cycle+1) != s.syncCycle {
			panic("pagedb: pending-ops table corrupted")
		}

		// Absorb every few entries so the intake queue can't overflow while a
		// large table is being scanned. Newly absorbed entries carry the new
		// cycle and are not part of this snapshot, which is fine: they don't
		// need processing this pass.
		s.absorbCounter--
		if s.absorbCounter <= 0 {
			s.AbsorbSyncRequests()
			s.absorbCounter = s.absorbInterval
		}

		// With fsync off, or for a canceled entry, there is no I/O to do.
		// The fsync check is delayed until here so flipping the setting
		// mid-run behaves sensibly.
		if !s.fsync || op.canceled {
			delete(s.pending, tag)
			continue
		}

		s.dispatch(&inflightSync{tag: tag, op: op})
	}

	s.engine.WaitAll()

	for pass := 0; pass < s.retryPasses; pass++ {
		s.retrySyncRequests()
	}

	if len(s.inflight) != 0 {
		panic("pagedb: in-flight sync requests corrupted")
	}
	if len(s.retries) != 0 {
		panic("pagedb: in-flight sync requests corrupted")
	}

	if s.hardErr != nil {
		// Leave syncInProgress set: the entries that failed are still in the
		// table with stale cycles, and the next pass must normalize them.
		return PassStats{}, s.hardErr
	}

	s.syncInProgress = false
	return s.stats, nil
}

// dispatch hands one entry to the async engine. The handler resolves the path
// and fsyncs on a worker; completion is delivered back on the driver goroutine
// during WaitAll.
func (s *Scheduler) dispatch(entry *inflightSync) {
	s.inflight = append(s.inflight, entry)
	entry.startedAt = time.Now()

	h := s.handlers.lookup(entry.tag.Handler)
	tag := entry.tag
	s.engine.Submit(func() error {
		path, err := h.SyncFileTag(tag)
		entry.path = path
		return err
	}, func(err error) {
		s.completeSync(entry, err)
	})
}

// completeSync resolves one dispatched operation. Runs on the driver goroutine
// (inside WaitAll); each entry sees exactly one terminal transition, either
// success-removal or retry-requeue.
func (s *Scheduler) completeSync(entry *inflightSync, err error) {
	s.removeInflight(entry)

	if err == nil {
		elapsed := time.Since(entry.startedAt)
		if elapsed > s.stats.Longest {
			s.stats.Longest = elapsed
		}
		s.stats.Total += elapsed
		s.stats.Processed++

		log.Debugf("checkpoint sync: number=%d file=%s time=%.3f ms",
			s.stats.Processed, entry.path, float64(elapsed.Microseconds())/1000)

		// Done with this obligation. The entry is guaranteed to be present:
		// only a successful sync removes a live entry, and there is exactly
		// one in-flight operation per table entry.
		if _, ok := s.pending[entry.tag]; !ok {
			panic("pagedb: pending-ops table corrupted")
		}
		delete(s.pending, entry.tag)
		return
	}

	entry.retryCount++

	// The file may have been dropped or truncated since the request was
	// entered. Allow a missing file on the first attempt only: the absorb in
	// the retry pass will surface the matching cancel if that is what
	// happened. A second failure, or any other error, fails the checkpoint.
	if common.IsFileMissing(err) && entry.retryCount == 1 {
		log.Debugf("could not fsync file %q but retrying: %v", entry.path, err)
		s.retries = append(s.retries, entry)
		return
	}

	if s.hardErr == nil {
		s.hardErr = fmt.Errorf("%w: could not fsync file %q: %v",
			common.ErrSyncFailed, entry.path, err)
	}
	log.Errorf("could not fsync file %q: %v", entry.path, err)
	// Not requeued: the pending entry stays in the table for the checkpoint's
	// wholesale retry.
}

// retrySyncRequests replays the retry set. The pending table may hold requests
// for files already unlinked by the time we get to them; rather than hoping a
// missing-file error is ignorable, the failed request is retried after an
// absorb. Unlink paths queue a cancel before deleting, so if the file really
// is gone the entry is guaranteed to show up canceled here.
func (s *Scheduler) retrySyncRequests() {
	if len(s.retries) == 0 {
		return
	}

	// Pick up any cancel that arrived for the failed files.
	s.AbsorbSyncRequests()
	s.absorbCounter = s.absorbInterval

	batch := s.retries
	s.retries = nil
	for _, entry := range batch {
		if entry.op.canceled {
			if _, ok := s.pending[entry.tag]; !ok {
				panic("pagedb: pending-ops table corrupted")
			}
			delete(s.pending, entry.tag)
			continue
		}

		if entry.retryCount > maxEntryRetries {
			panic("pagedb: sync retry count exceeded")
		}

		s.dispatch(entry)
	}

	s.engine.WaitAll()
}

func (s *Scheduler) removeInflight(entry *inflightSync) {
	for i, e := range s.inflight {
		if e == entry {
			s.inflight = append(s.inflight[:i], s.inflight[i+1:]...)
			return
		}
	}
	panic("pagedb: in-flight sync requests corrupted")
}
