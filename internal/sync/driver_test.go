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
	"errors"
	"io/fs"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagedb/internal/common"
)

func TestProcessSyncRequestsSyncsAllPending(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	tags := []FileTag{relTag(1, 100, 0), relTag(1, 100, 1), relTag(2, 200, 0)}
	for _, tag := range tags {
		s.RememberSyncRequest(tag, SyncRequest)
	}

	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Processed)
	assert.ElementsMatch(t, tags, h.synced)
	assert.Empty(t, s.pending)
	assert.False(t, s.syncInProgress)
}

func TestProcessSyncRequestsIsIdempotentWhenClean(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	tag := relTag(1, 100, 0)
	s.RememberSyncRequest(tag, SyncRequest)

	_, err := s.ProcessSyncRequests()
	require.NoError(t, err)

	// A second pass with nothing pending issues no I/O.
	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)
	assert.Len(t, h.synced, 1)
}

func TestProcessSyncRequestsAbsorbsIntakeFirst(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	// A request forwarded just before the pass starts must be covered by it.
	tag := relTag(1, 100, 0)
	require.True(t, s.Intake().Forward(tag, SyncRequest))

	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, []FileTag{tag}, h.synced)
}

func TestProcessSyncRequestsDefersNewCycleEntries(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	old := relTag(1, 100, 0)
	s.RememberSyncRequest(old, SyncRequest)

	// Forward a request mid-sync, as a writer racing the pass would. It is
	// absorbed with the new cycle and must not be processed this pass.
	racer := relTag(1, 100, 7)
	h.onSync = func(FileTag) {
		s.Intake().Forward(racer, SyncRequest)
	}

	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	// The racer is next-pass work, entered with the new cycle.
	s.AbsorbSyncRequests()
	require.Contains(t, s.pending, racer)
	assert.Equal(t, s.syncCycle, s.pending[racer].cycle)

	h.onSync = nil
	stats, err = s.ProcessSyncRequests()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Empty(t, s.pending)
}

func TestProcessSyncRequestsFsyncOff(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(false)

	s.RememberSyncRequest(relTag(1, 100, 0), SyncRequest)
	s.RememberSyncRequest(relTag(1, 100, 1), SyncRequest)

	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)

	// Entries are dropped without touching the handler.
	assert.Equal(t, 0, stats.Processed)
	assert.Empty(t, h.synced)
	assert.Empty(t, s.pending)
}

func TestProcessSyncRequestsSkipsCanceled(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	canceled := relTag(1, 100, 0)
	live := relTag(1, 100, 1)
	s.RememberSyncRequest(canceled, SyncRequest)
	s.RememberSyncRequest(live, SyncRequest)
	s.RememberSyncRequest(canceled, ForgetRequest)

	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, []FileTag{live}, h.synced)
	assert.Empty(t, s.pending)
}

func TestMissingFileRetriedOnce(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	tag := relTag(1, 100, 0)
	h.failSync(tag, fs.ErrNotExist)
	s.RememberSyncRequest(tag, SyncRequest)

	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)

	// First attempt fails with a missing file, the retry succeeds.
	assert.Equal(t, 1, stats.Processed)
	assert.Len(t, h.synced, 2)
	assert.Empty(t, s.pending)
}

func TestMissingFileResolvedByCancelOnRetry(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	// The file was dropped after the request was entered: every attempt would
	// fail, but the dropper queued a forget before deleting. The retry pass
	// absorbs it and retires the entry without a second attempt.
	tag := relTag(1, 100, 0)
	h.failSync(tag, fs.ErrNotExist, fs.ErrNotExist)
	h.onSync = func(FileTag) {
		s.Intake().Forward(tag, ForgetRequest)
	}
	s.RememberSyncRequest(tag, SyncRequest)

	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Processed)
	assert.Len(t, h.synced, 1)
	assert.Empty(t, s.pending)
}

func TestSecondMissingFileFailureIsHard(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	// Missing on both attempts with no cancel in sight: something other than a
	// tracked drop removed the file. That must not pass silently.
	tag := relTag(1, 100, 0)
	h.failSync(tag, fs.ErrNotExist, fs.ErrNotExist)
	s.RememberSyncRequest(tag, SyncRequest)

	_, err := s.ProcessSyncRequests()
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSyncFailed)
	assert.Len(t, h.synced, 2)
}

func TestHardFailureFailsPassAndKeepsEntry(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	tag := relTag(1, 100, 0)
	h.failSync(tag, errors.New("input/output error"))
	s.RememberSyncRequest(tag, SyncRequest)

	_, err := s.ProcessSyncRequests()
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSyncFailed)

	// The obligation survives for the wholesale checkpoint retry, and the
	// in-flight bookkeeping is fully drained despite the failure.
	require.Contains(t, s.pending, tag)
	assert.Empty(t, s.inflight)
	assert.Empty(t, s.retries)
	assert.True(t, s.syncInProgress)
}

func TestFailedPassRecoversOnRetry(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	tag := relTag(1, 100, 0)
	h.failSync(tag, errors.New("input/output error"))
	s.RememberSyncRequest(tag, SyncRequest)

	_, err := s.ProcessSyncRequests()
	require.Error(t, err)

	// The wholesale retry normalizes the stale cycle left behind and syncs the
	// surviving entry.
	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Empty(t, s.pending)
	assert.False(t, s.syncInProgress)
}

func TestFirstHardErrorWins(t *testing.T) {
	t.Parallel()
	s, _, h := newTestScheduler(true)

	a := relTag(1, 100, 0)
	b := relTag(1, 100, 1)
	h.failSync(a, errors.New("error A"))
	h.failSync(b, errors.New("error B"))
	s.RememberSyncRequest(a, SyncRequest)
	s.RememberSyncRequest(b, SyncRequest)

	_, err := s.ProcessSyncRequests()
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSyncFailed)
	assert.Len(t, s.pending, 2)
}

func TestProcessSyncRequestsWithoutTablePanics(t *testing.T) {
	t.Parallel()
	var s Scheduler
	assert.Panics(t, func() { s.ProcessSyncRequests() })
}

func TestStaleCycleValuePanics(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(true)

	tag := relTag(1, 100, 0)
	s.RememberSyncRequest(tag, SyncRequest)
	// Only current-cycle and previous-cycle values are legal in the table.
	s.pending[tag].cycle = 5

	assert.PanicsWithValue(t, "pagedb: pending-ops table corrupted", func() {
		s.ProcessSyncRequests()
	})
}

func TestRetryCountCapPanics(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(true)

	entry := &inflightSync{
		tag:        relTag(1, 100, 0),
		op:         &pendingOp{},
		retryCount: maxEntryRetries + 1,
	}
	s.retries = append(s.retries, entry)

	assert.PanicsWithValue(t, "pagedb: sync retry count exceeded", func() {
		s.retrySyncRequests()
	})
}

func TestCycleCounterWraparound(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(true)

	s.syncCycle = math.MaxUint16
	tag := relTag(1, 100, 0)
	s.RememberSyncRequest(tag, SyncRequest)

	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)

	// The counter wrapped to zero and the max-cycle entry still reads as
	// exactly one cycle old.
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, CycleCtr(0), s.syncCycle)
	assert.Empty(t, s.pending)
}

func TestPassStatsAccumulate(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(true)

	for seg := uint64(0); seg < 4; seg++ {
		s.RememberSyncRequest(relTag(1, 100, seg), SyncRequest)
	}

	stats, err := s.ProcessSyncRequests()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Processed)
	assert.GreaterOrEqual(t, stats.Total, stats.Longest)
}
