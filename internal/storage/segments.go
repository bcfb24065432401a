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

// Package storage manages the engine's on-disk segment files: relation data
// segments under base/<db>/ and WAL segments under wal/. It runs over a
// billy.Filesystem so production uses the OS filesystem while tests run
// against an in-memory one.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"
	billyutil "github.com/go-git/go-billy/v5/util"
	log "github.com/sirupsen/logrus"

	"pagedb/internal/common"
	"pagedb/internal/sync"
)

// Reporter records a durability obligation with the sync scheduler. The owning
// checkpointer wires it to the scheduler directly; writers in other goroutines
// wire it to the intake queue.
type Reporter func(tag sync.FileTag, kind sync.RequestKind)

// SegmentStore reads and writes segment files and reports the resulting sync
// and unlink obligations.
type SegmentStore struct {
	fs     billy.Filesystem
	report Reporter
}

// NewSegmentStore creates a store over fs. report may be nil when the caller
// tracks durability itself (e.g. recovery tooling).
func NewSegmentStore(fs billy.Filesystem, report Reporter) *SegmentStore {
	return &SegmentStore{fs: fs, report: report}
}

// Filesystem returns the backing filesystem.
func (st *SegmentStore) Filesystem() billy.Filesystem {
	return st.fs
}

func (st *SegmentStore) reportRequest(tag sync.FileTag, kind sync.RequestKind) {
	if st.report != nil {
		st.report(tag, kind)
	}
}

// WriteRelSegment writes data into a relation segment at the given offset,
// creating the segment if needed, and registers the sync obligation.
func (st *SegmentStore) WriteRelSegment(dbID, relID uint32, segNo uint64, off int64, data []byte) error {
	path := common.RelSegmentPath(dbID, relID, segNo)
	if err := st.fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	f, err := st.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open segment %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(off, 0); err != nil {
		return fmt.Errorf("seek segment %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write segment %s: %w", path, err)
	}

	st.reportRequest(sync.FileTag{Handler: sync.HandlerRelData, DB: dbID, Rel: relID, Seg: segNo}, sync.SyncRequest)
	return nil
}

// WriteWALSegment appends data to a WAL segment, creating it if needed, and
// registers the sync obligation.
func (st *SegmentStore) WriteWALSegment(segNo uint64, data []byte) error {
	path := common.WALSegmentPath(segNo)
	if err := st.fs.MkdirAll(common.WALDirName, 0700); err != nil {
		return fmt.Errorf("create wal directory: %w", err)
	}

	f, err := st.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open wal segment %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write wal segment %s: %w", path, err)
	}

	st.reportRequest(sync.FileTag{Handler: sync.HandlerWAL, Seg: segNo}, sync.SyncRequest)
	return nil
}

// DropRelation schedules every segment of a relation for deferred deletion.
// Each segment's sync obligation is forgotten first, so a pending fsync for a
// file about to disappear is seen canceled rather than failing the checkpoint;
// then the unlink is queued to happen after the next checkpoint, when no
// recovery point can still need the file.
func (st *SegmentStore) DropRelation(dbID, relID uint32) error {
	segs, err := st.relSegments(dbID, relID)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return common.ErrNotFound
	}
	for _, segNo := range segs {
		tag := sync.FileTag{Handler: sync.HandlerRelData, DB: dbID, Rel: relID, Seg: segNo}
		st.reportRequest(tag, sync.ForgetRequest)
		st.reportRequest(tag, sync.UnlinkRequest)
	}
	log.Debugf("storage: relation %d/%d dropped, %d segments queued for unlink", dbID, relID, len(segs))
	return nil
}

// DropDatabase cancels every pending obligation for a database and removes its
// directory immediately. The filter cancel must be queued before deletion
// starts: the sync pass tolerates a missing file only when the entry shows up
// canceled on retry.
func (st *SegmentStore) DropDatabase(dbID uint32) error {
	st.reportRequest(sync.FileTag{Handler: sync.HandlerRelData, DB: dbID}, sync.FilterRequest)

	dir := filepath.Join(common.BaseDirName, fmt.Sprintf("%d", dbID))
	if err := billyutil.RemoveAll(st.fs, dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove database directory %s: %w", dir, err)
	}
	return nil
}

// relSegments lists the existing segment numbers of a relation in ascending
// order.
func (st *SegmentStore) relSegments(dbID, relID uint32) ([]uint64, error) {
	dir := filepath.Join(common.BaseDirName, fmt.Sprintf("%d", dbID))
	entries, err := st.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	relName := fmt.Sprintf("%d", relID)
	var segs []uint64
	for _, entry := range entries {
		name := entry.Name()
		if name == relName {
			segs = append(segs, 0)
			continue
		}
		if rest, ok := strings.CutPrefix(name, relName+"."); ok {
			segNo, err := strconv.ParseUint(rest, 10, 64)
			if err != nil {
				continue
			}
			segs = append(segs, segNo)
		}
	}

	// ReadDir order is name-sorted, which is not numeric; sort explicitly.
	for i := 1; i < len(segs); i++ {
		for j := i; j > 0 && segs[j] < segs[j-1]; j-- {
			segs[j], segs[j-1] = segs[j-1], segs[j]
		}
	}
	return segs, nil
}

// syncable is implemented by files whose backing filesystem can flush to
// stable storage (the OS filesystem). In-memory filesystems have no
// durability concept; syncing them is a no-op.
type syncable interface {
	Sync() error
}

// syncPath fsyncs the file at path. Returns the underlying open/fsync error
// unwrapped enough that a missing file is recognizable to the scheduler.
func (st *SegmentStore) syncPath(path string) error {
	f, err := st.fs.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if sf, ok := f.(syncable); ok {
		return sf.Sync()
	}
	log.Tracef("storage: filesystem does not support fsync, skipping %s", path)
	return nil
}
