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

package storage

import (
	"pagedb/internal/common"
	"pagedb/internal/sync"
)

// RelDataHandler is the sync-scheduler capability set for relation data
// segments: the only handler kind with deferred unlinks and filter matching.
type RelDataHandler struct {
	store *SegmentStore
}

// NewRelDataHandler returns the handler for relation data segments.
func NewRelDataHandler(store *SegmentStore) *RelDataHandler {
	return &RelDataHandler{store: store}
}

func (h *RelDataHandler) SyncFileTag(tag sync.FileTag) (string, error) {
	path := common.RelSegmentPath(tag.DB, tag.Rel, tag.Seg)
	return path, h.store.syncPath(path)
}

func (h *RelDataHandler) UnlinkFileTag(tag sync.FileTag) (string, error) {
	path := common.RelSegmentPath(tag.DB, tag.Rel, tag.Seg)
	return path, h.store.fs.Remove(path)
}

// FileTagMatches treats a filter tag with Rel zero as "every relation in the
// database" (drop database) and otherwise matches every segment of the
// relation (drop table). The segment number never participates.
func (h *RelDataHandler) FileTagMatches(tag, candidate sync.FileTag) bool {
	if tag.Rel == 0 {
		return candidate.DB == tag.DB
	}
	return candidate.DB == tag.DB && candidate.Rel == tag.Rel
}

// WALHandler syncs write-ahead log segments. WAL recycling removes segments
// synchronously through its own path, so the unlink and filter capabilities
// are not implemented.
type WALHandler struct {
	store *SegmentStore
}

// NewWALHandler returns the handler for WAL segments.
func NewWALHandler(store *SegmentStore) *WALHandler {
	return &WALHandler{store: store}
}

func (h *WALHandler) SyncFileTag(tag sync.FileTag) (string, error) {
	path := common.WALSegmentPath(tag.Seg)
	return path, h.store.syncPath(path)
}

func (h *WALHandler) UnlinkFileTag(tag sync.FileTag) (string, error) {
	return common.WALSegmentPath(tag.Seg), common.ErrUnsupported
}

func (h *WALHandler) FileTagMatches(tag, candidate sync.FileTag) bool {
	return false
}
