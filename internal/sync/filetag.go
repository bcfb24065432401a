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

// Package sync tracks the files that must be fsynced before a checkpoint can
// complete, and the files that may be unlinked once it has. Writers record
// obligations as they dirty segments; the checkpointer drains them during its
// sync pass. A deduplicating pending table collapses repeated requests for the
// same file into a single oldest-cycle obligation.
package sync

// HandlerKind discriminates which storage manager owns a file.
type HandlerKind uint8

const (
	// HandlerRelData covers relation data segment files.
	HandlerRelData HandlerKind = iota
	// HandlerWAL covers write-ahead log segment files.
	HandlerWAL
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerRelData:
		return "reldata"
	case HandlerWAL:
		return "wal"
	}
	return "unknown"
}

// FileTag identifies a syncable or unlinkable file: a handler kind plus
// handler-specific identifying fields. FileTag is a value type usable as a map
// key; two tags are the same obligation iff they are equal.
type FileTag struct {
	Handler HandlerKind
	DB      uint32 // database identifier (zero for WAL)
	Rel     uint32 // relation identifier (zero for WAL)
	Seg     uint64 // segment number
}

// RequestKind is the type of a sync queue request.
type RequestKind uint8

const (
	// SyncRequest asks that the tagged file be fsynced before the next
	// checkpoint completes.
	SyncRequest RequestKind = iota
	// UnlinkRequest asks that the tagged file be deleted after the next
	// checkpoint completes.
	UnlinkRequest
	// ForgetRequest cancels a previously registered sync request for the
	// exact tag.
	ForgetRequest
	// FilterRequest cancels every pending sync request whose tag matches the
	// request tag under the handler's match predicate, and drops matching
	// queued unlinks outright.
	FilterRequest
)

func (k RequestKind) String() string {
	switch k {
	case SyncRequest:
		return "sync"
	case UnlinkRequest:
		return "unlink"
	case ForgetRequest:
		return "forget"
	case FilterRequest:
		return "filter"
	}
	return "unknown"
}

// CycleCtr is a wrapping sequence number that classifies requests as belonging
// to the current checkpoint pass or a future one, without wall-clock time.
// Wraparound is tolerated: the worst case is one extra checkpoint of delay,
// never an incorrect skip (stale values are normalized after a failed pass).
type CycleCtr uint16
