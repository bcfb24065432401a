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

import "fmt"

// Handler is the capability set a storage manager implements so the scheduler
// can act on its files. The scheduler is polymorphic over this interface; new
// storage-manager kinds register one at startup.
type Handler interface {
	// SyncFileTag durably flushes the file identified by tag, returning the
	// resolved path for diagnostics. Called on an I/O worker goroutine.
	SyncFileTag(tag FileTag) (path string, err error)

	// UnlinkFileTag removes the file identified by tag, returning the resolved
	// path. Handlers that never defer deletions may return
	// common.ErrUnsupported.
	UnlinkFileTag(tag FileTag) (path string, err error)

	// FileTagMatches reports whether candidate is covered by the filter tag
	// (e.g. "any segment of this database"). Handlers without a match
	// predicate return false.
	FileTagMatches(tag, candidate FileTag) bool
}

// Registry maps handler kinds to their capability sets. It is resolved once at
// startup and read-only afterwards.
type Registry struct {
	handlers map[HandlerKind]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[HandlerKind]Handler)}
}

// Register installs the handler for kind. Registering a kind twice is a
// programming error.
func (r *Registry) Register(kind HandlerKind, h Handler) {
	if _, ok := r.handlers[kind]; ok {
		panic(fmt.Sprintf("pagedb: handler %s registered twice", kind))
	}
	r.handlers[kind] = h
}

// lookup resolves the handler for kind. A tag carrying an unregistered kind
// means the request table holds garbage, which is unrecoverable.
func (r *Registry) lookup(kind HandlerKind) Handler {
	h, ok := r.handlers[kind]
	if !ok {
		panic(fmt.Sprintf("pagedb: no handler registered for kind %s", kind))
	}
	return h
}
