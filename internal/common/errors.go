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

package common

import (
	"errors"
	"io/fs"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrExists        = errors.New("already exists")
	ErrUnsupported   = errors.New("operation not supported by handler")
	ErrQueueFull     = errors.New("request queue full")
	ErrCheckpointing = errors.New("checkpoint already in progress")
	ErrSyncFailed    = errors.New("sync failed")
)

// IsFileMissing reports whether err indicates the target file no longer exists.
// Concurrent drop/truncate races make this a tolerated first-attempt condition
// for both fsync and unlink.
func IsFileMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, ErrNotFound)
}
