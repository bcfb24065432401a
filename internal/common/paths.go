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
	"fmt"
	"os"
	"path/filepath"
)

// Data-directory layout. All paths are relative to the engine data directory
// so the storage layer can run against any filesystem root.
const (
	// BaseDirName holds relation segment files, one subdirectory per database.
	BaseDirName = "base"
	// WALDirName holds write-ahead log segments.
	WALDirName = "wal"
	// MetaFileName is the checkpoint metadata database.
	MetaFileName = "meta.pagedb"
	// ConfigFileName is the engine configuration file.
	ConfigFileName = "pagedb.yaml"
	// LockFileName is the checkpointer single-owner lock file.
	LockFileName = "checkpointer.lock"
)

// DataDir returns the engine data directory.
// Uses PAGEDB_DATA_DIR env var if set, otherwise defaults to ~/.pagedb.
// Computed dynamically to support test isolation.
func DataDir() string {
	if dir := os.Getenv("PAGEDB_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pagedb")
}

// MetaFilePath returns the checkpoint metadata database path.
func MetaFilePath(dataDir string) string {
	return filepath.Join(dataDir, MetaFileName)
}

// ConfigFilePath returns the engine config file path.
func ConfigFilePath(dataDir string) string {
	return filepath.Join(dataDir, ConfigFileName)
}

// LockFilePath returns the checkpointer lock file path.
func LockFilePath(dataDir string) string {
	return filepath.Join(dataDir, LockFileName)
}

// RelSegmentPath returns the relative path of a relation segment file.
// Segment 0 is the bare relation file; higher segments carry a numeric suffix,
// matching how the engine splits large relations into fixed-size segment files.
func RelSegmentPath(dbID, relID uint32, segNo uint64) string {
	if segNo == 0 {
		return filepath.Join(BaseDirName, fmt.Sprintf("%d", dbID), fmt.Sprintf("%d", relID))
	}
	return filepath.Join(BaseDirName, fmt.Sprintf("%d", dbID), fmt.Sprintf("%d.%d", relID, segNo))
}

// WALSegmentPath returns the relative path of a WAL segment file.
func WALSegmentPath(segNo uint64) string {
	return filepath.Join(WALDirName, fmt.Sprintf("%016X", segNo))
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir(dataDir string) error {
	return os.MkdirAll(dataDir, 0700)
}
