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

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pagedb/internal/checkpoint"
	"pagedb/internal/common"
	"pagedb/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the engine data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := dataDir()
		if err := common.EnsureDataDir(dir); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		// Write a default config if none exists.
		if _, err := os.Stat(common.ConfigFilePath(dir)); os.IsNotExist(err) {
			if err := config.Save(dir, config.Default()); err != nil {
				return fmt.Errorf("failed to write default config: %w", err)
			}
		}

		// Create the metadata store with its schema.
		store, err := checkpoint.OpenStore(common.MetaFilePath(dir))
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Printf("Initialized pagedb data directory at %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
