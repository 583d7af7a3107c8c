// Copyright 2025 PanFS Authors
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
	"github.com/spf13/cobra"

	"panfs/internal/fs"
)

var mkdirParents bool

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>...",
	Short: "Create directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMkdir,
}

func init() {
	mkdirCmd.Flags().BoolVarP(&mkdirParents, "parents", "p", false, "create missing parents; existing directories are not an error")
	rootCmd.AddCommand(mkdirCmd)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	pan, _, err := newPanFS()
	if err != nil {
		return err
	}
	for _, path := range args {
		opts := fs.MkdirOptions{Parents: mkdirParents, ExistOK: mkdirParents}
		if _, err := pan.Mkdir(cmd.Context(), path, opts); err != nil {
			return err
		}
	}
	return nil
}
