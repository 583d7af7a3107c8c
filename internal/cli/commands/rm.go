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
	"errors"

	"github.com/spf13/cobra"

	"panfs/internal/common"
	"panfs/internal/fs"
)

var rmFlags struct {
	recursive bool
	force     bool
	dirs      bool
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Remove files or directories",
	Long: `Remove remote files. Directories need -r (recursive) or -d (empty
directory only).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

func init() {
	rmCmd.Flags().BoolVarP(&rmFlags.recursive, "recursive", "r", false, "remove directories and their contents")
	rmCmd.Flags().BoolVarP(&rmFlags.force, "force", "f", false, "ignore missing paths")
	rmCmd.Flags().BoolVarP(&rmFlags.dirs, "dir", "d", false, "remove empty directories")
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	pan, _, err := newPanFS()
	if err != nil {
		return err
	}
	for _, path := range args {
		err := removeOne(cmd, pan, path)
		if err != nil && !(rmFlags.force && errors.Is(err, common.ErrNotFound)) {
			return err
		}
	}
	return nil
}

func removeOne(cmd *cobra.Command, pan *fs.PanFS, path string) error {
	if rmFlags.recursive {
		return pan.RemoveAll(cmd.Context(), fs.ByPath(path))
	}
	n, err := pan.Resolve(cmd.Context(), fs.ByPath(path))
	if err != nil {
		return err
	}
	if n.IsDir {
		if !rmFlags.dirs {
			return &fs.PathError{Path: n.Path(), Err: common.ErrIsDir}
		}
		return pan.RemoveDir(cmd.Context(), fs.ByID(n.ID))
	}
	return pan.Remove(cmd.Context(), fs.ByID(n.ID))
}
