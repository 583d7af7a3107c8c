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

var mvForce bool

var mvCmd = &cobra.Command{
	Use:   "mv <src> <dst>",
	Short: "Move or rename a file or directory",
	Long: `Move or rename a file or directory. When dst is an existing
directory the source is moved into it, keeping its name.

The drive has no single rename-and-move call; panfs composes one from the
id-based primitives and rolls back on partial failure.`,
	Args: cobra.ExactArgs(2),
	RunE: runMv,
}

func init() {
	mvCmd.Flags().BoolVarP(&mvForce, "force", "f", false, "replace an existing destination file")
	rootCmd.AddCommand(mvCmd)
}

func runMv(cmd *cobra.Command, args []string) error {
	pan, _, err := newPanFS()
	if err != nil {
		return err
	}
	src, dst := args[0], args[1]

	// An existing directory destination means "move into".
	if d, err := pan.Resolve(cmd.Context(), fs.ByPath(dst)); err == nil && d.IsDir {
		_, err := pan.Move(cmd.Context(), fs.ByPath(src), fs.ByID(d.ID))
		return err
	} else if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	_, err = pan.Rename(cmd.Context(), fs.ByPath(src), dst, fs.RenameOptions{Replace: mvForce})
	return err
}
