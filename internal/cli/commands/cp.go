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
	"fmt"
	"os"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/cobra"

	"panfs/internal/common"
	"panfs/internal/fs"
	"panfs/internal/node"
)

var cpFlags struct {
	recursive bool
	force     bool
	keepGoing bool
	excludes  []string
}

var cpCmd = &cobra.Command{
	Use:   "cp <src> <dst>",
	Short: "Copy a file or directory",
	Long: `Copy a file or directory on the remote side. Content never travels
through this machine: same-name copies use the drive's native copy call and
everything else transfers by content hash.

Exclude patterns use gitignore syntax, matched against paths relative to
the source directory.

Examples:
  panfs cp /docs/a.txt /backup/a.txt
  panfs cp -r /project /backup/project
  panfs cp -r --exclude 'node_modules/' --exclude '*.log' /project /backup`,
	Args: cobra.ExactArgs(2),
	RunE: runCp,
}

func init() {
	cpCmd.Flags().BoolVarP(&cpFlags.recursive, "recursive", "r", false, "copy directories recursively")
	cpCmd.Flags().BoolVarP(&cpFlags.force, "force", "f", false, "replace existing destination files")
	cpCmd.Flags().BoolVar(&cpFlags.keepGoing, "continue-on-error", false, "skip entries that fail instead of aborting")
	cpCmd.Flags().StringArrayVar(&cpFlags.excludes, "exclude", nil, "gitignore-style pattern to skip (repeatable)")
	rootCmd.AddCommand(cpCmd)
}

func runCp(cmd *cobra.Command, args []string) error {
	pan, _, err := newPanFS()
	if err != nil {
		return err
	}
	src, dst := args[0], args[1]

	n, err := pan.Resolve(cmd.Context(), fs.ByPath(src))
	if err != nil {
		return err
	}
	if n.IsDir && !cpFlags.recursive {
		return fmt.Errorf("%s is a directory (use -r)", src)
	}

	opts := fs.CopyOptions{Replace: cpFlags.force}
	if len(cpFlags.excludes) > 0 {
		matcher := ignore.CompileIgnoreLines(cpFlags.excludes...)
		root := n.Path()
		opts.Filter = func(c *node.Node) bool {
			rel := strings.TrimPrefix(c.Path(), root+"/")
			if c.IsDir {
				rel += "/"
			}
			return !matcher.MatchesPath(rel)
		}
	}
	if cpFlags.keepGoing {
		opts.OnError = func(path string, err error) error {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			return nil
		}
	}

	// An existing directory destination means "copy into".
	if d, err := pan.Resolve(cmd.Context(), fs.ByPath(dst)); err == nil && d.IsDir {
		dst = d.Path() + "/" + common.EscapeName(n.Name())
	} else if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	_, err = pan.Copy(cmd.Context(), fs.ByID(n.ID), dst, opts)
	return err
}
