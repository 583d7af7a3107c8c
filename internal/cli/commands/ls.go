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
	"fmt"

	"github.com/spf13/cobra"

	"panfs/internal/fs"
	"panfs/internal/remote"
)

var lsFlags struct {
	long    bool
	sortKey string
	desc    bool
	mix     bool
	offset  int
	limit   int
	refresh bool
}

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Long: `List the children of a remote directory.

Examples:
  panfs ls /
  panfs ls -l /docs
  panfs ls --sort mtime --desc --limit 20 /docs
  panfs ls --offset -10 /docs    # last ten entries`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().BoolVarP(&lsFlags.long, "long", "l", false, "long listing with size and mtime")
	lsCmd.Flags().StringVar(&lsFlags.sortKey, "sort", "name", "sort key: name, size, type, mtime, ctime, atime")
	lsCmd.Flags().BoolVar(&lsFlags.desc, "desc", false, "reverse the sort order")
	lsCmd.Flags().BoolVar(&lsFlags.mix, "mix", false, "interleave files and directories instead of dirs first")
	lsCmd.Flags().IntVar(&lsFlags.offset, "offset", 0, "skip entries (negative counts from the end)")
	lsCmd.Flags().IntVar(&lsFlags.limit, "limit", 0, "maximum entries to print (0 = all)")
	lsCmd.Flags().BoolVar(&lsFlags.refresh, "refresh", false, "revalidate against the remote even when cached")
	rootCmd.AddCommand(lsCmd)
}

var sortKeys = map[string]remote.SortKey{
	"name":  remote.SortByName,
	"size":  remote.SortBySize,
	"type":  remote.SortByType,
	"mtime": remote.SortByMTime,
	"ctime": remote.SortByCTime,
	"atime": remote.SortByATime,
}

func runLs(cmd *cobra.Command, args []string) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}
	key, ok := sortKeys[lsFlags.sortKey]
	if !ok {
		return fmt.Errorf("unknown sort key %q", lsFlags.sortKey)
	}

	pan, _, err := newPanFS()
	if err != nil {
		return err
	}
	children, err := pan.ListChildren(cmd.Context(), fs.ByPath(path), fs.ListOptions{
		Offset:  lsFlags.offset,
		Limit:   lsFlags.limit,
		Sort:    key,
		Desc:    lsFlags.desc,
		MixDirs: lsFlags.mix,
		Refresh: lsFlags.refresh,
	})
	if err != nil {
		return err
	}

	for _, c := range children {
		name := c.Name()
		if c.IsDir {
			name += "/"
		}
		if lsFlags.long {
			size := "-"
			if !c.IsDir {
				size = humanSize(c.Size())
			}
			fmt.Printf("%12d  %10s  %s  %s\n", c.ID, size, c.MTime().Format("2006-01-02 15:04"), name)
		} else {
			fmt.Println(name)
		}
	}
	return nil
}
