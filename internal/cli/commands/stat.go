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
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show the attributes of a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func runStat(cmd *cobra.Command, args []string) error {
	pan, _, err := newPanFS()
	if err != nil {
		return err
	}
	ref, it, err := pan.Stat(cmd.Context(), fs.ByPath(args[0]))
	if err != nil {
		return err
	}

	kind := "file"
	if it.IsDir {
		kind = "directory"
	}
	fmt.Printf("Path:  %s\n", ref.Path)
	fmt.Printf("ID:    %d\n", ref.ID)
	fmt.Printf("Type:  %s\n", kind)
	if !it.IsDir {
		fmt.Printf("Size:  %s (%d bytes)\n", humanSize(it.Size), it.Size)
		fmt.Printf("SHA1:  %s\n", it.SHA1)
	}
	if !it.MTime.IsZero() {
		fmt.Printf("MTime: %s\n", it.MTime.Format("2006-01-02 15:04:05"))
	}
	if !it.CTime.IsZero() {
		fmt.Printf("CTime: %s\n", it.CTime.Format("2006-01-02 15:04:05"))
	}
	return nil
}
