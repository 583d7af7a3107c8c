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
	"os"

	"github.com/spf13/cobra"

	"panfs/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the panfs configuration",
	Long: `Create the panfs configuration directory with default settings.

The settings file needs your drive session cookie before any other
command will work; init prints where to put it.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.SettingsPath()
	existed := false
	if _, err := os.Stat(path); err == nil {
		existed = true
	}
	if err := config.Init(); err != nil {
		return err
	}
	if existed {
		fmt.Printf("Configuration already present at %s\n", path)
	} else {
		fmt.Printf("Created %s\n", path)
	}
	fmt.Println("Set the `cookie` field (or the PANFS_COOKIE environment variable) to your drive session cookie.")
	return nil
}
