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
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"panfs/internal/config"
	"panfs/internal/serve"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the drive over a network filesystem",
}

var serveNFSCmd = &cobra.Command{
	Use:   "nfs",
	Short: "Serve the drive over NFSv3",
	Long: `Start an NFS server exposing the drive, mountable with:

  mount_nfs -o port=20049,mountport=20049,tcp,nolocks,vers=3 localhost:/ /mnt/pan

Only one serve instance runs per configuration directory.`,
	Args: cobra.NoArgs,
	RunE: runServeNFS,
}

func init() {
	serveNFSCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from settings)")
	serveCmd.AddCommand(serveNFSCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServeNFS(cmd *cobra.Command, args []string) error {
	// A second instance over the same config would fight over caches and
	// mutations; the lock file keeps it to one.
	lock := flock.New(config.ServeLockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire serve lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another serve instance is already running (lock: %s)", config.ServeLockPath())
	}
	defer lock.Unlock()

	pan, cfg, err := newPanFS()
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = cfg.ServeAddr
	}

	server := serve.NewNFSServer(pan)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("[Serve] received %v, shutting down", sig)
		server.Shutdown()
	}()

	fmt.Printf("Serving NFS on %s\n", addr)
	if err := server.Serve(addr); err != nil {
		// Listener closure during shutdown surfaces as an accept error.
		log.Debugf("[Serve] server stopped: %v", err)
	}
	return nil
}
