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

package serve

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"panfs/internal/fs"
)

// handleCacheSize bounds the NFS handle cache. 65536 handles cover deep
// trees without unbounded growth.
const handleCacheSize = 65536

// NFSServer wraps the go-nfs server over a PanFS handle.
type NFSServer struct {
	listener net.Listener
	server   *nfs.Server
	handler  nfs.Handler
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewNFSServer creates an NFS server exposing the given filesystem.
func NewNFSServer(pan *fs.PanFS) *NFSServer {
	// Match the go-nfs log level to ours.
	if log.IsLevelEnabled(log.TraceLevel) {
		nfs.Log.SetLevel(nfs.TraceLevel)
	} else if log.IsLevelEnabled(log.DebugLevel) {
		nfs.Log.SetLevel(nfs.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	billyFS := NewBillyAdapter(ctx, pan)
	handler := nfshelper.NewNullAuthHandler(billyFS)
	cacheHelper := nfshelper.NewCachingHandler(handler, handleCacheSize)

	server := &nfs.Server{
		Handler: cacheHelper,
		Context: ctx,
	}

	return &NFSServer{
		server:  server,
		handler: cacheHelper,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Serve starts the NFS server on addr and blocks until shutdown.
func (s *NFSServer) Serve(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	log.Infof("[Serve] NFS server listening on %s", listener.Addr())

	return s.server.Serve(listener)
}

// Addr returns the bound listen address, or nil before Serve.
func (s *NFSServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the NFS server gracefully.
func (s *NFSServer) Shutdown() {
	// Close the listener first to stop accepting new connections.
	if s.listener != nil {
		s.listener.Close()
	}

	// Settle time for in-flight NFS operations after listener close.
	time.Sleep(100 * time.Millisecond)

	if s.cancel != nil {
		s.cancel()
	}
	close(s.done)
}
