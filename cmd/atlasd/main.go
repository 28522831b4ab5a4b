/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tpotmap/atlas/pkg/api"
	"github.com/tpotmap/atlas/pkg/config"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/logging"
	"github.com/tpotmap/atlas/pkg/server"
	"github.com/tpotmap/atlas/pkg/store"
)

// version is overridden at build time with ldflags.
var version = "dev"

func main() {
	logging.SetDefaultStructuredLogger("atlasd", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load(os.Getenv("ATLAS_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	core := api.New(cfg, store.NewMemory())

	if dir := os.Getenv("ATLAS_GRAPH_DIR"); dir != "" {
		if _, err := core.LoadGraph(ctx, graph.NewFileSource(dir)); err != nil {
			log.Fatal(err)
		}
		if _, err := core.LoadSnapshot(ctx); err != nil {
			log.Printf("no usable snapshot at startup: %v", err)
		}
	}

	srv := server.New(core, server.WithVersion(version))
	if err := srv.Start(ctx); err != nil {
		log.Fatal(err)
	}
}
