/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/tpotmap/atlas/pkg/api"
	"github.com/tpotmap/atlas/pkg/config"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/logging"
	"github.com/tpotmap/atlas/pkg/serializer"
	"github.com/tpotmap/atlas/pkg/store"
)

// Version is overridden at build time with ldflags.
var Version = "dev"

// Execute runs the atlas CLI.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "interrupt received, shutting down")
		cancel()
	}()

	root := &cli.Command{
		Name:  "atlas",
		Usage: "social-graph analysis toolkit",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to atlas.yaml"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, or error"},
			&cli.StringFlag{Name: "graph-dir", Value: ".", Usage: "directory holding snapshot.nodes and snapshot.edges"},
			&cli.StringFlag{Name: "format", Value: "json", Usage: "output format: json or yaml"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel("atlas", Version, cmd.String("log-level"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			hashCommand(),
			buildCommand(),
			viewCommand(),
			propagateCommand(),
			discoverCommand(),
			serveCommand(),
		},
	}

	if err := root.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newCore loads configuration, wires a core over the in-memory store, and
// ingests the graph tables from --graph-dir.
func newCore(ctx context.Context, cmd *cli.Command) (*api.Core, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	core := api.New(cfg, store.NewMemory())
	src := graph.NewFileSource(cmd.String("graph-dir"))
	if _, err := core.LoadGraph(ctx, src); err != nil {
		return nil, err
	}
	return core, nil
}

// output writes v to stdout in the requested format.
func output(cmd *cli.Command, v any) error {
	format, err := serializer.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	return serializer.NewWriter(format, os.Stdout).Serialize(v)
}
