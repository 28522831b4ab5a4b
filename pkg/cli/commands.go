/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tpotmap/atlas/pkg/api"
	"github.com/tpotmap/atlas/pkg/cluster"
	"github.com/tpotmap/atlas/pkg/discovery"
	"github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/propagation"
	"github.com/tpotmap/atlas/pkg/server"
	"github.com/tpotmap/atlas/pkg/spectral"
	"github.com/tpotmap/atlas/pkg/store"
)

func hashCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash",
		Usage: "print the content hash of the loaded graph",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			core, err := newCore(ctx, cmd)
			if err != nil {
				return err
			}
			h, err := core.GraphHash()
			if err != nil {
				return err
			}
			return output(cmd, map[string]string{"hash": h.String()})
		},
	}
}

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "compute and persist a spectral snapshot",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "dims", Value: 30, Usage: "embedding dimensions"},
			&cli.IntFlag{Name: "stability-runs", Value: 3},
			&cli.IntFlag{Name: "seed", Value: 0},
			&cli.FloatFlag{Name: "community-alpha", Value: 0},
			&cli.StringFlag{Name: "weighting", Value: "off", Usage: "off or ipw"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			core, err := newCore(ctx, cmd)
			if err != nil {
				return err
			}
			cfg := spectral.DefaultConfig()
			cfg.NDims = int(cmd.Int("dims"))
			cfg.StabilityRuns = int(cmd.Int("stability-runs"))
			cfg.Seed = int64(cmd.Int("seed"))
			cfg.CommunityAlpha = cmd.Float("community-alpha")
			cfg.CompletenessWeighting = spectral.Weighting(cmd.String("weighting"))

			manifest, err := core.BuildSnapshot(ctx, cfg, func(stage string, done, total int) {
				if done%64 == 0 {
					fmt.Fprintf(os.Stderr, "\r%s %d/%d", stage, done, total)
				}
			})
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			return output(cmd, manifest)
		},
	}
}

func viewCommand() *cli.Command {
	return &cli.Command{
		Name:  "view",
		Usage: "cut the hierarchy and print a cluster view",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "granularity", Value: 0},
			&cli.IntFlag{Name: "budget", Value: 0},
			&cli.StringFlag{Name: "ego"},
			&cli.StringFlag{Name: "workspace", Value: "default"},
			&cli.FloatFlag{Name: "blend", Value: 0, Usage: "Louvain signal blend in [0,1]"},
			&cli.BoolFlag{Name: "autofill"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			core, err := newCore(ctx, cmd)
			if err != nil {
				return err
			}
			if _, err := core.LoadSnapshot(ctx); err != nil {
				return err
			}
			view, err := core.ClusterView(ctx, cluster.Query{
				Workspace:   cmd.String("workspace"),
				Granularity: int(cmd.Int("granularity")),
				Budget:      int(cmd.Int("budget")),
				Ego:         cmd.String("ego"),
				SignalBlend: cmd.Float("blend"),
				Autofill:    cmd.Bool("autofill"),
			})
			if err != nil {
				return err
			}
			return output(cmd, view)
		},
	}
}

func propagateCommand() *cli.Command {
	return &cli.Command{
		Name:  "propagate",
		Usage: "run label propagation from a tag file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tags", Required: true, Usage: "newline-delimited JSON tag assignments"},
			&cli.StringFlag{Name: "workspace", Value: "default"},
			&cli.FloatFlag{Name: "temperature", Value: 0},
			&cli.StringFlag{Name: "walk", Value: "", Usage: "symmetric or directed_random_walk"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			core, err := newCore(ctx, cmd)
			if err != nil {
				return err
			}
			if err := importTags(ctx, core, cmd.String("tags"), cmd.String("workspace")); err != nil {
				return err
			}
			cfg := propagation.DefaultConfig()
			if t := cmd.Float("temperature"); t > 0 {
				cfg.Temperature = t
			}
			if w := cmd.String("walk"); w != "" {
				cfg.WalkKind = propagation.WalkKind(w)
			}
			result, err := core.RunPropagation(ctx, cmd.String("workspace"), cfg)
			if err != nil {
				return err
			}
			return output(cmd, result)
		},
	}
}

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "rank candidate accounts against a seed set",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "seed", Required: true},
			&cli.IntFlag{Name: "limit", Value: 20},
			&cli.IntFlag{Name: "offset", Value: 0},
			&cli.StringFlag{Name: "workspace", Value: "default"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			core, err := newCore(ctx, cmd)
			if err != nil {
				return err
			}
			resp, err := core.Discover(ctx, cmd.String("workspace"), discovery.Request{
				Caller: "cli",
				Seeds:  cmd.StringSlice("seed"),
				Limit:  int(cmd.Int("limit")),
				Offset: int(cmd.Int("offset")),
			})
			if err != nil {
				return err
			}
			return output(cmd, resp)
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP daemon",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "load-snapshot", Usage: "load the on-disk snapshot at startup"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			core, err := newCore(ctx, cmd)
			if err != nil {
				return err
			}
			if cmd.Bool("load-snapshot") {
				if _, err := core.LoadSnapshot(ctx); err != nil {
					return err
				}
			}
			srv := server.New(core, server.WithVersion(Version))
			return srv.Start(ctx)
		},
	}
}

// importTags loads newline-delimited JSON tag assignments into the store
// under the given workspace.
func importTags(ctx context.Context, core *api.Core, path, workspace string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidArgument, "opening "+path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var tag store.TagAssignment
		if err := json.Unmarshal(line, &tag); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidArgument,
				fmt.Sprintf("%s line %d", path, lineNo), err)
		}
		if tag.Workspace == "" {
			tag.Workspace = workspace
		}
		if err := core.Store().UpsertTag(ctx, tag); err != nil {
			return err
		}
	}
	return scanner.Err()
}
