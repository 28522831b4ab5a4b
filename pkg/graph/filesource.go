/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package graph

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tpotmap/atlas/pkg/errors"
)

// Table file names under a graph directory.
const (
	NodesFile = "snapshot.nodes"
	EdgesFile = "snapshot.edges"
)

// FileSource reads node and edge tables from newline-delimited JSON files,
// the bulk interchange format the ingestion tooling writes.
type FileSource struct {
	NodesPath string
	EdgesPath string
}

// NewFileSource points at the standard table names under dir.
func NewFileSource(dir string) FileSource {
	return FileSource{
		NodesPath: dir + "/" + NodesFile,
		EdgesPath: dir + "/" + EdgesFile,
	}
}

// Accounts implements Source.
func (f FileSource) Accounts(ctx context.Context) ([]Account, error) {
	var out []Account
	err := readLines(ctx, f.NodesPath, func(line []byte, lineNo int) error {
		var a Account
		if err := json.Unmarshal(line, &a); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidArgument,
				fmt.Sprintf("%s line %d", f.NodesPath, lineNo), err)
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

// Edges implements Source.
func (f FileSource) Edges(ctx context.Context) ([]Edge, error) {
	var out []Edge
	err := readLines(ctx, f.EdgesPath, func(line []byte, lineNo int) error {
		var e Edge
		if err := json.Unmarshal(line, &e); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidArgument,
				fmt.Sprintf("%s line %d", f.EdgesPath, lineNo), err)
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func readLines(ctx context.Context, path string, fn func(line []byte, lineNo int) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidArgument, "opening "+path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<22)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return errors.FromContext(err)
			}
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line, lineNo); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeIntegrity, "reading "+path, err)
	}
	return nil
}
