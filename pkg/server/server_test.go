/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpotmap/atlas/pkg/api"
	"github.com/tpotmap/atlas/pkg/config"
	atlaserrors "github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/graph"
	"github.com/tpotmap/atlas/pkg/spectral"
	"github.com/tpotmap/atlas/pkg/store"
)

func testServer(t *testing.T, withGraph bool) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.SnapshotDir = t.TempDir()
	core := api.New(cfg, store.NewMemory())

	if withGraph {
		ts := time.Unix(0, 0)
		var nodes []graph.Account
		var edges []graph.Edge
		for i := 0; i < 12; i++ {
			nodes = append(nodes, graph.Account{ID: fmt.Sprintf("n_%02d", i), Username: fmt.Sprintf("user%02d", i), FetchedAt: ts})
		}
		for i := 0; i < 12; i++ {
			for j := 0; j < 12; j++ {
				if i/6 == j/6 && i != j {
					edges = append(edges, graph.Edge{
						Source: fmt.Sprintf("n_%02d", i), Target: fmt.Sprintf("n_%02d", j),
						Direction: graph.DirectionOutbound, FetchedAt: ts,
					})
				}
			}
		}
		_, err := core.LoadGraph(context.Background(), graph.SliceSource{Nodes: nodes, Links: edges})
		require.NoError(t, err)

		scfg := spectral.DefaultConfig()
		scfg.NDims = 4
		scfg.StabilityRuns = 0
		_, err = core.BuildSnapshot(context.Background(), scfg, nil)
		require.NoError(t, err)
	}
	return New(core)
}

func do(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	} else {
		buf.WriteString("{}")
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler, ok := s.routes()[path]
	if !ok {
		panic("unknown route " + path)
	}
	s.withMiddleware(handler)(rec, req)
	return rec
}

func TestHTTPStatusFromCode(t *testing.T) {
	tests := []struct {
		code atlaserrors.ErrorCode
		want int
	}{
		{atlaserrors.ErrCodeInvalidArgument, http.StatusBadRequest},
		{atlaserrors.ErrCodeNotFound, http.StatusNotFound},
		{atlaserrors.ErrCodeStale, http.StatusConflict},
		{atlaserrors.ErrCodeCancelled, StatusClientClosedRequest},
		{atlaserrors.ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{atlaserrors.ErrCodeIntegrity, http.StatusInternalServerError},
		{atlaserrors.ErrCodeInternal, http.StatusInternalServerError},
		{atlaserrors.ErrCodeMethodNotAllowed, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusFromCode(tt.code), string(tt.code))
	}
}

func TestGraphHashEndpoint(t *testing.T) {
	s := testServer(t, true)
	rec := do(s, http.MethodGet, "/v1/graph/hash", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["hash"], 32)
}

func TestGraphHashWithoutGraph(t *testing.T) {
	s := testServer(t, false)
	rec := do(s, http.MethodGet, "/v1/graph/hash", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestClusterViewEndpoint(t *testing.T) {
	s := testServer(t, true)
	rec := do(s, http.MethodPost, "/v1/clusters/view", map[string]any{"granularity": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view struct {
		Clusters []any          `json:"clusters"`
		Meta     map[string]any `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.NotEmpty(t, view.Clusters)
}

func TestMethodNotAllowed(t *testing.T) {
	s := testServer(t, true)
	rec := do(s, http.MethodDelete, "/v1/clusters/view", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	s := testServer(t, true)
	req := httptest.NewRequest(http.MethodPost, "/v1/clusters/view", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	s.withMiddleware(s.routes()["/v1/clusters/view"])(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheEndpoints(t *testing.T) {
	s := testServer(t, true)

	rec := do(s, http.MethodGet, "/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Len(t, stats, 2)

	rec = do(s, http.MethodPost, "/v1/cache/invalidate", map[string]string{"prefix": ""})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	s := testServer(t, true)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not ready before Start")
}
