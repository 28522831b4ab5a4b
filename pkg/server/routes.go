/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tpotmap/atlas/pkg/cluster"
	"github.com/tpotmap/atlas/pkg/discovery"
	atlaserrors "github.com/tpotmap/atlas/pkg/errors"
	"github.com/tpotmap/atlas/pkg/propagation"
	"github.com/tpotmap/atlas/pkg/serializer"
	"github.com/tpotmap/atlas/pkg/spectral"
)

// routes maps the stable operation names onto HTTP paths.
func (s *Server) routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"/v1/graph/hash":            s.handleGraphHash,
		"/v1/spectral/build":        s.handleSpectralBuild,
		"/v1/spectral/load":         s.handleSpectralLoad,
		"/v1/clusters/view":         s.handleClusterView,
		"/v1/clusters/preview":      s.handleClusterPreview,
		"/v1/clusters/members":      s.handleClusterMembers,
		"/v1/clusters/label":        s.handleClusterLabel,
		"/v1/propagation/run":       s.handlePropagationRun,
		"/v1/propagation":           s.handlePropagationGet,
		"/v1/discovery/recommend":   s.handleDiscoveryRecommend,
		"/v1/cache/stats":           s.handleCacheStats,
		"/v1/cache/invalidate":      s.handleCacheInvalidate,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, r, atlaserrors.ErrCodeInvalidArgument, "malformed request body", nil)
		return false
	}
	return true
}

func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	WriteError(w, r, atlaserrors.ErrCodeMethodNotAllowed, "method not allowed", nil)
	return false
}

func (s *Server) handleGraphHash(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	h, err := s.core.GraphHash()
	if err != nil {
		WriteErrorFromErr(w, r, err)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, map[string]string{"hash": h.String()})
}

type spectralBuildRequest struct {
	NDims                 int     `json:"n_dims,omitempty"`
	SolverTol             float64 `json:"solver_tol,omitempty"`
	SolverMaxIter         int     `json:"solver_max_iter,omitempty"`
	StabilityRuns         int     `json:"stability_runs,omitempty"`
	Seed                  int64   `json:"seed,omitempty"`
	CommunityAlpha        float64 `json:"community_alpha,omitempty"`
	CompletenessWeighting string  `json:"completeness_weighting,omitempty"`
	ObsPMin               float64 `json:"obs_p_min,omitempty"`
	TimeoutMillis         int     `json:"timeout_ms,omitempty"`
}

func (s *Server) handleSpectralBuild(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req spectralBuildRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg := spectral.Config{
		NDims:                 req.NDims,
		SolverTol:             req.SolverTol,
		SolverMaxIter:         req.SolverMaxIter,
		StabilityRuns:         req.StabilityRuns,
		Seed:                  req.Seed,
		CommunityAlpha:        req.CommunityAlpha,
		CompletenessWeighting: spectral.Weighting(req.CompletenessWeighting),
		ObsPMin:               req.ObsPMin,
	}

	ctx := r.Context()
	if req.TimeoutMillis > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMillis)*time.Millisecond)
		defer cancel()
	}

	manifest, err := s.core.BuildSnapshot(ctx, cfg, nil)
	if err != nil {
		WriteErrorFromErr(w, r, err)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, manifest)
}

func (s *Server) handleSpectralLoad(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	manifest, err := s.core.LoadSnapshot(r.Context())
	if err != nil {
		WriteErrorFromErr(w, r, err)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, manifest)
}

func (s *Server) handleClusterView(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var q cluster.Query
	if !decodeJSON(w, r, &q) {
		return
	}
	view, err := s.core.ClusterView(r.Context(), q)
	if err != nil {
		WriteErrorFromErr(w, r, err)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, view)
}

type previewRequest struct {
	ClusterID int           `json:"cluster_id"`
	Query     cluster.Query `json:"query"`
}

func (s *Server) handleClusterPreview(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.core.ClusterPreview(r.Context(), req.ClusterID, req.Query)
	if err != nil {
		WriteErrorFromErr(w, r, err)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, p)
}

func (s *Server) handleClusterMembers(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	clusterID, err := strconv.Atoi(r.URL.Query().Get("cluster_id"))
	if err != nil {
		WriteError(w, r, atlaserrors.ErrCodeInvalidArgument, "cluster_id must be an integer", nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	page, err := s.core.ClusterMembers(r.Context(), clusterID, limit, offset)
	if err != nil {
		WriteErrorFromErr(w, r, err)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, page)
}

type labelRequest struct {
	Workspace  string `json:"workspace"`
	ClusterKey string `json:"cluster_key"`
	Label      string `json:"label,omitempty"`
}

func (s *Server) handleClusterLabel(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPut, http.MethodDelete) {
		return
	}
	var req labelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var err error
	if r.Method == http.MethodPut {
		err = s.core.SetClusterLabel(r.Context(), req.Workspace, req.ClusterKey, req.Label)
	} else {
		err = s.core.DeleteClusterLabel(r.Context(), req.Workspace, req.ClusterKey)
	}
	if err != nil {
		WriteErrorFromErr(w, r, err)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type propagationRunRequest struct {
	Workspace string             `json:"workspace"`
	Config    propagationOptions `json:"config"`
}

type propagationOptions struct {
	Temperature        float64 `json:"temperature,omitempty"`
	AbstainConfidence  float64 `json:"abstain_confidence,omitempty"`
	AbstainUncertainty float64 `json:"abstain_uncertainty,omitempty"`
	Regularization     float64 `json:"regularization,omitempty"`
	ClassBalance       string  `json:"class_balance,omitempty"`
	WalkKind           string  `json:"walk_kind,omitempty"`
	Weighting          string  `json:"weighting,omitempty"`
}

func (s *Server) handlePropagationRun(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req propagationRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg := propagation.Config{
		Temperature:        req.Config.Temperature,
		AbstainConfidence:  req.Config.AbstainConfidence,
		AbstainUncertainty: req.Config.AbstainUncertainty,
		Regularization:     req.Config.Regularization,
		ClassBalance:       propagation.ClassBalance(req.Config.ClassBalance),
		WalkKind:           propagation.WalkKind(req.Config.WalkKind),
		Weighting:          req.Config.Weighting,
	}
	result, err := s.core.RunPropagation(r.Context(), req.Workspace, cfg)
	if err != nil {
		WriteErrorFromErr(w, r, err)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, result)
}

func (s *Server) handlePropagationGet(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	result, err := s.core.GetPropagation(r.URL.Query().Get("workspace"))
	if err != nil {
		WriteErrorFromErr(w, r, err)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, result)
}

type discoveryRequest struct {
	Workspace string            `json:"workspace,omitempty"`
	Request   discovery.Request `json:"request"`
}

func (s *Server) handleDiscoveryRecommend(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req discoveryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Request.Caller == "" {
		req.Request.Caller = r.RemoteAddr
	}
	resp, err := s.core.Discover(r.Context(), req.Workspace, req.Request)
	if err != nil {
		WriteErrorFromErr(w, r, err)
		return
	}
	serializer.RespondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	serializer.RespondJSON(w, http.StatusOK, s.core.CacheStats())
}

type invalidateRequest struct {
	Prefix string `json:"prefix,omitempty"`
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req invalidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	removed := s.core.CacheInvalidate(req.Prefix)
	serializer.RespondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
