// Copyright 2025 Tom Barlow
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

package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/tombee/ironflow/internal/server/httputil"
	"github.com/tombee/ironflow/pkg/flow"
)

// runRequest is the POST /flows/run body. Exactly one of Source and File
// must be set.
type runRequest struct {
	// Source is an inline flow definition (YAML or JSON).
	Source string `json:"source,omitempty"`

	// File is a flow file path, relative to flows_dir or absolute, or a
	// flow name known to the index.
	File string `json:"file,omitempty"`

	// Context seeds the run's initial context.
	Context map[string]any `json:"context,omitempty"`
}

// runResponse is the common run-result shape.
type runResponse struct {
	RunID    string `json:"run_id"`
	FlowName string `json:"flow_name"`
	Status   string `json:"status"`
}

// runSummary is the GET /runs listing entry.
type runSummary struct {
	RunID    string         `json:"run_id"`
	FlowName string         `json:"flow_name"`
	Status   string         `json:"status"`
	Started  time.Time      `json:"started"`
	Finished *time.Time     `json:"finished,omitempty"`
	Tasks    map[string]int `json:"tasks"`
}

func summarize(info *flow.RunInfo) runSummary {
	tasks := map[string]int{"total": len(info.Tasks)}
	for status, count := range info.TaskCounts() {
		tasks[string(status)] = count
	}
	return runSummary{
		RunID:    info.ID,
		FlowName: info.FlowName,
		Status:   string(info.Status),
		Started:  info.Started,
		Finished: info.Finished,
		Tasks:    tasks,
	}
}

// loadFlow resolves a run/validate request body to a parsed flow and the
// initial context entries implied by its origin (file-based flows carry
// _flow_dir for nested-flow resolution).
func (s *Server) loadFlow(req *runRequest) (*flow.Flow, map[string]any, error) {
	switch {
	case req.Source != "" && req.File != "":
		return nil, nil, &requestError{"provide either source or file, not both"}
	case req.Source != "":
		f, err := flow.Parse([]byte(req.Source))
		return f, nil, err
	case req.File != "":
		path, err := s.index.Resolve(req.File)
		if err != nil {
			return nil, nil, err
		}
		f, err := flow.ParseFile(path)
		if err != nil {
			return nil, nil, err
		}
		dir, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return nil, nil, err
		}
		return f, map[string]any{flow.KeyFlowDir: dir}, nil
	default:
		return nil, nil, &requestError{"provide one of source or file"}
	}
}

func (s *Server) handleRunFlow(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	f, seed, err := s.loadFlow(&req)
	if err != nil {
		httputil.WriteError(w, statusFor(err), err.Error())
		return
	}
	if errs := validateAll(f, s.registry); len(errs) > 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "invalid flow",
			"details": errs[0],
		})
		return
	}

	initial := make(map[string]any, len(req.Context)+len(seed))
	for k, v := range req.Context {
		initial[k] = v
	}
	for k, v := range seed {
		initial[k] = v
	}

	info, err := s.execute(r.Context(), f, initial)
	if err != nil {
		httputil.WriteError(w, httputil.StatusFor(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runResponse{
		RunID:    info.ID,
		FlowName: info.FlowName,
		Status:   string(info.Status),
	})
}

func (s *Server) handleValidateFlow(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	f, _, err := s.loadFlow(&req)
	if err != nil {
		// Structural request problems are 400; a flow that fails to parse
		// is a validation result, not a request error.
		var re *requestError
		if errors.As(err, &re) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if status := httputil.StatusFor(err); status == http.StatusNotFound {
			httputil.WriteError(w, status, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"valid":  false,
			"errors": []string{err.Error()},
		})
		return
	}

	errs := validateAll(f, s.registry)
	if errs == nil {
		errs = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":     len(errs) == 0,
		"flow_name": f.Name,
		"steps":     len(f.Steps),
		"errors":    errs,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	status := flow.RunStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		httputil.WriteError(w, http.StatusBadRequest, "unknown status filter "+string(status))
		return
	}

	runs, err := s.store.ListRuns(r.Context(), status)
	if err != nil {
		httputil.WriteError(w, httputil.StatusFor(err), err.Error())
		return
	}

	summaries := make([]runSummary, len(runs))
	for i, info := range runs {
		summaries[i] = summarize(info)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"runs":  summaries,
		"total": len(summaries),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.GetRunInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, httputil.StatusFor(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteRun(r.Context(), id); err != nil {
		httputil.WriteError(w, httputil.StatusFor(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.registry.List()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"total": len(nodes),
	})
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	entries := s.index.List()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"flows": entries,
		"total": len(entries),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// validateAll runs graph validation plus the registry-aware node-type pass.
func validateAll(f *flow.Flow, registry *flow.Registry) []string {
	errs := flow.Validate(f)
	errs = append(errs, flow.ValidateNodeTypes(f, registry)...)
	return errs
}

// writeBodyError distinguishes an oversized body (413) from malformed JSON
// (400).
func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
}

// requestError is a request-shape problem (as opposed to a flow that parsed
// but failed validation). Always a 400.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

// statusFor maps load errors to HTTP codes, treating request-shape errors
// as 400.
func statusFor(err error) int {
	var re *requestError
	if errors.As(err, &re) {
		return http.StatusBadRequest
	}
	return httputil.StatusFor(err)
}
