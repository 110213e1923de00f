package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tpf/internal/execution"
	"tpf/internal/health"
	"tpf/internal/pipectx"
	"tpf/internal/runner"
	"tpf/pkg/logging"
)

// routes mounts the HTTP surface. Every pipeline route passes the context
// interceptor, so the x-tpf-* request headers bind to the call and the
// response reports the recorded cache status.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(pipectx.Middleware)

	r.Route("/v1/pipeline", func(r chi.Router) {
		r.Post("/execute", s.handleExecute)
		r.Post("/stream", s.handleStream)
		r.Get("/steps", s.handleSteps)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

type executeResponse struct {
	RunID  string `json:"runId,omitempty"`
	Result any    `json:"result"`
}

type errorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type stageDescriptor struct {
	Name     string `json:"name"`
	Shape    string `json:"shape"`
	Parallel bool   `json:"parallel"`
}

// handleExecute runs the pipeline over one input and returns its single
// result. A run that completes without emitting returns 204.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var input any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:  "decode",
			Error: fmt.Sprintf("decoding input: %v", err),
		})
		return
	}

	out, err := s.executeCached(r.Context(), input)
	if err != nil {
		if errors.Is(err, execution.ErrNoResult) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Result: out})
}

// handleStream runs the pipeline over an input array and streams every
// emission as one NDJSON line. Failures of single items appear as error
// lines; a run-scoped failure terminates the stream with a fatal line.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var items []any
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:  "decode",
			Error: fmt.Sprintf("decoding input array: %v", err),
		})
		return
	}

	h := s.exec.ExecuteStreaming(r.Context(), runner.SliceSource(items...))

	// A call rejected during setup never streamed; report it with a real
	// status instead of a fatal line on a 200 response.
	select {
	case <-h.Done():
		if err := h.Err(); err != nil {
			s.writeFailure(w, err)
			return
		}
	default:
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	broken := false
	for em := range h.Emissions() {
		if broken {
			continue
		}
		var line any
		if em.Failed() {
			line = map[string]any{"error": em.Err.Error()}
		} else {
			line = map[string]any{"value": em.Value}
		}
		if err := enc.Encode(line); err != nil {
			logging.Debug("Server", "Stream client went away: %v", err)
			h.Cancel()
			broken = true
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := h.Wait(); err != nil && !broken && !execution.IsCancellation(err) {
		_, kind := classify(err)
		_ = enc.Encode(map[string]any{"error": err.Error(), "kind": kind, "fatal": true})
	}
}

// handleSteps describes the planned stages in execution order.
func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	stages, err := s.exec.Stages(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := make([]stageDescriptor, 0, len(stages))
	for _, st := range stages {
		resp = append(resp, stageDescriptor{
			Name:     st.Name,
			Shape:    string(st.Shape),
			Parallel: st.Parallel,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// handleReadyz reports the startup gate. Only a HEALTHY gate answers 200,
// so orchestration platforms hold traffic until probing resolves.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	state := s.gate.State()
	status := http.StatusServiceUnavailable
	if state == health.StateHealthy {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]string{"state": string(state)})
}

// writeFailure maps the pipeline failure taxonomy onto HTTP statuses.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	writeJSON(w, status, errorResponse{Kind: kind, Error: err.Error()})
}

// classify buckets an execution failure. Caller mistakes map to 4xx,
// pipeline and host problems to 5xx.
func classify(err error) (int, string) {
	switch {
	case execution.IsCacheMiss(err):
		return http.StatusPreconditionFailed, "cache-miss"
	case execution.IsShapeError(err):
		return http.StatusBadRequest, "shape"
	case execution.IsHealthError(err):
		return http.StatusServiceUnavailable, "health"
	case execution.IsKillSwitchError(err):
		return http.StatusServiceUnavailable, "kill-switch"
	case execution.IsConfigurationError(err):
		return http.StatusInternalServerError, "configuration"
	case execution.IsStepFailure(err):
		return http.StatusInternalServerError, "step-failure"
	case execution.IsCancellation(err):
		return http.StatusRequestTimeout, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Debug("Server", "Writing response failed: %v", err)
	}
}
