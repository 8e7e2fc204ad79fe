package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/transcript-segmenter/internal/database"
)

// OutputReader opens stored segment outputs. storage.Store implements it.
type OutputReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type RunsHandler struct {
	runs    RunStore
	outputs OutputReader
}

func NewRunsHandler(runs RunStore, outputs OutputReader) *RunsHandler {
	return &RunsHandler{runs: runs, outputs: outputs}
}

// Routes registers run history and output routes on the given router.
func (h *RunsHandler) Routes(r chi.Router) {
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{id}", h.GetRun)
	r.Get("/outputs/*", h.GetOutput)
}

// ListRuns handles GET /api/v1/runs.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		WriteErrorWithCode(w, http.StatusServiceUnavailable, CodeUnavailable, "run history requires a database")
		return
	}
	p := ParsePagination(r)
	runs, total, err := h.runs.ListRuns(r.Context(), p.Limit, p.Offset)
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, CodeInternal, "failed to list runs")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// GetRun handles GET /api/v1/runs/{id}.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		WriteErrorWithCode(w, http.StatusServiceUnavailable, CodeUnavailable, "run history requires a database")
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, CodeBadRequest, "invalid run id")
		return
	}
	run, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, database.ErrRunNotFound) {
		WriteErrorWithCode(w, http.StatusNotFound, CodeNotFound, "run not found")
		return
	}
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, CodeInternal, "failed to load run")
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// GetOutput handles GET /api/v1/outputs/{key}, streaming a stored
// segmented transcript.
func (h *RunsHandler) GetOutput(w http.ResponseWriter, r *http.Request) {
	if h.outputs == nil {
		WriteErrorWithCode(w, http.StatusServiceUnavailable, CodeUnavailable, "output storage not configured")
		return
	}
	key := chi.URLParam(r, "*")
	if key == "" || strings.Contains(key, "..") || !strings.HasSuffix(key, ".segments.txt") {
		WriteErrorWithCode(w, http.StatusBadRequest, CodeBadRequest, "invalid output key")
		return
	}
	rc, err := h.outputs.Open(r.Context(), key)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, CodeNotFound, "output not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+path.Base(key)+`"`)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}
