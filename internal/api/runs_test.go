package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/snarg/transcript-segmenter/internal/database"
)

type fakeRuns struct {
	runs      map[uuid.UUID]*database.RunRow
	healthErr error
	listErr   error
}

func (f *fakeRuns) GetRun(_ context.Context, id uuid.UUID) (*database.RunRow, error) {
	if r, ok := f.runs[id]; ok {
		return r, nil
	}
	return nil, database.ErrRunNotFound
}

func (f *fakeRuns) ListRuns(_ context.Context, limit, offset int) ([]database.RunRow, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []database.RunRow
	for _, r := range f.runs {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (f *fakeRuns) HealthCheck(context.Context) error { return f.healthErr }

type fakeOutputs map[string]string

func (f fakeOutputs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s, ok := f[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func newRunsRouter(runs RunStore, outputs OutputReader) http.Handler {
	r := chi.NewRouter()
	NewRunsHandler(runs, outputs).Routes(r)
	return r
}

func TestRunsHandler_Unconfigured(t *testing.T) {
	h := newRunsRouter(nil, nil)
	for _, path := range []string{"/runs", "/runs/" + uuid.NewString(), "/outputs/2026-01-01/a.segments.txt"} {
		t.Run(strings.Trim(path, "/"), func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", rec.Code)
			}
		})
	}
}

func TestGetRun(t *testing.T) {
	id := uuid.New()
	runs := &fakeRuns{runs: map[uuid.UUID]*database.RunRow{
		id: {ID: id, Source: "http", Outcome: "segmented", SegmentCount: 2},
	}}
	h := newRunsRouter(runs, nil)

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"found", "/runs/" + id.String(), http.StatusOK},
		{"not_found", "/runs/" + uuid.NewString(), http.StatusNotFound},
		{"bad_id", "/runs/42", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestListRuns(t *testing.T) {
	id := uuid.New()
	runs := &fakeRuns{runs: map[uuid.UUID]*database.RunRow{id: {ID: id, Source: "watch"}}}

	rec := httptest.NewRecorder()
	newRunsRouter(runs, nil).ServeHTTP(rec, httptest.NewRequest("GET", "/runs?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[struct {
		Runs  []database.RunRow `json:"runs"`
		Total int               `json:"total"`
		Limit int               `json:"limit"`
	}](t, rec)
	if body.Total != 1 || len(body.Runs) != 1 || body.Limit != 10 {
		t.Errorf("body = %+v", body)
	}

	runs.listErr = errors.New("db down")
	rec = httptest.NewRecorder()
	newRunsRouter(runs, nil).ServeHTTP(rec, httptest.NewRequest("GET", "/runs", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetOutput(t *testing.T) {
	outputs := fakeOutputs{"2026-01-01/talk.segments.txt": "Segment 1 [0.00s - 1.00s]:\nhi\n\n"}
	h := newRunsRouter(nil, outputs)

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"found", "/outputs/2026-01-01/talk.segments.txt", http.StatusOK},
		{"missing", "/outputs/2026-01-01/other.segments.txt", http.StatusNotFound},
		{"wrong_suffix", "/outputs/2026-01-01/talk.txt", http.StatusBadRequest},
		{"traversal", "/outputs/2026-01-01/..%2F..%2Fsecret.segments.txt", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && !strings.HasPrefix(rec.Body.String(), "Segment 1") {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}
