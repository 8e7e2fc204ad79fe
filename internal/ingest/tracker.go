package ingest

import (
	"sync"

	"github.com/google/uuid"
	"github.com/snarg/transcript-segmenter/internal/api"
)

// tracker keeps the status of the most recent jobs so callers can poll a job
// id without a database. The oldest entry is evicted once capacity is reached.
type tracker struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]*api.JobStatus
	order []uuid.UUID
	limit int
}

func newTracker(limit int) *tracker {
	if limit < 1 {
		limit = 1
	}
	return &tracker{
		jobs:  make(map[uuid.UUID]*api.JobStatus, limit),
		limit: limit,
	}
}

func (t *tracker) put(s *api.JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[s.ID]; !ok {
		if len(t.order) >= t.limit {
			delete(t.jobs, t.order[0])
			t.order = t.order[1:]
		}
		t.order = append(t.order, s.ID)
	}
	cp := *s
	t.jobs[s.ID] = &cp
}

func (t *tracker) update(id uuid.UUID, fn func(*api.JobStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.jobs[id]; ok {
		fn(s)
	}
}

// get returns a copy of the job's status.
func (t *tracker) get(id uuid.UUID) (*api.JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

func (t *tracker) remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[id]; !ok {
		return
	}
	delete(t.jobs, id)
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
