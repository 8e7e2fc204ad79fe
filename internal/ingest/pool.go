package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/transcript-segmenter/internal/api"
	"github.com/snarg/transcript-segmenter/internal/database"
	"github.com/snarg/transcript-segmenter/internal/metrics"
	"github.com/snarg/transcript-segmenter/internal/segment"
	"github.com/snarg/transcript-segmenter/internal/storage"
	"github.com/snarg/transcript-segmenter/internal/transcript"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// Segmenter runs the segmentation pipeline. *segment.Segmenter implements it.
type Segmenter interface {
	Segment(t *transcript.Transcript) (segment.Result, error)
}

// RunRecorder persists finished runs. *database.DB implements it.
type RunRecorder interface {
	InsertRun(ctx context.Context, r *database.RunRow) error
}

// Publisher delivers results to message subscribers. *mqttclient.Client implements it.
type Publisher interface {
	Publish(jobID string, v any) error
}

// WorkerPoolOptions configures the segmentation worker pool. Store, Runs,
// Publisher and Events are optional sinks.
type WorkerPoolOptions struct {
	Segmenter  Segmenter
	Store      storage.Store
	Runs       RunRecorder
	Publisher  Publisher
	Events     *EventBus
	Scorer     string // recorded with each run
	Seed       uint64 // recorded with each run
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	TrackLimit int // recent jobs kept for status lookups
	Log        zerolog.Logger
}

type job struct {
	id  uuid.UUID
	req api.JobRequest
}

// ResultMessage is the payload published for a finished job.
type ResultMessage struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name,omitempty"`
	OutputKey string         `json:"output_key,omitempty"`
	Result    segment.Result `json:"result"`
}

// WorkerPool manages segmentation workers.
type WorkerPool struct {
	jobs    chan job
	opts    WorkerPoolOptions
	log     zerolog.Logger
	tracker *tracker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a new segmentation worker pool.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	if opts.TrackLimit <= 0 {
		opts.TrackLimit = 1024
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:    make(chan job, opts.QueueSize),
		opts:    opts,
		log:     opts.Log,
		tracker: newTracker(opts.TrackLimit),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("segmentation worker pool started")
}

// Stop stops accepting jobs, drains the queue and waits for workers to finish.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("segmentation worker pool stopped")
}

// Submit adds a job to the queue. Returns api.ErrQueueFull if the queue is full.
func (wp *WorkerPool) Submit(req api.JobRequest) (*api.JobStatus, error) {
	if req.Transcript == nil {
		return nil, errors.New("job has no transcript")
	}
	j, st := wp.newJob(req)

	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return nil, ErrPoolStopped
	}

	wp.tracker.put(st)
	select {
	case wp.jobs <- j:
	default:
		wp.tracker.remove(j.id)
		return nil, api.ErrQueueFull
	}

	wp.publishEvent(EventRunQueued, j, st)
	return st, nil
}

// SubmitWait retries Submit until the job is queued or ctx is done.
func (wp *WorkerPool) SubmitWait(ctx context.Context, req api.JobRequest) (*api.JobStatus, error) {
	for {
		st, err := wp.Submit(req)
		if !errors.Is(err, api.ErrQueueFull) {
			return st, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Run processes a job on the calling goroutine.
func (wp *WorkerPool) Run(ctx context.Context, req api.JobRequest) (*api.JobStatus, error) {
	if req.Transcript == nil {
		return nil, errors.New("job has no transcript")
	}
	j, st := wp.newJob(req)
	wp.tracker.put(st)

	ctx, cancel := context.WithTimeout(ctx, wp.opts.JobTimeout)
	defer cancel()

	err := wp.process(ctx, wp.log, j)
	final, _ := wp.tracker.get(j.id)
	if final == nil {
		final = st
	}
	return final, err
}

// Job returns the status of a recent job.
func (wp *WorkerPool) Job(id uuid.UUID) (*api.JobStatus, bool) {
	return wp.tracker.get(id)
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() api.QueueStats {
	return api.QueueStats{
		Pending:   len(wp.jobs),
		Workers:   wp.opts.Workers,
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
	}
}

// Pending returns the number of queued jobs.
func (wp *WorkerPool) Pending() int { return len(wp.jobs) }

// Workers returns the number of worker goroutines.
func (wp *WorkerPool) Workers() int { return wp.opts.Workers }

func (wp *WorkerPool) newJob(req api.JobRequest) (job, *api.JobStatus) {
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now()
	}
	j := job{id: uuid.New(), req: req}
	return j, &api.JobStatus{
		ID:       j.id,
		Source:   req.Source,
		Name:     req.Name,
		State:    api.JobQueued,
		QueuedAt: req.ReceivedAt,
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for j := range wp.jobs {
		ctx, cancel := context.WithTimeout(wp.ctx, wp.opts.JobTimeout)
		if err := wp.process(ctx, log, j); err != nil {
			log.Warn().Err(err).
				Str("job_id", j.id.String()).
				Str("name", j.req.Name).
				Str("source", j.req.Source).
				Msg("segmentation failed")
		}
		cancel()
	}
}

func (wp *WorkerPool) process(ctx context.Context, log zerolog.Logger, j job) error {
	start := time.Now()
	wp.tracker.update(j.id, func(s *api.JobStatus) { s.State = api.JobRunning })

	res, key, err := wp.segment(ctx, log, j, start)
	finished := time.Now()
	elapsed := finished.Sub(start)

	if err != nil {
		wp.failed.Add(1)
		metrics.ObserveRun(j.req.Source, "error", elapsed, 0, 0)
		wp.tracker.update(j.id, func(s *api.JobStatus) {
			s.State = api.JobFailed
			s.Error = err.Error()
			s.FinishedAt = &finished
			s.DurationMs = int(elapsed.Milliseconds())
		})
		if st, ok := wp.tracker.get(j.id); ok {
			wp.publishEvent(EventRunFailed, j, st)
		}
		return err
	}

	wp.completed.Add(1)
	metrics.ObserveRun(j.req.Source, res.Outcome.String(), elapsed, len(res.Segments), res.Tokens)
	wp.tracker.update(j.id, func(s *api.JobStatus) {
		s.State = api.JobDone
		s.OutputKey = key
		s.Result = &res
		s.FinishedAt = &finished
		s.DurationMs = int(elapsed.Milliseconds())
	})
	if st, ok := wp.tracker.get(j.id); ok {
		wp.publishEvent(EventRunComplete, j, st)
	}

	log.Debug().
		Str("job_id", j.id.String()).
		Str("outcome", res.Outcome.String()).
		Int("segments", len(res.Segments)).
		Int("tokens", res.Tokens).
		Dur("elapsed", elapsed).
		Msg("segmentation complete")
	return nil
}

// segment runs the pipeline and feeds the configured sinks. A failed store
// or database write fails the job; a failed publish is only logged.
func (wp *WorkerPool) segment(ctx context.Context, log zerolog.Logger, j job, start time.Time) (segment.Result, string, error) {
	res, err := wp.opts.Segmenter.Segment(j.req.Transcript)
	if err != nil {
		return res, "", fmt.Errorf("segment: %w", err)
	}

	var key string
	if wp.opts.Store != nil && len(res.Segments) > 0 {
		key = storage.OutputKey(outputName(j.req.Name, j.id), j.req.ReceivedAt)
		data := []byte(segment.Format(res.Segments))
		if err := wp.opts.Store.Save(ctx, key, data, "text/plain; charset=utf-8"); err != nil {
			return res, "", fmt.Errorf("save output: %w", err)
		}
	}

	if wp.opts.Runs != nil {
		row := database.RunFromResult(j.id, j.req.Source, j.req.Name, res, time.Since(start))
		row.Scorer = wp.opts.Scorer
		row.Seed = int64(wp.opts.Seed) // config.Validate bounds the seed to MaxInt64
		if key != "" {
			row.OutputKey = &key
		}
		if err := wp.opts.Runs.InsertRun(ctx, row); err != nil {
			return res, key, fmt.Errorf("db insert: %w", err)
		}
	}

	if wp.opts.Publisher != nil && j.req.Publish {
		msg := ResultMessage{ID: j.id, Name: j.req.Name, OutputKey: key, Result: res}
		if err := wp.opts.Publisher.Publish(j.id.String(), msg); err != nil {
			log.Warn().Err(err).Str("job_id", j.id.String()).Msg("result publish failed")
		}
	}

	return res, key, nil
}

func (wp *WorkerPool) publishEvent(eventType string, j job, st *api.JobStatus) {
	if wp.opts.Events == nil {
		return
	}
	wp.opts.Events.Publish(EventData{
		Type:    eventType,
		Source:  j.req.Source,
		JobID:   j.id.String(),
		Payload: st,
	})
}

// outputName derives a storage name from a job name, falling back to the
// job id when the name has nothing usable.
func outputName(name string, id uuid.UUID) string {
	base := filepath.Base(filepath.ToSlash(strings.TrimSpace(name)))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" || base == ".." {
		return id.String()
	}
	return base
}
