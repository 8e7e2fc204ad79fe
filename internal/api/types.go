package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/snarg/transcript-segmenter/internal/database"
	"github.com/snarg/transcript-segmenter/internal/segment"
	"github.com/snarg/transcript-segmenter/internal/transcript"
)

// ErrQueueFull is returned by JobQueue.Submit when no queue slot is free.
var ErrQueueFull = errors.New("segmentation queue is full")

// JobQueue runs segmentation jobs. The ingest worker pool implements this
// interface; api owns it so ingest can import api without a cycle.
type JobQueue interface {
	// Submit enqueues a job and returns its initial status.
	Submit(req JobRequest) (*JobStatus, error)

	// Run processes a job on the calling goroutine through the same sinks
	// as queued jobs.
	Run(ctx context.Context, req JobRequest) (*JobStatus, error)

	// Job returns the status of a recent job.
	Job(id uuid.UUID) (*JobStatus, bool)

	// Stats returns current queue statistics.
	Stats() QueueStats
}

// RunStore reads persisted runs. *database.DB implements it.
type RunStore interface {
	GetRun(ctx context.Context, id uuid.UUID) (*database.RunRow, error)
	ListRuns(ctx context.Context, limit, offset int) ([]database.RunRow, int, error)
	HealthCheck(ctx context.Context) error
}

// LiveDataSource streams run events and reports watcher state.
type LiveDataSource interface {
	// Subscribe returns a channel that receives SSE events matching the filter,
	// and a cancel function to unsubscribe.
	Subscribe(filter EventFilter) (<-chan SSEEvent, func())

	// ReplaySince returns buffered events since the given event ID (for Last-Event-ID recovery).
	ReplaySince(lastEventID string, filter EventFilter) []SSEEvent

	// WatcherStatus returns the file watcher status, or nil if not active.
	WatcherStatus() *WatcherStatusData
}

// JobRequest describes one transcript to segment.
type JobRequest struct {
	Source     string // "http", "watch", "mqtt"
	Name       string
	Transcript *transcript.Transcript
	Publish    bool      // publish the result over MQTT
	ReceivedAt time.Time // zero means now
}

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	ID         uuid.UUID       `json:"id"`
	Source     string          `json:"source"`
	Name       string          `json:"name,omitempty"`
	State      JobState        `json:"state"`
	Error      string          `json:"error,omitempty"`
	OutputKey  string          `json:"output_key,omitempty"`
	QueuedAt   time.Time       `json:"queued_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	DurationMs int             `json:"duration_ms,omitempty"`
	Result     *segment.Result `json:"result,omitempty"`
}

// QueueStats reports the current state of the segmentation queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Workers   int   `json:"workers"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// WatcherStatusData represents the status of the directory watcher.
type WatcherStatusData struct {
	Status         string `json:"status"` // "watching", "backfilling", "stopped"
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesSkipped   int64  `json:"files_skipped"`
}

// EventFilter specifies which events an SSE subscriber wants to receive.
type EventFilter struct {
	Types   []string
	Sources []string
}

// SSEEvent represents a server-sent event ready for transmission.
type SSEEvent struct {
	ID        string `json:"event_id"`
	Type      string `json:"event_type"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	Data      []byte `json:"-"` // pre-serialized JSON payload
}

// SegmentRequest is the JSON body accepted by the segment endpoint and by
// MQTT messages. Exactly one of Transcript or Sentences is used; Sentences
// wins when both are set.
type SegmentRequest struct {
	Name       string                     `json:"name,omitempty"`
	Transcript string                     `json:"transcript,omitempty"`
	Sentences  []transcript.TimedSentence `json:"sentences,omitempty"`
}

// ToTranscript parses the request into a transcript.
func (r SegmentRequest) ToTranscript() (*transcript.Transcript, error) {
	if len(r.Sentences) > 0 {
		t := transcript.FromSentences(r.Sentences)
		if len(t.Sentences) == 0 {
			return nil, errors.New("sentences contain no text")
		}
		return t, nil
	}
	if strings.TrimSpace(r.Transcript) == "" {
		return nil, errors.New("transcript or sentences is required")
	}
	return transcript.ParseString(r.Transcript), nil
}
