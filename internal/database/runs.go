package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/snarg/transcript-segmenter/internal/segment"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// RunRow is one persisted segmentation run.
type RunRow struct {
	ID            uuid.UUID         `json:"id"`
	Source        string            `json:"source"`
	Name          string            `json:"name,omitempty"`
	Outcome       string            `json:"outcome"`
	SentenceCount int               `json:"sentence_count"`
	TokenCount    int               `json:"token_count"`
	SegmentCount  int               `json:"segment_count"`
	Boundaries    []int32           `json:"boundaries"`
	Scorer        string            `json:"scorer,omitempty"`
	Seed          int64             `json:"seed"`
	DurationMs    int               `json:"duration_ms"`
	OutputKey     *string           `json:"output_key,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Segments      []segment.Segment `json:"segments,omitempty"`
}

// RunFromResult builds a row for res. Segments are copied so the row can
// outlive the result.
func RunFromResult(id uuid.UUID, source, name string, res segment.Result, elapsed time.Duration) *RunRow {
	// Boundaries index tokens. The encoder holds a hidden vector per token,
	// so counts near MaxInt32 (the int4[] column limit) never get this far.
	bounds := make([]int32, len(res.Boundaries))
	for i, b := range res.Boundaries {
		bounds[i] = int32(b)
	}
	return &RunRow{
		ID:            id,
		Source:        source,
		Name:          name,
		Outcome:       res.Outcome.String(),
		SentenceCount: res.Sentences,
		TokenCount:    res.Tokens,
		SegmentCount:  len(res.Segments),
		Boundaries:    bounds,
		DurationMs:    int(elapsed.Milliseconds()),
		Segments:      append([]segment.Segment(nil), res.Segments...),
	}
}

// InsertRun writes a run and its segments in one transaction.
func (db *DB) InsertRun(ctx context.Context, r *RunRow) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO segmentation_runs (
			id, source, name, outcome, sentence_count, token_count,
			segment_count, boundaries, scorer, seed, duration_ms, output_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`,
		r.ID, r.Source, r.Name, r.Outcome, r.SentenceCount, r.TokenCount,
		r.SegmentCount, r.Boundaries, r.Scorer, r.Seed, r.DurationMs, r.OutputKey,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(r.Segments) > 0 {
		rows := make([][]any, len(r.Segments))
		for i, s := range r.Segments {
			rows[i] = []any{r.ID, i, s.StartTime, s.EndTime, s.Text}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"segments"},
			[]string{"run_id", "position", "start_time", "end_time", "text"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("insert segments: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const runColumns = `id, source, name, outcome, sentence_count, token_count,
	segment_count, boundaries, scorer, seed, duration_ms, output_key, created_at`

func scanRun(row pgx.Row) (*RunRow, error) {
	var r RunRow
	err := row.Scan(
		&r.ID, &r.Source, &r.Name, &r.Outcome, &r.SentenceCount, &r.TokenCount,
		&r.SegmentCount, &r.Boundaries, &r.Scorer, &r.Seed, &r.DurationMs, &r.OutputKey, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun returns a run with its segments in order.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*RunRow, error) {
	r, err := scanRun(db.Pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM segmentation_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT start_time, end_time, text FROM segments
		WHERE run_id = $1 ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	r.Segments = []segment.Segment{}
	for rows.Next() {
		var s segment.Segment
		if err := rows.Scan(&s.StartTime, &s.EndTime, &s.Text); err != nil {
			return nil, err
		}
		r.Segments = append(r.Segments, s)
	}
	return r, rows.Err()
}

// ListRuns returns the most recent runs without their segments.
func (db *DB) ListRuns(ctx context.Context, limit, offset int) ([]RunRow, int, error) {
	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM segmentation_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT `+runColumns+` FROM segmentation_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []RunRow{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *r)
	}
	return runs, total, rows.Err()
}
