package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/transcript-segmenter/internal/config"
)

// Store abstracts where segmented transcripts are written and read back.
type Store interface {
	// Save stores data under key, e.g. "2026-10-19/meeting.segments.txt".
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns a reader for a stored object.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) bool

	// Type returns "local" or "s3".
	Type() string
}

// New creates a Store based on config. Returns an error if S3 is configured
// but unreachable.
func New(cfg config.S3Config, outputDir string, log zerolog.Logger) (Store, error) {
	if !cfg.Enabled() {
		return NewLocalStore(outputDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return s3store, nil
}

// OutputKey returns the key for the segmented form of a transcript named
// name, grouped by the day it was produced.
func OutputKey(name string, at time.Time) string {
	return at.UTC().Format("2006-01-02") + "/" + name + ".segments.txt"
}
