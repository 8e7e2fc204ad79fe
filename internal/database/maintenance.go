package database

import (
	"context"
	"time"
)

// PurgeRunsOlderThan deletes runs (and their segments, by cascade) created
// before now minus retention.
func (db *DB) PurgeRunsOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM segmentation_runs WHERE created_at < now() - $1::interval`,
		retention.String(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RunRetention purges expired runs once per interval until ctx is done.
func (db *DB) RunRetention(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeRunsOlderThan(ctx, retention)
			if err != nil {
				db.log.Warn().Err(err).Msg("run retention purge failed")
				continue
			}
			if n > 0 {
				db.log.Info().Int64("deleted", n).Dur("retention", retention).Msg("purged old segmentation runs")
			}
		}
	}
}
