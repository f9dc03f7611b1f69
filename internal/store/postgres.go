package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/poi-extractor/internal/db"
	"github.com/sells-group/poi-extractor/internal/geo"
	"github.com/sells-group/poi-extractor/internal/poi"
	"github.com/sells-group/poi-extractor/internal/resilience"
)

// PostgresLog implements FeatureLog using pgxpool.
type PostgresLog struct {
	pool db.Pool
	// sleep waits between migration attempts; nil uses a real timer.
	sleep func(ctx context.Context, d time.Duration) error
}

var featureLogColumns = []string{"run_id", "tile_key", "tile_edge", "place_id", "record"}

// NewPostgres creates a PostgresLog with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresLog, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	// One writer; a small pool is plenty.
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresLog{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS feature_log (
	seq        BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL,
	tile_key   TEXT NOT NULL,
	tile_edge  DOUBLE PRECISION NOT NULL,
	place_id   TEXT NOT NULL,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_feature_log_run_id ON feature_log(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_feature_log_place_id ON feature_log(place_id);
`

// Migrate creates the feature_log table. Connection failures right after
// the pool comes up are retried.
func (s *PostgresLog) Migrate(ctx context.Context) error {
	retry := resilience.DefaultRetryConfig()
	retry.Sleep = s.sleep
	retry.OnRetry = resilience.RetryLogger("postgres", "migrate")

	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, postgresMigration)
		return err
	})
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresLog) Close() error {
	s.pool.Close()
	return nil
}

// Append copies a tile's records into feature_log.
func (s *PostgresLog) Append(ctx context.Context, runID string, tile geo.Tile, records []poi.Record) error {
	key := tile.Key()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal record %s", r.ID)
		}
		rows = append(rows, []any{runID, key, tile.EdgeMeters, r.ID, data})
	}

	if _, err := db.CopyFrom(ctx, s.pool, "feature_log", featureLogColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: append tile %s", key)
	}
	return nil
}

// Records reads the run's log in append order.
func (s *PostgresLog) Records(ctx context.Context, runID string) ([]poi.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM feature_log WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query records for run %s", runID)
	}
	defer rows.Close()

	var out []poi.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var r poi.Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate records")
}
