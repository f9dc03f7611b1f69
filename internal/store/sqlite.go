package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/poi-extractor/internal/geo"
	"github.com/sells-group/poi-extractor/internal/poi"
)

// SQLiteLog implements FeatureLog using modernc.org/sqlite.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck,gosec
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteLog{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS feature_log (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	tile_key   TEXT NOT NULL,
	tile_edge  REAL NOT NULL,
	place_id   TEXT NOT NULL,
	record     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_feature_log_run_id ON feature_log(run_id, seq);
`

// Migrate creates the feature_log table.
func (s *SQLiteLog) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteLog) Close() error {
	return s.db.Close()
}

// Append writes a tile's records in one transaction.
func (s *SQLiteLog) Append(ctx context.Context, runID string, tile geo.Tile, records []poi.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO feature_log (run_id, tile_key, tile_edge, place_id, record, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare append")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	key := tile.Key()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal record %s", r.ID)
		}
		if _, err := stmt.ExecContext(ctx, runID, key, tile.EdgeMeters, r.ID, string(data), now); err != nil {
			return eris.Wrapf(err, "sqlite: insert record %s", r.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

// Records reads the run's log in append order.
func (s *SQLiteLog) Records(ctx context.Context, runID string) ([]poi.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM feature_log WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query records for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []poi.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var r poi.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate records")
}
