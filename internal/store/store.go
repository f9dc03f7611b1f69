// Package store persists the append-only feature log of a harvest run. Each
// resolved tile appends its records once; the log is read back in append
// order when the run is finalized and deduplicated.
package store

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/poi-extractor/internal/geo"
	"github.com/sells-group/poi-extractor/internal/poi"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// FeatureLog is an append-only record log keyed by run id.
type FeatureLog interface {
	Append(ctx context.Context, runID string, tile geo.Tile, records []poi.Record) error
	Records(ctx context.Context, runID string) ([]poi.Record, error)
	Close() error
}

// Open creates the feature log for driver and runs its migrations.
func Open(ctx context.Context, driver, dsn string) (FeatureLog, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck,gosec
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck,gosec
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// MemoryLog keeps the log in process memory.
type MemoryLog struct {
	mu   sync.Mutex
	runs map[string][]poi.Record
}

// NewMemory creates an empty in-memory log.
func NewMemory() *MemoryLog {
	return &MemoryLog{runs: make(map[string][]poi.Record)}
}

// Append adds records to the run's log.
func (m *MemoryLog) Append(_ context.Context, runID string, _ geo.Tile, records []poi.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = append(m.runs[runID], records...)
	return nil
}

// Records returns a copy of the run's log in append order.
func (m *MemoryLog) Records(_ context.Context, runID string) ([]poi.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]poi.Record, len(m.runs[runID]))
	copy(out, m.runs[runID])
	return out, nil
}

// Close is a no-op.
func (m *MemoryLog) Close() error { return nil }
