package harvest

import (
	"time"
)

// RunStats is the state accumulated over one run.
type RunStats struct {
	RunID string `json:"run_id"`
	// Queries counts tiles queried; a tile retried several times counts once.
	Queries int `json:"queries"`
	// Calls counts search requests, retries and follow-up pages included.
	Calls int `json:"calls"`
	// TileEdges lists the edge of every tile that resolved, in order.
	TileEdges     []float64    `json:"tile_edges"`
	RawRecords    int          `json:"raw_records"`
	DroppedHits   int          `json:"dropped_hits"`
	MalformedHits int          `json:"malformed_hits"`
	MaxDepth      int          `json:"max_depth"`
	DeadLetters   []DeadLetter `json:"dead_letters,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
}

func (s *RunStats) resolve(edge float64) {
	s.TileEdges = append(s.TileEdges, edge)
}
