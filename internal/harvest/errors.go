package harvest

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/poi-extractor/internal/geo"
	"github.com/sells-group/poi-extractor/pkg/places"
)

// ErrDepthExceeded is returned when subdivision would go deeper than the
// configured maximum depth.
var ErrDepthExceeded = eris.New("harvest: max subdivision depth exceeded")

// UnexpectedOutcomeError reports a search outcome the subdivider has no branch
// for. It aborts the run.
type UnexpectedOutcomeError struct {
	Tile    geo.Tile
	Outcome places.Outcome
}

func (e *UnexpectedOutcomeError) Error() string {
	return fmt.Sprintf("harvest: unexpected outcome for tile %s (edge %gm): kind=%s status=%q results=%d truncated=%t",
		e.Tile.Key(), e.Tile.EdgeMeters, e.Outcome.Kind, e.Outcome.Status, len(e.Outcome.Places), e.Outcome.Truncated)
}

// DeadLetter is a tile abandoned after its retries ran out. Re-running the
// extraction over the tile's box recovers it.
type DeadLetter struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Tile      geo.Tile  `json:"tile"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"` // "rate_limited" or "transient"
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}
