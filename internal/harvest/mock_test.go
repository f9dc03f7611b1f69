package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sells-group/poi-extractor/internal/geo"
	"github.com/sells-group/poi-extractor/internal/poi"
	"github.com/sells-group/poi-extractor/pkg/places"
)

// stubClient answers searches from a function of the call number (1-based)
// and the request.
type stubClient struct {
	mu      sync.Mutex
	calls   []places.NearbyRequest
	respond func(call int, req places.NearbyRequest) (*places.Outcome, error)
}

func (c *stubClient) NearbySearch(_ context.Context, req places.NearbyRequest) (*places.Outcome, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	n := len(c.calls)
	c.mu.Unlock()
	return c.respond(n, req)
}

// hitsAt returns n hits located at the request center with ids unique to the
// call.
func hitsAt(req places.NearbyRequest, call, n int) []places.Place {
	out := make([]places.Place, n)
	for i := range out {
		loc := req.Location
		out[i] = places.Place{
			PlaceID:  fmt.Sprintf("place-%d-%d", call, i),
			Types:    []string{"store"},
			Geometry: &places.Geometry{Location: &loc},
		}
	}
	return out
}

func success(req places.NearbyRequest, call, n int) *places.Outcome {
	return &places.Outcome{Kind: places.KindSuccess, Status: places.StatusOK, Places: hitsAt(req, call, n), Pages: 1}
}

func truncated(req places.NearbyRequest, call int) *places.Outcome {
	out := success(req, call, places.PageSize)
	out.Truncated = true
	return out
}

type appendCall struct {
	runID   string
	tile    geo.Tile
	records []poi.Record
}

// fakeLog is an in-memory FeatureLog that remembers each append.
type fakeLog struct {
	appends   []appendCall
	appendErr error
	readErr   error
}

func (l *fakeLog) Append(_ context.Context, runID string, tile geo.Tile, records []poi.Record) error {
	if l.appendErr != nil {
		return l.appendErr
	}
	l.appends = append(l.appends, appendCall{runID: runID, tile: tile, records: records})
	return nil
}

func (l *fakeLog) Records(_ context.Context, runID string) ([]poi.Record, error) {
	if l.readErr != nil {
		return nil, l.readErr
	}
	var out []poi.Record
	for _, a := range l.appends {
		if a.runID == runID {
			out = append(out, a.records...)
		}
	}
	return out, nil
}

// sleepRecorder stands in for real waits.
type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return ctx.Err()
}
