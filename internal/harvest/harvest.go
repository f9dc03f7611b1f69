// Package harvest walks a region with radius-limited nearby searches. Tiles
// whose result count hits the API cap are split in four and searched again
// until every tile fits under the cap or reaches the minimum edge.
package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/poi-extractor/internal/geo"
	"github.com/sells-group/poi-extractor/internal/metrics"
	"github.com/sells-group/poi-extractor/internal/poi"
	"github.com/sells-group/poi-extractor/internal/region"
	"github.com/sells-group/poi-extractor/internal/resilience"
	"github.com/sells-group/poi-extractor/pkg/places"
)

const (
	defaultMinEdge  = 2.5
	defaultMaxDepth = 32
	defaultCooldown = 15 * time.Minute
	defaultBackoff  = time.Second
)

// FeatureLog receives each resolved tile's records and returns them all when
// the run is finalized.
type FeatureLog interface {
	Append(ctx context.Context, runID string, tile geo.Tile, records []poi.Record) error
	Records(ctx context.Context, runID string) ([]poi.Record, error)
}

// Config tunes a Subdivider.
type Config struct {
	// MinEdgeMeters is the floor: a truncated tile is split only while half
	// its edge is at least this long.
	MinEdgeMeters float64
	// MaxDepth caps the number of nested splits.
	MaxDepth int
	// Pace is the minimum spacing between search calls. Zero disables pacing.
	Pace time.Duration
	// Cooldown is the wait after a rate-limited response.
	Cooldown time.Duration
	// Backoff is the wait after a transient failure.
	Backoff time.Duration
	// JitterFraction spreads each backoff by up to this fraction either way.
	// Zero keeps the backoff fixed.
	JitterFraction float64
	// MaxAttempts bounds the calls made for one tile. Zero retries forever.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.MinEdgeMeters <= 0 {
		c.MinEdgeMeters = defaultMinEdge
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = defaultMaxDepth
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	}
	return c
}

// Option configures a Subdivider.
type Option func(*Subdivider)

// WithRegion restricts the search to tiles with a corner inside r.
func WithRegion(r *region.Region) Option {
	return func(s *Subdivider) {
		s.region = r
	}
}

// WithMetrics records run metrics on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Subdivider) {
		s.metrics = rec
	}
}

// WithClock overrides the clock used for extraction dates.
func WithClock(now func() time.Time) Option {
	return func(s *Subdivider) {
		s.now = now
	}
}

// WithSleep overrides how retry waits are slept.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Subdivider) {
		s.sleep = sleep
	}
}

// WithRunID sets the id records are logged under. A random UUID is used
// otherwise.
func WithRunID(id string) Option {
	return func(s *Subdivider) {
		s.runID = id
	}
}

// Subdivider runs the adaptive search. It is not safe for concurrent use;
// the search service is rate limited, so tiles are processed one at a time.
type Subdivider struct {
	client  places.Client
	log     FeatureLog
	cfg     Config
	region  *region.Region
	metrics *metrics.Recorder
	limiter *rate.Limiter
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	runID   string
}

// New creates a Subdivider that searches with client and appends records to log.
func New(client places.Client, log FeatureLog, cfg Config, opts ...Option) *Subdivider {
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.Pace > 0 {
		limit = rate.Every(cfg.Pace)
	}

	s := &Subdivider{
		client:  client,
		log:     log,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.runID == "" {
		s.runID = uuid.New().String()
	}
	return s
}

// RunID returns the id records are logged under.
func (s *Subdivider) RunID() string {
	return s.runID
}

// pending is a tile waiting to be searched, with its position among the
// tiles of its tessellation for progress reporting.
type pending struct {
	tile  geo.Tile
	index int
	total int
}

// Run searches box, starting with tiles of edgeMeters. The returned stats are
// valid even when an error is returned and describe the work done so far.
func (s *Subdivider) Run(ctx context.Context, box geo.BoundingBox, edgeMeters float64) (*RunStats, error) {
	stats := &RunStats{RunID: s.runID, StartedAt: s.now()}
	defer func() { stats.FinishedAt = s.now() }()

	log := zap.L().With(zap.String("run_id", s.runID))

	if edgeMeters < s.cfg.MinEdgeMeters {
		return stats, eris.Errorf("harvest: initial edge %gm is below the %gm floor", edgeMeters, s.cfg.MinEdgeMeters)
	}

	stack, err := s.split(box, edgeMeters, 0, nil)
	if err != nil {
		return stats, err
	}
	log.Info("starting extraction",
		zap.Stringer("box", box),
		zap.Float64("edge_m", edgeMeters),
		zap.Int("tiles", len(stack)),
	)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t := p.tile

		progress := log.Debug
		if t.Depth == 0 {
			progress = log.Info
		}
		progress("processing query",
			zap.Int("query", p.index),
			zap.Int("total", p.total),
			zap.Int("depth", t.Depth),
			zap.Float64("edge_m", t.EdgeMeters),
			zap.String("tile", t.Key()),
		)

		stats.Queries++
		if t.Depth > stats.MaxDepth {
			stats.MaxDepth = t.Depth
		}

		out, err := s.search(ctx, stats, t)
		if err != nil {
			var exhausted *resilience.ExhaustedError
			if errors.As(err, &exhausted) {
				s.deadLetter(stats, t, exhausted)
				continue
			}
			return stats, err
		}

		switch {
		case out.Kind == places.KindEmpty && len(out.Places) == 0:
			s.resolve(stats, t)

		case out.Kind == places.KindSuccess && !out.Truncated:
			s.resolve(stats, t)
			if err := s.emit(ctx, stats, t, out.Places); err != nil {
				return stats, err
			}

		case out.Kind == places.KindSuccess && t.EdgeMeters/2 >= s.cfg.MinEdgeMeters:
			// Truncated: the partial results are recovered by the children.
			if t.Depth+1 > s.cfg.MaxDepth {
				return stats, eris.Wrapf(ErrDepthExceeded, "tile %s at depth %d", t.Key(), t.Depth)
			}
			stack, err = s.split(t.BoundingBox, t.EdgeMeters/2, t.Depth+1, stack)
			if err != nil {
				return stats, err
			}

		case out.Kind == places.KindSuccess:
			// Truncated at the floor; accept what the API returned.
			log.Debug("accepting truncated tile at floor",
				zap.String("tile", t.Key()),
				zap.Float64("edge_m", t.EdgeMeters),
				zap.Int("results", len(out.Places)),
			)
			s.resolve(stats, t)
			if err := s.emit(ctx, stats, t, out.Places); err != nil {
				return stats, err
			}

		default:
			return stats, &UnexpectedOutcomeError{Tile: t, Outcome: *out}
		}
	}

	log.Info("extraction complete",
		zap.Int("queries", stats.Queries),
		zap.Int("calls", stats.Calls),
		zap.Int("raw_records", stats.RawRecords),
		zap.Int("dead_letters", len(stats.DeadLetters)),
	)
	return stats, nil
}

// split tessellates box at edge, drops tiles outside the region and pushes
// the survivors onto stack so that they pop in row-major order.
func (s *Subdivider) split(box geo.BoundingBox, edge float64, depth int, stack []pending) ([]pending, error) {
	tiles, err := geo.Tessellate(box, edge)
	if err != nil {
		return stack, eris.Wrap(err, "harvest: tessellate")
	}
	tiles = region.FilterToRegion(tiles, s.region)

	for i := len(tiles) - 1; i >= 0; i-- {
		tiles[i].Depth = depth
		stack = append(stack, pending{tile: tiles[i], index: i + 1, total: len(tiles)})
	}
	return stack, nil
}

// search queries one tile, waiting out rate limits and transient failures.
func (s *Subdivider) search(ctx context.Context, stats *RunStats, t geo.Tile) (*places.Outcome, error) {
	center := t.Centroid()
	req := places.NearbyRequest{
		Location:     places.LatLng{Lat: center.Lat, Lng: center.Lng},
		RadiusMeters: geo.EnclosingRadius(t.BoundingBox, center),
	}

	backoffMs := int(s.cfg.Backoff / time.Millisecond)
	retry := resilience.FromRetryConfig(s.cfg.MaxAttempts, backoffMs, backoffMs, 1, s.cfg.JitterFraction)
	retry.ShouldRetry = retryable
	retry.DelayFor = func(err error) (time.Duration, bool) {
		if resilience.IsRateLimited(err) {
			return s.cfg.Cooldown, true
		}
		return 0, false
	}
	retry.Sleep = s.sleep
	logRetry := resilience.RetryLogger("places", "nearby_search",
		zap.String("run_id", s.runID),
		zap.String("tile", t.Key()),
	)
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.metrics.Pause(resilience.ClassifyError(err), delay)
		logRetry(attempt, err, delay)
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*places.Outcome, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "harvest: pace wait")
		}

		out, err := s.client.NearbySearch(ctx, req)
		pages := 1
		if out != nil && out.Pages > 1 {
			pages = out.Pages
		}
		stats.Calls += pages
		s.metrics.Calls(pages)
		if err != nil {
			return nil, eris.Wrapf(err, "harvest: search tile %s", t.Key())
		}
		s.metrics.Outcome(out.Kind.String())

		switch out.Kind {
		case places.KindRateLimited:
			return nil, resilience.NewRateLimitError(
				eris.Errorf("harvest: tile %s rate limited (status %s)", t.Key(), out.Status))
		case places.KindTransientError:
			cause := out.Err
			if cause == nil {
				cause = eris.Errorf("status %s", out.Status)
			}
			return nil, resilience.NewTransientError(
				eris.Wrapf(cause, "harvest: tile %s transient failure", t.Key()), 0)
		}
		return out, nil
	})
}

func retryable(err error) bool {
	var te *resilience.TransientError
	return resilience.IsRateLimited(err) || errors.As(err, &te)
}

func (s *Subdivider) resolve(stats *RunStats, t geo.Tile) {
	stats.resolve(t.EdgeMeters)
	s.metrics.FinalEdge(t.EdgeMeters)
}

// emit builds records from the hits inside t and appends them to the log.
func (s *Subdivider) emit(ctx context.Context, stats *RunStats, t geo.Tile, hits []places.Place) error {
	now := s.now()
	records := make([]poi.Record, 0, len(hits))
	for _, hit := range hits {
		if loc, ok := hit.Location(); ok && !geo.Contains(t.BoundingBox, loc.Lat, loc.Lng) {
			stats.DroppedHits++
			s.metrics.DroppedHit("outside_tile")
			continue
		}
		rec, err := poi.Build(hit, now)
		if err != nil {
			stats.MalformedHits++
			s.metrics.DroppedHit("malformed")
			zap.L().Debug("dropping malformed hit", zap.String("tile", t.Key()), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}

	if err := s.log.Append(ctx, s.runID, t, records); err != nil {
		return eris.Wrapf(err, "harvest: append records for tile %s", t.Key())
	}
	stats.RawRecords += len(records)
	s.metrics.Records(len(records))
	return nil
}

func (s *Subdivider) deadLetter(stats *RunStats, t geo.Tile, exhausted *resilience.ExhaustedError) {
	dl := DeadLetter{
		ID:        uuid.New().String(),
		RunID:     s.runID,
		Tile:      t,
		Error:     exhausted.Err.Error(),
		ErrorType: resilience.ClassifyError(exhausted.Err),
		Attempts:  exhausted.Attempts,
		CreatedAt: s.now(),
	}
	stats.DeadLetters = append(stats.DeadLetters, dl)
	s.metrics.DeadLetter()
	zap.L().Error("abandoning tile after retries",
		zap.String("run_id", s.runID),
		zap.String("tile", t.Key()),
		zap.Stringer("box", t.BoundingBox),
		zap.Int("attempts", exhausted.Attempts),
		zap.Error(exhausted.Err),
	)
}
