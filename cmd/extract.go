package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/poi-extractor/internal/config"
	"github.com/sells-group/poi-extractor/internal/harvest"
	"github.com/sells-group/poi-extractor/internal/metrics"
	"github.com/sells-group/poi-extractor/internal/region"
	"github.com/sells-group/poi-extractor/internal/store"
	"github.com/sells-group/poi-extractor/pkg/places"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Harvest every place inside an area",
	Long: "Searches a bounding box, or a box around a center point, tile by tile. " +
		"When region sources are given, only tiles with a corner inside the region are searched. " +
		"Output is written even when the run stops early.",
	RunE: runExtract,
}

func init() {
	addAreaFlags(extractCmd)
	f := extractCmd.Flags()
	f.Float64("min-edge", 0, "smallest tile edge in meters")
	f.StringP("out", "o", "", "output GeoJSON path")
	f.Bool("merge", false, "keep the features already in the output file")
	f.String("store", "", "feature log driver: memory, sqlite or postgres")
	f.String("dsn", "", "feature log database URL or file")
	f.Int("max-attempts", 0, "calls per tile before it is dead-lettered (0 retries forever)")
	f.String("run-id", "", "id the run's records are logged under")
	rootCmd.AddCommand(extractCmd)
}

// addAreaFlags registers the flags that describe the search area and region.
func addAreaFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("max-lat", 0, "northern edge of the search box")
	f.Float64("max-lng", 0, "eastern edge of the search box")
	f.Float64("min-lat", 0, "southern edge of the search box")
	f.Float64("min-lng", 0, "western edge of the search box")
	f.Float64("lat", 0, "center latitude; overrides the box edges")
	f.Float64("lng", 0, "center longitude; overrides the box edges")
	f.Float64("width", 0, "box width in meters around the center")
	f.Float64("height", 0, "box height in meters around the center")
	f.Float64("edge", 0, "initial tile edge in meters")
	f.StringSlice("region", nil, "shapefile or GeoJSON sources restricting the search")
	f.String("region-field", "", "attribute selecting region polygons")
	f.String("region-value", "", "attribute value selecting region polygons")
}

func runExtract(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyExtractFlags(cmd, cfg)
	if err := cfg.Validate("extract"); err != nil {
		return err
	}

	client := places.NewClient(cfg.Places.APIKey,
		places.WithBaseURL(cfg.Places.BaseURL),
		places.WithMaxPages(cfg.Places.MaxPages),
		places.WithPageTokenDelay(time.Duration(cfg.Places.PageTokenDelayMs)*time.Millisecond),
		places.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Places.TimeoutSecs) * time.Second}),
	)
	runID, _ := cmd.Flags().GetString("run-id")

	summary, err := extract(ctx, cfg, client, runID)
	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil && err == nil {
			err = eris.Wrap(encErr, "extract: print summary")
		}
	}
	return err
}

// applyExtractFlags copies explicitly set flags over the loaded config.
// Flags the command does not define are skipped.
func applyExtractFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	setPtr := func(name string, dst **float64) {
		if f.Changed(name) {
			v, _ := f.GetFloat64(name)
			*dst = &v
		}
	}
	setFloat := func(name string, dst *float64) {
		if f.Changed(name) {
			*dst, _ = f.GetFloat64(name)
		}
	}
	setString := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}

	setPtr("max-lat", &c.Extract.MaxLat)
	setPtr("max-lng", &c.Extract.MaxLng)
	setPtr("min-lat", &c.Extract.MinLat)
	setPtr("min-lng", &c.Extract.MinLng)
	setPtr("lat", &c.Extract.Lat)
	setPtr("lng", &c.Extract.Lng)
	setFloat("width", &c.Extract.WidthMeters)
	setFloat("height", &c.Extract.HeightMeters)
	setFloat("edge", &c.Extract.EdgeMeters)
	setFloat("min-edge", &c.Extract.MinEdgeMeters)
	setString("region-field", &c.Region.Field)
	setString("region-value", &c.Region.Value)
	setString("out", &c.Output.Path)
	setString("store", &c.Store.Driver)
	setString("dsn", &c.Store.DatabaseURL)
	if f.Changed("region") {
		c.Region.Paths, _ = f.GetStringSlice("region")
	}
	if f.Changed("merge") {
		c.Output.Merge, _ = f.GetBool("merge")
	}
	if f.Changed("max-attempts") {
		c.Retry.MaxAttempts, _ = f.GetInt("max-attempts")
	}
}

// extract runs one harvest and finalizes whatever it collected. When the run
// fails part way, the partial output is still written and the run error is
// returned alongside the summary.
func extract(ctx context.Context, c *config.Config, client places.Client, runID string) (*harvest.Summary, error) {
	box, err := c.Extract.ResolveBox()
	if err != nil {
		return nil, err
	}

	opts := []harvest.Option{}
	if len(c.Region.Paths) > 0 {
		reg, err := region.Load(ctx, c.Region.Paths, region.Filter{Field: c.Region.Field, Value: c.Region.Value})
		if err != nil {
			return nil, eris.Wrap(err, "extract: load region")
		}
		opts = append(opts, harvest.WithRegion(reg))
	}
	if runID != "" {
		opts = append(opts, harvest.WithRunID(runID))
	}

	log, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "extract: open feature log")
	}
	defer log.Close() //nolint:errcheck

	rec := metrics.New()
	opts = append(opts, harvest.WithMetrics(rec))

	s := harvest.New(client, log, harvestConfig(c), opts...)
	stats, runErr := s.Run(ctx, box, c.Extract.EdgeMeters)
	if runErr != nil {
		zap.L().Warn("extraction stopped early, writing partial output",
			zap.String("run_id", s.RunID()),
			zap.Int("queries", stats.Queries),
			zap.Error(runErr),
		)
	}

	// Finalize survives cancellation so an interrupted run keeps its records.
	summary, err := harvest.Finalize(context.WithoutCancel(ctx), log, stats, outputConfig(c), rec)
	if err != nil {
		if runErr != nil {
			return nil, eris.Wrapf(runErr, "extract: finalize partial run: %v", err)
		}
		return nil, eris.Wrap(err, "extract: finalize")
	}

	zap.L().Info("extraction finished",
		zap.String("run_id", summary.RunID),
		zap.Int("queries", summary.Queries),
		zap.Int("calls", summary.Calls),
		zap.Int("raw_records", summary.RawRecords),
		zap.Int("final_records", summary.FinalRecords),
		zap.Int("dead_letters", summary.DeadLetters),
		zap.Duration("elapsed", stats.FinishedAt.Sub(stats.StartedAt)),
	)

	if runErr != nil {
		return summary, eris.Wrap(runErr, "extract: run")
	}
	return summary, nil
}

func harvestConfig(c *config.Config) harvest.Config {
	return harvest.Config{
		MinEdgeMeters:  c.Extract.MinEdgeMeters,
		MaxDepth:       c.Extract.MaxDepth,
		Pace:           c.Extract.Pace(),
		Cooldown:       c.Retry.Cooldown(),
		Backoff:        c.Retry.Backoff(),
		MaxAttempts:    c.Retry.MaxAttempts,
		JitterFraction: c.Retry.Jitter,
	}
}

func outputConfig(c *config.Config) harvest.Output {
	return harvest.Output{
		Path:            c.Output.Path,
		BoxSizesPath:    c.Output.BoxSizesPath,
		DeadLettersPath: c.Output.DeadLettersPath,
		MetricsPath:     c.Output.MetricsPath,
		Merge:           c.Output.Merge,
	}
}
