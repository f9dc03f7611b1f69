package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/poi-extractor/internal/config"
	"github.com/sells-group/poi-extractor/internal/geo"
	"github.com/sells-group/poi-extractor/internal/region"
)

var regionCmd = &cobra.Command{
	Use:   "region",
	Short: "Inspect region sources",
}

var regionCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Count the starting tiles a region keeps without calling the API",
	Long: "Loads the region sources, tessellates the search box at the initial edge and reports how many " +
		"tiles have a corner inside the region. The box defaults to the region's envelope.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyExtractFlags(cmd, cfg)
		if err := cfg.Validate("region"); err != nil {
			return err
		}

		report, err := checkRegion(ctx, cfg)
		if err != nil {
			return err
		}

		zap.L().Info("region checked",
			zap.Int("polygons", report.Polygons),
			zap.Int("tiles", report.Tiles),
			zap.Int("kept", report.Kept),
		)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	addAreaFlags(regionCheckCmd)
	regionCmd.AddCommand(regionCheckCmd)
	rootCmd.AddCommand(regionCmd)
}

// RegionReport describes how a region prunes the starting tessellation.
type RegionReport struct {
	Polygons int             `json:"polygons"`
	Box      geo.BoundingBox `json:"box"`
	Edge     float64         `json:"edge_m"`
	Tiles    int             `json:"tiles"`
	Kept     int             `json:"kept"`
}

func checkRegion(ctx context.Context, c *config.Config) (*RegionReport, error) {
	reg, err := region.Load(ctx, c.Region.Paths, region.Filter{Field: c.Region.Field, Value: c.Region.Value})
	if err != nil {
		return nil, eris.Wrap(err, "region check: load")
	}

	box, _ := reg.Bound()
	if areaGiven(c.Extract) {
		if box, err = c.Extract.ResolveBox(); err != nil {
			return nil, err
		}
	}

	tiles, err := geo.Tessellate(box, c.Extract.EdgeMeters)
	if err != nil {
		return nil, eris.Wrap(err, "region check: tessellate")
	}
	kept := region.FilterToRegion(tiles, reg)

	return &RegionReport{
		Polygons: reg.Len(),
		Box:      box,
		Edge:     c.Extract.EdgeMeters,
		Tiles:    len(tiles),
		Kept:     len(kept),
	}, nil
}

func areaGiven(e config.ExtractConfig) bool {
	for _, p := range []*float64{e.MaxLat, e.MaxLng, e.MinLat, e.MinLng, e.Lat, e.Lng} {
		if p != nil {
			return true
		}
	}
	return false
}
