package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/poi-extractor/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "poi-extractor",
	Short: "Harvest points of interest from a radius-limited nearby search",
	Long: "Covers an area with square tiles, queries the nearby-search API at each tile, " +
		"subdivides tiles whose results hit the page cap and writes the deduplicated places as GeoJSON.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
