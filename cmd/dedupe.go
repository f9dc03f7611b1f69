package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/poi-extractor/internal/poi"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe [input]",
	Short: "Remove repeated places from a GeoJSON output file",
	Long:  "Keeps the first feature for each place id. The input defaults to output.path and is rewritten in place unless --out is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cfg.Output.Path
		if len(args) == 1 {
			in = args[0]
			cfg.Output.Path = in
		}
		if err := cfg.Validate("dedupe"); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = in
		}

		initial, final, err := dedupeFile(in, out)
		if err != nil {
			return err
		}
		zap.L().Info("deduplicated features",
			zap.String("input", in),
			zap.String("output", out),
			zap.Int("initial", initial),
			zap.Int("final", final),
		)
		return nil
	},
}

func init() {
	dedupeCmd.Flags().StringP("out", "o", "", "write the result here instead of rewriting the input")
	rootCmd.AddCommand(dedupeCmd)
}

func dedupeFile(in, out string) (initial, final int, err error) {
	c, err := poi.ReadCollection(in)
	if err != nil {
		return 0, 0, eris.Wrap(err, "dedupe: read")
	}
	deduped := poi.Dedupe(c.Features)
	if err := poi.WriteCollection(out, poi.NewCollection(deduped)); err != nil {
		return 0, 0, eris.Wrap(err, "dedupe: write")
	}
	return len(c.Features), len(deduped), nil
}
