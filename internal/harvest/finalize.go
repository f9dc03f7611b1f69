package harvest

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/poi-extractor/internal/metrics"
	"github.com/sells-group/poi-extractor/internal/poi"
)

// Output names the documents written when a run is finalized. Empty paths
// other than Path are skipped.
type Output struct {
	Path            string
	BoxSizesPath    string
	DeadLettersPath string
	MetricsPath     string
	// Merge keeps the features of an existing document at Path ahead of the
	// new ones, so repeated runs accumulate into one collection.
	Merge bool
}

// Summary reports the outcome of a finalized run.
type Summary struct {
	RunID        string `json:"run_id"`
	Queries      int    `json:"queries"`
	Calls        int    `json:"calls"`
	RawRecords   int    `json:"raw_records"`
	Existing     int    `json:"existing"`
	FinalRecords int    `json:"final_records"`
	DeadLetters  int    `json:"dead_letters"`
}

// Finalize reads the run's records back from log, deduplicates them and
// writes the output documents.
func Finalize(ctx context.Context, log FeatureLog, stats *RunStats, out Output, rec *metrics.Recorder) (*Summary, error) {
	records, err := log.Records(ctx, stats.RunID)
	if err != nil {
		return nil, eris.Wrap(err, "harvest: read feature log")
	}

	var existing []poi.Record
	if out.Merge && fileExists(out.Path) {
		c, err := poi.ReadCollection(out.Path)
		if err != nil {
			return nil, eris.Wrap(err, "harvest: read existing output")
		}
		existing = c.Features
	}

	all := make([]poi.Record, 0, len(existing)+len(records))
	all = append(all, existing...)
	all = append(all, records...)
	deduped := poi.Dedupe(all)

	zap.L().Info("deduplicated features",
		zap.String("run_id", stats.RunID),
		zap.Int("initial", len(all)),
		zap.Int("final", len(deduped)),
	)

	if err := poi.WriteCollection(out.Path, poi.NewCollection(deduped)); err != nil {
		return nil, eris.Wrap(err, "harvest: write output")
	}
	if out.BoxSizesPath != "" {
		if err := poi.WriteBoxSizes(out.BoxSizesPath, stats.TileEdges); err != nil {
			return nil, eris.Wrap(err, "harvest: write box sizes")
		}
	}
	if out.DeadLettersPath != "" && len(stats.DeadLetters) > 0 {
		if err := writeDeadLetters(out.DeadLettersPath, stats.DeadLetters); err != nil {
			return nil, err
		}
	}
	if out.MetricsPath != "" {
		if err := rec.WriteTextfile(out.MetricsPath); err != nil {
			return nil, err
		}
	}

	return &Summary{
		RunID:        stats.RunID,
		Queries:      stats.Queries,
		Calls:        stats.Calls,
		RawRecords:   len(records),
		Existing:     len(existing),
		FinalRecords: len(deduped),
		DeadLetters:  len(stats.DeadLetters),
	}, nil
}

func writeDeadLetters(path string, entries []DeadLetter) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return eris.Wrap(err, "harvest: marshal dead letters")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return eris.Wrapf(err, "harvest: write dead letters %s", path)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
