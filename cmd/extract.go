package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/usgs-gages/internal/db"
	"github.com/sells-group/usgs-gages/internal/featurestore"
	"github.com/sells-group/usgs-gages/internal/pipeline"
	"github.com/sells-group/usgs-gages/internal/table"
)

var (
	extractQuery     queryFlags
	extractClip      bool
	extractOverwrite bool
)

// extractSummary is printed to stdout after a successful run.
type extractSummary struct {
	Output     string `json:"output"`
	BBox       string `json:"bbox"`
	Parsed     int    `json:"parsed"`
	Inserted   int    `json:"inserted"`
	Skipped    int    `json:"skipped"`
	ClippedOut int    `json:"clipped_out"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filters, err := extractQuery.filters()
	if err != nil {
		return err
	}

	res, err := pipeline.Run(ctx, newSiteClient(), pipeline.Options{
		Extent:             args[0],
		Output:             args[1],
		Clip:               extractClip,
		Filters:            filters,
		TruncateFieldNames: cfg.Output.TruncateFieldNames,
		Sentinels: table.Sentinels{
			Numeric: cfg.Output.NumericSentinel,
			Text:    cfg.Output.TextSentinel,
		},
		Store: featurestore.Options{
			Overwrite:   extractOverwrite,
			DBFEncoding: cfg.Output.DBFEncoding,
			Pool:        db.PoolConfig{MaxConns: cfg.Postgres.MaxConns},
		},
	})
	if err != nil {
		return eris.Wrap(err, "extract gages")
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(extractSummary{
		Output:     res.Output,
		BBox:       res.BBox.String(),
		Parsed:     res.Parsed,
		Inserted:   res.Inserted,
		Skipped:    res.Skipped,
		ClippedOut: res.ClippedOut,
		ElapsedMs:  res.Elapsed.Milliseconds(),
	})
}

func init() {
	extractQuery.register(rootCmd)
	rootCmd.Flags().BoolVar(&extractClip, "clip", false, "keep only sites inside the extent polygons")
	rootCmd.Flags().BoolVar(&extractOverwrite, "overwrite", false, "replace an existing output")
}
