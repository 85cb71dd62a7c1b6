package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/usgs-gages/internal/pipeline"
	"github.com/sells-group/usgs-gages/internal/schema"
)

var schemaQuery queryFlags

// schemaReport is the YAML document printed by the schema command.
type schemaReport struct {
	BBox    string         `yaml:"bbox"`
	Rows    int            `yaml:"rows"`
	Fields  []schema.Field `yaml:"fields"`
	Columns []columnReport `yaml:"columns"`
}

type columnReport struct {
	Name    string `yaml:"name"`
	Storage string `yaml:"storage"`
	Nulls   int    `yaml:"nulls"`
}

var schemaCmd = &cobra.Command{
	Use:   "schema <extent>",
	Short: "Print the fields an extraction would create, without writing output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		filters, err := schemaQuery.filters()
		if err != nil {
			return err
		}

		fetched, err := pipeline.Fetch(ctx, newSiteClient(), args[0], filters)
		if err != nil {
			return eris.Wrap(err, "fetch sites")
		}
		fields, err := schema.Fields(fetched.Table, cfg.Output.TruncateFieldNames)
		if err != nil {
			return err
		}

		report := schemaReport{
			BBox:   fetched.BBox.String(),
			Rows:   fetched.Table.Len(),
			Fields: fields,
		}
		for _, c := range fetched.Table.Columns() {
			report.Columns = append(report.Columns, columnReport{
				Name:    c.Name,
				Storage: c.Type.String(),
				Nulls:   c.NullCount(),
			})
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return eris.Wrap(err, "encode schema")
		}
		return enc.Close()
	},
}

func init() {
	schemaQuery.register(schemaCmd)
	rootCmd.AddCommand(schemaCmd)
}
