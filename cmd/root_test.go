package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const rdbBody = "# retrieved: 2024-03-01\n" +
	"agency_cd\tsite_no\tstation_nm\tdec_lat_va\tdec_long_va\talt_va\n" +
	"5s\t15s\t50s\t16s\t16s\t8s\n" +
	"USGS\t01646500\tPOTOMAC RIVER NEAR WASH, DC\t38.9\t-77.1\t37.2\n" +
	"USGS\t01646502\tPOTOMAC RIVER ADJ\t38.95\t-77.12\t\n" +
	"USGS\t01646600\tNO LATITUDE\t\t-77.2\t12.0\n"

const areaGeoJSON = `{"type":"Polygon","coordinates":[[[-78,38],[-76,38],[-76,40],[-78,40],[-78,38]]]}`

// env is a working directory with an extent file and a fake site service
// wired in through the environment.
type env struct {
	dir    string
	extent string
	calls  *atomic.Int32
}

func newEnv(t *testing.T) env {
	t.Helper()
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(rdbBody)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	t.Setenv("GAGES_NWIS_BASE_URL", srv.URL+"/nwis/site/")
	t.Setenv("GAGES_LOG_LEVEL", "error")

	extent := filepath.Join(dir, "area.geojson")
	require.NoError(t, os.WriteFile(extent, []byte(areaGeoJSON), 0o644))
	return env{dir: dir, extent: extent, calls: calls}
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	resetFlags(schemaCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "usgs-gages <extent> <output>", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["schema"], "expected subcommand schema")
}

func TestRootCommand_Flags(t *testing.T) {
	for _, name := range []string{"clip", "overwrite", "site-status", "period", "modified-since", "start-dt", "end-dt"} {
		assert.NotNil(t, rootCmd.Flags().Lookup(name), "root should have --%s", name)
	}
	assert.Equal(t, "all", rootCmd.Flags().Lookup("site-status").DefValue)
	assert.Equal(t, "false", rootCmd.Flags().Lookup("clip").DefValue)

	for _, name := range []string{"site-status", "period", "modified-since", "start-dt", "end-dt"} {
		assert.NotNil(t, schemaCmd.Flags().Lookup(name), "schema should have --%s", name)
	}
	assert.Nil(t, schemaCmd.Flags().Lookup("clip"))
}

func TestExtract(t *testing.T) {
	e := newEnv(t)
	output := filepath.Join(e.dir, "gages.geojson")

	out, err := execute(t, e.extent, output, "--site-status", "active")
	require.NoError(t, err)
	assert.Equal(t, int32(1), e.calls.Load())
	assert.FileExists(t, output)

	var summary extractSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, output, summary.Output)
	assert.Equal(t, "-78.0000000,38.0000000,-76.0000000,40.0000000", summary.BBox)
	assert.Equal(t, 2, summary.Parsed)
	assert.Equal(t, 2, summary.Inserted)
	assert.Zero(t, summary.Skipped)
}

func TestExtract_Clip(t *testing.T) {
	e := newEnv(t)
	output := filepath.Join(e.dir, "gages.gpkg")

	out, err := execute(t, e.extent, output, "--clip")
	require.NoError(t, err)

	var summary extractSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.Inserted)
	assert.Zero(t, summary.ClippedOut)
}

func TestExtract_UsageErrorsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name string
		args func(e env) []string
		want string
	}{
		{
			name: "period with start date",
			args: func(e env) []string {
				return []string{e.extent, filepath.Join(e.dir, "a.geojson"), "--period", "P7D", "--start-dt", "2020-01-01"}
			},
			want: "cannot be combined",
		},
		{
			name: "modified since with end date",
			args: func(e env) []string {
				return []string{e.extent, filepath.Join(e.dir, "a.geojson"), "--modified-since", "PT12H", "--end-dt", "2020-01-01"}
			},
			want: "cannot be combined",
		},
		{
			name: "bad site status",
			args: func(e env) []string {
				return []string{e.extent, filepath.Join(e.dir, "a.geojson"), "--site-status", "dormant"}
			},
			want: "dormant",
		},
		{
			name: "bad date",
			args: func(e env) []string {
				return []string{e.extent, filepath.Join(e.dir, "a.geojson"), "--start-dt", "01/02/2020"}
			},
			want: "--start-dt",
		},
		{
			name: "bad duration",
			args: func(e env) []string {
				return []string{e.extent, filepath.Join(e.dir, "a.geojson"), "--period", "P1M"}
			},
			want: "invalid duration",
		},
		{
			name: "one argument",
			args: func(e env) []string { return []string{e.extent} },
			want: "accepts 2 arg(s)",
		},
		{
			name: "unsupported output",
			args: func(e env) []string { return []string{e.extent, filepath.Join(e.dir, "gages.kml")} },
			want: "unsupported output",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			_, err := execute(t, tt.args(e)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Zero(t, e.calls.Load())
		})
	}
}

func TestExtract_Overwrite(t *testing.T) {
	e := newEnv(t)
	output := filepath.Join(e.dir, "gages.geojson")
	require.NoError(t, os.WriteFile(output, []byte("{}"), 0o644))

	_, err := execute(t, e.extent, output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.Zero(t, e.calls.Load())

	_, err = execute(t, e.extent, output, "--overwrite")
	require.NoError(t, err)
	assert.Equal(t, int32(1), e.calls.Load())
}

func TestExtract_InvalidConfig(t *testing.T) {
	e := newEnv(t)
	t.Setenv("GAGES_NWIS_MAX_RETRIES", "0")

	_, err := execute(t, e.extent, filepath.Join(e.dir, "gages.geojson"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nwis.max_retries")
	assert.Zero(t, e.calls.Load())
}

func TestSchemaCommand(t *testing.T) {
	e := newEnv(t)

	out, err := execute(t, "schema", e.extent, "--period", "P30D")
	require.NoError(t, err)
	assert.Equal(t, int32(1), e.calls.Load())

	var report schemaReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, "-78.0000000,38.0000000,-76.0000000,40.0000000", report.BBox)
	require.Len(t, report.Fields, 6)
	assert.Equal(t, "site_no", report.Fields[1].Name)
	assert.Equal(t, "TEXT", string(report.Fields[1].Type))
	assert.Equal(t, "dec_long_v", report.Fields[4].Name)
	assert.Equal(t, "DOUBLE", string(report.Fields[5].Type))

	require.Len(t, report.Columns, 6)
	assert.Equal(t, columnReport{Name: "alt_va", Storage: "float64", Nulls: 1}, report.Columns[5])
}

func TestSchemaCommand_UsageError(t *testing.T) {
	e := newEnv(t)

	_, err := execute(t, "schema", e.extent, "--period", "P7D", "--start-dt", "2020-01-01")
	require.Error(t, err)
	assert.Zero(t, e.calls.Load())
}
