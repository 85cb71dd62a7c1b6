// Package pipeline runs a gage extraction: resolve the extent, query the
// site service, parse the response and write the point features.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/usgs-gages/internal/extent"
	"github.com/sells-group/usgs-gages/internal/featurestore"
	"github.com/sells-group/usgs-gages/internal/nwis"
	"github.com/sells-group/usgs-gages/internal/rdb"
	"github.com/sells-group/usgs-gages/internal/schema"
	"github.com/sells-group/usgs-gages/internal/table"
)

// SiteService returns the raw RDB body for a query. *nwis.Client
// implements it.
type SiteService interface {
	Sites(ctx context.Context, q nwis.Query) ([]byte, error)
}

// Options describe one run.
type Options struct {
	Extent  string
	Output  string
	Clip    bool
	Filters nwis.Filters

	// TruncateFieldNames cuts field names to schema.MaxFieldNameLen.
	TruncateFieldNames bool

	// Sentinels replace missing values when the output cannot store nulls.
	Sentinels table.Sentinels

	Store featurestore.Options
}

// Result summarizes a run.
type Result struct {
	Output     string
	BBox       nwis.BBox
	Fields     []schema.Field
	Parsed     int
	Inserted   int
	Skipped    int
	ClippedOut int
	Elapsed    time.Duration
}

// Fetched is a parsed site service response together with the extent that
// bounded the query.
type Fetched struct {
	Extent *extent.Dataset
	BBox   nwis.BBox
	Table  *table.Table
}

// Fetch validates filters, resolves the extent and returns the parsed
// response without writing anything.
func Fetch(ctx context.Context, sites SiteService, extentPath string, filters nwis.Filters) (*Fetched, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	ds, bbox, err := resolveExtent(extentPath)
	if err != nil {
		return nil, err
	}
	tbl, err := fetchTable(ctx, sites, nwis.NewQuery(bbox, filters))
	if err != nil {
		return nil, err
	}
	return &Fetched{Extent: ds, BBox: bbox, Table: tbl}, nil
}

// Run performs the whole extraction. Usage and output errors are reported
// before the site service is called. Features the output rejects are logged
// and counted in Result.Skipped; every other failure aborts the run and
// discards the partial output.
func Run(ctx context.Context, sites SiteService, opts Options) (res *Result, err error) {
	start := time.Now()
	log := zap.L().With(zap.String("component", "pipeline"))

	if err := opts.Filters.Validate(); err != nil {
		return nil, err
	}
	ds, bbox, err := resolveExtent(opts.Extent)
	if err != nil {
		return nil, err
	}
	if opts.Clip && !ds.HasPolygons() {
		return nil, eris.Wrapf(extent.ErrNoPolygons, "pipeline: clip to %s", opts.Extent)
	}

	dest, err := featurestore.Open(ctx, opts.Output, opts.Store)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if aerr := dest.Abort(); aerr != nil {
				log.Warn("discarding partial output failed", zap.String("output", dest.Name()), zap.Error(aerr))
			}
			return
		}
		if cerr := dest.Close(); cerr != nil {
			err = eris.Wrap(cerr, "pipeline: close output")
		}
	}()

	tbl, err := fetchTable(ctx, sites, nwis.NewQuery(bbox, opts.Filters))
	if err != nil {
		return nil, err
	}

	fields, err := schema.Fields(tbl, opts.TruncateFieldNames)
	if err != nil {
		return nil, err
	}
	log.Debug("derived output fields", zap.Strings("fields", schema.Names(fields)))
	if !dest.SupportsNull() {
		log.Debug("output has no nulls, substituting sentinels",
			zap.String("output", dest.Name()),
			zap.Int("nulls", tbl.NullCount()),
		)
		tbl = table.Normalize(tbl, opts.Sentinels)
	}
	features, err := toFeatures(tbl)
	if err != nil {
		return nil, err
	}

	res = &Result{
		Output: dest.Name(),
		BBox:   bbox,
		Fields: fields,
		Parsed: len(features),
	}

	if opts.Clip {
		staged := featurestore.NewMemory()
		if err := write(ctx, staged, fields, features, res); err != nil {
			return nil, err
		}
		log.Info("staged features for clip",
			zap.String("store", staged.Name()),
			zap.Int("features", len(staged.Features())),
		)
		inside, err := clip(ds, staged.Features(), res)
		if err != nil {
			return nil, err
		}
		res.Inserted = 0
		if err := write(ctx, dest, fields, inside, res); err != nil {
			return nil, err
		}
	} else if err := write(ctx, dest, fields, features, res); err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(start)
	log.Info("gages written",
		zap.String("output", res.Output),
		zap.Int("parsed", res.Parsed),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("clipped_out", res.ClippedOut),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// resolveExtent opens the extent dataset and returns its WGS-84 bounding box.
func resolveExtent(path string) (*extent.Dataset, nwis.BBox, error) {
	ds, err := extent.Open(path)
	if err != nil {
		return nil, nwis.BBox{}, err
	}
	ll, ur, err := ds.WGS84Corners()
	if err != nil {
		return nil, nwis.BBox{}, err
	}
	bbox := nwis.BBox{West: ll[0], South: ll[1], East: ur[0], North: ur[1]}
	zap.L().Debug("resolved extent",
		zap.String("component", "pipeline"),
		zap.String("path", path),
		zap.String("bbox", bbox.String()),
	)
	return ds, bbox, nil
}

func fetchTable(ctx context.Context, sites SiteService, q nwis.Query) (*table.Table, error) {
	body, err := sites.Sites(ctx, q)
	if err != nil {
		return nil, err
	}
	tbl, err := rdb.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: parse site service response")
	}
	return tbl, nil
}

// toFeatures pairs every row with its point. Rows are keyed by site_no when
// the response has one.
func toFeatures(tbl *table.Table) ([]featurestore.Feature, error) {
	lat, ok := tbl.Column(rdb.Latitude)
	if !ok {
		return nil, eris.Errorf("pipeline: response has no %s column", rdb.Latitude)
	}
	lon, ok := tbl.Column(rdb.Longitude)
	if !ok {
		return nil, eris.Errorf("pipeline: response has no %s column", rdb.Longitude)
	}
	site, hasSite := tbl.Column(rdb.SiteNo)

	features := make([]featurestore.Feature, tbl.Len())
	for i := range features {
		key := fmt.Sprintf("row %d", i+1)
		if hasSite && !site.IsNull(i) {
			key = fmt.Sprint(site.Value(i))
		}
		features[i] = featurestore.Feature{
			Key:   key,
			Attrs: tbl.Row(i),
			Lon:   rdb.Coordinate(lon, i),
			Lat:   rdb.Coordinate(lat, i),
		}
	}
	return features, nil
}

// write creates the fields on dest and inserts features, counting inserted
// and rejected rows in res.
func write(ctx context.Context, dest featurestore.Destination, fields []schema.Field, features []featurestore.Feature, res *Result) error {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("output", dest.Name()))
	if err := dest.Create(ctx, fields); err != nil {
		return eris.Wrapf(err, "pipeline: create %s", dest.Name())
	}
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: write features")
		}
		if err := dest.Insert(ctx, f); err != nil {
			log.Warn("skipping feature", zap.String("site_no", f.Key), zap.Error(err))
			res.Skipped++
			continue
		}
		res.Inserted++
	}
	return nil
}

// clip keeps the features that fall inside the extent polygons.
func clip(ds *extent.Dataset, features []featurestore.Feature, res *Result) ([]featurestore.Feature, error) {
	inside := make([]featurestore.Feature, 0, len(features))
	for _, f := range features {
		in, err := ds.Contains(f.Lon, f.Lat)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: clip feature %s", f.Key)
		}
		if !in {
			res.ClippedOut++
			continue
		}
		inside = append(inside, f)
	}
	return inside, nil
}
