// Package nwis builds and issues queries against the USGS National Water
// Information System site service.
package nwis

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the calendar date format of startDt and endDt.
const DateLayout = "2006-01-02"

// ErrConflictingFilters is returned when a relative period is combined with
// an explicit date range.
var ErrConflictingFilters = eris.New("nwis: period and modified-since cannot be combined with start or end dates")

// Weeks, days, hours, minutes and seconds only. The site service rejects
// years and months.
var durationPattern = regexp.MustCompile(`^P(\d+W)?(\d+D)?(T(\d+H)?(\d+M)?(\d+S)?)?$`)

// BBox is a bounding box in WGS-84 decimal degrees.
type BBox struct {
	West, South, East, North float64
}

// String formats the box the way the bBox parameter expects.
func (b BBox) String() string {
	return fmt.Sprintf("%.7f,%.7f,%.7f,%.7f", b.West, b.South, b.East, b.North)
}

// Filters narrow the site query. Zero values mean unset.
type Filters struct {
	Status        SiteStatus
	StartDate     time.Time
	EndDate       time.Time
	Period        string
	ModifiedSince string
}

// HasDateRange reports whether a start or end date is set.
func (f Filters) HasDateRange() bool {
	return !f.StartDate.IsZero() || !f.EndDate.IsZero()
}

// Validate checks the filters before any request is made.
func (f Filters) Validate() error {
	if (f.Period != "" || f.ModifiedSince != "") && f.HasDateRange() {
		return ErrConflictingFilters
	}
	if f.Period != "" {
		if err := ValidateDuration(f.Period); err != nil {
			return eris.Wrap(err, "nwis: period")
		}
	}
	if f.ModifiedSince != "" {
		if err := ValidateDuration(f.ModifiedSince); err != nil {
			return eris.Wrap(err, "nwis: modified-since")
		}
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.StartDate.After(f.EndDate) {
		return eris.Errorf("nwis: start date %s is after end date %s",
			f.StartDate.Format(DateLayout), f.EndDate.Format(DateLayout))
	}
	return nil
}

// ValidateDuration checks an ISO-8601 duration such as P7D or PT12H.
func ValidateDuration(d string) error {
	m := durationPattern.FindStringSubmatch(d)
	if m == nil || d == "P" || d == "PT" || m[3] == "T" {
		return eris.Errorf("invalid duration %q (want e.g. P7D, P2W or PT12H; years and months are not supported)", d)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD calendar date. An empty string yields the
// zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "nwis: invalid date %q", s)
	}
	return t, nil
}

// Query is one bounded-area site service request. It is built once and
// never modified.
type Query struct {
	bbox    BBox
	filters Filters
}

// NewQuery builds a query. Filters are not validated here; call
// Filters.Validate first.
func NewQuery(bbox BBox, filters Filters) Query {
	return Query{bbox: bbox, filters: filters}
}

// BBox returns the query's bounding box.
func (q Query) BBox() BBox { return q.bbox }

// Filters returns the query's filters.
func (q Query) Filters() Filters { return q.filters }

// Values returns the request's query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("format", "rdb")
	v.Set("bBox", q.bbox.String())
	v.Set("siteStatus", q.filters.Status.String())
	if !q.filters.StartDate.IsZero() {
		v.Set("startDt", q.filters.StartDate.Format(DateLayout))
	}
	if !q.filters.EndDate.IsZero() {
		v.Set("endDt", q.filters.EndDate.Format(DateLayout))
	}
	if q.filters.Period != "" {
		v.Set("period", q.filters.Period)
	}
	if q.filters.ModifiedSince != "" {
		v.Set("modifiedSince", q.filters.ModifiedSince)
	}
	return v
}

// URL joins the parameters onto base, replacing any query string base has.
func (q Query) URL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrapf(err, "nwis: parse base url %q", base)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", eris.Errorf("nwis: base url %q is not absolute", base)
	}
	u.RawQuery = q.Values().Encode()
	return u.String(), nil
}
