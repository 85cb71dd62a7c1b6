package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/usgs-gages/internal/fetcher"
	"github.com/sells-group/usgs-gages/internal/nwis"
)

// queryFlags are the site service filters shared by every command that
// queries the service.
type queryFlags struct {
	siteStatus    string
	period        string
	modifiedSince string
	startDt       string
	endDt         string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&q.siteStatus, "site-status", "all", "site status: all, active or inactive")
	f.StringVar(&q.period, "period", "", "ISO-8601 duration of recent activity, e.g. P7D")
	f.StringVar(&q.modifiedSince, "modified-since", "", "ISO-8601 duration; only sites modified within it")
	f.StringVar(&q.startDt, "start-dt", "", "activity start date (YYYY-MM-DD)")
	f.StringVar(&q.endDt, "end-dt", "", "activity end date (YYYY-MM-DD)")
}

// filters parses and validates the flags. Errors are usage errors and are
// reported before any request is made.
func (q *queryFlags) filters() (nwis.Filters, error) {
	status, err := nwis.ParseSiteStatus(q.siteStatus)
	if err != nil {
		return nwis.Filters{}, err
	}
	start, err := nwis.ParseDate(q.startDt)
	if err != nil {
		return nwis.Filters{}, eris.Wrap(err, "--start-dt")
	}
	end, err := nwis.ParseDate(q.endDt)
	if err != nil {
		return nwis.Filters{}, eris.Wrap(err, "--end-dt")
	}

	f := nwis.Filters{
		Status:        status,
		StartDate:     start,
		EndDate:       end,
		Period:        q.period,
		ModifiedSince: q.modifiedSince,
	}
	if err := f.Validate(); err != nil {
		return nwis.Filters{}, err
	}
	return f, nil
}

func newSiteClient() *nwis.Client {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.NWIS.UserAgent,
		Timeout:    time.Duration(cfg.NWIS.TimeoutSecs) * time.Second,
		MaxRetries: cfg.NWIS.MaxRetries,
		Limiters:   fetcher.HostLimiter(cfg.NWIS.BaseURL, cfg.NWIS.RatePerSec),
	})
	return nwis.NewClient(f, cfg.NWIS.BaseURL)
}
