package nwis

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/usgs-gages/internal/fetcher"
)

// DefaultBaseURL is the production site service endpoint.
const DefaultBaseURL = "https://waterservices.usgs.gov/nwis/site/"

// ErrNoSites is returned when the service answers 404, which it does when no
// site matches the query.
var ErrNoSites = eris.New("nwis: no sites match the query")

// Client calls the site service.
type Client struct {
	fetcher fetcher.Fetcher
	baseURL string
}

// NewClient creates a client for the service at baseURL. An empty baseURL
// selects DefaultBaseURL.
func NewClient(f fetcher.Fetcher, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{fetcher: f, baseURL: baseURL}
}

// Sites issues the query and returns the raw RDB response body.
func (c *Client) Sites(ctx context.Context, q Query) ([]byte, error) {
	u, err := q.URL(c.baseURL)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "nwis"))
	log.Info("querying site service",
		zap.String("bbox", q.BBox().String()),
		zap.String("site_status", q.Filters().Status.String()),
	)
	log.Debug("site service request", zap.String("url", u))

	body, err := c.fetcher.Download(ctx, u)
	if err != nil {
		var se *fetcher.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, eris.Wrapf(ErrNoSites, "bbox %s", q.BBox())
		}
		return nil, eris.Wrap(err, "nwis: site query")
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "nwis: read site response")
	}
	log.Debug("site service responded", zap.Int("bytes", len(data)))
	return data, nil
}
