package daangn

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"market-search/models"
	"market-search/utils"
)

const (
	DefaultBaseURL = "https://www.daangn.com"

	listingsPath = "/kr/buy-sell/"
	// listingsRoute asks the upstream router for the loader JSON instead of
	// the rendered page.
	listingsRoute = "routes/kr.buy-sell._index"
	locationsPath = "/v1/api/search/kr/location"

	acceptListings = "application/json, text/html;q=0.9, */*;q=0.8"
	acceptJSON     = "application/json"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Transport Transport
	Logger    utils.Logger
	// Now is used for time-ago labels. Defaults to time.Now.
	Now func() time.Time
}

// Client talks to the marketplace: the region catalog and the per-region
// listing search.
type Client struct {
	baseURL   string
	transport Transport
	logger    utils.Logger
	now       func() time.Time
}

// NewClient creates a Client. A nil transport gets a CollyTransport with a
// 15 second timeout.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Logger == nil {
		opts.Logger = utils.NopLogger{}
	}
	if opts.Transport == nil {
		opts.Transport = NewCollyTransport(15*time.Second, opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		transport: opts.Transport,
		logger:    opts.Logger.WithFields(utils.Fields{"component": "daangn_client"}),
		now:       opts.Now,
	}
}

// ListingsURL builds the search URL for one region.
func (c *Client) ListingsURL(region models.Region, keyword string, onlyOnSale bool) string {
	q := url.Values{}
	q.Set("in", region.Locator())
	q.Set("search", keyword)
	if onlyOnSale {
		q.Set("only_on_sale", "true")
	}
	q.Set("_data", listingsRoute)
	return c.baseURL + listingsPath + "?" + q.Encode()
}

// FetchRegion performs one search request for region and returns its
// listings. It never panics on bad upstream data: on any network or parse
// failure it logs, and returns an empty slice together with the error so the
// caller can flag the region without aborting its batch.
func (c *Client) FetchRegion(ctx context.Context, region models.Region, keyword string, onlyOnSale bool) ([]*models.Listing, error) {
	target := c.ListingsURL(region, keyword, onlyOnSale)
	log := c.logger.WithFields(utils.Fields{
		"region_id": region.ID.String(),
		"region":    region.Name3,
		"keyword":   keyword,
	})

	start := time.Now()
	body, err := c.transport.Get(ctx, target, browserHeader(acceptListings))
	if err != nil {
		log.Error("region fetch failed", err, utils.Fields{"url": target})
		return []*models.Listing{}, fmt.Errorf("fetch region %s: %w", region.ID, err)
	}

	listings, shape, err := extractListings(parseInput{
		body:    body,
		region:  region,
		baseURL: c.baseURL,
		now:     c.now(),
	})
	if err != nil {
		log.Error("region response could not be parsed", err, utils.Fields{"bytes": len(body)})
		return []*models.Listing{}, fmt.Errorf("parse region %s: %w", region.ID, err)
	}

	log.Info("region fetched", utils.Fields{
		"shape":       shape,
		"count":       len(listings),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return listings, nil
}
