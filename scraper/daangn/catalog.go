package daangn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"market-search/models"
	"market-search/utils"
)

// ErrCatalogLookup marks a failed region lookup, as opposed to a lookup that
// found nothing.
var ErrCatalogLookup = errors.New("region lookup failed")

type locationResponse struct {
	Locations []models.Region `json:"locations"`
}

// SearchRegions looks up regions by name. A blank keyword returns an empty
// list without touching the network.
func (c *Client) SearchRegions(ctx context.Context, keyword string) ([]models.Region, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []models.Region{}, nil
	}

	target := c.baseURL + locationsPath + "?" + url.Values{"keyword": {keyword}}.Encode()
	body, err := c.transport.Get(ctx, target, browserHeader(acceptJSON))
	if err != nil {
		c.logger.Error("region lookup failed", err, utils.Fields{"keyword": keyword})
		return nil, fmt.Errorf("%w: %v", ErrCatalogLookup, err)
	}

	var resp locationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Error("region lookup returned malformed body", err, utils.Fields{"keyword": keyword})
		return nil, fmt.Errorf("%w: decode: %v", ErrCatalogLookup, err)
	}

	regions := make([]models.Region, 0, len(resp.Locations))
	for _, r := range resp.Locations {
		if r.ID == "" {
			continue
		}
		regions = append(regions, r)
	}
	c.logger.Debug("region lookup", utils.Fields{"keyword": keyword, "count": len(regions)})
	return regions, nil
}
