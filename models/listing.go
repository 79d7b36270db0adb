package models

import "time"

// Listing is one normalized marketplace item. It is created by the fetcher
// and never mutated afterwards; a region re-search replaces its listings
// wholesale.
type Listing struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Price          string     `json:"price"`
	PriceRaw       int64      `json:"priceRaw"`
	RegionName     string     `json:"regionName"`
	Img            string     `json:"img,omitempty"`
	Link           string     `json:"link"`
	OriginalRegion *Region    `json:"originalRegion,omitempty"`
	TimeAgo        string     `json:"timeAgo"`
	Content        string     `json:"content"`
	CreatedAt      *time.Time `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt"`
	Status         string     `json:"status"`
}

// Key is the deduplication key: the canonical link, falling back to the id.
func (l *Listing) Key() string {
	if l.Link != "" {
		return l.Link
	}
	return l.ID
}

// RegionID returns the id of the region search that produced the listing,
// or "" when the listing carries no region tag.
func (l *Listing) RegionID() ID {
	if l.OriginalRegion == nil {
		return ""
	}
	return l.OriginalRegion.ID
}

// ExclusionRecord is a user-curated entry hiding one listing across searches.
type ExclusionRecord struct {
	Link       string `json:"link"`
	Title      string `json:"title"`
	RegionID   ID     `json:"regionId"`
	RegionName string `json:"regionName"`
}

// SearchFilter is the trade-status restriction sent upstream with a batch.
type SearchFilter struct {
	OnlyOnSale bool `json:"onlyOnSale"`
}

// Covers reports whether data fetched with f is complete for a view over the
// given status classes. An on-sale-only fetch only covers the ongoing class.
func (f SearchFilter) Covers(classes []StatusClass) bool {
	if !f.OnlyOnSale {
		return true
	}
	for _, c := range classes {
		if c != StatusOngoing {
			return false
		}
	}
	return true
}
