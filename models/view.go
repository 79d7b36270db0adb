package models

import "fmt"

// ExclusionMode selects how excluded listings are treated by the view.
type ExclusionMode string

const (
	ExclusionHide ExclusionMode = "hide"
	ExclusionAll  ExclusionMode = "all"
	ExclusionOnly ExclusionMode = "only"
)

// SortKey orders the visible listings.
type SortKey string

const (
	SortNone      SortKey = "none"
	SortPriceAsc  SortKey = "priceAsc"
	SortPriceDesc SortKey = "priceDesc"
	SortUpdatedAt SortKey = "updatedAt"
)

// GroupKey buckets the visible listings.
type GroupKey string

const (
	GroupNone     GroupKey = "none"
	GroupLocation GroupKey = "location"
)

// PriceRange holds the raw user input for the bounds. A bound that does not
// parse as a number is ignored.
type PriceRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// ViewOptions is the client-side filter configuration applied over the
// aggregate result set.
type ViewOptions struct {
	Statuses      []StatusClass `json:"statuses"`
	IncludeWords  []string      `json:"includeWords"`
	ExcludeWords  []string      `json:"excludeWords"`
	Price         PriceRange    `json:"price"`
	ExclusionMode ExclusionMode `json:"exclusionMode"`
	Sort          SortKey       `json:"sort"`
	Group         GroupKey      `json:"group"`
}

// DefaultViewOptions shows every status, hides excluded items and keeps
// insertion order.
func DefaultViewOptions() ViewOptions {
	return ViewOptions{
		Statuses:      append([]StatusClass(nil), AllStatusClasses...),
		ExclusionMode: ExclusionHide,
		Sort:          SortNone,
		Group:         GroupNone,
	}
}

// Validate rejects enum values outside the known sets.
func (v ViewOptions) Validate() error {
	for _, c := range v.Statuses {
		if _, ok := ParseStatusClass(string(c)); !ok {
			return fmt.Errorf("unknown status %q", c)
		}
	}
	switch v.ExclusionMode {
	case ExclusionHide, ExclusionAll, ExclusionOnly:
	default:
		return fmt.Errorf("unknown exclusion mode %q", v.ExclusionMode)
	}
	switch v.Sort {
	case SortNone, SortPriceAsc, SortPriceDesc, SortUpdatedAt:
	default:
		return fmt.Errorf("unknown sort %q", v.Sort)
	}
	switch v.Group {
	case GroupNone, GroupLocation:
	default:
		return fmt.Errorf("unknown group %q", v.Group)
	}
	return nil
}

// SearchState is the checkpoint persisted between sessions.
type SearchState struct {
	Keyword         string              `json:"keyword"`
	Listings        []*Listing          `json:"aggregateListings"`
	Filters         ViewOptions         `json:"filters"`
	BatchFilter     SearchFilter        `json:"batchFilter"`
	ActiveRegionIDs []ID                `json:"activeRegionIds"`
	RegionStatus    map[ID]RegionStatus `json:"regionStatus"`
	SelectedRegions []Region            `json:"selectedRegions"`
}
