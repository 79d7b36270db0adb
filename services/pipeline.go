package services

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"market-search/models"
)

// ViewInput is everything the result view is computed from.
type ViewInput struct {
	Listings        []*models.Listing
	SelectedRegions []models.Region
	// ActiveRegionIDs restricts tagged listings to these regions. nil disables
	// the region filter; an empty non-nil slice hides every tagged listing.
	ActiveRegionIDs []models.ID
	Options         models.ViewOptions
	Exclusions      []models.ExclusionRecord
}

// ViewItem is a visible listing with its derived display state.
type ViewItem struct {
	*models.Listing
	StatusClass models.StatusClass `json:"statusClass"`
	Excluded    bool               `json:"excluded"`
}

// ViewGroup is one location bucket.
type ViewGroup struct {
	Name     string         `json:"name"`
	Region   *models.Region `json:"region,omitempty"`
	Listings []ViewItem     `json:"listings"`
}

// View is the filtered, sorted result. Groups is only set when grouping by
// location.
type View struct {
	Listings []ViewItem  `json:"listings"`
	Groups   []ViewGroup `json:"groups,omitempty"`
}

// ApplyView filters, sorts and groups listings. It has no side effects and
// never modifies in.Listings.
func ApplyView(in ViewInput) View {
	opts := in.Options
	fold := cases.Fold()

	var active map[models.ID]struct{}
	if in.ActiveRegionIDs != nil {
		active = make(map[models.ID]struct{}, len(in.ActiveRegionIDs))
		for _, id := range in.ActiveRegionIDs {
			active[id] = struct{}{}
		}
	}

	statuses := make(map[models.StatusClass]struct{}, len(opts.Statuses))
	for _, s := range opts.Statuses {
		statuses[s] = struct{}{}
	}

	excluded := make(map[string]struct{}, len(in.Exclusions))
	for _, e := range in.Exclusions {
		excluded[e.Link] = struct{}{}
	}

	include := foldWords(fold, opts.IncludeWords)
	exclude := foldWords(fold, opts.ExcludeWords)
	minPrice, hasMin := parseBound(opts.Price.Min)
	maxPrice, hasMax := parseBound(opts.Price.Max)

	items := make([]ViewItem, 0, len(in.Listings))
	for _, l := range in.Listings {
		if l == nil {
			continue
		}
		if active != nil && l.OriginalRegion != nil {
			if _, ok := active[l.OriginalRegion.ID]; !ok {
				continue
			}
		}

		class := models.ClassifyStatus(l.Status)
		if _, ok := statuses[class]; !ok {
			continue
		}

		if len(include) > 0 || len(exclude) > 0 {
			text := fold.String(l.Title + " " + l.Content)
			if !containsAll(text, include) || containsAny(text, exclude) {
				continue
			}
		}

		price := float64(l.PriceRaw)
		if hasMin && price < minPrice {
			continue
		}
		if hasMax && price > maxPrice {
			continue
		}

		_, isExcluded := excluded[l.Link]
		switch opts.ExclusionMode {
		case models.ExclusionAll:
		case models.ExclusionOnly:
			if !isExcluded {
				continue
			}
		default:
			if isExcluded {
				continue
			}
		}

		items = append(items, ViewItem{Listing: l, StatusClass: class, Excluded: isExcluded})
	}

	sortItems(items, opts.Sort)

	view := View{Listings: items}
	if opts.Group == models.GroupLocation {
		view.Groups = groupByLocation(items, in.SelectedRegions, active)
	}
	return view
}

func foldWords(fold cases.Caser, words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		out = append(out, fold.String(w))
	}
	return out
}

func containsAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// parseBound reads a user-entered price bound. Commas and a trailing currency
// suffix are tolerated; anything else unparsable means unbounded.
func parseBound(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "원")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func sortItems(items []ViewItem, key models.SortKey) {
	switch key {
	case models.SortPriceAsc:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].PriceRaw < items[j].PriceRaw
		})
	case models.SortPriceDesc:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].PriceRaw > items[j].PriceRaw
		})
	case models.SortUpdatedAt:
		sort.SliceStable(items, func(i, j int) bool {
			return sortTime(items[i].Listing).After(sortTime(items[j].Listing))
		})
	}
}

func sortTime(l *models.Listing) time.Time {
	switch {
	case l.UpdatedAt != nil:
		return *l.UpdatedAt
	case l.CreatedAt != nil:
		return *l.CreatedAt
	}
	return time.Unix(0, 0)
}

// groupByLocation creates one bucket per selected (and active) region in
// selection order, empty buckets included. Listings without a matching
// region land in a trailing unnamed bucket.
func groupByLocation(items []ViewItem, selected []models.Region, active map[models.ID]struct{}) []ViewGroup {
	groups := make([]ViewGroup, 0, len(selected)+1)
	index := make(map[models.ID]int, len(selected))
	for _, r := range selected {
		if _, dup := index[r.ID]; dup {
			continue
		}
		if active != nil {
			if _, ok := active[r.ID]; !ok {
				continue
			}
		}
		region := r
		index[r.ID] = len(groups)
		groups = append(groups, ViewGroup{Name: r.Name3, Region: &region, Listings: []ViewItem{}})
	}

	var other []ViewItem
	for _, it := range items {
		if i, ok := index[it.RegionID()]; ok {
			groups[i].Listings = append(groups[i].Listings, it)
			continue
		}
		other = append(other, it)
	}
	if len(other) > 0 {
		groups = append(groups, ViewGroup{Name: "", Listings: other})
	}
	return groups
}
