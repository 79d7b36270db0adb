package services

import (
	"market-search/models"
	"market-search/utils"
)

// Summary is the sidebar digest of the current search.
type Summary struct {
	// Total counts aggregate listings belonging to selected regions.
	Total        int               `json:"total"`
	Visible      int               `json:"visible"`
	Excluded     int               `json:"excluded"`
	RegionCounts map[models.ID]int `json:"regionCounts"`

	MinPrice      int64           `json:"minPrice"`
	MaxPrice      int64           `json:"maxPrice"`
	AveragePrice  float64         `json:"averagePrice"`
	MostExpensive *models.Listing `json:"mostExpensive,omitempty"`
}

type InsightService struct {
	logger utils.Logger
}

func NewInsightService(logger utils.Logger) *InsightService {
	if logger == nil {
		logger = utils.NopLogger{}
	}
	return &InsightService{logger: logger.WithFields(utils.Fields{"component": "insights"})}
}

// Generate summarises the aggregate for in and the view computed from it.
// Price statistics cover visible listings with a known price.
func (s *InsightService) Generate(in ViewInput, view View) *Summary {
	report := &Summary{
		Visible:      len(view.Listings),
		RegionCounts: make(map[models.ID]int),
	}

	selected := make(map[models.ID]struct{}, len(in.SelectedRegions))
	for _, r := range in.SelectedRegions {
		selected[r.ID] = struct{}{}
		report.RegionCounts[r.ID] = 0
	}
	excluded := make(map[string]struct{}, len(in.Exclusions))
	for _, e := range in.Exclusions {
		excluded[e.Link] = struct{}{}
	}

	for _, l := range in.Listings {
		if l == nil {
			continue
		}
		id := l.RegionID()
		if _, ok := selected[id]; ok {
			report.RegionCounts[id]++
			report.Total++
		}
		if _, ok := excluded[l.Link]; ok {
			report.Excluded++
		}
	}

	var total float64
	var priced int
	for _, it := range view.Listings {
		if it.PriceRaw <= 0 {
			continue
		}
		if priced == 0 || it.PriceRaw < report.MinPrice {
			report.MinPrice = it.PriceRaw
		}
		if priced == 0 || it.PriceRaw > report.MaxPrice {
			report.MaxPrice = it.PriceRaw
			report.MostExpensive = it.Listing
		}
		total += float64(it.PriceRaw)
		priced++
	}
	if priced > 0 {
		report.AveragePrice = round2(total / float64(priced))
	}

	s.logger.Debug("summary generated", utils.Fields{
		"total":    report.Total,
		"visible":  report.Visible,
		"excluded": report.Excluded,
	})
	return report
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
