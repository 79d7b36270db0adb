package services

import (
	"testing"

	"market-search/models"
	"market-search/utils"
)

func sampleInput() ViewInput {
	a, b := region("1", "Samseong"), region("2", "Yeoksam")
	listings := []*models.Listing{
		tagged(&models.Listing{ID: "1", Link: "l1", Title: "Desk A", PriceRaw: 200000}, a),
		tagged(&models.Listing{ID: "2", Link: "l2", Title: "Desk B", PriceRaw: 50000}, a),
		tagged(&models.Listing{ID: "3", Link: "l3", Title: "Desk C", PriceRaw: 120000}, b),
		tagged(&models.Listing{ID: "4", Link: "l4", Title: "Desk D", PriceRaw: 300000}, b),
		tagged(&models.Listing{ID: "5", Link: "l5", Title: "Desk E", PriceRaw: 0}, b),
		tagged(&models.Listing{ID: "6", Link: "l6", Title: "old region"}, region("9", "Gone")),
	}
	return ViewInput{
		Listings:        listings,
		SelectedRegions: []models.Region{a, b},
		Options:         models.DefaultViewOptions(),
		Exclusions:      []models.ExclusionRecord{{Link: "l4"}},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(utils.NopLogger{})
	in := sampleInput()
	r := svc.Generate(in, ApplyView(in))
	if r.Total != 5 {
		t.Errorf("Total: got %d, want 5", r.Total)
	}
	if r.Visible != 5 {
		t.Errorf("Visible: got %d, want 5", r.Visible)
	}
	if r.Excluded != 1 {
		t.Errorf("Excluded: got %d, want 1", r.Excluded)
	}
	if r.RegionCounts["1"] != 2 || r.RegionCounts["2"] != 3 {
		t.Errorf("RegionCounts: got %v", r.RegionCounts)
	}
	if _, ok := r.RegionCounts["9"]; ok {
		t.Error("unselected regions should not be counted")
	}
}

func TestInsightPrices(t *testing.T) {
	svc := NewInsightService(utils.NopLogger{})
	in := sampleInput()
	r := svc.Generate(in, ApplyView(in))
	// l4 is hidden by the exclusion list; l5 has no price.
	wantAvg := 123333.33
	if r.AveragePrice != wantAvg {
		t.Errorf("AveragePrice: got %.2f, want %.2f", r.AveragePrice, wantAvg)
	}
	if r.MinPrice != 50000 {
		t.Errorf("MinPrice: got %d, want 50000", r.MinPrice)
	}
	if r.MaxPrice != 200000 {
		t.Errorf("MaxPrice: got %d, want 200000", r.MaxPrice)
	}
	if r.MostExpensive == nil || r.MostExpensive.Title != "Desk A" {
		t.Errorf("MostExpensive: got %+v", r.MostExpensive)
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(utils.NopLogger{})
	r := svc.Generate(ViewInput{}, View{})
	if r.Total != 0 || r.Visible != 0 || r.MostExpensive != nil {
		t.Errorf("expected an empty summary, got %+v", r)
	}
}
