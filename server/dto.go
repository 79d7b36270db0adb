package server

import (
	"market-search/models"
	"market-search/services"
)

type searchRequest struct {
	Keyword    string      `json:"keyword"`
	OnlyOnSale bool        `json:"onlyOnSale"`
	RegionIDs  []models.ID `json:"regionIds"`
}

type refreshManyRequest struct {
	RegionIDs []models.ID `json:"regionIds"`
	Group     string      `json:"group"`
}

type regionsRequest struct {
	Regions []models.Region `json:"regions"`
}

type activeRegionsRequest struct {
	RegionIDs []models.ID `json:"regionIds"`
}

type listingsResponse struct {
	services.View
	Summary     *services.Summary         `json:"summary"`
	Options     models.ViewOptions        `json:"options"`
	StaleFilter bool                      `json:"staleFilter"`
	Notice      *services.RateLimitNotice `json:"notice,omitempty"`
}

type wsMessage struct {
	Type     string             `json:"type"`
	Snapshot *services.Snapshot `json:"snapshot,omitempty"`
	Event    *services.Event    `json:"event,omitempty"`
}
