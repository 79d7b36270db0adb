package storage

import (
	"time"

	"market-search/models"
	"market-search/utils"
)

const (
	keySelectedRegions = "selected_regions"
	keySearchState     = "search_state"
	keyExclusions      = "excluded_items"

	// SelectedRegionsTTL keeps the region selection for about a year.
	SelectedRegionsTTL = 365 * 24 * time.Hour
	// SearchStateTTL also applies to the exclusion list.
	SearchStateTTL = 30 * 24 * time.Hour
)

// Persistence holds the three persisted stores: the region selection, the
// last search state and the exclusion list.
type Persistence struct {
	backend    Backend
	logger     utils.Logger
	regions    *ExpiringStore[[]models.Region]
	state      *ExpiringStore[models.SearchState]
	exclusions *ExpiringStore[[]models.ExclusionRecord]
}

// NewPersistence builds the stores over backend. now may be nil.
func NewPersistence(backend Backend, now func() time.Time, logger utils.Logger) *Persistence {
	if logger == nil {
		logger = utils.NopLogger{}
	}
	return &Persistence{
		backend:    backend,
		logger:     logger.WithFields(utils.Fields{"component": "persistence"}),
		regions:    NewExpiringStore[[]models.Region](backend, keySelectedRegions, SelectedRegionsTTL, now),
		state:      NewExpiringStore[models.SearchState](backend, keySearchState, SearchStateTTL, now),
		exclusions: NewExpiringStore[[]models.ExclusionRecord](backend, keyExclusions, SearchStateTTL, now),
	}
}

// LoadSelectedRegions returns the saved selection, empty when none.
func (p *Persistence) LoadSelectedRegions() ([]models.Region, error) {
	regions, ok, err := p.regions.Load()
	if err != nil || !ok {
		return []models.Region{}, err
	}
	return regions, nil
}

func (p *Persistence) SaveSelectedRegions(regions []models.Region) error {
	return p.regions.Save(regions)
}

// LoadSearchState returns the last checkpoint, or nil when absent or expired.
func (p *Persistence) LoadSearchState() (*models.SearchState, error) {
	state, ok, err := p.state.Load()
	if err != nil {
		p.logger.Warn("discarding unreadable search state", utils.Fields{"error": err.Error()})
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (p *Persistence) SaveSearchState(state models.SearchState) error {
	return p.state.Save(state)
}

// ClearSearchState drops the saved checkpoint.
func (p *Persistence) ClearSearchState() error {
	return p.state.Prune()
}

// LoadExclusions returns the saved exclusion list, empty when none.
func (p *Persistence) LoadExclusions() ([]models.ExclusionRecord, error) {
	records, ok, err := p.exclusions.Load()
	if err != nil || !ok {
		return []models.ExclusionRecord{}, err
	}
	return records, nil
}

func (p *Persistence) SaveExclusions(records []models.ExclusionRecord) error {
	return p.exclusions.Save(records)
}

// Close releases the backend.
func (p *Persistence) Close() error {
	return p.backend.Close()
}
