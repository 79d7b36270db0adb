package services

import (
	"strings"
	"sync"

	"market-search/models"
	"market-search/utils"
)

// ExclusionStore persists the exclusion list.
type ExclusionStore interface {
	SaveExclusions(records []models.ExclusionRecord) error
}

// ExclusionList is the user-curated set of hidden listings, keyed by link.
type ExclusionList struct {
	store  ExclusionStore
	logger utils.Logger

	mu      sync.RWMutex
	records []models.ExclusionRecord
}

// NewExclusionList starts from records loaded at startup. store may be nil.
func NewExclusionList(records []models.ExclusionRecord, store ExclusionStore, logger utils.Logger) *ExclusionList {
	if logger == nil {
		logger = utils.NopLogger{}
	}
	return &ExclusionList{
		store:   store,
		logger:  logger.WithFields(utils.Fields{"component": "exclusions"}),
		records: append([]models.ExclusionRecord(nil), records...),
	}
}

// List returns a copy of the records in insertion order.
func (e *ExclusionList) List() []models.ExclusionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.ExclusionRecord{}, e.records...)
}

// Add inserts rec unless its link is already excluded. It reports whether the
// list changed.
func (e *ExclusionList) Add(rec models.ExclusionRecord) (bool, error) {
	rec.Link = strings.TrimSpace(rec.Link)
	if rec.Link == "" {
		return false, ErrBlankLink
	}

	e.mu.Lock()
	for _, r := range e.records {
		if r.Link == rec.Link {
			e.mu.Unlock()
			return false, nil
		}
	}
	e.records = append(e.records, rec)
	snapshot := append([]models.ExclusionRecord(nil), e.records...)
	e.mu.Unlock()

	return true, e.persist(snapshot)
}

// Remove deletes the record for link. It reports whether one existed.
func (e *ExclusionList) Remove(link string) (bool, error) {
	link = strings.TrimSpace(link)

	e.mu.Lock()
	idx := -1
	for i, r := range e.records {
		if r.Link == link {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return false, nil
	}
	e.records = append(e.records[:idx], e.records[idx+1:]...)
	snapshot := append([]models.ExclusionRecord(nil), e.records...)
	e.mu.Unlock()

	return true, e.persist(snapshot)
}

func (e *ExclusionList) persist(records []models.ExclusionRecord) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SaveExclusions(records); err != nil {
		e.logger.Error("failed to save exclusions", err, utils.Fields{"count": len(records)})
		return err
	}
	return nil
}
