package services

import (
	"errors"
	"testing"

	"market-search/models"
)

type memoryExclusionStore struct {
	saved [][]models.ExclusionRecord
}

func (m *memoryExclusionStore) SaveExclusions(records []models.ExclusionRecord) error {
	m.saved = append(m.saved, records)
	return nil
}

func TestExclusionListAddRemove(t *testing.T) {
	store := &memoryExclusionStore{}
	list := NewExclusionList([]models.ExclusionRecord{{Link: "l1", Title: "first"}}, store, nil)

	added, err := list.Add(models.ExclusionRecord{Link: "l2", Title: "second", RegionID: "1", RegionName: "Samseong"})
	if err != nil || !added {
		t.Fatalf("add: added=%v err=%v", added, err)
	}
	added, err = list.Add(models.ExclusionRecord{Link: "l2", Title: "again"})
	if err != nil || added {
		t.Fatalf("duplicate add: added=%v err=%v", added, err)
	}
	if _, err := list.Add(models.ExclusionRecord{Title: "no link"}); !errors.Is(err, ErrBlankLink) {
		t.Errorf("expected ErrBlankLink, got %v", err)
	}

	if got := list.List(); len(got) != 2 || got[1].Title != "second" {
		t.Fatalf("list = %+v", got)
	}

	removed, err := list.Remove("l1")
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}
	removed, _ = list.Remove("missing")
	if removed {
		t.Error("removing an unknown link should report false")
	}

	if len(store.saved) != 2 {
		t.Fatalf("expected 2 saves, got %d", len(store.saved))
	}
	if last := store.saved[1]; len(last) != 1 || last[0].Link != "l2" {
		t.Errorf("last save = %+v", last)
	}
}
