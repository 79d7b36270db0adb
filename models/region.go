package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ID is the canonical identifier for regions and listings. The upstream sends
// region ids as JSON numbers in some payloads and as strings in others; both
// decode to the same string form here so comparisons never need coercion.
type ID string

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: unsupported value %s", string(b))
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Region is one administrative sub-district: province, city/district and
// neighbourhood. Only ID is used for identity.
type Region struct {
	ID    ID     `json:"id"`
	Name1 string `json:"name1"`
	Name2 string `json:"name2"`
	Name3 string `json:"name3"`
}

// Locator returns the upstream "in" parameter, "<name3>-<id>".
func (r Region) Locator() string {
	return r.Name3 + "-" + string(r.ID)
}

// DisplayName is the label shown next to a region checkbox.
func (r Region) DisplayName() string {
	return strings.TrimSpace(r.Name2 + " " + r.Name3)
}

// RegionState is the per-region lifecycle inside a batch.
type RegionState string

const (
	RegionPending   RegionState = "pending"
	RegionLoading   RegionState = "loading"
	RegionCompleted RegionState = "completed"
)

// RegionStatus tracks one region of the current batch. Error is a flag on a
// completed region, never a separate terminal state.
type RegionStatus struct {
	Status      RegionState `json:"status"`
	CompletedAt *time.Time  `json:"completedAt"`
	Error       bool        `json:"error"`
}

// RegionGroup is a set of selected regions sharing the same second-level name.
type RegionGroup struct {
	Name    string   `json:"name"`
	Regions []Region `json:"regions"`
}

// GroupRegions buckets regions by Name2, keeping first-seen order for both
// the groups and the regions inside them.
func GroupRegions(regions []Region) []RegionGroup {
	index := make(map[string]int)
	var groups []RegionGroup
	for _, r := range regions {
		name := r.Name2
		if name == "" {
			name = r.Name1
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, RegionGroup{Name: name})
		}
		groups[i].Regions = append(groups[i].Regions, r)
	}
	return groups
}
