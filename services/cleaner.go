package services

import (
	"strings"
	"unicode"

	"market-search/models"
	"market-search/utils"
)

// Cleaner prepares one upstream response for merging: listings without an
// identity are dropped, duplicates within the response collapse to the first
// occurrence and display text is normalised.
type Cleaner struct {
	logger utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger utils.Logger) *Cleaner {
	if logger == nil {
		logger = utils.NopLogger{}
	}
	return &Cleaner{logger: logger.WithFields(utils.Fields{"component": "cleaner"})}
}

// Clean returns the deduplicated listings of a single response.
func (c *Cleaner) Clean(raw []*models.Listing) []*models.Listing {
	seen := make(map[string]struct{}, len(raw))
	result := make([]*models.Listing, 0, len(raw))

	for _, l := range raw {
		if l == nil {
			continue
		}
		l.Link = strings.TrimSpace(l.Link)
		key := l.Key()
		if key == "" {
			c.logger.Warn("dropping listing without link or id", utils.Fields{"title": l.Title})
			continue
		}
		if _, dup := seen[key]; dup {
			c.logger.Debug("duplicate listing skipped", utils.Fields{"key": key})
			continue
		}
		seen[key] = struct{}{}

		l.Title = normaliseText(l.Title)
		l.RegionName = normaliseText(l.RegionName)
		result = append(result, l)
	}

	if dropped := len(raw) - len(result); dropped > 0 {
		c.logger.Debug("cleaned response", utils.Fields{"in": len(raw), "out": len(result), "dropped": dropped})
	}
	return result
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
