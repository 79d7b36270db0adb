package daangn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const currencySuffix = "원"

var digitsRegexp = regexp.MustCompile(`[0-9]+`)

// FormatPrice renders a price as "150,000원". Zero or negative prices
// render as an empty string.
func FormatPrice(v int64) string {
	if v <= 0 {
		return ""
	}
	return humanize.Comma(v) + currencySuffix
}

// parsePriceText extracts the numeric price from display text such as
// "150,000원". Text without digits yields 0.
func parsePriceText(s string) int64 {
	matches := digitsRegexp.FindAllString(s, -1)
	if len(matches) == 0 {
		return 0
	}
	val, err := strconv.ParseInt(strings.Join(matches, ""), 10, 64)
	if err != nil {
		return 0
	}
	return val
}

// flexPrice decodes a price sent as a JSON number, a numeric string
// ("150000.0") or null.
type flexPrice int64

func (p *flexPrice) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = 0
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*p = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if f < 0 {
		f = 0
	}
	*p = flexPrice(int64(f))
	return nil
}

// parseTimestamp parses an ISO-8601 timestamp, returning nil when absent or
// malformed.
func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// TimeAgo labels the elapsed time since t in the upstream's locale:
// under a minute "방금 전", then minutes, hours and days.
func TimeAgo(t, now time.Time) string {
	diff := now.Sub(t)
	if diff < 0 {
		diff = 0
	}
	sec := int64(diff / time.Second)
	min := sec / 60
	hour := min / 60
	day := hour / 24

	switch {
	case sec < 60:
		return "방금 전"
	case min < 60:
		return fmt.Sprintf("%d분 전", min)
	case hour < 24:
		return fmt.Sprintf("%d시간 전", hour)
	default:
		return fmt.Sprintf("%d일 전", day)
	}
}

// bumpLabel builds the time-ago text for a listing. A boosted timestamp that
// differs from the creation time marks the listing as bumped.
func bumpLabel(created, boosted *time.Time, now time.Time) string {
	switch {
	case boosted != nil && (created == nil || !boosted.Equal(*created)):
		return "끌올 " + TimeAgo(*boosted, now)
	case created != nil:
		return TimeAgo(*created, now)
	case boosted != nil:
		return TimeAgo(*boosted, now)
	}
	return ""
}
