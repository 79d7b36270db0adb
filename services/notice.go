package services

import (
	"fmt"
	"sync"
	"time"

	"market-search/models"
)

// RateLimitNotice tells the user a region was served from the cache and when
// it can be fetched again.
type RateLimitNotice struct {
	RegionID         models.ID `json:"regionId"`
	RegionName       string    `json:"regionName"`
	RemainingSeconds int       `json:"remainingSeconds"`
	Message          string    `json:"message"`
}

// NoticeBoard holds at most one rate-limit notice. A background ticker
// publishes the countdown once per second and clears the notice at zero.
type NoticeBoard struct {
	now      func() time.Time
	onChange func(*RateLimitNotice)

	mu       sync.Mutex
	region   models.Region
	deadline time.Time
	stop     chan struct{}
}

// NewNoticeBoard creates a board. onChange receives every countdown step and
// a nil notice when it clears; it may be nil.
func NewNoticeBoard(now func() time.Time, onChange func(*RateLimitNotice)) *NoticeBoard {
	if now == nil {
		now = time.Now
	}
	if onChange == nil {
		onChange = func(*RateLimitNotice) {}
	}
	return &NoticeBoard{now: now, onChange: onChange}
}

// Raise replaces the current notice.
func (b *NoticeBoard) Raise(region models.Region, remaining time.Duration) {
	b.mu.Lock()
	if b.stop != nil {
		close(b.stop)
	}
	b.region = region
	b.deadline = b.now().Add(remaining)
	stop := make(chan struct{})
	b.stop = stop
	b.mu.Unlock()

	b.onChange(b.Current())
	go b.countdown(stop)
}

// Current returns the active notice, or nil once the countdown reached zero.
func (b *NoticeBoard) Current() *RateLimitNotice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

func (b *NoticeBoard) currentLocked() *RateLimitNotice {
	if b.deadline.IsZero() {
		return nil
	}
	left := b.deadline.Sub(b.now())
	secs := int((left + time.Second - 1) / time.Second)
	if secs <= 0 {
		return nil
	}
	name := b.region.DisplayName()
	if name == "" {
		name = b.region.ID.String()
	}
	return &RateLimitNotice{
		RegionID:         b.region.ID,
		RegionName:       name,
		RemainingSeconds: secs,
		Message:          fmt.Sprintf("%s: 최근 검색 결과를 표시합니다. %d초 후에 다시 검색할 수 있어요.", name, secs),
	}
}

func (b *NoticeBoard) countdown(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		if b.stop != stop {
			b.mu.Unlock()
			return
		}
		n := b.currentLocked()
		if n == nil {
			b.deadline = time.Time{}
			b.stop = nil
		}
		b.mu.Unlock()

		b.onChange(n)
		if n == nil {
			return
		}
	}
}

// Clear drops the current notice.
func (b *NoticeBoard) Clear() {
	b.mu.Lock()
	if b.stop != nil {
		close(b.stop)
		b.stop = nil
	}
	had := !b.deadline.IsZero()
	b.deadline = time.Time{}
	b.mu.Unlock()
	if had {
		b.onChange(nil)
	}
}
