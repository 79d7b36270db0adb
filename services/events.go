package services

import (
	"sync"
	"time"

	"market-search/models"
)

// EventType names a kind of orchestrator change.
type EventType string

const (
	EventRegionStatus EventType = "region_status"
	EventBatch        EventType = "batch"
	EventNotice       EventType = "rate_limit"
	// EventListings signals that the aggregate changed; subscribers re-read
	// the view.
	EventListings EventType = "listings"
)

// Event is one change notification.
type Event struct {
	Type     EventType            `json:"type"`
	RegionID models.ID            `json:"regionId,omitempty"`
	Status   *models.RegionStatus `json:"status,omitempty"`
	Batch    BatchState           `json:"batch,omitempty"`
	Notice   *RateLimitNotice     `json:"notice,omitempty"`
	At       time.Time            `json:"at"`
}

const subscriberBuffer = 64

type eventHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int]chan Event)}
}

func (h *eventHub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// publish never blocks; a full subscriber misses the event.
func (h *eventHub) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
