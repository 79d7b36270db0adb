package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"market-search/models"
	"market-search/utils"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeFetcher returns canned listings per region. A region with a gate
// blocks until the gate is closed, announcing itself on started first.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []models.ID
	results map[models.ID][]*models.Listing
	errs    map[models.ID]error
	gates   map[models.ID]chan struct{}
	started chan models.ID
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[models.ID][]*models.Listing),
		errs:    make(map[models.ID]error),
		gates:   make(map[models.ID]chan struct{}),
		started: make(chan models.ID, 64),
	}
}

func (f *fakeFetcher) set(id models.ID, listings ...*models.Listing) {
	f.mu.Lock()
	f.results[id] = listings
	f.mu.Unlock()
}

func (f *fakeFetcher) fail(id models.ID, err error) {
	f.mu.Lock()
	f.errs[id] = err
	f.mu.Unlock()
}

func (f *fakeFetcher) gate(id models.ID) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[id] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeFetcher) FetchRegion(ctx context.Context, region models.Region, keyword string, onlyOnSale bool) ([]*models.Listing, error) {
	f.mu.Lock()
	f.calls = append(f.calls, region.ID)
	gate := f.gates[region.ID]
	err := f.errs[region.ID]
	src := f.results[region.ID]
	f.mu.Unlock()

	select {
	case f.started <- region.ID:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return []*models.Listing{}, ctx.Err()
		}
	}
	if err != nil {
		return []*models.Listing{}, err
	}
	// Fresh copies, as a real fetch would produce.
	out := make([]*models.Listing, 0, len(src))
	for _, l := range src {
		c := *l
		r := region
		c.OriginalRegion = &r
		out = append(out, &c)
	}
	return out, nil
}

func (f *fakeFetcher) Calls() []models.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ID(nil), f.calls...)
}

// recordingSleeper returns immediately and remembers every requested delay.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

type memoryStateStore struct {
	mu       sync.Mutex
	states   []models.SearchState
	selected []models.Region
	cleared  int
}

func (m *memoryStateStore) SaveSearchState(state models.SearchState) error {
	m.mu.Lock()
	m.states = append(m.states, state)
	m.mu.Unlock()
	return nil
}

func (m *memoryStateStore) ClearSearchState() error {
	m.mu.Lock()
	m.states = nil
	m.cleared++
	m.mu.Unlock()
	return nil
}

func (m *memoryStateStore) SaveSelectedRegions(regions []models.Region) error {
	m.mu.Lock()
	m.selected = append([]models.Region(nil), regions...)
	m.mu.Unlock()
	return nil
}

func (m *memoryStateStore) last() (models.SearchState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return models.SearchState{}, false
	}
	return m.states[len(m.states)-1], true
}

type testRig struct {
	orch    *Orchestrator
	fetcher *fakeFetcher
	clock   *fakeClock
	sleeper *recordingSleeper
	store   *memoryStateStore
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	clock := newFakeClock()
	cache, err := NewResponseCache(60*time.Second, clock.Now)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	rig := &testRig{
		fetcher: newFakeFetcher(),
		clock:   clock,
		sleeper: &recordingSleeper{},
		store:   &memoryStateStore{},
	}
	rig.orch = NewOrchestrator(OrchestratorOptions{
		Fetcher: rig.fetcher,
		Cache:   cache,
		Store:   rig.store,
		Jitter:  utils.NewJitter(800*time.Millisecond, 3*time.Second),
		Sleep:   rig.sleeper.Sleep,
		Now:     clock.Now,
	})
	t.Cleanup(func() {
		rig.orch.Close()
		cache.Close()
	})
	return rig
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the batch to finish")
	}
}

func waitStarted(t *testing.T, f *fakeFetcher, want models.ID) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case id := <-f.started:
			if id == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for fetch of region %s", want)
		}
	}
}

func region(id, name3 string) models.Region {
	return models.Region{ID: models.ID(id), Name1: "서울특별시", Name2: "강남구", Name3: name3}
}

func listing(id, title string, price int64, status string) *models.Listing {
	return &models.Listing{
		ID:       id,
		Title:    title,
		PriceRaw: price,
		Link:     "https://www.daangn.com/kr/buy-sell/" + id + "/",
		Status:   status,
	}
}

var errUpstream = errors.New("upstream unavailable")
