package services

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"market-search/models"
	"market-search/utils"
)

// Fetcher performs the upstream search for one region. On failure it returns
// an empty slice together with the error.
type Fetcher interface {
	FetchRegion(ctx context.Context, region models.Region, keyword string, onlyOnSale bool) ([]*models.Listing, error)
}

// StateStore receives checkpoints of the orchestrator state.
type StateStore interface {
	SaveSearchState(state models.SearchState) error
	ClearSearchState() error
	SaveSelectedRegions(regions []models.Region) error
}

// BatchState is the lifecycle of the current multi-region search.
type BatchState string

const (
	BatchIdle      BatchState = "idle"
	BatchRunning   BatchState = "running"
	BatchPaused    BatchState = "paused"
	BatchCompleted BatchState = "completed"
)

// SleepFunc waits for d, returning early when wake fires.
type SleepFunc func(ctx context.Context, d time.Duration, wake <-chan struct{}) error

// BatchRequest starts a search over Regions in the given order.
type BatchRequest struct {
	Keyword    string
	OnlyOnSale bool
	Regions    []models.Region
}

// Snapshot is a read-only copy of the orchestrator state.
type Snapshot struct {
	Keyword         string                            `json:"keyword"`
	Batch           BatchState                        `json:"batch"`
	Filter          models.SearchFilter               `json:"filter"`
	SelectedRegions []models.Region                   `json:"selectedRegions"`
	ActiveRegionIDs []models.ID                       `json:"activeRegionIds"`
	RegionStatus    map[models.ID]models.RegionStatus `json:"regionStatus"`
	Remaining       []models.Region                   `json:"remaining"`
	ListingCount    int                               `json:"listingCount"`
	InFlight        int                               `json:"inFlight"`
	FreshnessSec    int                               `json:"freshnessSeconds"`
	Notice          *RateLimitNotice                  `json:"notice,omitempty"`
}

// searchTicket pins one region step to the search it was started for. A
// result whose ticket is out of date when it lands is discarded.
type searchTicket struct {
	keyword    string
	filter     models.SearchFilter
	generation uint64
	epoch      uint64
}

// OrchestratorOptions wires an Orchestrator. Only Fetcher and Cache are
// required.
type OrchestratorOptions struct {
	Fetcher Fetcher
	Cache   *ResponseCache
	Store   StateStore
	Jitter  *utils.Jitter
	Sleep   SleepFunc
	Now     func() time.Time
	Logger  utils.Logger
}

// Orchestrator runs sequential multi-region searches and owns the aggregate
// result set and the per-region status map. Every mutation goes through its
// methods; readers get copies.
type Orchestrator struct {
	fetcher  Fetcher
	cache    *ResponseCache
	store    StateStore
	jitter   *utils.Jitter
	sleep    SleepFunc
	now      func() time.Time
	logger   utils.Logger
	cleaner  *Cleaner
	notices  *NoticeBoard
	inflight *utils.KeySet
	events   *eventHub

	ctx    context.Context
	cancel context.CancelFunc
	saveMu sync.Mutex

	mu        sync.Mutex
	keyword   string
	filter    models.SearchFilter
	selected  []models.Region
	active    []models.ID
	view      models.ViewOptions
	listings  []*models.Listing
	status    map[models.ID]models.RegionStatus
	batch     BatchState
	queue     []models.Region
	cursor    int
	cancelled bool
	wake      chan struct{}
	// generation changes on every new batch and on reset; epochs change
	// per region when it leaves the selection.
	generation uint64
	epochs     map[models.ID]uint64
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = utils.NopLogger{}
	}
	if opts.Jitter == nil {
		opts.Jitter = utils.NewJitter(800*time.Millisecond, 3*time.Second)
	}
	if opts.Sleep == nil {
		opts.Sleep = utils.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		fetcher:  opts.Fetcher,
		cache:    opts.Cache,
		store:    opts.Store,
		jitter:   opts.Jitter,
		sleep:    opts.Sleep,
		now:      opts.Now,
		logger:   opts.Logger.WithFields(utils.Fields{"component": "orchestrator"}),
		cleaner:  NewCleaner(opts.Logger),
		inflight: utils.NewKeySet(),
		events:   newEventHub(),
		ctx:      ctx,
		cancel:   cancel,
		view:     models.DefaultViewOptions(),
		status:   make(map[models.ID]models.RegionStatus),
		epochs:   make(map[models.ID]uint64),
		batch:    BatchIdle,
		wake:     make(chan struct{}, 1),
	}
	o.notices = NewNoticeBoard(opts.Now, func(n *RateLimitNotice) {
		o.events.publish(Event{Type: EventNotice, Notice: n})
	})
	return o
}

// Close stops background work. In-flight fetches see a cancelled context.
func (o *Orchestrator) Close() {
	o.cancel()
	o.notices.Clear()
	o.events.closeAll()
}

// Restore loads a persisted checkpoint. Regions left loading by a previous
// process are reset to pending.
func (o *Orchestrator) Restore(state *models.SearchState, selected []models.Region) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(selected) > 0 {
		o.selected = dedupeRegions(selected)
		o.active = regionIDs(o.selected)
	}
	if state == nil {
		return
	}
	o.keyword = state.Keyword
	o.filter = state.BatchFilter
	o.listings = append([]*models.Listing(nil), state.Listings...)
	if len(state.Filters.Statuses) > 0 || state.Filters.ExclusionMode != "" {
		o.view = state.Filters
	}
	if len(o.selected) == 0 && len(state.SelectedRegions) > 0 {
		o.selected = dedupeRegions(state.SelectedRegions)
	}
	if state.ActiveRegionIDs != nil {
		o.active = append([]models.ID{}, state.ActiveRegionIDs...)
	} else {
		o.active = regionIDs(o.selected)
	}
	o.status = make(map[models.ID]models.RegionStatus, len(state.RegionStatus))
	for id, st := range state.RegionStatus {
		if st.Status == models.RegionLoading {
			st = models.RegionStatus{Status: models.RegionPending}
		}
		o.status[id] = st
	}
	o.logger.Info("search state restored", utils.Fields{
		"keyword":  o.keyword,
		"listings": len(o.listings),
		"regions":  len(o.selected),
	})
}

// Subscribe returns a channel of state changes and a function to stop
// receiving them. Slow subscribers miss events rather than block.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	return o.events.subscribe()
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	snap := Snapshot{
		Keyword:         o.keyword,
		Batch:           o.batch,
		Filter:          o.filter,
		SelectedRegions: append([]models.Region{}, o.selected...),
		ActiveRegionIDs: append([]models.ID{}, o.active...),
		RegionStatus:    copyStatus(o.status),
		Remaining:       []models.Region{},
		ListingCount:    len(o.listings),
		InFlight:        o.inflight.Size(),
		FreshnessSec:    int(o.cache.Window().Seconds()),
	}
	if o.batch == BatchRunning || o.batch == BatchPaused {
		snap.Remaining = append(snap.Remaining, o.queue[o.cursor:]...)
	}
	o.mu.Unlock()
	snap.Notice = o.notices.Current()
	return snap
}

// ViewInput returns the aggregate and selection needed to compute a view.
// The listing pointers are shared; listings are never mutated after merge.
func (o *Orchestrator) ViewInput() ViewInput {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ViewInput{
		Listings:        append([]*models.Listing{}, o.listings...),
		SelectedRegions: append([]models.Region{}, o.selected...),
		ActiveRegionIDs: append([]models.ID{}, o.active...),
		Options:         o.view,
	}
}

// ViewOptions returns the saved view configuration.
func (o *Orchestrator) ViewOptions() models.ViewOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view
}

// SetViewOptions replaces the saved view configuration.
func (o *Orchestrator) SetViewOptions(opts models.ViewOptions) {
	o.mu.Lock()
	o.view = opts
	o.mu.Unlock()
	o.checkpoint()
}

// NeedsBroaderSearch reports whether the aggregate was fetched with a status
// filter narrower than statuses, so a fresh unfiltered batch is needed before
// a view over statuses can be trusted.
func (o *Orchestrator) NeedsBroaderSearch(statuses []models.StatusClass) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.keyword == "" {
		return false
	}
	return !o.filter.Covers(statuses)
}

// --- region selection --------------------------------------------------------

// SelectedRegions returns the selection in order.
func (o *Orchestrator) SelectedRegions() []models.Region {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Region{}, o.selected...)
}

// AddRegion appends region to the selection and activates it. Adding a
// region already selected is a no-op.
func (o *Orchestrator) AddRegion(region models.Region) (bool, error) {
	if region.ID == "" {
		return false, ErrUnknownRegion
	}
	o.mu.Lock()
	if indexOfRegion(o.selected, region.ID) >= 0 {
		o.mu.Unlock()
		return false, nil
	}
	o.selected = append(o.selected, region)
	if !slices.Contains(o.active, region.ID) {
		o.active = append(o.active, region.ID)
	}
	selected := append([]models.Region(nil), o.selected...)
	o.mu.Unlock()

	o.logger.Info("region added", utils.Fields{"region_id": region.ID.String(), "region": region.Name3})
	return true, o.saveSelection(selected)
}

// RemoveRegion drops a region from the selection together with its listings
// and status. A pending batch will no longer visit it.
func (o *Orchestrator) RemoveRegion(id models.ID) error {
	o.mu.Lock()
	idx := indexOfRegion(o.selected, id)
	if idx < 0 {
		o.mu.Unlock()
		return ErrUnknownRegion
	}
	o.selected = slices.Delete(o.selected, idx, idx+1)
	o.dropRegionsLocked(map[models.ID]struct{}{id: {}})
	selected := append([]models.Region(nil), o.selected...)
	o.mu.Unlock()

	o.logger.Info("region removed", utils.Fields{"region_id": id.String()})
	o.events.publish(Event{Type: EventListings})
	o.checkpoint()
	return o.saveSelection(selected)
}

// SetSelectedRegions replaces the selection. All new regions are active;
// regions no longer selected lose their listings and status.
func (o *Orchestrator) SetSelectedRegions(regions []models.Region) error {
	regions = dedupeRegions(regions)

	o.mu.Lock()
	keep := make(map[models.ID]struct{}, len(regions))
	for _, r := range regions {
		keep[r.ID] = struct{}{}
	}
	gone := make(map[models.ID]struct{})
	for _, r := range o.selected {
		if _, ok := keep[r.ID]; !ok {
			gone[r.ID] = struct{}{}
		}
	}
	o.selected = regions
	o.active = regionIDs(regions)
	if len(gone) > 0 {
		o.dropRegionsLocked(gone)
	}
	selected := append([]models.Region(nil), o.selected...)
	o.mu.Unlock()

	o.events.publish(Event{Type: EventListings})
	o.checkpoint()
	return o.saveSelection(selected)
}

// SetActiveRegions chooses which selected regions contribute to the view.
// Unknown ids are ignored; nil makes every selected region active.
func (o *Orchestrator) SetActiveRegions(ids []models.ID) {
	o.mu.Lock()
	if ids == nil {
		ids = regionIDs(o.selected)
	}
	active := make([]models.ID, 0, len(ids))
	for _, id := range ids {
		if indexOfRegion(o.selected, id) >= 0 && !slices.Contains(active, id) {
			active = append(active, id)
		}
	}
	o.active = active
	o.mu.Unlock()
	o.checkpoint()
}

// Groups buckets the selection for per-group refresh.
func (o *Orchestrator) Groups() []models.RegionGroup {
	return models.GroupRegions(o.SelectedRegions())
}

func (o *Orchestrator) dropRegionsLocked(ids map[models.ID]struct{}) {
	o.listings = slices.DeleteFunc(slices.Clone(o.listings), func(l *models.Listing) bool {
		_, ok := ids[l.RegionID()]
		return ok
	})
	o.active = slices.DeleteFunc(o.active, func(id models.ID) bool {
		_, ok := ids[id]
		return ok
	})
	for id := range ids {
		delete(o.status, id)
		o.epochs[id]++
	}
	if o.batch == BatchRunning || o.batch == BatchPaused {
		tail := slices.DeleteFunc(slices.Clone(o.queue[o.cursor:]), func(r models.Region) bool {
			_, ok := ids[r.ID]
			return ok
		})
		o.queue = append(slices.Clone(o.queue[:o.cursor]), tail...)
	}
}

// --- batch -------------------------------------------------------------------

// StartBatch validates req and begins processing its regions in order. The
// returned channel closes when the batch pauses or completes.
func (o *Orchestrator) StartBatch(req BatchRequest) (<-chan struct{}, error) {
	keyword := strings.TrimSpace(req.Keyword)
	if keyword == "" {
		return nil, ErrBlankKeyword
	}
	regions := dedupeRegions(req.Regions)
	if len(regions) == 0 {
		return nil, ErrNoRegions
	}

	o.mu.Lock()
	if o.batch == BatchRunning {
		o.mu.Unlock()
		return nil, ErrBatchRunning
	}
	o.generation++
	o.keyword = keyword
	o.filter = models.SearchFilter{OnlyOnSale: req.OnlyOnSale}
	o.queue = regions
	o.cursor = 0
	o.cancelled = false
	o.listings = nil
	o.status = make(map[models.ID]models.RegionStatus, len(regions))
	for _, r := range regions {
		o.status[r.ID] = models.RegionStatus{Status: models.RegionPending}
	}
	o.batch = BatchRunning
	drainWake(o.wake)
	done := make(chan struct{})
	o.mu.Unlock()

	o.logger.Info("search batch started", utils.Fields{
		"keyword":      keyword,
		"regions":      len(regions),
		"only_on_sale": req.OnlyOnSale,
	})
	o.events.publish(Event{Type: EventBatch, Batch: BatchRunning})
	o.events.publish(Event{Type: EventListings})

	go o.runBatch(done, false)
	return done, nil
}

// Stop asks the running batch to pause before its next region. A fetch
// already in flight completes and is merged.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.batch != BatchRunning {
		return
	}
	o.cancelled = true
	select {
	case o.wake <- struct{}{}:
	default:
	}
	o.logger.Info("search batch stop requested", utils.Fields{"remaining": len(o.queue) - o.cursor})
}

// Resume continues a paused batch with exactly the regions it had not
// started.
func (o *Orchestrator) Resume() (<-chan struct{}, error) {
	o.mu.Lock()
	if o.batch != BatchPaused {
		o.mu.Unlock()
		return nil, ErrNotPaused
	}
	o.cancelled = false
	o.batch = BatchRunning
	drainWake(o.wake)
	remaining := len(o.queue) - o.cursor
	done := make(chan struct{})
	o.mu.Unlock()

	o.logger.Info("search batch resumed", utils.Fields{"remaining": remaining})
	o.events.publish(Event{Type: EventBatch, Batch: BatchRunning})

	go o.runBatch(done, false)
	return done, nil
}

// runBatch is the sequential loop. needDelay is set after every network
// fetch so the next fetch waits a jittered delay; cache hits cost nothing.
func (o *Orchestrator) runBatch(done chan struct{}, needDelay bool) {
	defer close(done)

	for {
		o.mu.Lock()
		if o.cancelled || o.ctx.Err() != nil {
			o.finishLocked(BatchPaused)
			return
		}
		if o.cursor >= len(o.queue) {
			o.finishLocked(BatchCompleted)
			return
		}
		region := o.queue[o.cursor]
		key := CacheKey(region.ID, o.keyword, o.filter)
		o.mu.Unlock()

		if needDelay && !o.cache.Fresh(key) {
			needDelay = false
			delay := o.jitter.Next()
			o.logger.Debug("waiting before next region", utils.Fields{"delay_ms": delay.Milliseconds()})
			// Stop wakes the sleep; the top of the loop sees the flag
			// before the region is committed.
			_ = o.sleep(o.ctx, delay, o.wake)
			continue
		}

		o.mu.Lock()
		// The queue may have changed while unlocked.
		if o.cancelled || o.cursor >= len(o.queue) || o.queue[o.cursor].ID != region.ID {
			o.mu.Unlock()
			continue
		}
		// The region is committed once the cursor moves past it.
		o.cursor++
		ticket := o.ticketLocked(region.ID)
		o.mu.Unlock()

		fetched, err := o.processRegion(o.ctx, region, ticket)
		if err != nil {
			o.logger.Warn("region skipped", utils.Fields{"region_id": region.ID.String(), "reason": err.Error()})
			continue
		}
		if fetched {
			needDelay = true
		}
	}
}

// finishLocked records the end of a loop run and releases o.mu.
func (o *Orchestrator) finishLocked(state BatchState) {
	o.batch = state
	o.cancelled = false
	remaining := len(o.queue) - o.cursor
	o.mu.Unlock()

	o.logger.Info("search batch "+string(state), utils.Fields{"remaining": remaining})
	o.events.publish(Event{Type: EventBatch, Batch: state})
	o.checkpoint()
}

// Reset forgets the current search: keyword, aggregate, region statuses and
// any paused tail. The selection and view options stay. Results still in
// flight are discarded when they land.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.batch == BatchRunning {
		o.mu.Unlock()
		return ErrBatchRunning
	}
	o.generation++
	o.keyword = ""
	o.filter = models.SearchFilter{}
	o.listings = nil
	o.status = make(map[models.ID]models.RegionStatus)
	o.queue = nil
	o.cursor = 0
	o.cancelled = false
	o.batch = BatchIdle
	o.mu.Unlock()

	o.notices.Clear()
	o.logger.Info("search state cleared", nil)
	o.events.publish(Event{Type: EventBatch, Batch: BatchIdle})
	o.events.publish(Event{Type: EventListings})

	if o.store == nil {
		return nil
	}
	o.saveMu.Lock()
	defer o.saveMu.Unlock()
	if err := o.store.ClearSearchState(); err != nil {
		o.logger.Error("failed to clear search state", err, nil)
		return err
	}
	return nil
}

// --- refresh -----------------------------------------------------------------

// RefreshOne re-searches one selected region with the current keyword and
// filter, outside the batch loop.
func (o *Orchestrator) RefreshOne(ctx context.Context, id models.ID) error {
	region, ticket, err := o.refreshTarget(id)
	if err != nil {
		return err
	}
	_, err = o.processRegion(ctx, region, ticket)
	return err
}

// RefreshMany re-searches the given selected regions in order, with the same
// cache and delay rules as a batch but independent of it. A new batch or a
// reset ends the run early. The returned channel closes when the run ends.
func (o *Orchestrator) RefreshMany(ids []models.ID) (<-chan struct{}, error) {
	if len(ids) == 0 {
		return nil, ErrNoRegions
	}
	regions := make([]models.Region, 0, len(ids))
	var generation uint64
	for _, id := range ids {
		r, t, err := o.refreshTarget(id)
		if err != nil {
			return nil, err
		}
		if indexOfRegion(regions, r.ID) < 0 {
			regions = append(regions, r)
		}
		generation = t.generation
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		needDelay := false
		for _, region := range regions {
			if o.ctx.Err() != nil {
				return
			}
			_, ticket, err := o.refreshTarget(region.ID)
			if err != nil {
				o.logger.Warn("region skipped", utils.Fields{"region_id": region.ID.String(), "reason": err.Error()})
				continue
			}
			if ticket.generation != generation {
				o.logger.Info("group refresh superseded by a new search", utils.Fields{"region_id": region.ID.String()})
				return
			}
			if o.inflight.Contains(string(region.ID)) {
				o.logger.Warn("region skipped", utils.Fields{"region_id": region.ID.String(), "reason": ErrRegionBusy.Error()})
				continue
			}
			if needDelay && !o.cache.Fresh(CacheKey(region.ID, ticket.keyword, ticket.filter)) {
				if err := o.sleep(o.ctx, o.jitter.Next(), nil); err != nil {
					return
				}
				// The search may have moved on during the delay.
				if _, ticket, err = o.refreshTarget(region.ID); err != nil || ticket.generation != generation {
					continue
				}
			}
			fetched, err := o.processRegion(o.ctx, region, ticket)
			if err != nil {
				o.logger.Warn("region skipped", utils.Fields{"region_id": region.ID.String(), "reason": err.Error()})
			}
			needDelay = fetched
		}
		o.logger.Info("group refresh finished", utils.Fields{"regions": len(regions)})
	}()
	return done, nil
}

func (o *Orchestrator) refreshTarget(id models.ID) (models.Region, searchTicket, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if strings.TrimSpace(o.keyword) == "" {
		return models.Region{}, searchTicket{}, ErrBlankKeyword
	}
	idx := indexOfRegion(o.selected, id)
	if idx < 0 {
		return models.Region{}, searchTicket{}, ErrUnknownRegion
	}
	return o.selected[idx], o.ticketLocked(id), nil
}

func (o *Orchestrator) ticketLocked(id models.ID) searchTicket {
	return searchTicket{keyword: o.keyword, filter: o.filter, generation: o.generation, epoch: o.epochs[id]}
}

func (o *Orchestrator) currentLocked(id models.ID, t searchTicket) bool {
	return t.generation == o.generation && t.epoch == o.epochs[id]
}

// --- per-region step ---------------------------------------------------------

// processRegion serves region from the cache or fetches it, then merges the
// result. It reports whether a network request was made. The only error is
// ErrRegionBusy; fetch failures are recorded on the region status.
func (o *Orchestrator) processRegion(ctx context.Context, region models.Region, t searchTicket) (bool, error) {
	key := CacheKey(region.ID, t.keyword, t.filter)
	log := o.logger.WithFields(utils.Fields{"region_id": region.ID.String(), "region": region.Name3})

	if items, remaining, ok := o.cache.Get(key); ok {
		log.Info("serving region from cache", utils.Fields{"remaining_s": int(remaining.Seconds())})
		if o.merge(region, items, false, t) {
			o.notices.Raise(region, remaining)
		}
		return false, nil
	}

	if !o.inflight.Add(string(region.ID)) {
		return false, ErrRegionBusy
	}
	defer o.inflight.Remove(string(region.ID))

	if !o.setStatus(region.ID, models.RegionStatus{Status: models.RegionLoading}, t) {
		return false, nil
	}

	items, err := o.fetcher.FetchRegion(ctx, region, t.keyword, t.filter.OnlyOnSale)
	items = o.cleaner.Clean(items)
	if err != nil {
		log.Error("region fetch failed", err, nil)
		items = []*models.Listing{}
	} else {
		o.cache.Put(key, items)
	}
	o.merge(region, items, err != nil, t)
	return true, nil
}

// merge replaces region's contribution to the aggregate and marks it
// completed. It reports false and drops the result when the region was
// deselected or a new search started since t was issued.
func (o *Orchestrator) merge(region models.Region, items []*models.Listing, failed bool, t searchTicket) bool {
	completedAt := o.now()
	st := models.RegionStatus{Status: models.RegionCompleted, CompletedAt: &completedAt, Error: failed}

	o.mu.Lock()
	if !o.currentLocked(region.ID, t) {
		o.mu.Unlock()
		o.logger.Debug("discarding outdated region result", utils.Fields{"region_id": region.ID.String(), "keyword": t.keyword})
		return false
	}
	kept := make([]*models.Listing, 0, len(o.listings)+len(items))
	for _, l := range o.listings {
		if l.RegionID() != region.ID {
			kept = append(kept, l)
		}
	}
	o.listings = append(kept, items...)
	o.status[region.ID] = st
	o.mu.Unlock()

	o.events.publish(Event{Type: EventRegionStatus, RegionID: region.ID, Status: &st})
	o.events.publish(Event{Type: EventListings})
	o.checkpoint()
	return true
}

func (o *Orchestrator) setStatus(id models.ID, st models.RegionStatus, t searchTicket) bool {
	o.mu.Lock()
	if !o.currentLocked(id, t) {
		o.mu.Unlock()
		return false
	}
	o.status[id] = st
	o.mu.Unlock()
	o.events.publish(Event{Type: EventRegionStatus, RegionID: id, Status: &st})
	return true
}

// --- persistence -------------------------------------------------------------

func (o *Orchestrator) checkpoint() {
	if o.store == nil {
		return
	}
	o.saveMu.Lock()
	defer o.saveMu.Unlock()

	o.mu.Lock()
	state := models.SearchState{
		Keyword:         o.keyword,
		Listings:        append([]*models.Listing{}, o.listings...),
		Filters:         o.view,
		BatchFilter:     o.filter,
		ActiveRegionIDs: append([]models.ID{}, o.active...),
		RegionStatus:    copyStatus(o.status),
		SelectedRegions: append([]models.Region{}, o.selected...),
	}
	o.mu.Unlock()

	if err := o.store.SaveSearchState(state); err != nil {
		o.logger.Error("failed to save search state", err, nil)
	}
}

func (o *Orchestrator) saveSelection(regions []models.Region) error {
	if o.store == nil {
		return nil
	}
	if err := o.store.SaveSelectedRegions(regions); err != nil {
		o.logger.Error("failed to save selected regions", err, utils.Fields{"count": len(regions)})
		return err
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

func indexOfRegion(regions []models.Region, id models.ID) int {
	return slices.IndexFunc(regions, func(r models.Region) bool { return r.ID == id })
}

func dedupeRegions(regions []models.Region) []models.Region {
	out := make([]models.Region, 0, len(regions))
	for _, r := range regions {
		if r.ID == "" || indexOfRegion(out, r.ID) >= 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

func regionIDs(regions []models.Region) []models.ID {
	ids := make([]models.ID, 0, len(regions))
	for _, r := range regions {
		ids = append(ids, r.ID)
	}
	return ids
}

func copyStatus(in map[models.ID]models.RegionStatus) map[models.ID]models.RegionStatus {
	out := make(map[models.ID]models.RegionStatus, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func drainWake(wake chan struct{}) {
	select {
	case <-wake:
	default:
	}
}
