package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"market-search/models"
	"market-search/scraper/daangn"
)

func TestStartBatchValidation(t *testing.T) {
	rig := newTestRig(t)

	tests := []struct {
		name string
		req  BatchRequest
		want error
	}{
		{"blank keyword", BatchRequest{Keyword: "   ", Regions: []models.Region{region("1", "Samseong")}}, ErrBlankKeyword},
		{"no regions", BatchRequest{Keyword: "desk"}, ErrNoRegions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rig.orch.StartBatch(tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !IsValidation(err) {
				t.Errorf("%v should be a validation error", err)
			}
		})
	}
	if calls := rig.fetcher.Calls(); len(calls) != 0 {
		t.Errorf("validation failures must not fetch, got %v", calls)
	}
	if snap := rig.orch.Snapshot(); snap.Batch != BatchIdle {
		t.Errorf("batch = %s; want idle", snap.Batch)
	}
}

func TestBatchScenarioSingleRegion(t *testing.T) {
	rig := newTestRig(t)
	samseong := region("1", "Samseong")
	desk := listing("desk-1", "oak desk", 150000, "판매중")
	desk.Price = daangn.FormatPrice(150000)
	rig.fetcher.set("1", desk)
	rig.orch.SetSelectedRegions([]models.Region{samseong})

	done, err := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{samseong}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, done)

	snap := rig.orch.Snapshot()
	if snap.Batch != BatchCompleted {
		t.Fatalf("batch = %s; want completed", snap.Batch)
	}
	st := snap.RegionStatus["1"]
	if st.Status != models.RegionCompleted || st.Error || st.CompletedAt == nil {
		t.Errorf("region status = %+v", st)
	}

	in := rig.orch.ViewInput()
	in.Options.Group = models.GroupLocation
	view := ApplyView(in)
	if len(view.Listings) != 1 {
		t.Fatalf("expected 1 visible listing, got %d", len(view.Listings))
	}
	got := view.Listings[0]
	if got.Price != "150,000원" || got.PriceRaw != 150000 || got.StatusClass != models.StatusOngoing {
		t.Errorf("listing = %q / %d / %s", got.Price, got.PriceRaw, got.StatusClass)
	}
	if len(view.Groups) != 1 || view.Groups[0].Name != "Samseong" || len(view.Groups[0].Listings) != 1 {
		t.Errorf("groups = %+v", view.Groups)
	}
}

func TestBatchFailedRegionDoesNotAbort(t *testing.T) {
	rig := newTestRig(t)
	regions := []models.Region{region("1", "Samseong"), region("2", "Yeoksam"), region("3", "Daechi")}
	rig.orch.SetSelectedRegions(regions)
	rig.fetcher.set("1", listing("a", "desk a", 1000, ""))
	rig.fetcher.fail("2", errUpstream)
	rig.fetcher.set("3", listing("c", "desk c", 3000, ""))

	done, err := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: regions})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, done)

	if got, want := rig.fetcher.Calls(), []models.ID{"1", "2", "3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("fetch order = %v; want %v", got, want)
	}
	snap := rig.orch.Snapshot()
	if st := snap.RegionStatus["2"]; st.Status != models.RegionCompleted || !st.Error {
		t.Errorf("failed region status = %+v; want completed with error", st)
	}
	if st := snap.RegionStatus["3"]; st.Status != models.RegionCompleted || st.Error {
		t.Errorf("region 3 status = %+v", st)
	}
	for _, l := range rig.orch.ViewInput().Listings {
		if l.RegionID() == "2" {
			t.Errorf("failed region contributed listing %q", l.ID)
		}
	}
	// One delay before each fetch after the first.
	if n := rig.sleeper.Count(); n != 2 {
		t.Errorf("expected 2 jitter delays, got %d", n)
	}
	for _, d := range rig.sleeper.delays {
		if d < 800*time.Millisecond || d > 3*time.Second {
			t.Errorf("delay %v outside the jitter window", d)
		}
	}
}

func TestRepeatSearchReplacesRegionListings(t *testing.T) {
	rig := newTestRig(t)
	samseong := region("1", "Samseong")
	rig.orch.SetSelectedRegions([]models.Region{samseong})
	rig.fetcher.set("1", listing("a", "a", 1, ""), listing("b", "b", 2, ""), listing("c", "c", 3, ""))

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{samseong}})
	waitDone(t, done)

	rig.clock.Advance(61 * time.Second)
	rig.fetcher.set("1", listing("d", "d", 4, ""), listing("e", "e", 5, ""))
	if err := rig.orch.RefreshOne(context.Background(), "1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if n := len(rig.orch.ViewInput().Listings); n != 2 {
		t.Errorf("aggregate has %d listings; want 2 from the second fetch", n)
	}
	if calls := rig.fetcher.Calls(); len(calls) != 2 {
		t.Errorf("expected 2 fetches, got %v", calls)
	}
}

func TestCachedRegionSkipsFetchAndRaisesNotice(t *testing.T) {
	rig := newTestRig(t)
	samseong := region("1", "Samseong")
	rig.orch.SetSelectedRegions([]models.Region{samseong})
	rig.fetcher.set("1", listing("a", "a", 1, ""))

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{samseong}})
	waitDone(t, done)

	rig.clock.Advance(59 * time.Second)
	done, err := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{samseong}})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitDone(t, done)

	if calls := rig.fetcher.Calls(); len(calls) != 1 {
		t.Errorf("cache hit must not fetch, got calls %v", calls)
	}
	if n := len(rig.orch.ViewInput().Listings); n != 1 {
		t.Errorf("cached listings not merged, got %d", n)
	}
	snap := rig.orch.Snapshot()
	if snap.Notice == nil || snap.Notice.RemainingSeconds != 1 {
		t.Fatalf("notice = %+v; want 1 second remaining", snap.Notice)
	}
	if snap.RegionStatus["1"].Status != models.RegionCompleted {
		t.Errorf("cached region should be completed, got %+v", snap.RegionStatus["1"])
	}

	rig.clock.Advance(2 * time.Second)
	done, _ = rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{samseong}})
	waitDone(t, done)
	if calls := rig.fetcher.Calls(); len(calls) != 2 {
		t.Errorf("expired entry must fetch again, got calls %v", calls)
	}
}

func TestStopAndResumeProcessesRemainingTail(t *testing.T) {
	rig := newTestRig(t)
	regions := []models.Region{region("A", "a"), region("B", "b"), region("C", "c"), region("D", "d")}
	rig.orch.SetSelectedRegions(regions)
	for _, r := range regions {
		rig.fetcher.set(r.ID, listing("item-"+string(r.ID), "desk", 100, ""))
	}
	release := rig.fetcher.gate("B")

	done, err := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: regions})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitStarted(t, rig.fetcher, "B")
	rig.orch.Stop()
	close(release)
	waitDone(t, done)

	snap := rig.orch.Snapshot()
	if snap.Batch != BatchPaused {
		t.Fatalf("batch = %s; want paused", snap.Batch)
	}
	if got := regionIDs(snap.Remaining); !reflect.DeepEqual(got, []models.ID{"C", "D"}) {
		t.Fatalf("remaining = %v; want [C D]", got)
	}
	if snap.RegionStatus["B"].Status != models.RegionCompleted {
		t.Errorf("in-flight region B should still be merged, status %+v", snap.RegionStatus["B"])
	}
	if snap.RegionStatus["C"].Status != models.RegionPending {
		t.Errorf("region C should be pending, got %+v", snap.RegionStatus["C"])
	}

	done, err = rig.orch.Resume()
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitDone(t, done)

	if got, want := rig.fetcher.Calls(), []models.ID{"A", "B", "C", "D"}; !reflect.DeepEqual(got, want) {
		t.Errorf("fetch order = %v; want %v", got, want)
	}
	if snap := rig.orch.Snapshot(); snap.Batch != BatchCompleted || snap.ListingCount != 4 {
		t.Errorf("after resume: batch %s with %d listings", snap.Batch, snap.ListingCount)
	}
}

func TestResumeRequiresPausedBatch(t *testing.T) {
	rig := newTestRig(t)
	if _, err := rig.orch.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused, got %v", err)
	}
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	rig := newTestRig(t)
	a := region("1", "Samseong")
	rig.orch.SetSelectedRegions([]models.Region{a})
	release := rig.fetcher.gate("1")

	done, err := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{a}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitStarted(t, rig.fetcher, "1")

	if _, err := rig.orch.StartBatch(BatchRequest{Keyword: "chair", Regions: []models.Region{a}}); !errors.Is(err, ErrBatchRunning) {
		t.Errorf("expected ErrBatchRunning, got %v", err)
	}
	if err := rig.orch.RefreshOne(context.Background(), "1"); !errors.Is(err, ErrRegionBusy) {
		t.Errorf("refresh during in-flight fetch: expected ErrRegionBusy, got %v", err)
	}

	close(release)
	waitDone(t, done)
}

func TestRefreshOneValidation(t *testing.T) {
	rig := newTestRig(t)
	rig.orch.SetSelectedRegions([]models.Region{region("1", "Samseong")})

	if err := rig.orch.RefreshOne(context.Background(), "1"); !errors.Is(err, ErrBlankKeyword) {
		t.Errorf("no keyword yet: expected ErrBlankKeyword, got %v", err)
	}

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{region("1", "Samseong")}})
	waitDone(t, done)

	if err := rig.orch.RefreshOne(context.Background(), "99"); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("unknown region: expected ErrUnknownRegion, got %v", err)
	}
}

func TestRefreshManyFollowsOrderAndDelays(t *testing.T) {
	rig := newTestRig(t)
	regions := []models.Region{region("1", "Samseong"), region("2", "Yeoksam"), region("3", "Daechi")}
	rig.orch.SetSelectedRegions(regions)

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: regions[:1]})
	waitDone(t, done)
	delaysBefore := rig.sleeper.Count()

	done, err := rig.orch.RefreshMany([]models.ID{"3", "2"})
	if err != nil {
		t.Fatalf("refresh many: %v", err)
	}
	waitDone(t, done)

	if got, want := rig.fetcher.Calls(), []models.ID{"1", "3", "2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("fetch order = %v; want %v", got, want)
	}
	if n := rig.sleeper.Count() - delaysBefore; n != 1 {
		t.Errorf("expected 1 delay between two fetches, got %d", n)
	}

	if _, err := rig.orch.RefreshMany([]models.ID{"1", "42"}); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("expected ErrUnknownRegion, got %v", err)
	}
}

func TestRemoveRegionDropsItsListings(t *testing.T) {
	rig := newTestRig(t)
	regions := []models.Region{region("1", "Samseong"), region("2", "Yeoksam")}
	rig.orch.SetSelectedRegions(regions)
	rig.fetcher.set("1", listing("a", "a", 1, ""))
	rig.fetcher.set("2", listing("b", "b", 2, ""))

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: regions})
	waitDone(t, done)

	if err := rig.orch.RemoveRegion("1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	in := rig.orch.ViewInput()
	if len(in.Listings) != 1 || in.Listings[0].RegionID() != "2" {
		t.Errorf("listings after remove = %d", len(in.Listings))
	}
	if _, ok := rig.orch.Snapshot().RegionStatus["1"]; ok {
		t.Error("status of removed region should be gone")
	}
	if err := rig.orch.RemoveRegion("1"); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("second remove: expected ErrUnknownRegion, got %v", err)
	}
	if got := rig.store.selected; len(got) != 1 || got[0].ID != "2" {
		t.Errorf("persisted selection = %+v", got)
	}
}

func TestAddRegionDeduplicates(t *testing.T) {
	rig := newTestRig(t)
	added, err := rig.orch.AddRegion(region("1", "Samseong"))
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = rig.orch.AddRegion(region("1", "Samseong"))
	if err != nil || added {
		t.Fatalf("second add: added=%v err=%v", added, err)
	}
	if n := len(rig.orch.SelectedRegions()); n != 1 {
		t.Errorf("selected = %d; want 1", n)
	}
}

func TestNeedsBroaderSearch(t *testing.T) {
	rig := newTestRig(t)
	a := region("1", "Samseong")
	rig.orch.SetSelectedRegions([]models.Region{a})

	if rig.orch.NeedsBroaderSearch(models.AllStatusClasses) {
		t.Error("no search yet should not require a broader search")
	}

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", OnlyOnSale: true, Regions: []models.Region{a}})
	waitDone(t, done)

	if rig.orch.NeedsBroaderSearch([]models.StatusClass{models.StatusOngoing}) {
		t.Error("ongoing-only view is covered by an on-sale search")
	}
	if !rig.orch.NeedsBroaderSearch([]models.StatusClass{models.StatusOngoing, models.StatusSold}) {
		t.Error("a view including sold items needs an unfiltered search")
	}

	rig.clock.Advance(61 * time.Second)
	done, _ = rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{a}})
	waitDone(t, done)
	if rig.orch.NeedsBroaderSearch(models.AllStatusClasses) {
		t.Error("unfiltered search covers every status")
	}
}

func TestCheckpointAfterEachRegion(t *testing.T) {
	rig := newTestRig(t)
	regions := []models.Region{region("1", "Samseong"), region("2", "Yeoksam")}
	rig.orch.SetSelectedRegions(regions)
	rig.fetcher.set("1", listing("a", "a", 1, ""))
	rig.fetcher.set("2", listing("b", "b", 2, ""))

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: regions})
	waitDone(t, done)

	state, ok := rig.store.last()
	if !ok {
		t.Fatal("expected a saved search state")
	}
	if state.Keyword != "desk" || len(state.Listings) != 2 || len(state.SelectedRegions) != 2 {
		t.Errorf("checkpoint = keyword %q, %d listings, %d regions", state.Keyword, len(state.Listings), len(state.SelectedRegions))
	}

	restored := newTestRig(t)
	restored.orch.Restore(&state, nil)
	snap := restored.orch.Snapshot()
	if snap.Keyword != "desk" || snap.ListingCount != 2 || len(snap.SelectedRegions) != 2 {
		t.Errorf("restored snapshot = %+v", snap)
	}
}

func TestSubscribeReceivesStatusEvents(t *testing.T) {
	rig := newTestRig(t)
	a := region("1", "Samseong")
	rig.orch.SetSelectedRegions([]models.Region{a})
	events, cancel := rig.orch.Subscribe()
	defer cancel()

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{a}})
	waitDone(t, done)

	var sawLoading, sawCompleted, sawBatchDone bool
	timeout := time.After(2 * time.Second)
	for !(sawLoading && sawCompleted && sawBatchDone) {
		select {
		case ev := <-events:
			switch {
			case ev.Type == EventRegionStatus && ev.Status.Status == models.RegionLoading:
				sawLoading = true
			case ev.Type == EventRegionStatus && ev.Status.Status == models.RegionCompleted:
				sawCompleted = true
			case ev.Type == EventBatch && ev.Batch == BatchCompleted:
				sawBatchDone = true
			}
		case <-timeout:
			t.Fatalf("missing events: loading=%v completed=%v batch=%v", sawLoading, sawCompleted, sawBatchDone)
		}
	}
}

func TestSetActiveRegions(t *testing.T) {
	rig := newTestRig(t)
	a, b := region("1", "Samseong"), region("2", "Yeoksam")
	rig.orch.SetSelectedRegions([]models.Region{a, b})

	tests := []struct {
		name string
		ids  []models.ID
		want []models.ID
	}{
		{"subset", []models.ID{"2"}, []models.ID{"2"}},
		{"unknown ids dropped", []models.ID{"9", "1", "1"}, []models.ID{"1"}},
		{"empty hides all", []models.ID{}, []models.ID{}},
		{"nil restores selection", nil, []models.ID{"1", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig.orch.SetActiveRegions(tt.ids)
			got := rig.orch.Snapshot().ActiveRegionIDs
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("active = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestRemoveRegionDuringFetchDiscardsResult(t *testing.T) {
	rig := newTestRig(t)
	regions := []models.Region{region("A", "a"), region("B", "b")}
	rig.orch.SetSelectedRegions(regions)
	rig.fetcher.set("A", listing("item-a", "desk", 100, ""))
	rig.fetcher.set("B", listing("item-b", "desk", 200, ""))
	release := rig.fetcher.gate("A")

	done, err := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: regions})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitStarted(t, rig.fetcher, "A")

	snap := rig.orch.Snapshot()
	if snap.InFlight != 1 || snap.FreshnessSec != 60 {
		t.Errorf("in flight %d, freshness %ds; want 1 and 60", snap.InFlight, snap.FreshnessSec)
	}

	if err := rig.orch.RemoveRegion("A"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	close(release)
	waitDone(t, done)

	snap = rig.orch.Snapshot()
	if _, ok := snap.RegionStatus["A"]; ok {
		t.Errorf("removed region A got a status back: %+v", snap.RegionStatus["A"])
	}
	if snap.ListingCount != 1 {
		t.Errorf("listing count = %d; want 1 (region B only)", snap.ListingCount)
	}
	for _, l := range rig.orch.ViewInput().Listings {
		if l.RegionID() == "A" {
			t.Errorf("listing %s of removed region A was merged", l.ID)
		}
	}
	last, ok := rig.store.last()
	if !ok {
		t.Fatal("expected a checkpoint")
	}
	for _, l := range last.Listings {
		if l.RegionID() == "A" {
			t.Errorf("checkpoint kept listing %s of removed region A", l.ID)
		}
	}
}

func TestNewBatchSupersedesGroupRefresh(t *testing.T) {
	rig := newTestRig(t)
	regions := []models.Region{region("1", "Samseong"), region("2", "Yeoksam"), region("3", "Daechi")}
	rig.orch.SetSelectedRegions(regions)
	for _, r := range regions {
		rig.fetcher.set(r.ID, listing("item-"+string(r.ID), "desk", 100, ""))
	}

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: regions[:1]})
	waitDone(t, done)

	release := rig.fetcher.gate("2")
	refreshed, err := rig.orch.RefreshMany([]models.ID{"2", "3"})
	if err != nil {
		t.Fatalf("refresh many: %v", err)
	}
	waitStarted(t, rig.fetcher, "2")

	done, err = rig.orch.StartBatch(BatchRequest{Keyword: "chair", Regions: regions[:1]})
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	waitDone(t, done)
	close(release)
	waitDone(t, refreshed)

	snap := rig.orch.Snapshot()
	if snap.Keyword != "chair" {
		t.Fatalf("keyword = %q", snap.Keyword)
	}
	if _, ok := snap.RegionStatus["2"]; ok {
		t.Errorf("stale refresh of region 2 left status %+v", snap.RegionStatus["2"])
	}
	in := rig.orch.ViewInput()
	if len(in.Listings) != 1 || in.Listings[0].RegionID() != "1" {
		t.Errorf("listings = %d; want only region 1 from the chair search", len(in.Listings))
	}
	if got, want := rig.fetcher.Calls(), []models.ID{"1", "2", "1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("fetch order = %v; want %v (region 3 must not be fetched)", got, want)
	}
}

func TestResetClearsSearch(t *testing.T) {
	rig := newTestRig(t)
	a := region("1", "Samseong")
	rig.orch.SetSelectedRegions([]models.Region{a})
	rig.fetcher.set("1", listing("item-1", "desk", 100, ""))

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{a}})
	waitDone(t, done)
	waitStarted(t, rig.fetcher, "1")

	// A refresh still in flight when the search is reset must not land.
	release := rig.fetcher.gate("1")
	rig.clock.Advance(2 * time.Minute)
	refreshed := make(chan error, 1)
	go func() { refreshed <- rig.orch.RefreshOne(context.Background(), "1") }()
	waitStarted(t, rig.fetcher, "1")

	if err := rig.orch.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	close(release)
	if err := <-refreshed; err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap := rig.orch.Snapshot()
	if snap.Keyword != "" || snap.Batch != BatchIdle || snap.ListingCount != 0 || len(snap.RegionStatus) != 0 {
		t.Errorf("after reset: %+v", snap)
	}
	if len(snap.SelectedRegions) != 1 {
		t.Errorf("selection should survive a reset, got %v", snap.SelectedRegions)
	}
	if rig.store.cleared != 1 {
		t.Errorf("saved state cleared %d times; want 1", rig.store.cleared)
	}
	if err := rig.orch.RefreshOne(context.Background(), "1"); !errors.Is(err, ErrBlankKeyword) {
		t.Errorf("refresh after reset: expected ErrBlankKeyword, got %v", err)
	}
}

func TestResetRejectedWhileRunning(t *testing.T) {
	rig := newTestRig(t)
	a := region("1", "Samseong")
	rig.orch.SetSelectedRegions([]models.Region{a})
	release := rig.fetcher.gate("1")

	done, _ := rig.orch.StartBatch(BatchRequest{Keyword: "desk", Regions: []models.Region{a}})
	waitStarted(t, rig.fetcher, "1")
	if err := rig.orch.Reset(); !errors.Is(err, ErrBatchRunning) {
		t.Errorf("expected ErrBatchRunning, got %v", err)
	}
	close(release)
	waitDone(t, done)
}
