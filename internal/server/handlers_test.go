package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solwatch/internal/cache"
	"solwatch/internal/chain"
	"solwatch/internal/refresher"
	"solwatch/internal/storage"
)

type fakeTrigger struct {
	triggered int
	state     refresher.State
}

func (f *fakeTrigger) TriggerRefresh()          { f.triggered++ }
func (f *fakeTrigger) State() refresher.State   { return f.state }

func TestLatestSnapshotEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	LatestSnapshot(cache.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestLatestSnapshotServesCachedData(t *testing.T) {
	c := cache.New()
	c.Update(&chain.Snapshot{
		FetchedAt:  time.Now().UTC(),
		SlotHeight: 777,
		Balances:   map[string]uint64{"wallet": 42},
	})

	rec := httptest.NewRecorder()
	LatestSnapshot(c).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got chain.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.SlotHeight != 777 || got.Balances["wallet"] != 42 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestTriggerRefreshAccepted(t *testing.T) {
	trig := &fakeTrigger{}
	rec := httptest.NewRecorder()
	TriggerRefresh(trig).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if trig.triggered != 1 {
		t.Fatalf("trigger count = %d, want 1", trig.triggered)
	}
}

func TestRefreshStateReportsLastError(t *testing.T) {
	trig := &fakeTrigger{state: refresher.State{LastError: "network error: unreachable"}}
	rec := httptest.NewRecorder()
	RefreshState(trig).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	var got refresher.State
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.LastError != "network error: unreachable" {
		t.Fatalf("last_error = %q", got.LastError)
	}
	if got.InProgress {
		t.Fatal("in_progress should be false")
	}
}

type fakeSampleStore struct {
	samples []storage.SnapshotSample
	gotLimit int
}

func (f *fakeSampleStore) UpsertSample(context.Context, storage.SnapshotSample) error { return nil }
func (f *fakeSampleStore) ListSamplesBetween(context.Context, time.Time, time.Time) ([]storage.SnapshotSample, error) {
	return nil, nil
}
func (f *fakeSampleStore) ListRecentSamples(_ context.Context, limit int) ([]storage.SnapshotSample, error) {
	f.gotLimit = limit
	return f.samples, nil
}
func (f *fakeSampleStore) CountSamples(context.Context) (int64, error) { return 0, nil }
func (f *fakeSampleStore) DeleteSamplesBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestRecentSamplesWithoutStore(t *testing.T) {
	rec := httptest.NewRecorder()
	RecentSamples(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/samples", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestRecentSamplesLimit(t *testing.T) {
	store := &fakeSampleStore{samples: []storage.SnapshotSample{{
		FetchedAt:     time.Now().UTC(),
		SlotHeight:    5,
		TotalLamports: 100,
		Balances:      json.RawMessage(`{"wallet":100}`),
		Status:        "complete",
	}}}

	rec := httptest.NewRecorder()
	RecentSamples(store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/samples?limit=7", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.gotLimit != 7 {
		t.Fatalf("limit passed to store = %d, want 7", store.gotLimit)
	}

	rec = httptest.NewRecorder()
	RecentSamples(store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/samples?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d, want 400", rec.Code)
	}
}

func TestReadyFollowsCache(t *testing.T) {
	c := cache.New()

	rec := httptest.NewRecorder()
	Ready(c).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("empty cache readiness = %d, want 503", rec.Code)
	}

	c.Update(&chain.Snapshot{FetchedAt: time.Now().UTC()})
	rec = httptest.NewRecorder()
	Ready(c).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readiness after snapshot = %d, want 200", rec.Code)
	}
}
