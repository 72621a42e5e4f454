package analytics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Recording
// ---------------------------------------------------------------------------

func TestQueryTracker_Record(t *testing.T) {
	tracker := NewQueryTracker(1000)
	tracker.Record(QueryMetric{
		Timestamp: time.Now(),
		Kind:      KindAutocomplete,
		Query:     "vata",
		Hits:      3,
		Duration:  2 * time.Millisecond,
	})

	overview := tracker.GetOverview()
	if overview.TotalQueries != 1 {
		t.Fatalf("expected TotalQueries=1, got %d", overview.TotalQueries)
	}
	if overview.ZeroResultRate != 0 {
		t.Fatalf("expected ZeroResultRate=0, got %f", overview.ZeroResultRate)
	}
	if overview.DistinctQueries != 1 {
		t.Fatalf("expected DistinctQueries=1, got %d", overview.DistinctQueries)
	}
	if overview.AvgLatency != 2*time.Millisecond {
		t.Fatalf("expected AvgLatency=2ms, got %v", overview.AvgLatency)
	}
}

func TestQueryTracker_Record_ZeroResultAndFallback(t *testing.T) {
	tracker := NewQueryTracker(1000)
	tracker.Record(QueryMetric{
		Timestamp: time.Now(), Kind: KindAutocomplete, Query: "vata", Hits: 2,
	})
	tracker.Record(QueryMetric{
		Timestamp: time.Now(), Kind: KindAutocomplete, Query: "xyzzy", Hits: 0, Fallback: true,
	})

	overview := tracker.GetOverview()
	if overview.TotalQueries != 2 {
		t.Fatalf("expected TotalQueries=2, got %d", overview.TotalQueries)
	}
	if overview.ZeroResultRate != 0.5 {
		t.Fatalf("expected ZeroResultRate=0.5, got %f", overview.ZeroResultRate)
	}
	if overview.FallbackRate != 0.5 {
		t.Fatalf("expected FallbackRate=0.5, got %f", overview.FallbackRate)
	}
}

func TestQueryTracker_Record_SameQueryAggregates(t *testing.T) {
	tracker := NewQueryTracker(1000)
	for i := 0; i < 4; i++ {
		tracker.Record(QueryMetric{
			Timestamp: time.Now(), Kind: KindAutocomplete, Query: "jwara", Hits: 1,
		})
	}

	top := tracker.TopQueries(10)
	if len(top) != 1 {
		t.Fatalf("expected 1 distinct query, got %d", len(top))
	}
	if top[0].Count != 4 {
		t.Fatalf("expected Count=4, got %d", top[0].Count)
	}
}

func TestQueryTracker_Record_KindsTrackedSeparately(t *testing.T) {
	tracker := NewQueryTracker(1000)
	tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "vata", Hits: 1})
	tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindMapConcept, Query: "vata", Hits: 1})

	overview := tracker.GetOverview()
	if overview.DistinctQueries != 2 {
		t.Fatalf("expected kinds to count separately, got %d distinct", overview.DistinctQueries)
	}
}

func TestQueryTracker_Record_CapsDistinctQueries(t *testing.T) {
	max := 50
	tracker := NewQueryTracker(max)

	for i := 0; i < 200; i++ {
		tracker.Record(QueryMetric{
			Timestamp: time.Now(),
			Kind:      KindAutocomplete,
			Query:     fmt.Sprintf("term-%d", i),
			Hits:      1,
		})
	}

	overview := tracker.GetOverview()
	if overview.DistinctQueries != max {
		t.Fatalf("expected distinct queries capped at %d, got %d", max, overview.DistinctQueries)
	}
	// Totals still count every query.
	if overview.TotalQueries != 200 {
		t.Fatalf("expected TotalQueries=200, got %d", overview.TotalQueries)
	}
}

func TestQueryTracker_Record_ConcurrentAccess(t *testing.T) {
	tracker := NewQueryTracker(100000)
	var wg sync.WaitGroup
	goroutines := 100
	perGoroutine := 100

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				tracker.Record(QueryMetric{
					Timestamp: time.Now(),
					Kind:      KindAutocomplete,
					Query:     fmt.Sprintf("term-%d", id),
					Hits:      1,
					Duration:  time.Millisecond,
				})
			}
		}(g)
	}
	wg.Wait()

	overview := tracker.GetOverview()
	expected := int64(goroutines * perGoroutine)
	if overview.TotalQueries != expected {
		t.Fatalf("expected TotalQueries=%d, got %d", expected, overview.TotalQueries)
	}
	if overview.DistinctQueries != goroutines {
		t.Fatalf("expected %d distinct queries, got %d", goroutines, overview.DistinctQueries)
	}
}

// ---------------------------------------------------------------------------
// Rankings
// ---------------------------------------------------------------------------

func TestQueryTracker_TopQueries_Ordering(t *testing.T) {
	tracker := NewQueryTracker(1000)
	for i := 0; i < 3; i++ {
		tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "vata", Hits: 1})
	}
	for i := 0; i < 7; i++ {
		tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "jwara", Hits: 1})
	}
	tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "kapha", Hits: 1})

	top := tracker.TopQueries(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 results, got %d", len(top))
	}
	if top[0].Query != "jwara" || top[0].Count != 7 {
		t.Fatalf("expected jwara(7) first, got %s(%d)", top[0].Query, top[0].Count)
	}
	if top[1].Query != "vata" || top[1].Count != 3 {
		t.Fatalf("expected vata(3) second, got %s(%d)", top[1].Query, top[1].Count)
	}
}

func TestQueryTracker_TopMisses_SkipsHitQueries(t *testing.T) {
	tracker := NewQueryTracker(1000)
	tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "vata", Hits: 5})
	for i := 0; i < 2; i++ {
		tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "qqq", Hits: 0})
	}
	tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "zzz", Hits: 0})

	misses := tracker.TopMisses(10)
	if len(misses) != 2 {
		t.Fatalf("expected 2 miss entries, got %d", len(misses))
	}
	if misses[0].Query != "qqq" || misses[0].ZeroResults != 2 {
		t.Fatalf("expected qqq(2) first, got %s(%d)", misses[0].Query, misses[0].ZeroResults)
	}
	for _, m := range misses {
		if m.Query == "vata" {
			t.Fatal("query with hits should not appear in misses")
		}
	}
}

func TestQueryTracker_Reset(t *testing.T) {
	tracker := NewQueryTracker(1000)
	tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "vata", Hits: 0})

	tracker.Reset()

	overview := tracker.GetOverview()
	if overview.TotalQueries != 0 || overview.DistinctQueries != 0 {
		t.Fatalf("expected empty tracker after reset, got %+v", overview)
	}
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

func TestUsageHandler_Overview(t *testing.T) {
	tracker := NewQueryTracker(1000)
	tracker.Record(QueryMetric{
		Timestamp: time.Now(), Kind: KindAutocomplete, Query: "vata", Hits: 3,
		Duration: time.Millisecond,
	})

	e := echo.New()
	h := NewUsageHandler(tracker)
	req := httptest.NewRequest(http.MethodGet, "/admin/terminology/analytics/overview", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleOverview(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result Overview
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.TotalQueries != 1 {
		t.Fatalf("expected TotalQueries=1, got %d", result.TotalQueries)
	}
	if len(result.TopQueries) != 1 || result.TopQueries[0].Query != "vata" {
		t.Fatalf("expected vata in top queries, got %+v", result.TopQueries)
	}
}

// usagePage is the decoded pagination envelope for the list endpoints.
type usagePage struct {
	Data    []*QuerySummary `json:"data"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"has_more"`
}

func TestUsageHandler_TopQueries_LimitParam(t *testing.T) {
	tracker := NewQueryTracker(1000)
	for i := 0; i < 5; i++ {
		tracker.Record(QueryMetric{
			Timestamp: time.Now(), Kind: KindAutocomplete,
			Query: fmt.Sprintf("term-%d", i), Hits: 1,
		})
	}

	e := echo.New()
	h := NewUsageHandler(tracker)
	req := httptest.NewRequest(http.MethodGet, "/admin/terminology/analytics/queries?limit=3", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleTopQueries(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var page usagePage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(page.Data) != 3 {
		t.Fatalf("expected limit=3 respected, got %d results", len(page.Data))
	}
	if page.Total != 5 || !page.HasMore {
		t.Fatalf("expected total=5 has_more=true, got %+v", page)
	}
}

func TestUsageHandler_TopQueries_OffsetPastEnd(t *testing.T) {
	tracker := NewQueryTracker(1000)
	tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "vata", Hits: 1})

	e := echo.New()
	h := NewUsageHandler(tracker)
	req := httptest.NewRequest(http.MethodGet, "/admin/terminology/analytics/queries?offset=50", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleTopQueries(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var page usagePage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(page.Data) != 0 || page.Total != 1 || page.HasMore {
		t.Fatalf("expected empty page with total=1, got %+v", page)
	}
}

func TestUsageHandler_TopMisses(t *testing.T) {
	tracker := NewQueryTracker(1000)
	tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "hit", Hits: 1})
	tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "miss", Hits: 0})

	e := echo.New()
	h := NewUsageHandler(tracker)
	req := httptest.NewRequest(http.MethodGet, "/admin/terminology/analytics/misses", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleTopMisses(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var page usagePage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].Query != "miss" {
		t.Fatalf("expected only the zero-result query, got %+v", page.Data)
	}
}

func TestUsageHandler_Reset(t *testing.T) {
	tracker := NewQueryTracker(1000)
	tracker.Record(QueryMetric{Timestamp: time.Now(), Kind: KindAutocomplete, Query: "vata", Hits: 1})

	e := echo.New()
	h := NewUsageHandler(tracker)
	req := httptest.NewRequest(http.MethodDelete, "/admin/terminology/analytics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleReset(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if tracker.GetOverview().TotalQueries != 0 {
		t.Fatal("expected tracker cleared after reset")
	}
}
