// Package analytics aggregates terminology query usage in memory. Unlike
// the Prometheus metrics, which carry only bounded labels, this tracker
// keeps the query strings themselves, so operators can see what users
// actually search for and which searches find nothing — the raw material
// for vocabulary curation.
package analytics

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aryan-tembhurne5XX5/AIIMS/pkg/pagination"
)

// QueryKind identifies which resolver operation a metric belongs to.
type QueryKind string

const (
	KindAutocomplete QueryKind = "autocomplete"
	KindMapConcept   QueryKind = "map_concept"
)

// QueryMetric captures a single resolved query for analytics.
type QueryMetric struct {
	Timestamp time.Time     `json:"timestamp"`
	Kind      QueryKind     `json:"kind"`
	Query     string        `json:"query"`
	Hits      int           `json:"hits"`
	Fallback  bool          `json:"fallback"` // autocomplete reached the fuzzy pass
	Duration  time.Duration `json:"duration"`
}

type queryStats struct {
	Query       string
	Kind        QueryKind
	Count       int64
	ZeroResults int64
	LastSeen    time.Time
	mu          sync.Mutex
}

// QuerySummary is the aggregated view of one distinct query string.
type QuerySummary struct {
	Query       string    `json:"query"`
	Kind        QueryKind `json:"kind"`
	Count       int64     `json:"count"`
	ZeroResults int64     `json:"zero_results"`
	LastSeen    time.Time `json:"last_seen"`
}

// Overview is the top-level analytics report.
type Overview struct {
	TotalQueries    int64           `json:"total_queries"`
	ZeroResultRate  float64         `json:"zero_result_rate"`
	FallbackRate    float64         `json:"fallback_rate"`
	AvgLatency      time.Duration   `json:"avg_latency"`
	DistinctQueries int             `json:"distinct_queries"`
	TopQueries      []*QuerySummary `json:"top_queries"`
	TopMisses       []*QuerySummary `json:"top_misses"`
}

// QueryTracker is a thread-safe aggregator of query metrics. Distinct
// query strings are capped; once the cap is reached new strings update
// only the totals, so a flood of unique queries cannot grow the map
// without bound.
type QueryTracker struct {
	counters   map[string]*queryStats
	maxQueries int
	mu         sync.RWMutex

	totalQueries  int64
	totalZero     int64
	totalFallback int64
	totalDuration int64 // nanoseconds
}

// NewQueryTracker creates a tracker holding up to maxQueries distinct
// query strings.
func NewQueryTracker(maxQueries int) *QueryTracker {
	if maxQueries <= 0 {
		maxQueries = 10000
	}
	return &QueryTracker{
		counters:   make(map[string]*queryStats),
		maxQueries: maxQueries,
	}
}

// Record folds one query into the aggregates.
func (qt *QueryTracker) Record(metric QueryMetric) {
	zero := metric.Hits == 0

	atomic.AddInt64(&qt.totalQueries, 1)
	if zero {
		atomic.AddInt64(&qt.totalZero, 1)
	}
	if metric.Fallback {
		atomic.AddInt64(&qt.totalFallback, 1)
	}
	atomic.AddInt64(&qt.totalDuration, int64(metric.Duration))

	key := string(metric.Kind) + ":" + metric.Query

	qt.mu.Lock()
	qs, ok := qt.counters[key]
	if !ok {
		if len(qt.counters) >= qt.maxQueries {
			qt.mu.Unlock()
			return
		}
		qs = &queryStats{Query: metric.Query, Kind: metric.Kind}
		qt.counters[key] = qs
	}
	qt.mu.Unlock()

	qs.mu.Lock()
	qs.Count++
	if zero {
		qs.ZeroResults++
	}
	if metric.Timestamp.After(qs.LastSeen) {
		qs.LastSeen = metric.Timestamp
	}
	qs.mu.Unlock()
}

// TopQueries returns up to limit distinct queries by descending volume;
// limit <= 0 returns all of them.
func (qt *QueryTracker) TopQueries(limit int) []*QuerySummary {
	return qt.top(limit, func(qs *QuerySummary) int64 { return qs.Count })
}

// TopMisses returns up to limit queries by descending zero-result count,
// skipping queries that always found something; limit <= 0 returns all.
// These are the terms the vocabularies are missing.
func (qt *QueryTracker) TopMisses(limit int) []*QuerySummary {
	all := qt.top(0, func(qs *QuerySummary) int64 { return qs.ZeroResults })
	misses := all[:0]
	for _, qs := range all {
		if qs.ZeroResults > 0 {
			misses = append(misses, qs)
		}
	}
	if limit > 0 && len(misses) > limit {
		misses = misses[:limit]
	}
	return misses
}

func (qt *QueryTracker) top(limit int, rank func(*QuerySummary) int64) []*QuerySummary {
	qt.mu.RLock()
	summaries := make([]*QuerySummary, 0, len(qt.counters))
	for _, qs := range qt.counters {
		qs.mu.Lock()
		summaries = append(summaries, &QuerySummary{
			Query:       qs.Query,
			Kind:        qs.Kind,
			Count:       qs.Count,
			ZeroResults: qs.ZeroResults,
			LastSeen:    qs.LastSeen,
		})
		qs.mu.Unlock()
	}
	qt.mu.RUnlock()

	sort.SliceStable(summaries, func(i, j int) bool {
		if rank(summaries[i]) != rank(summaries[j]) {
			return rank(summaries[i]) > rank(summaries[j])
		}
		return summaries[i].Query < summaries[j].Query
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// GetOverview returns the top-level report with the five busiest queries
// and the five worst misses.
func (qt *QueryTracker) GetOverview() *Overview {
	total := atomic.LoadInt64(&qt.totalQueries)
	zero := atomic.LoadInt64(&qt.totalZero)
	fallback := atomic.LoadInt64(&qt.totalFallback)
	dur := atomic.LoadInt64(&qt.totalDuration)

	var zeroRate, fallbackRate float64
	var avgLatency time.Duration
	if total > 0 {
		zeroRate = float64(zero) / float64(total)
		fallbackRate = float64(fallback) / float64(total)
		avgLatency = time.Duration(dur / total)
	}

	qt.mu.RLock()
	distinct := len(qt.counters)
	qt.mu.RUnlock()

	return &Overview{
		TotalQueries:    total,
		ZeroResultRate:  zeroRate,
		FallbackRate:    fallbackRate,
		AvgLatency:      avgLatency,
		DistinctQueries: distinct,
		TopQueries:      qt.TopQueries(5),
		TopMisses:       qt.TopMisses(5),
	}
}

// Reset drops all aggregates, typically after a vocabulary release has
// addressed the reported misses.
func (qt *QueryTracker) Reset() {
	qt.mu.Lock()
	qt.counters = make(map[string]*queryStats)
	qt.mu.Unlock()

	atomic.StoreInt64(&qt.totalQueries, 0)
	atomic.StoreInt64(&qt.totalZero, 0)
	atomic.StoreInt64(&qt.totalFallback, 0)
	atomic.StoreInt64(&qt.totalDuration, 0)
}

// UsageHandler provides the admin endpoints for query analytics.
type UsageHandler struct {
	tracker *QueryTracker
}

// NewUsageHandler creates a handler backed by the given tracker.
func NewUsageHandler(tracker *QueryTracker) *UsageHandler {
	return &UsageHandler{tracker: tracker}
}

// RegisterRoutes registers the analytics endpoints on an admin group.
func (h *UsageHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/analytics/overview", h.HandleOverview)
	g.GET("/analytics/queries", h.HandleTopQueries)
	g.GET("/analytics/misses", h.HandleTopMisses)
	g.DELETE("/analytics", h.HandleReset)
}

// HandleOverview returns the aggregate query report.
func (h *UsageHandler) HandleOverview(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tracker.GetOverview())
}

// HandleTopQueries returns the busiest distinct queries, paginated.
func (h *UsageHandler) HandleTopQueries(c echo.Context) error {
	p := pagination.FromContext(c)
	all := h.tracker.TopQueries(0)
	lo, hi := p.Window(len(all))
	return c.JSON(http.StatusOK, pagination.NewResponse(all[lo:hi], len(all), p))
}

// HandleTopMisses returns the queries that most often found nothing,
// paginated.
func (h *UsageHandler) HandleTopMisses(c echo.Context) error {
	p := pagination.FromContext(c)
	all := h.tracker.TopMisses(0)
	lo, hi := p.Window(len(all))
	return c.JSON(http.StatusOK, pagination.NewResponse(all[lo:hi], len(all), p))
}

// HandleReset clears the aggregates.
func (h *UsageHandler) HandleReset(c echo.Context) error {
	h.tracker.Reset()
	return c.NoContent(http.StatusNoContent)
}
