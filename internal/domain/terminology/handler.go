package terminology

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aryan-tembhurne5XX5/AIIMS/internal/platform/analytics"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/platform/auth"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/platform/fhir"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/platform/metrics"
)

// Handler provides the REST and FHIR endpoints for terminology resolution.
type Handler struct {
	svc     *Service
	tracker *analytics.QueryTracker
}

// NewHandler creates a new terminology handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SetAnalytics attaches a query usage tracker. Without one, handlers skip
// analytics recording.
func (h *Handler) SetAnalytics(t *analytics.QueryTracker) {
	h.tracker = t
}

// RegisterRoutes registers terminology routes on the API and FHIR groups.
func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	termGroup := api.Group("/terminology")
	termGroup.GET("/autocomplete", h.Autocomplete)
	termGroup.GET("/map", h.MapConcept)
	termGroup.GET("/systems", h.Systems)

	adminGroup := api.Group("/admin/terminology", auth.RequireRole("admin"))
	adminGroup.POST("/reload", h.Reload)

	fhirGroup.GET("/CodeSystem/$lookup", h.LookupCode)
	fhirGroup.GET("/ConceptMap/$translate", h.Translate)
	fhirGroup.POST("/ConceptMap/$translate", h.TranslatePost)
	fhirGroup.GET("/ValueSet/$expand", h.ExpandValueSet)
	fhirGroup.POST("/ValueSet/$expand", h.ExpandValueSet)
}

// Autocomplete handles GET /api/v1/terminology/autocomplete?term=...
//
// A query below the minimum length is not an error; it returns an empty
// list so type-ahead clients can call it on every keystroke.
func (h *Handler) Autocomplete(c echo.Context) error {
	term := c.QueryParam("term")
	if term == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'term' is required")
	}
	start := time.Now()
	hits, fuzzyPass := h.svc.ResolveAutocomplete(term)

	// Sub-minimum queries are keystroke noise, not vocabulary gaps, so
	// they stay out of the analytics.
	if q := strings.ToLower(strings.TrimSpace(term)); utf8.RuneCountInString(q) >= autocompleteMinRunes {
		h.record(analytics.QueryMetric{
			Timestamp: start,
			Kind:      analytics.KindAutocomplete,
			Query:     q,
			Hits:      len(hits),
			Fallback:  fuzzyPass,
			Duration:  time.Since(start),
		})
	}

	if hits == nil {
		hits = []MatchHit{}
	}
	return c.JSON(http.StatusOK, hits)
}

// MapConcept handles GET /api/v1/terminology/map?icd_id=...
//
// An unknown concept id yields an empty list, not an error.
func (h *Handler) MapConcept(c echo.Context) error {
	id := c.QueryParam("icd_id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'icd_id' is required")
	}
	start := time.Now()
	mappings := h.svc.MapConcept(id)
	h.record(analytics.QueryMetric{
		Timestamp: start,
		Kind:      analytics.KindMapConcept,
		Query:     id,
		Hits:      len(mappings),
		Duration:  time.Since(start),
	})
	if mappings == nil {
		mappings = []CrossMapping{}
	}
	return c.JSON(http.StatusOK, mappings)
}

// Systems handles GET /api/v1/terminology/systems and reports the served
// index snapshot.
func (h *Handler) Systems(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Stats())
}

// Reload handles POST /api/v1/admin/terminology/reload. A failed reload
// leaves the previous index serving and reports 502 because the fault is
// in the upstream dataset, not the request.
func (h *Handler) Reload(c echo.Context) error {
	start := time.Now()
	stats, err := h.svc.Reload(c.Request().Context())
	if err != nil {
		metrics.ObserveReload("error", time.Since(start).Seconds())
		return echo.NewHTTPError(http.StatusBadGateway, "dataset reload failed: "+err.Error())
	}
	metrics.ObserveReload("ok", time.Since(start).Seconds())
	observeIndexStats(stats)
	return c.JSON(http.StatusOK, stats)
}

func observeIndexStats(stats IndexStats) {
	bySystem := make(map[string]int, len(stats.BySystem))
	for sys, n := range stats.BySystem {
		bySystem[string(sys)] = n
	}
	metrics.ObserveIndex(stats.DistinctKeys, bySystem)
}

func (h *Handler) record(m analytics.QueryMetric) {
	if h.tracker != nil {
		h.tracker.Record(m)
	}
}

// Translate handles GET /fhir/ConceptMap/$translate?system=...&code=...
//
// Only ICD-11 TM2 concepts are accepted as the source; the result carries
// one match per traditional system that cleared the mapping threshold.
func (h *Handler) Translate(c echo.Context) error {
	return h.doTranslate(c, c.QueryParam("system"), c.QueryParam("code"))
}

// TranslatePost handles POST /fhir/ConceptMap/$translate with a Parameters
// resource body. The source concept may arrive as code+system pairs, a
// coding, or a codeableConcept.
func (h *Handler) TranslatePost(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("failed to read request body"))
	}

	var params struct {
		ResourceType string `json:"resourceType"`
		Parameter    []struct {
			Name                 string                `json:"name"`
			ValueCode            string                `json:"valueCode,omitempty"`
			ValueUri             string                `json:"valueUri,omitempty"`
			ValueCoding          *fhir.Coding          `json:"valueCoding,omitempty"`
			ValueCodeableConcept *fhir.CodeableConcept `json:"valueCodeableConcept,omitempty"`
		} `json:"parameter"`
	}
	if err := json.Unmarshal(body, &params); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("invalid JSON: "+err.Error()))
	}

	var system, code string
	for _, p := range params.Parameter {
		switch p.Name {
		case "code":
			code = p.ValueCode
		case "system":
			system = p.ValueUri
		case "coding":
			if p.ValueCoding != nil {
				system, code = p.ValueCoding.System, p.ValueCoding.Code
			}
		case "codeableConcept":
			if p.ValueCodeableConcept != nil && len(p.ValueCodeableConcept.Coding) > 0 {
				system, code = p.ValueCodeableConcept.Coding[0].System, p.ValueCodeableConcept.Coding[0].Code
			}
		}
	}
	return h.doTranslate(c, system, code)
}

func (h *Handler) doTranslate(c echo.Context, system, code string) error {
	if code == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredFieldOutcome("code"))
	}
	if system != "" {
		sys, ok := SystemFromURI(system)
		if !ok || sys != SystemICD11 {
			return c.JSON(http.StatusBadRequest,
				fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeNotSupported, "only ICD-11 TM2 concepts can be translated"))
		}
	}

	src, ok := h.svc.Concept(SystemICD11, code)
	if !ok {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"resourceType": "Parameters",
			"parameter": []map[string]interface{}{
				{"name": "result", "valueBoolean": false},
				{"name": "message", "valueString": "no ICD-11 TM2 concept matches code " + code},
			},
		})
	}

	mappings := h.svc.MapConcept(src.ConceptID)
	params := []map[string]interface{}{
		{"name": "result", "valueBoolean": len(mappings) > 0},
	}
	if len(mappings) == 0 {
		params = append(params, map[string]interface{}{
			"name":        "message",
			"valueString": "no traditional-medicine term cleared the mapping threshold",
		})
	}
	for _, m := range mappings {
		coding := fhir.Coding{
			System:  URIForSystem(m.System),
			Display: m.Term,
		}
		if rec, ok := h.recordForTerm(m.System, m.Term); ok {
			if rec.Code != "" {
				coding.Code = rec.Code
			} else {
				coding.Code = rec.ConceptID
			}
		}
		params = append(params, map[string]interface{}{
			"name": "match",
			"part": []map[string]interface{}{
				{"name": "equivalence", "valueCode": "relatedto"},
				{"name": "concept", "valueCoding": coding},
				{"name": "score", "valueDecimal": m.Score},
			},
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"resourceType": "Parameters",
		"parameter":    params,
	})
}

// recordForTerm recovers the source record behind a mapping term so the
// FHIR coding can carry the system's own code.
func (h *Handler) recordForTerm(sys SourceSystem, term string) (TermRecord, bool) {
	for _, rec := range h.svc.LookupTerm(term) {
		if rec.System == sys {
			return rec, true
		}
	}
	return TermRecord{}, false
}

// ExpandValueSet handles GET/POST /fhir/ValueSet/$expand?filter=...
func (h *Handler) ExpandValueSet(c echo.Context) error {
	filter := c.QueryParam("filter")

	hits := h.svc.Autocomplete(filter)
	if countStr := c.QueryParam("count"); countStr != "" {
		v, err := strconv.Atoi(countStr)
		if err != nil || v < 0 {
			return c.JSON(http.StatusBadRequest,
				fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, "parameter 'count' must be a non-negative integer"))
		}
		if v < len(hits) {
			hits = hits[:v]
		}
	}

	contains := make([]fhir.Coding, 0, len(hits))
	for _, hit := range hits {
		code := hit.Code
		if code == "" {
			code = hit.ConceptID
		}
		contains = append(contains, fhir.Coding{
			System:  URIForSystem(hit.System),
			Code:    code,
			Display: hit.Term,
		})
	}

	result := map[string]interface{}{
		"resourceType": "ValueSet",
		"expansion": map[string]interface{}{
			"identifier": uuid.New().String(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"total":      len(contains),
			"contains":   contains,
		},
	}
	return c.JSON(http.StatusOK, result)
}

// LookupCode handles GET /fhir/CodeSystem/$lookup?system=...&code=...
func (h *Handler) LookupCode(c echo.Context) error {
	system := c.QueryParam("system")
	code := c.QueryParam("code")
	if system == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredFieldOutcome("system"))
	}
	if code == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredFieldOutcome("code"))
	}
	sys, ok := SystemFromURI(system)
	if !ok {
		return c.JSON(http.StatusBadRequest,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeNotSupported, "unknown code system "+system))
	}

	rec, ok := h.svc.Concept(sys, code)
	if !ok {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("CodeSystem/"+string(sys), code))
	}

	params := []map[string]interface{}{
		{"name": "name", "valueString": string(sys)},
		{"name": "display", "valueString": rec.Term},
	}
	for _, d := range payloadDesignations(rec) {
		params = append(params, map[string]interface{}{
			"name": "designation",
			"part": []map[string]interface{}{
				{"name": "value", "valueString": d},
			},
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"resourceType": "Parameters",
		"parameter":    params,
	})
}

// payloadDesignations extracts alternate renderings of a concept from the
// raw source row, in stable key order. Identifiers and the display term
// itself are not designations.
func payloadDesignations(rec TermRecord) []string {
	if len(rec.Payload) == 0 {
		return nil
	}
	keys := make([]string, 0, len(rec.Payload))
	for k := range rec.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		v, ok := rec.Payload[k].(string)
		if !ok || v == "" || v == rec.Term || v == rec.Code || v == rec.ConceptID {
			continue
		}
		out = append(out, v)
	}
	return out
}
