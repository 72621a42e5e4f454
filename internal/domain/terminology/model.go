package terminology

import "time"

// SourceSystem tags the terminology a record came from.
type SourceSystem string

const (
	// SystemICD11 is the WHO ICD-11 Traditional Medicine chapter (TM2),
	// the classification pivot for cross-system mapping.
	SystemICD11 SourceSystem = "icd11"

	// NAMASTE traditional-medicine vocabularies.
	SystemAyurveda SourceSystem = "ayurveda"
	SystemUnani    SourceSystem = "unani"
	SystemSiddha   SourceSystem = "siddha"
)

// TraditionalSystems enumerates the NAMASTE systems in the fixed order
// cross mappings are emitted in. Callers rely on a stable per-system slot.
var TraditionalSystems = []SourceSystem{SystemAyurveda, SystemUnani, SystemSiddha}

// CodeSystem URI constants for the FHIR terminology operations.
const (
	SystemURIICD11    = "http://id.who.int/icd/release/11/mms"
	SystemURIAyurveda = "https://namaste.ayush.gov.in/fhir/CodeSystem/ayurveda"
	SystemURIUnani    = "https://namaste.ayush.gov.in/fhir/CodeSystem/unani"
	SystemURISiddha   = "https://namaste.ayush.gov.in/fhir/CodeSystem/siddha"
)

// URIForSystem returns the FHIR CodeSystem URI for a source system.
func URIForSystem(sys SourceSystem) string {
	switch sys {
	case SystemICD11:
		return SystemURIICD11
	case SystemAyurveda:
		return SystemURIAyurveda
	case SystemUnani:
		return SystemURIUnani
	case SystemSiddha:
		return SystemURISiddha
	}
	return ""
}

// SystemFromURI resolves a FHIR CodeSystem URI (or a bare system tag) to
// its source system.
func SystemFromURI(uri string) (SourceSystem, bool) {
	switch uri {
	case SystemURIICD11, string(SystemICD11):
		return SystemICD11, true
	case SystemURIAyurveda, string(SystemAyurveda):
		return SystemAyurveda, true
	case SystemURIUnani, string(SystemUnani):
		return SystemUnani, true
	case SystemURISiddha, string(SystemSiddha):
		return SystemSiddha, true
	}
	return "", false
}

// TermRecord is one occurrence of a term in one source system. Term keeps
// the original casing and script; ConceptID and Code are optional and
// source-internal; Payload carries the full source record for display and
// for fields not otherwise modeled.
type TermRecord struct {
	System    SourceSystem   `json:"system"`
	Term      string         `json:"term"`
	ConceptID string         `json:"concept_id,omitempty"`
	Code      string         `json:"code,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// MatchHit is a single autocomplete result. Wire names match the portal
// clients that already consume this API.
type MatchHit struct {
	Term      string       `json:"term"`
	System    SourceSystem `json:"lang"`
	ConceptID string       `json:"icd_id"`
	Code      string       `json:"icd_code"`
}

// CrossMapping is the best lexical match for one classification concept in
// one traditional system.
type CrossMapping struct {
	System SourceSystem `json:"lang"`
	Term   string       `json:"term"`
	Score  int          `json:"score"`
}

// IndexStats describes a built index snapshot.
type IndexStats struct {
	TotalRecords int                  `json:"total_records"`
	DistinctKeys int                  `json:"distinct_keys"`
	BySystem     map[SourceSystem]int `json:"by_system"`
	BuiltAt      time.Time            `json:"built_at"`
}
