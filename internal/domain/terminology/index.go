package terminology

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyDataset is returned by BuildIndex when no term records were
// supplied. An index with zero terms is a configuration error, surfaced
// immediately rather than silently serving empty results.
var ErrEmptyDataset = errors.New("no term records to index")

// Index is an immutable inverted index over term records, keyed by the
// lowercased term text. It is built once from a full dataset and safe for
// unlimited concurrent readers; a refreshed dataset is served by building
// a new Index and swapping it in wholesale.
type Index struct {
	buckets    map[string][]TermRecord
	keys       []string
	candidates map[SourceSystem][]string
	byConcept  map[SourceSystem]map[string]TermRecord
	byCode     map[SourceSystem]map[string]TermRecord
	stats      IndexStats
}

// BuildIndex constructs an Index from a finite record sequence. Records
// with blank term text are skipped, never indexed. Key enumeration order
// is first-insertion order and bucket order is input order, so a fixed
// input sequence always produces an identical index.
func BuildIndex(records []TermRecord) (*Index, error) {
	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}

	ix := &Index{
		buckets:    make(map[string][]TermRecord),
		candidates: make(map[SourceSystem][]string),
		byConcept:  make(map[SourceSystem]map[string]TermRecord),
		byCode:     make(map[SourceSystem]map[string]TermRecord),
		stats: IndexStats{
			BySystem: make(map[SourceSystem]int),
			BuiltAt:  time.Now().UTC(),
		},
	}

	for _, rec := range records {
		if strings.TrimSpace(rec.Term) == "" {
			continue
		}

		key := strings.ToLower(rec.Term)
		if _, seen := ix.buckets[key]; !seen {
			ix.keys = append(ix.keys, key)
		}
		ix.buckets[key] = append(ix.buckets[key], rec)

		ix.candidates[rec.System] = append(ix.candidates[rec.System], rec.Term)
		ix.stats.BySystem[rec.System]++
		ix.stats.TotalRecords++

		if rec.ConceptID != "" {
			byID := ix.byConcept[rec.System]
			if byID == nil {
				byID = make(map[string]TermRecord)
				ix.byConcept[rec.System] = byID
			}
			if _, taken := byID[rec.ConceptID]; !taken {
				byID[rec.ConceptID] = rec
			}
		}
		if rec.Code != "" {
			byCode := ix.byCode[rec.System]
			if byCode == nil {
				byCode = make(map[string]TermRecord)
				ix.byCode[rec.System] = byCode
			}
			if _, taken := byCode[rec.Code]; !taken {
				byCode[rec.Code] = rec
			}
		}
	}
	ix.stats.DistinctKeys = len(ix.keys)

	return ix, nil
}

// Keys returns every index key in first-insertion order. The slice is
// shared with the index and must not be mutated.
func (ix *Index) Keys() []string {
	return ix.keys
}

// Lookup returns the bucket for an exact index key, in insertion order,
// or nil when the key is absent. It never fails.
func (ix *Index) Lookup(key string) []TermRecord {
	return ix.buckets[key]
}

// Candidates returns every term text held by records of the given system,
// in load order with original casing. This is the full candidate universe
// for cross-system matching, not limited to distinct index keys.
func (ix *Index) Candidates(sys SourceSystem) []string {
	return ix.candidates[sys]
}

// Concept resolves a source-internal concept id within one system. When
// several records share an id the first loaded wins.
func (ix *Index) Concept(sys SourceSystem, id string) (TermRecord, bool) {
	rec, ok := ix.byConcept[sys][id]
	return rec, ok
}

// ConceptByCode resolves a short code within one system, first loaded wins.
func (ix *Index) ConceptByCode(sys SourceSystem, code string) (TermRecord, bool) {
	rec, ok := ix.byCode[sys][code]
	return rec, ok
}

// Stats reports the size and build time of this snapshot.
func (ix *Index) Stats() IndexStats {
	return ix.stats
}
