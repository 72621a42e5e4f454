package terminology

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/aryan-tembhurne5XX5/AIIMS/pkg/fuzzy"
)

// DatasetLoader supplies the full term record sequence for an index build.
type DatasetLoader interface {
	Load(ctx context.Context) ([]TermRecord, error)
}

// ResolverConfig carries the tunable matching constants. The defaults
// reproduce the established portal behaviour; deployments may adjust them
// through configuration.
type ResolverConfig struct {
	// AutocompleteMinScore is the fuzzy fallback threshold, applied only
	// when the substring pass finds nothing.
	AutocompleteMinScore int
	// AutocompleteLimit caps autocomplete results after deduplication.
	AutocompleteLimit int
	// MappingMinScore is the minimum score for a cross mapping to be
	// reported at all. Stricter than the autocomplete fallback because a
	// mapping is presented as an authoritative cross reference.
	MappingMinScore int
}

// DefaultResolverConfig returns the standard thresholds.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		AutocompleteMinScore: 60,
		AutocompleteLimit:    10,
		MappingMinScore:      80,
	}
}

// Service answers terminology queries against an immutable index snapshot.
// Queries are pure in-memory computations; the only mutation entry point
// is Reload, which builds a fresh index and publishes it atomically so
// in-flight queries always observe one fully consistent snapshot.
type Service struct {
	idx     atomic.Pointer[Index]
	loader  DatasetLoader
	cfg     ResolverConfig
	reloads singleflight.Group
}

// NewService creates a service around an already built index. Zero-valued
// config fields fall back to the defaults.
func NewService(ix *Index, loader DatasetLoader, cfg ResolverConfig) *Service {
	def := DefaultResolverConfig()
	if cfg.AutocompleteMinScore <= 0 {
		cfg.AutocompleteMinScore = def.AutocompleteMinScore
	}
	if cfg.AutocompleteLimit <= 0 {
		cfg.AutocompleteLimit = def.AutocompleteLimit
	}
	if cfg.MappingMinScore <= 0 {
		cfg.MappingMinScore = def.MappingMinScore
	}

	s := &Service{loader: loader, cfg: cfg}
	s.idx.Store(ix)
	return s
}

// autocompleteMinRunes is the shortest query worth resolving. Anything
// below it is keystroke noise and yields an empty result.
const autocompleteMinRunes = 2

// Autocomplete returns up to AutocompleteLimit hits for an incremental
// query. Keys containing the lowercased query as a substring always win;
// fuzzy matching runs only when no substring hit exists. Hits are
// deduplicated by term text, first occurrence winning, and there is no
// failure path: short queries and missing matches yield an empty slice.
func (s *Service) Autocomplete(query string) []MatchHit {
	hits, _ := s.ResolveAutocomplete(query)
	return hits
}

// ResolveAutocomplete resolves exactly like Autocomplete and additionally
// reports whether the hits came from the fuzzy fallback pass rather than
// the substring pass. The flag feeds usage analytics.
func (s *Service) ResolveAutocomplete(query string) ([]MatchHit, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if utf8.RuneCountInString(q) < autocompleteMinRunes {
		return nil, false
	}

	ix := s.idx.Load()
	keys := ix.Keys()

	var matched []string
	for _, key := range keys {
		if strings.Contains(key, q) {
			matched = append(matched, key)
		}
	}
	fuzzyPass := len(matched) == 0
	if fuzzyPass {
		for _, m := range fuzzy.TopK(q, keys, s.cfg.AutocompleteLimit, s.cfg.AutocompleteMinScore) {
			matched = append(matched, m.Term)
		}
	}

	seen := make(map[string]struct{})
	var hits []MatchHit
	for _, key := range matched {
		for _, r := range ix.Lookup(key) {
			if _, dup := seen[r.Term]; dup {
				continue
			}
			seen[r.Term] = struct{}{}
			hits = append(hits, MatchHit{Term: r.Term, System: r.System, ConceptID: r.ConceptID, Code: r.Code})
			if len(hits) == s.cfg.AutocompleteLimit {
				return hits, fuzzyPass
			}
		}
	}
	return hits, fuzzyPass
}

// MapConcept maps one classification concept into each traditional system.
// An unknown concept id is a valid "no mapping" outcome and yields an
// empty slice, never an error. Output order follows TraditionalSystems,
// with at most one mapping per system and only scores at or above
// MappingMinScore reported.
func (s *Service) MapConcept(conceptID string) []CrossMapping {
	ix := s.idx.Load()
	src, ok := ix.Concept(SystemICD11, conceptID)
	if !ok {
		return nil
	}

	var out []CrossMapping
	for _, sys := range TraditionalSystems {
		m, ok := fuzzy.Best(src.Term, ix.Candidates(sys))
		if !ok || m.Score < s.cfg.MappingMinScore {
			continue
		}
		out = append(out, CrossMapping{System: sys, Term: m.Term, Score: m.Score})
	}
	return out
}

// Concept resolves a code, falling back to concept id, within one system.
func (s *Service) Concept(sys SourceSystem, codeOrID string) (TermRecord, bool) {
	ix := s.idx.Load()
	if r, ok := ix.ConceptByCode(sys, codeOrID); ok {
		return r, true
	}
	return ix.Concept(sys, codeOrID)
}

// LookupTerm returns every record sharing a term text, across systems, in
// load order.
func (s *Service) LookupTerm(term string) []TermRecord {
	return s.idx.Load().Lookup(strings.ToLower(strings.TrimSpace(term)))
}

// Stats reports the currently served index snapshot.
func (s *Service) Stats() IndexStats {
	return s.idx.Load().Stats()
}

// Reload rebuilds the index from the dataset loader and swaps it in.
// Concurrent calls collapse into a single rebuild sharing one result. On
// any failure, including an empty dataset, the previous index keeps
// serving and the error is returned to the trigger.
func (s *Service) Reload(ctx context.Context) (IndexStats, error) {
	v, err, _ := s.reloads.Do("reload", func() (any, error) {
		if s.loader == nil {
			return nil, fmt.Errorf("no dataset loader configured")
		}
		records, err := s.loader.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load datasets: %w", err)
		}
		ix, err := BuildIndex(records)
		if err != nil {
			return nil, err
		}
		s.idx.Store(ix)
		return ix.Stats(), nil
	})
	if err != nil {
		return IndexStats{}, err
	}
	return v.(IndexStats), nil
}
