package ingest

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryan-tembhurne5XX5/AIIMS/internal/domain/terminology"
)

// PGSource loads the reference tables maintained by the upstream dataset
// extraction. Row order follows the insertion id so rebuilt indexes keep
// a stable key order, and ICD-11 titles are read before synonyms to match
// the file sources.
type PGSource struct {
	Pool *pgxpool.Pool
}

func (s *PGSource) Name() string { return "postgres" }

func (s *PGSource) Load(ctx context.Context) ([]terminology.TermRecord, error) {
	records, err := s.loadICD11(ctx)
	if err != nil {
		return nil, err
	}
	for _, sys := range terminology.TraditionalSystems {
		sysRecords, err := s.loadNAMASTE(ctx, sys)
		if err != nil {
			return nil, err
		}
		records = append(records, sysRecords...)
	}
	return records, nil
}

func (s *PGSource) loadICD11(ctx context.Context) ([]terminology.TermRecord, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT entity_id, COALESCE(code,''), title, COALESCE(definition,'')
		 FROM reference_icd11_tm2 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("icd11 entities: %w", err)
	}
	defer rows.Close()

	var records []terminology.TermRecord
	codes := make(map[string]string)
	for rows.Next() {
		var entityID, code, title, definition string
		if err := rows.Scan(&entityID, &code, &title, &definition); err != nil {
			return nil, err
		}
		codes[entityID] = code
		rec := terminology.TermRecord{
			System:    terminology.SystemICD11,
			Term:      title,
			ConceptID: entityID,
			Code:      code,
		}
		if definition != "" {
			rec.Payload = map[string]any{"definition": definition}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("icd11 entities: %w", err)
	}

	synRows, err := s.Pool.Query(ctx,
		`SELECT entity_id, synonym FROM reference_icd11_tm2_synonyms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("icd11 synonyms: %w", err)
	}
	defer synRows.Close()

	for synRows.Next() {
		var entityID, synonym string
		if err := synRows.Scan(&entityID, &synonym); err != nil {
			return nil, err
		}
		records = append(records, terminology.TermRecord{
			System:    terminology.SystemICD11,
			Term:      synonym,
			ConceptID: entityID,
			Code:      codes[entityID],
		})
	}
	return records, synRows.Err()
}

func (s *PGSource) loadNAMASTE(ctx context.Context, sys terminology.SourceSystem) ([]terminology.TermRecord, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT COALESCE(term_id,''), COALESCE(code,''), COALESCE(english_term,''), COALESCE(local_term,'')
		 FROM reference_namaste_terms WHERE system = $1 ORDER BY id`, string(sys))
	if err != nil {
		return nil, fmt.Errorf("%s terms: %w", sys, err)
	}
	defer rows.Close()

	var records []terminology.TermRecord
	for rows.Next() {
		var termID, code, english, local string
		if err := rows.Scan(&termID, &code, &english, &local); err != nil {
			return nil, err
		}
		var payload map[string]any
		if local != "" {
			payload = map[string]any{"local_term": local}
		}
		if english != "" {
			records = append(records, terminology.TermRecord{
				System: sys, Term: english, ConceptID: termID, Code: code, Payload: payload,
			})
		}
		if local != "" {
			records = append(records, terminology.TermRecord{
				System: sys, Term: local, ConceptID: termID, Code: code, Payload: payload,
			})
		}
	}
	return records, rows.Err()
}
