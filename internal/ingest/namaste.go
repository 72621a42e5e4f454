package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aryan-tembhurne5XX5/AIIMS/internal/domain/terminology"
)

// NAMASTEFileSource reads one NAMASTE morbidity CSV export. Column layout
// varies between AYUSH releases, so columns are located by name: the
// EnglishTerm column is mandatory, the script-specific term column is
// matched by the system name prefix, and id and code columns are
// optional.
type NAMASTEFileSource struct {
	System terminology.SourceSystem
	Path   string
}

func (s *NAMASTEFileSource) Name() string { return string(s.System) }

// Load emits a record for the English term and another for the localized
// term of each row, in that order. Blank cells contribute nothing.
func (s *NAMASTEFileSource) Load(_ context.Context) ([]terminology.TermRecord, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, &FormatError{Source: s.Path, Detail: "read header", Err: err}
	}
	cols := locateColumns(s.System, header)
	if cols.english < 0 {
		return nil, &FormatError{Source: s.Path, Detail: "no EnglishTerm column"}
	}

	var records []terminology.TermRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FormatError{Source: s.Path, Detail: "read row", Err: err}
		}
		records = append(records, s.rowRecords(header, cols, row)...)
	}
	return records, nil
}

type columnMap struct {
	english, local, id, code int
}

// headerName trims whitespace and the UTF-8 BOM that Excel-produced
// exports carry on the first column.
func headerName(name string) string {
	return strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))
}

func locateColumns(system terminology.SourceSystem, header []string) columnMap {
	cols := columnMap{english: -1, local: -1, id: -1, code: -1}
	prefix := string(system)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	for i, name := range header {
		lower := strings.ToLower(headerName(name))
		switch {
		case cols.english < 0 && lower == "englishterm":
			cols.english = i
		case cols.local < 0 && strings.HasPrefix(lower, prefix) && strings.Contains(lower, "term"):
			cols.local = i
		case cols.id < 0 && (lower == "id" || strings.HasSuffix(lower, "_id")):
			cols.id = i
		case cols.code < 0 && strings.Contains(lower, "code"):
			cols.code = i
		}
	}
	return cols
}

func (s *NAMASTEFileSource) rowRecords(header []string, cols columnMap, row []string) []terminology.TermRecord {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	payload := make(map[string]any, len(header))
	for i, name := range header {
		if v := cell(i); v != "" {
			payload[headerName(name)] = v
		}
	}

	base := terminology.TermRecord{
		System:    s.System,
		ConceptID: cell(cols.id),
		Code:      cell(cols.code),
		Payload:   payload,
	}

	var out []terminology.TermRecord
	if english := cell(cols.english); english != "" {
		rec := base
		rec.Term = english
		out = append(out, rec)
	}
	if local := cell(cols.local); local != "" {
		rec := base
		rec.Term = local
		out = append(out, rec)
	}
	return out
}
