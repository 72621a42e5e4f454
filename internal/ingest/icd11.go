package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aryan-tembhurne5XX5/AIIMS/internal/domain/terminology"
)

// ICD11FileSource reads a WHO ICD-11 TM2 extract. Three layouts are in
// circulation: the extractor's document form holding an entity map under
// "entities" or "flat_entities", a plain JSON array of entities, and
// line-delimited JSON with one entity per line. The layout is detected
// from the payload itself.
type ICD11FileSource struct {
	Path string
}

func (s *ICD11FileSource) Name() string { return "icd11" }

// Load emits one record per entity title, then one per synonym, so title
// records always precede synonym records in the index.
func (s *ICD11FileSource) Load(_ context.Context) ([]terminology.TermRecord, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	entities, err := decodeICD11Entities(s.Path, data)
	if err != nil {
		return nil, err
	}

	var records []terminology.TermRecord
	for _, e := range entities {
		title := strings.TrimSpace(textValue(e.fields["title"]))
		if title == "" {
			continue
		}
		records = append(records, terminology.TermRecord{
			System:    terminology.SystemICD11,
			Term:      title,
			ConceptID: e.id,
			Code:      e.code,
			Payload:   e.fields,
		})
	}
	for _, e := range entities {
		for _, syn := range synonymValues(e.fields["synonym"]) {
			records = append(records, terminology.TermRecord{
				System:    terminology.SystemICD11,
				Term:      syn,
				ConceptID: e.id,
				Code:      e.code,
				Payload:   e.fields,
			})
		}
	}
	return records, nil
}

type icdEntity struct {
	id     string
	code   string
	fields map[string]any
}

func newICDEntity(fallbackID string, fields map[string]any) icdEntity {
	id := strings.TrimSpace(textValue(fields["id"]))
	if id == "" {
		id = fallbackID
	}
	return icdEntity{
		id:     id,
		code:   strings.TrimSpace(textValue(fields["code"])),
		fields: fields,
	}
}

func decodeICD11Entities(path string, data []byte) ([]icdEntity, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &FormatError{Source: path, Detail: "empty dataset"}
	}

	if trimmed[0] == '[' {
		var list []map[string]any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, &FormatError{Source: path, Detail: "parse entity array", Err: err}
		}
		entities := make([]icdEntity, 0, len(list))
		for _, fields := range list {
			entities = append(entities, newICDEntity("", fields))
		}
		return entities, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err == nil {
		for _, key := range []string{"entities", "flat_entities"} {
			raw, ok := doc[key]
			if !ok {
				continue
			}
			var byID map[string]map[string]any
			if err := json.Unmarshal(raw, &byID); err != nil {
				return nil, &FormatError{Source: path, Detail: "parse " + key + " object", Err: err}
			}
			// Map iteration order is not stable; sort by entity id so
			// rebuilt indexes keep identical key order.
			ids := make([]string, 0, len(byID))
			for id := range byID {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			entities := make([]icdEntity, 0, len(ids))
			for _, id := range ids {
				entities = append(entities, newICDEntity(id, byID[id]))
			}
			return entities, nil
		}
		return nil, &FormatError{Source: path, Detail: "no entities object in dataset"}
	}

	return decodeICD11Lines(path, trimmed)
}

// decodeICD11Lines handles line-delimited exports. Trailing commas are
// tolerated because some extracts are produced by splitting a JSON array
// across lines.
func decodeICD11Lines(path string, data []byte) ([]icdEntity, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var entities []icdEntity
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSuffix(strings.TrimSpace(sc.Text()), ",")
		if text == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			return nil, &FormatError{Source: path, Detail: fmt.Sprintf("line %d: parse entity", line), Err: err}
		}
		entities = append(entities, newICDEntity("", fields))
	}
	if err := sc.Err(); err != nil {
		return nil, &FormatError{Source: path, Detail: "scan dataset", Err: err}
	}
	return entities, nil
}

// textValue flattens the WHO API's multilingual value objects; plain
// strings pass through unchanged.
func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		for _, key := range []string{"@value", "en", "value", "label"} {
			if s := textValue(t[key]); s != "" {
				return s
			}
		}
	}
	return ""
}

// synonymValues accepts both flattened synonym lists of plain strings and
// the raw API form of label objects.
func synonymValues(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s := strings.TrimSpace(textValue(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
