package columnar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ImportJSONL bulk-loads every JSONL file matching pattern (a glob or a
// literal path) into the table within a single transaction. Each input
// value must be a JSON object (nested values are stored as their JSON
// text); a numeric "_key" field, if present, is
// used as the row key, otherwise keys continue the table's sequence.
// Returns the number of rows inserted.
func (s *Store) ImportJSONL(ctx context.Context, pattern string) (int64, error) {
	paths, err := expandGlob(pattern)
	if err != nil {
		return 0, err
	}
	src := &jsonlSource{paths: paths}
	defer src.close()
	return s.ingest(ctx, src)
}

// jsonlSource streams records from a list of JSONL files in order. A single
// json.Decoder per file handles values spanning multiple lines as well as
// the common one-object-per-line layout.
type jsonlSource struct {
	paths []string
	cur   int
	file  *os.File
	dec   *json.Decoder
}

func (j *jsonlSource) next() (record, bool, error) {
	for {
		if j.dec == nil {
			if j.cur >= len(j.paths) {
				return record{}, true, nil
			}
			f, err := os.Open(j.paths[j.cur])
			if err != nil {
				return record{}, false, fmt.Errorf("columnar: import jsonl: %w", err)
			}
			j.file = f
			j.dec = json.NewDecoder(f)
			j.dec.UseNumber()
			j.cur++
		}

		var obj map[string]any
		err := j.dec.Decode(&obj)
		if err == io.EOF {
			j.file.Close()
			j.file, j.dec = nil, nil
			continue
		}
		if err != nil {
			return record{}, false, fmt.Errorf("columnar: import jsonl %s: %w", j.paths[j.cur-1], err)
		}
		rec, err := recordFromObject(obj)
		if err != nil {
			return record{}, false, fmt.Errorf("columnar: import jsonl %s: %w", j.paths[j.cur-1], err)
		}
		return rec, false, nil
	}
}

func (j *jsonlSource) close() error {
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

func recordFromObject(obj map[string]any) (record, error) {
	rec := record{values: make(map[string]*string, len(obj))}
	for name, v := range obj {
		if name == keyColumn {
			n, ok := v.(json.Number)
			if !ok {
				return record{}, fmt.Errorf("%s must be an integer, got %T", keyColumn, v)
			}
			key, err := strconv.ParseUint(n.String(), 10, 64)
			if err != nil {
				return record{}, fmt.Errorf("%s: %w", keyColumn, err)
			}
			rec.key = key
			rec.hasKey = true
			continue
		}
		rec.values[name] = stringifyJSON(v)
	}
	return rec, nil
}

// stringifyJSON renders a decoded JSON value for TEXT storage. Strings and
// numbers keep their source form; nested values round-trip through
// json.Marshal; nil stays SQL NULL.
func stringifyJSON(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case json.Number:
		s := t.String()
		return &s
	case bool:
		s := strconv.FormatBool(t)
		return &s
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			s := fmt.Sprint(t)
			return &s
		}
		s := string(raw)
		return &s
	}
}
