// Package recordreader turns CSV and JSON lines input into record sets.
package recordreader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bft-labs/recordship/internal/domain"
)

// Supported input formats.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// ErrUnknownFormat is returned by Open for an unsupported format.
var ErrUnknownFormat = errors.New("recordreader: unknown format")

const maxLineSize = 4 << 20

// Open reads the schema from r and returns a forward-only record set.
// CSV input takes field names from the header row and keeps every value as a
// string. JSON lines input takes field names from the first object, sorted.
func Open(format string, r io.Reader, schemaName string) (domain.RecordSet, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatCSV:
		return openCSV(r, schemaName)
	case FormatJSONL, "ndjson":
		return openJSONL(r, schemaName)
	default:
		return nil, fmt.Errorf("%w %q (want csv or jsonl)", ErrUnknownFormat, format)
	}
}

// FormatFromPath guesses the input format from a file extension.
func FormatFromPath(path string) (string, bool) {
	switch {
	case strings.HasSuffix(path, ".csv"):
		return FormatCSV, true
	case strings.HasSuffix(path, ".jsonl"), strings.HasSuffix(path, ".ndjson"):
		return FormatJSONL, true
	default:
		return "", false
	}
}

type csvRecordSet struct {
	schema *domain.Schema
	r      *csv.Reader
	line   int
}

func openCSV(r io.Reader, schemaName string) (*csvRecordSet, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &csvRecordSet{schema: domain.NewSchema(schemaName), r: cr}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	fields := make([]domain.Field, len(header))
	for i, name := range header {
		fields[i] = domain.Field{Name: strings.TrimSpace(name), Type: domain.FieldString, Nullable: true}
	}
	return &csvRecordSet{schema: domain.NewSchema(schemaName, fields...), r: cr, line: 1}, nil
}

func (s *csvRecordSet) Schema() *domain.Schema { return s.schema }

func (s *csvRecordSet) Next() (domain.Record, error) {
	row, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Record{}, io.EOF
		}
		return domain.Record{}, fmt.Errorf("read csv row %d: %w", s.line+1, err)
	}
	s.line++

	values := make(map[string]any, len(row))
	for i, f := range s.schema.Fields {
		if i < len(row) {
			values[f.Name] = row[i]
		}
	}
	return domain.NewRecord(s.schema, values), nil
}

type jsonlRecordSet struct {
	schema  *domain.Schema
	scanner *bufio.Scanner
	pending map[string]any
	line    int
}

func openJSONL(r io.Reader, schemaName string) (*jsonlRecordSet, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	s := &jsonlRecordSet{scanner: sc, schema: domain.NewSchema(schemaName)}
	first, err := s.nextObject()
	if errors.Is(err, io.EOF) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(first))
	for k := range first {
		names = append(names, k)
	}
	sort.Strings(names)

	fields := make([]domain.Field, len(names))
	for i, name := range names {
		fields[i] = domain.Field{Name: name, Type: fieldType(first[name]), Nullable: true}
	}
	s.schema = domain.NewSchema(schemaName, fields...)
	s.pending = first
	return s, nil
}

func (s *jsonlRecordSet) Schema() *domain.Schema { return s.schema }

func (s *jsonlRecordSet) Next() (domain.Record, error) {
	obj := s.pending
	s.pending = nil
	if obj == nil {
		var err error
		if obj, err = s.nextObject(); err != nil {
			return domain.Record{}, err
		}
	}
	return domain.NewRecord(s.schema, obj), nil
}

// nextObject decodes the next non-blank line.
func (s *jsonlRecordSet) nextObject() (map[string]any, error) {
	for s.scanner.Scan() {
		s.line++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", s.line, err)
		}
		if obj == nil {
			return nil, fmt.Errorf("decode line %d: not an object", s.line)
		}
		for k, v := range obj {
			obj[k] = normalize(v)
		}
		return obj, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", s.line+1, err)
	}
	return nil, io.EOF
}

// normalize converts json.Number into int64 when integral, float64 otherwise.
func normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func fieldType(v any) domain.FieldType {
	switch v.(type) {
	case int64:
		return domain.FieldInt
	case float64:
		return domain.FieldFloat
	case bool:
		return domain.FieldBoolean
	default:
		return domain.FieldString
	}
}
