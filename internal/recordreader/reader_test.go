package recordreader

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/recordship/internal/domain"
)

func drain(t *testing.T, rs domain.RecordSet) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		rec, err := rs.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, rec.Values)
	}
}

func TestOpen_CSV(t *testing.T) {
	in := "name,value\ncpu,42\nmem,7\n"
	rs, err := Open("csv", strings.NewReader(in), "metrics")
	if err != nil {
		t.Fatal(err)
	}

	if rs.Schema().Name != "metrics" {
		t.Errorf("schema name = %q", rs.Schema().Name)
	}
	if diff := cmp.Diff([]string{"name", "value"}, rs.Schema().FieldNames()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	want := []map[string]any{
		{"name": "cpu", "value": "42"},
		{"name": "mem", "value": "7"},
	}
	if diff := cmp.Diff(want, drain(t, rs)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	// Forward-only: a drained set stays at EOF.
	if _, err := rs.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after drain, got %v", err)
	}
}

func TestOpen_CSVEmpty(t *testing.T) {
	rs, err := Open("csv", strings.NewReader(""), "empty")
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Schema().Fields) != 0 {
		t.Errorf("expected no fields, got %v", rs.Schema().FieldNames())
	}
	if got := drain(t, rs); len(got) != 0 {
		t.Errorf("expected no records, got %v", got)
	}
}

func TestOpen_CSVBadRow(t *testing.T) {
	rs, err := Open("csv", strings.NewReader("a,b\n1,2,3\n"), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rs.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("expected row error, got %v", err)
	}
}

func TestOpen_JSONL(t *testing.T) {
	in := `{"value": 42, "name": "cpu", "ratio": 0.5, "ok": true}

{"name": "mem", "value": 7, "extra": "x"}
`
	rs, err := Open("jsonl", strings.NewReader(in), "metrics")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"name", "ok", "ratio", "value"}, rs.Schema().FieldNames()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	types := map[string]domain.FieldType{}
	for _, f := range rs.Schema().Fields {
		types[f.Name] = f.Type
	}
	wantTypes := map[string]domain.FieldType{
		"name":  domain.FieldString,
		"ok":    domain.FieldBoolean,
		"ratio": domain.FieldFloat,
		"value": domain.FieldInt,
	}
	if diff := cmp.Diff(wantTypes, types); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}

	want := []map[string]any{
		{"name": "cpu", "value": int64(42), "ratio": 0.5, "ok": true},
		{"name": "mem", "value": int64(7), "extra": "x"},
	}
	if diff := cmp.Diff(want, drain(t, rs)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestOpen_JSONLInvalid(t *testing.T) {
	if _, err := Open("jsonl", strings.NewReader("[1,2]\n"), ""); err == nil {
		t.Error("expected error for non-object line")
	}

	rs, err := Open("jsonl", strings.NewReader("{\"a\":1}\nnot json\n"), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rs.Next(); err != nil {
		t.Fatal(err)
	}
	if _, err := rs.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestOpen_UnknownFormat(t *testing.T) {
	if _, err := Open("parquet", strings.NewReader(""), ""); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"a/b.csv", FormatCSV, true},
		{"x.jsonl", FormatJSONL, true},
		{"x.ndjson", FormatJSONL, true},
		{"x.txt", "", false},
	}
	for _, tt := range tests {
		got, ok := FormatFromPath(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FormatFromPath(%q) = %q, %v", tt.path, got, ok)
		}
	}
}
