package recordwriter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/ports"
)

func testSchema() *domain.Schema {
	return domain.NewSchema("metrics",
		domain.Field{Name: "name", Type: domain.FieldString},
		domain.Field{Name: "value", Type: domain.FieldInt},
		domain.Field{Name: "ok", Type: domain.FieldBoolean, Nullable: true},
	)
}

func testRecords(s *domain.Schema) []domain.Record {
	return []domain.Record{
		domain.NewRecord(s, map[string]any{"name": "cpu", "value": 42, "ok": true}),
		domain.NewRecord(s, map[string]any{"name": "mem", "value": 7}),
	}
}

// writeAll drives a writer the way the sink does.
func writeAll(t *testing.T, f ports.WriterFactory, records []domain.Record) (string, domain.WriteResult) {
	t.Helper()
	schema, err := f.Schema(nil, testSchema())
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	var buf bytes.Buffer
	w, err := f.CreateWriter(nil, schema, &buf, domain.Attributes{})
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	defer w.Close()

	if err := w.BeginRecordSet(); err != nil {
		t.Fatalf("BeginRecordSet: %v", err)
	}
	for _, r := range records {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	res, err := w.FinishRecordSet()
	if err != nil {
		t.Fatalf("FinishRecordSet: %v", err)
	}
	return buf.String(), res
}

func TestNew(t *testing.T) {
	tests := []struct {
		format string
		mime   string
	}{
		{"json", MimeJSON},
		{"CSV", MimeCSV},
		{" yaml ", MimeYAML},
	}
	for _, tt := range tests {
		f, err := New(tt.format)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.format, err)
		}
		w, err := f.CreateWriter(nil, testSchema(), io.Discard, nil)
		if err != nil {
			t.Fatal(err)
		}
		if w.MimeType() != tt.mime {
			t.Errorf("New(%q) mime = %q, want %q", tt.format, w.MimeType(), tt.mime)
		}
	}

	if _, err := New("xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestSchema_Inherit(t *testing.T) {
	input := testSchema()
	rec := domain.NewRecord(domain.NewSchema("other"), nil)

	got, err := JSONFactory{}.Schema(&rec, input)
	if err != nil || got != input {
		t.Errorf("input schema should win, got %v, %v", got, err)
	}
	got, err = JSONFactory{}.Schema(&rec, nil)
	if err != nil || got != rec.Schema {
		t.Errorf("record schema should be used when input is nil, got %v, %v", got, err)
	}
	if _, err := (JSONFactory{}).Schema(nil, nil); !errors.Is(err, ErrNoSchema) {
		t.Errorf("expected ErrNoSchema, got %v", err)
	}
}

func TestJSONWriter(t *testing.T) {
	out, res := writeAll(t, JSONFactory{}, testRecords(testSchema()))

	want := `[{"name":"cpu","value":42,"ok":true},{"name":"mem","value":7,"ok":null}]`
	if out != want {
		t.Errorf("output:\n got %s\nwant %s", out, want)
	}
	if res.RecordCount != 2 {
		t.Errorf("record count = %d, want 2", res.RecordCount)
	}
	if diff := cmp.Diff(map[string]string{domain.AttrSchemaName: "metrics"}, res.Attributes); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}

	var decoded []map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
}

func TestJSONWriter_Empty(t *testing.T) {
	out, res := writeAll(t, JSONFactory{}, nil)
	if out != "[]" || res.RecordCount != 0 {
		t.Errorf("got %q with %d records", out, res.RecordCount)
	}
}

func TestWriter_EmptyRecordSet(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: FormatJSON, want: "[]"},
		{format: FormatCSV, want: "name,value,ok\n"},
		{format: FormatYAML, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			f, err := New(tt.format)
			if err != nil {
				t.Fatal(err)
			}
			out, res := writeAll(t, f, nil)
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
			if res.RecordCount != 0 {
				t.Errorf("record count = %d, want 0", res.RecordCount)
			}
		})
	}
}

func TestYAMLWriter_CloseWithoutRecords(t *testing.T) {
	w, err := YAMLFactory{}.CreateWriter(nil, testSchema(), io.Discard, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() on unused writer = %v", err)
	}
}

func TestJSONWriter_CloseWithoutFinish(t *testing.T) {
	s := testSchema()
	var buf bytes.Buffer
	w, _ := JSONFactory{}.CreateWriter(nil, s, &buf, nil)
	if err := w.BeginRecordSet(); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(testRecords(s)[0]); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("closed output is not valid JSON: %v (%s)", err, buf.String())
	}
	if len(decoded) != 1 {
		t.Errorf("decoded %d records, want 1", len(decoded))
	}
}

func TestCSVWriter(t *testing.T) {
	out, res := writeAll(t, CSVFactory{}, testRecords(testSchema()))

	rows, err := csv.NewReader(bytes.NewBufferString(out)).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	want := [][]string{
		{"name", "value", "ok"},
		{"cpu", "42", "true"},
		{"mem", "7", ""},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if res.RecordCount != 2 {
		t.Errorf("record count = %d, want 2", res.RecordCount)
	}
}

func TestYAMLWriter(t *testing.T) {
	out, res := writeAll(t, YAMLFactory{}, testRecords(testSchema()))

	dec := yaml.NewDecoder(bytes.NewBufferString(out))
	var docs []map[string]any
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("invalid YAML: %v\n%s", err, out)
		}
		docs = append(docs, doc)
	}

	want := []map[string]any{
		{"name": "cpu", "value": 42, "ok": true},
		{"name": "mem", "value": 7, "ok": nil},
	}
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Errorf("documents mismatch (-want +got):\n%s", diff)
	}
	if res.RecordCount != 2 {
		t.Errorf("record count = %d, want 2", res.RecordCount)
	}
}

func TestWriter_Sequencing(t *testing.T) {
	for _, format := range Formats() {
		t.Run(format, func(t *testing.T) {
			f, _ := New(format)
			s := testSchema()
			rec := testRecords(s)[0]
			w, err := f.CreateWriter(nil, s, io.Discard, nil)
			if err != nil {
				t.Fatal(err)
			}

			if err := w.Write(rec); err == nil {
				t.Error("write before begin should fail")
			}
			if _, err := w.FinishRecordSet(); err == nil {
				t.Error("finish before begin should fail")
			}
			if err := w.BeginRecordSet(); err != nil {
				t.Fatal(err)
			}
			if err := w.BeginRecordSet(); err == nil {
				t.Error("second begin should fail")
			}
			if _, err := w.FinishRecordSet(); err != nil {
				t.Fatal(err)
			}
			if err := w.Write(rec); err == nil {
				t.Error("write after finish should fail")
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestCreateWriter_NilSchema(t *testing.T) {
	for _, format := range Formats() {
		f, _ := New(format)
		if _, err := f.CreateWriter(nil, nil, io.Discard, nil); !errors.Is(err, ErrNoSchema) {
			t.Errorf("%s: expected ErrNoSchema, got %v", format, err)
		}
	}
}
