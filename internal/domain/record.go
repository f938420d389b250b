package domain

import "io"

// FieldType identifies the value type of a schema field.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldInt       FieldType = "int"
	FieldFloat     FieldType = "float"
	FieldBoolean   FieldType = "boolean"
	FieldTimestamp FieldType = "timestamp"
)

// Field describes one column of a record schema.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
}

// Schema is an ordered list of fields with an optional name.
type Schema struct {
	// Name identifies the schema. Writers expose it as the schema.name
	// attribute when set.
	Name string

	Fields []Field
}

// NewSchema creates a schema with the given name and fields.
func NewSchema(name string, fields ...Field) *Schema {
	return &Schema{Name: name, Fields: fields}
}

// FieldNames returns the field names in schema order.
func (s *Schema) FieldNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Record is a single structured row. Values are keyed by field name.
type Record struct {
	Schema *Schema
	Values map[string]any
}

// NewRecord creates a record bound to schema.
func NewRecord(schema *Schema, values map[string]any) Record {
	if values == nil {
		values = make(map[string]any)
	}
	return Record{Schema: schema, Values: values}
}

// Get returns the value of the named field, or nil if absent.
func (r Record) Get(name string) any {
	return r.Values[name]
}

// RecordSet is a forward-only, single-pass sequence of records sharing a schema.
//
// Next returns io.EOF once the set is exhausted. A RecordSet cannot be
// rewound; consumers must drain it at most once.
type RecordSet interface {
	// Schema returns the schema of the records in the set.
	Schema() *Schema

	// Next returns the next record, or io.EOF when no records remain.
	Next() (Record, error)
}

// SliceRecordSet is a RecordSet backed by an in-memory slice.
type SliceRecordSet struct {
	schema  *Schema
	records []Record
	pos     int
}

// NewSliceRecordSet creates a record set over records.
func NewSliceRecordSet(schema *Schema, records ...Record) *SliceRecordSet {
	return &SliceRecordSet{schema: schema, records: records}
}

// Schema returns the schema of the set.
func (s *SliceRecordSet) Schema() *Schema {
	return s.schema
}

// Next returns the next record or io.EOF.
func (s *SliceRecordSet) Next() (Record, error) {
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

// Remaining returns the number of records not yet consumed.
func (s *SliceRecordSet) Remaining() int {
	return len(s.records) - s.pos
}
