package domain

// Well-known attribute keys.
const (
	AttrMimeType    = "mime.type"
	AttrRecordCount = "record.count"
	AttrSchemaName  = "schema.name"
	AttrFilename    = "filename"
	AttrUUID        = "uuid"
)

// Attributes is a mutable key/value mapping attached to an outgoing payload.
// Maps are references, so enrichment done by the sink is visible to the caller.
type Attributes map[string]string

// Merge copies every entry of other into a, overwriting existing keys.
func (a Attributes) Merge(other map[string]string) {
	for k, v := range other {
		a[k] = v
	}
}

// WriteResult is the outcome of serializing a record set.
type WriteResult struct {
	// RecordCount is the number of records written.
	RecordCount int

	// Attributes are supplementary attributes contributed by the writer.
	Attributes map[string]string
}

// NewWriteResult creates a WriteResult with a non-nil attribute map.
func NewWriteResult(count int, attrs map[string]string) WriteResult {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return WriteResult{RecordCount: count, Attributes: attrs}
}
