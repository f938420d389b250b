package ports

import (
	"io"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/pkg/log"
)

// WriterFactory resolves output schemas and creates record writers.
type WriterFactory interface {
	// Schema returns the schema to write records with. Either argument may be nil.
	Schema(record *domain.Record, input *domain.Schema) (*domain.Schema, error)

	// CreateWriter creates a writer that serializes records to out.
	// attrs are the attributes of the outgoing payload and are read only.
	CreateWriter(logger log.Logger, schema *domain.Schema, out io.Writer, attrs domain.Attributes) (RecordSetWriter, error)
}

// RecordSetWriter serializes one record set.
// Close must always be called; it flushes any trailing structure even when
// FinishRecordSet was never reached.
type RecordSetWriter interface {
	// BeginRecordSet starts a new record set.
	BeginRecordSet() error

	// Write serializes a single record.
	Write(record domain.Record) error

	// FinishRecordSet ends the record set and reports what was written.
	FinishRecordSet() (domain.WriteResult, error)

	// MimeType returns the mime type of the serialized output.
	MimeType() string

	// Close releases the writer.
	Close() error
}
