// Package recordwriter provides record writer factories for JSON, CSV and YAML.
//
// Every factory inherits the schema of the record set being written. Writers
// stream into the supplied io.Writer and report the number of records written
// together with the schema name, when there is one.
package recordwriter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/ports"
	"github.com/bft-labs/recordship/pkg/log"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// Mime types of the supported formats.
const (
	MimeJSON = "application/json"
	MimeCSV  = "text/csv"
	MimeYAML = "application/yaml"
)

var (
	// ErrUnknownFormat is returned by New for an unsupported format.
	ErrUnknownFormat = errors.New("recordwriter: unknown format")

	// ErrNoSchema is returned when neither a record nor an input schema is given.
	ErrNoSchema = errors.New("recordwriter: no schema available")

	errNotStarted   = errors.New("recordwriter: record set not started")
	errFinished     = errors.New("recordwriter: record set already finished")
	errStarted      = errors.New("recordwriter: record set already started")
	errWriterClosed = errors.New("recordwriter: writer closed")
)

// Formats returns the names accepted by New.
func Formats() []string {
	return []string{FormatJSON, FormatCSV, FormatYAML}
}

// New returns the writer factory for format (case-insensitive).
func New(format string) (ports.WriterFactory, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return JSONFactory{}, nil
	case FormatCSV:
		return CSVFactory{}, nil
	case FormatYAML:
		return YAMLFactory{}, nil
	default:
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
}

// inheritSchema prefers the input schema and falls back to the record's.
func inheritSchema(record *domain.Record, input *domain.Schema) (*domain.Schema, error) {
	if input != nil {
		return input, nil
	}
	if record != nil && record.Schema != nil {
		return record.Schema, nil
	}
	return nil, ErrNoSchema
}

type writerState int

const (
	stateNew writerState = iota
	stateActive
	stateFinished
	stateClosed
)

// recordSet tracks the begin/write/finish sequence shared by all writers.
type recordSet struct {
	schema *domain.Schema
	logger log.Logger
	state  writerState
	count  int
}

func newRecordSet(logger log.Logger, schema *domain.Schema) recordSet {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return recordSet{schema: schema, logger: logger}
}

func (s *recordSet) begin() error {
	switch s.state {
	case stateNew:
		s.state = stateActive
		return nil
	case stateClosed:
		return errWriterClosed
	default:
		return errStarted
	}
}

func (s *recordSet) checkWrite() error {
	switch s.state {
	case stateActive:
		return nil
	case stateNew:
		return errNotStarted
	case stateFinished:
		return errFinished
	default:
		return errWriterClosed
	}
}

func (s *recordSet) finish() (domain.WriteResult, error) {
	if err := s.checkWrite(); err != nil {
		return domain.WriteResult{}, err
	}
	s.state = stateFinished

	attrs := map[string]string{}
	if s.schema != nil && s.schema.Name != "" {
		attrs[domain.AttrSchemaName] = s.schema.Name
	}
	s.logger.Debug("record set written", log.Int("records", s.count))
	return domain.NewWriteResult(s.count, attrs), nil
}

// formatValue renders a value as text for formats without native types.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
