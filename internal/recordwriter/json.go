package recordwriter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/ports"
	"github.com/bft-labs/recordship/pkg/log"
)

// JSONFactory writes a record set as a JSON array of objects.
// Object keys follow the schema field order.
type JSONFactory struct{}

func (JSONFactory) Schema(record *domain.Record, input *domain.Schema) (*domain.Schema, error) {
	return inheritSchema(record, input)
}

func (JSONFactory) CreateWriter(logger log.Logger, schema *domain.Schema, out io.Writer, attrs domain.Attributes) (ports.RecordSetWriter, error) {
	if schema == nil {
		return nil, ErrNoSchema
	}
	return &jsonWriter{recordSet: newRecordSet(logger, schema), out: out}, nil
}

type jsonWriter struct {
	recordSet
	out io.Writer
}

func (w *jsonWriter) BeginRecordSet() error {
	if err := w.begin(); err != nil {
		return err
	}
	_, err := io.WriteString(w.out, "[")
	return err
}

func (w *jsonWriter) Write(record domain.Record) error {
	if err := w.checkWrite(); err != nil {
		return err
	}

	buf := make([]byte, 0, 64)
	if w.count > 0 {
		buf = append(buf, ',')
	}
	buf = append(buf, '{')
	for i, name := range w.schema.FieldNames() {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, _ := json.Marshal(name)
		val, err := json.Marshal(record.Get(name))
		if err != nil {
			return fmt.Errorf("encode field %s: %w", name, err)
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	buf = append(buf, '}')

	if _, err := w.out.Write(buf); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *jsonWriter) FinishRecordSet() (domain.WriteResult, error) {
	res, err := w.finish()
	if err != nil {
		return res, err
	}
	if _, err := io.WriteString(w.out, "]"); err != nil {
		return domain.WriteResult{}, err
	}
	return res, nil
}

func (w *jsonWriter) MimeType() string { return MimeJSON }

// Close terminates the array if the record set was begun but never finished.
func (w *jsonWriter) Close() error {
	active := w.state == stateActive
	w.state = stateClosed
	if active {
		_, err := io.WriteString(w.out, "]")
		return err
	}
	return nil
}
