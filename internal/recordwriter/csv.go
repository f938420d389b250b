package recordwriter

import (
	"encoding/csv"
	"io"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/ports"
	"github.com/bft-labs/recordship/pkg/log"
)

// CSVFactory writes a header row followed by one row per record.
type CSVFactory struct{}

func (CSVFactory) Schema(record *domain.Record, input *domain.Schema) (*domain.Schema, error) {
	return inheritSchema(record, input)
}

func (CSVFactory) CreateWriter(logger log.Logger, schema *domain.Schema, out io.Writer, attrs domain.Attributes) (ports.RecordSetWriter, error) {
	if schema == nil {
		return nil, ErrNoSchema
	}
	return &csvWriter{recordSet: newRecordSet(logger, schema), out: csv.NewWriter(out)}, nil
}

type csvWriter struct {
	recordSet
	out *csv.Writer
}

func (w *csvWriter) BeginRecordSet() error {
	if err := w.begin(); err != nil {
		return err
	}
	return w.out.Write(w.schema.FieldNames())
}

func (w *csvWriter) Write(record domain.Record) error {
	if err := w.checkWrite(); err != nil {
		return err
	}
	names := w.schema.FieldNames()
	row := make([]string, len(names))
	for i, name := range names {
		row[i] = formatValue(record.Get(name))
	}
	if err := w.out.Write(row); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *csvWriter) FinishRecordSet() (domain.WriteResult, error) {
	res, err := w.finish()
	if err != nil {
		return res, err
	}
	w.out.Flush()
	if err := w.out.Error(); err != nil {
		return domain.WriteResult{}, err
	}
	return res, nil
}

func (w *csvWriter) MimeType() string { return MimeCSV }

func (w *csvWriter) Close() error {
	if w.state == stateClosed {
		return nil
	}
	w.state = stateClosed
	w.out.Flush()
	return w.out.Error()
}
