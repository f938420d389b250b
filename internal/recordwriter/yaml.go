package recordwriter

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/ports"
	"github.com/bft-labs/recordship/pkg/log"
)

// YAMLFactory writes one YAML document per record.
type YAMLFactory struct{}

func (YAMLFactory) Schema(record *domain.Record, input *domain.Schema) (*domain.Schema, error) {
	return inheritSchema(record, input)
}

func (YAMLFactory) CreateWriter(logger log.Logger, schema *domain.Schema, out io.Writer, attrs domain.Attributes) (ports.RecordSetWriter, error) {
	if schema == nil {
		return nil, ErrNoSchema
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	return &yamlWriter{recordSet: newRecordSet(logger, schema), enc: enc}, nil
}

type yamlWriter struct {
	recordSet
	enc       *yaml.Encoder
	encClosed bool
}

func (w *yamlWriter) BeginRecordSet() error {
	return w.begin()
}

func (w *yamlWriter) Write(record domain.Record) error {
	if err := w.checkWrite(); err != nil {
		return err
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range w.schema.FieldNames() {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: name}
		val := &yaml.Node{}
		if err := val.Encode(record.Get(name)); err != nil {
			return fmt.Errorf("encode field %s: %w", name, err)
		}
		doc.Content = append(doc.Content, key, val)
	}

	if err := w.enc.Encode(doc); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *yamlWriter) FinishRecordSet() (domain.WriteResult, error) {
	res, err := w.finish()
	if err != nil {
		return res, err
	}
	if err := w.closeEncoder(); err != nil {
		return domain.WriteResult{}, err
	}
	return res, nil
}

func (w *yamlWriter) MimeType() string { return MimeYAML }

func (w *yamlWriter) Close() error {
	w.state = stateClosed
	return w.closeEncoder()
}

// closeEncoder ends the YAML stream. An encoder that never emitted a
// document has no stream to end, and yaml.v3 rejects closing it.
func (w *yamlWriter) closeEncoder() error {
	if w.encClosed {
		return nil
	}
	w.encClosed = true
	if w.count == 0 {
		return nil
	}
	return w.enc.Close()
}
