// Package recordship ships record sets to a site-to-site input port.
//
// Example usage:
//
//	cfg := recordship.Config{
//	    DestinationURLs: "http://nifi-1:8080/nifi,http://nifi-2:8080/nifi",
//	    PortName:        "records",
//	    WriterFactory:   recordship.JSONWriter(),
//	}
//	session, err := recordship.Activate(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	res, err := session.Send(ctx, records, recordship.Attributes{}, false)
//	switch {
//	case err != nil:
//	    // transfer failed; err is a *recordship.TransferError
//	case res == nil:
//	    // every peer is penalized; retry later
//	}
package recordship

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/recordship/internal/app"
	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/metrics"
	"github.com/bft-labs/recordship/internal/recordwriter"
	"github.com/bft-labs/recordship/internal/sink"
	"github.com/bft-labs/recordship/internal/sitetosite"
	"github.com/bft-labs/recordship/pkg/log"
)

type (
	// Config holds the settings of one sink activation.
	Config = sink.Config

	// Session is an active sink. Send is safe for concurrent use.
	Session = sink.Session

	// Service keeps a Session across enable, disable and reload.
	Service = sink.Service

	// Option configures Activate and NewService.
	Option = sink.Option

	// State is the lifecycle state of a Service.
	State = app.State

	// Record, Schema, Field, RecordSet and Attributes describe the data sent.
	Record     = domain.Record
	Schema     = domain.Schema
	Field      = domain.Field
	FieldType  = domain.FieldType
	RecordSet  = domain.RecordSet
	Attributes = domain.Attributes

	// WriteResult is returned by a successful Send.
	WriteResult = domain.WriteResult

	// TransferError wraps every Send failure.
	TransferError = domain.TransferError

	// InitError wraps every Activate failure.
	InitError = domain.InitError

	// HTTPProxy routes HTTP transport traffic through a proxy.
	HTTPProxy = sitetosite.HTTPProxy

	// Receiver accepts transfers. Useful in tests and local setups.
	Receiver = sitetosite.Receiver

	// FlowFile is one received payload with its attributes.
	FlowFile = sitetosite.FlowFile
)

// Transport protocols.
const (
	ProtocolRAW  = sitetosite.ProtocolRAW
	ProtocolHTTP = sitetosite.ProtocolHTTP
)

// Field types.
const (
	FieldString    = domain.FieldString
	FieldInt       = domain.FieldInt
	FieldFloat     = domain.FieldFloat
	FieldBoolean   = domain.FieldBoolean
	FieldTimestamp = domain.FieldTimestamp
)

// Lifecycle states.
const (
	StateDisabled  = app.StateDisabled
	StateEnabling  = app.StateEnabling
	StateEnabled   = app.StateEnabled
	StateDisabling = app.StateDisabling
	StateInvalid   = app.StateInvalid
)

var (
	ErrInvalidConfig = domain.ErrInvalidConfig
	ErrNotActive     = domain.ErrNotActive
	ErrAlreadyActive = domain.ErrAlreadyActive
)

// Activate validates cfg and builds a Session.
func Activate(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	return sink.Activate(ctx, cfg, opts...)
}

// NewService creates a disabled Service. onStateChange may be nil.
func NewService(logger log.Logger, onStateChange func(previous, current State, reason string), opts ...Option) *Service {
	var emitter app.EventEmitter
	if onStateChange != nil {
		emitter = app.EventEmitterFunc(onStateChange)
	}
	return sink.NewService(logger, emitter, opts...)
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return sink.WithLogger(logger)
}

// WithRegisterer registers send metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return sink.WithMetrics(metrics.New(reg))
}

// NewRecordSet returns a RecordSet over records.
func NewRecordSet(schema *Schema, records ...Record) RecordSet {
	return domain.NewSliceRecordSet(schema, records...)
}

// NewSchema returns a schema with the given fields.
func NewSchema(name string, fields ...Field) *Schema {
	return domain.NewSchema(name, fields...)
}

// NewRecord returns a record of schema.
func NewRecord(schema *Schema, values map[string]any) Record {
	return domain.NewRecord(schema, values)
}

// JSONWriter, CSVWriter and YAMLWriter return the built-in writer factories.
func JSONWriter() recordwriter.JSONFactory { return recordwriter.JSONFactory{} }
func CSVWriter() recordwriter.CSVFactory   { return recordwriter.CSVFactory{} }
func YAMLWriter() recordwriter.YAMLFactory { return recordwriter.YAMLFactory{} }

// IsTransferError reports whether err is or wraps a TransferError.
func IsTransferError(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}
