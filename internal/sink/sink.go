// Package sink serializes record sets and ships them over a transfer session.
//
// A Session is created by Activate and shared by every send until Close.
// Each Send opens its own transaction, serializes the whole record set into
// memory and then transmits, confirms and completes the transaction. When no
// peer can take a transaction the send is declined: Send returns no result
// and no error so the caller can retry later.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/metrics"
	"github.com/bft-labs/recordship/internal/ports"
	"github.com/bft-labs/recordship/internal/sitetosite"
	"github.com/bft-labs/recordship/pkg/log"
)

// Option configures Activate.
type Option func(*options)

type options struct {
	logger  log.Logger
	metrics *metrics.Metrics
	session ports.TransferSession
}

// WithLogger sets the logger used by the session and its transfer client.
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records send outcomes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTransferSession uses session instead of building a site-to-site client.
func WithTransferSession(session ports.TransferSession) Option {
	return func(o *options) { o.session = session }
}

// Session is an active sink.
type Session struct {
	transfer ports.TransferSession
	factory  ports.WriterFactory
	logger   log.Logger
	metrics  *metrics.Metrics

	closeOnce sync.Once
	closeErr  error
}

// Activate validates cfg and builds the transfer session. Any failure is
// returned as a *domain.InitError and no session is created.
func Activate(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}

	if err := cfg.Validate(); err != nil {
		return nil, domain.NewInitError(err)
	}
	cfg = cfg.withDefaults()

	transfer := o.session
	if transfer == nil {
		client, err := newClient(ctx, cfg, o.logger)
		if err != nil {
			return nil, domain.NewInitError(err)
		}
		transfer = client
	}

	o.logger.Info("record sink activated",
		log.String("destination", cfg.DestinationURLs),
		log.String("port", cfg.PortName),
		log.String("protocol", cfg.Protocol.String()),
		log.Bool("compress", cfg.Compress),
		log.Duration("timeout", cfg.Timeout),
	)

	return &Session{
		transfer: transfer,
		factory:  cfg.WriterFactory,
		logger:   o.logger,
		metrics:  o.metrics,
	}, nil
}

func newClient(ctx context.Context, cfg Config, logger log.Logger) (*sitetosite.Client, error) {
	urls, err := sitetosite.ParseClusterURLs(cfg.DestinationURLs)
	if err != nil {
		return nil, err
	}
	return sitetosite.NewClient(ctx, sitetosite.ClientConfig{
		URLs:                urls,
		PortName:            cfg.PortName,
		InstanceURL:         cfg.InstanceURL,
		TLSConfig:           cfg.TLSConfig,
		Compress:            cfg.Compress,
		Timeout:             cfg.Timeout,
		Protocol:            cfg.Protocol,
		Proxy:               sitetosite.EffectiveProxy(cfg.Protocol, cfg.Proxy),
		EventReporter:       NewEventReporter(logger),
		PeerStateRepository: cfg.PeerStateRepository,
		Logger:              logger,
	})
}

// Send serializes rs and transmits it in one transaction.
//
// attrs is enriched in place with the mime type, the record count and the
// writer's result attributes. The payload is transmitted only when at least
// one record was written or sendZeroResults is set; the transaction is
// confirmed and completed either way. Send returns (nil, nil) when no
// transaction is available. Every failure is a *domain.TransferError.
func (s *Session) Send(ctx context.Context, rs domain.RecordSet, attrs domain.Attributes, sendZeroResults bool) (*domain.WriteResult, error) {
	start := time.Now()

	tx, err := s.transfer.CreateTransaction(ctx, domain.DirectionSend)
	if err != nil {
		s.metrics.ObserveSend(metrics.ResultFailed, 0, 0, time.Since(start))
		return nil, domain.NewTransferError(fmt.Errorf("create transaction: %w", err))
	}
	if tx == nil {
		s.logger.Info("all destination nodes are penalized; will attempt to send data later")
		s.metrics.ObserveSend(metrics.ResultDeclined, 0, 0, time.Since(start))
		return nil, nil
	}

	if attrs == nil {
		attrs = domain.Attributes{}
	}

	res, sent, err := s.transmit(ctx, tx, rs, attrs, sendZeroResults)
	if err != nil {
		if cerr := tx.Cancel(ctx, err.Error()); cerr != nil {
			s.logger.Debug("failed to cancel transaction", log.Err(cerr))
		}
		s.metrics.ObserveSend(metrics.ResultFailed, 0, 0, time.Since(start))
		return nil, domain.NewTransferError(err)
	}

	result := metrics.ResultEmpty
	if sent >= 0 {
		result = metrics.ResultSent
	}
	s.metrics.ObserveSend(result, res.RecordCount, sent, time.Since(start))
	s.logger.Debug("record set sent",
		log.Int("records", res.RecordCount),
		log.Int("bytes", sent),
		log.Bool("transmitted", sent >= 0),
	)
	return &res, nil
}

// transmit runs the serialize, send, confirm, complete sequence. sent is the
// payload size, or -1 when nothing was transmitted.
func (s *Session) transmit(ctx context.Context, tx ports.Transaction, rs domain.RecordSet, attrs domain.Attributes, sendZeroResults bool) (domain.WriteResult, int, error) {
	schema, err := s.factory.Schema(nil, rs.Schema())
	if err != nil {
		return domain.WriteResult{}, 0, fmt.Errorf("resolve schema: %w", err)
	}

	var buf bytes.Buffer
	res, mimeType, err := s.serialize(schema, rs, &buf, attrs)
	if err != nil {
		return domain.WriteResult{}, 0, err
	}

	attrs[domain.AttrMimeType] = mimeType
	attrs[domain.AttrRecordCount] = strconv.Itoa(res.RecordCount)
	attrs.Merge(res.Attributes)

	sent := -1
	if res.RecordCount > 0 || sendZeroResults {
		if err := tx.Send(ctx, buf.Bytes(), attrs); err != nil {
			return domain.WriteResult{}, 0, fmt.Errorf("send payload: %w", err)
		}
		sent = buf.Len()
	}

	if err := tx.Confirm(ctx); err != nil {
		return domain.WriteResult{}, 0, fmt.Errorf("confirm transaction: %w", err)
	}
	if err := tx.Complete(ctx); err != nil {
		return domain.WriteResult{}, 0, fmt.Errorf("complete transaction: %w", err)
	}
	return res, sent, nil
}

// serialize drains rs into out. The writer is closed on every path.
func (s *Session) serialize(schema *domain.Schema, rs domain.RecordSet, out io.Writer, attrs domain.Attributes) (res domain.WriteResult, mimeType string, err error) {
	w, err := s.factory.CreateWriter(s.logger, schema, out, attrs)
	if err != nil {
		return res, "", fmt.Errorf("create record writer: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close record writer: %w", cerr)
		}
	}()

	if err := w.BeginRecordSet(); err != nil {
		return res, "", fmt.Errorf("begin record set: %w", err)
	}
	for {
		rec, err := rs.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, "", fmt.Errorf("read record: %w", err)
		}
		if err := w.Write(rec); err != nil {
			return res, "", fmt.Errorf("write record: %w", err)
		}
	}

	res, err = w.FinishRecordSet()
	if err != nil {
		return res, "", fmt.Errorf("finish record set: %w", err)
	}
	return res, w.MimeType(), nil
}

// Close releases the transfer session. It is safe to call more than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closeErr = s.transfer.Close()
		s.logger.Info("record sink deactivated")
	})
	return s.closeErr
}
