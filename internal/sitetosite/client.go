// Package sitetosite implements the transfer session used by the record sink.
//
// A [Client] knows the peers of one destination port, opens transactions
// against them with a RAW or HTTP [ports.PeerTransport], and penalizes peers
// that fail so later transactions go elsewhere. When every peer is penalized
// CreateTransaction returns no transaction and no error.
package sitetosite

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	httpAdapter "github.com/bft-labs/recordship/internal/adapters/http"
	"github.com/bft-labs/recordship/internal/adapters/raw"
	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/ports"
	"github.com/bft-labs/recordship/pkg/log"
)

// EventCategory is the category of events reported by the client.
const EventCategory = "Site-to-Site"

// DefaultTimeout bounds network operations when ClientConfig.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	URLs        []*url.URL
	PortName    string
	InstanceURL string
	TLSConfig   *tls.Config
	Compress    bool
	Timeout     time.Duration
	Protocol    TransportProtocol
	Proxy       *HTTPProxy

	// PenaltyPeriod is the first penalty applied to a failing peer.
	// It doubles per consecutive failure up to DefaultPenaltyMax.
	PenaltyPeriod time.Duration

	EventReporter       domain.EventReporter
	PeerStateRepository ports.PeerStateRepository
	Logger              log.Logger

	// Transport overrides the transport built from Protocol.
	Transport ports.PeerTransport
}

// Validate checks the configuration for errors.
func (c ClientConfig) Validate() error {
	if len(c.URLs) == 0 {
		return fmt.Errorf("%w: at least one destination url is required", domain.ErrInvalidConfig)
	}
	if c.PortName == "" {
		return fmt.Errorf("%w: port name is required", domain.ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", domain.ErrInvalidConfig)
	}
	if c.Transport == nil && c.Protocol != ProtocolRAW && c.Protocol != ProtocolHTTP {
		return fmt.Errorf("%w: unknown transport protocol %q", domain.ErrInvalidConfig, c.Protocol)
	}
	return nil
}

// Client is a transfer session over a set of peers.
// It is safe for concurrent use; each transaction owns its own connection.
type Client struct {
	cfg       ClientConfig
	transport ports.PeerTransport
	peers     *peerSelector
	logger    log.Logger

	mu     sync.RWMutex
	closed bool
}

// NewClient validates cfg, builds the transport and restores persisted peer state.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = buildTransport(cfg)
	}

	c := &Client{
		cfg:       cfg,
		transport: transport,
		peers:     newPeerSelector(cfg.URLs, newPenalty(cfg.PenaltyPeriod, DefaultPenaltyMax)),
		logger:    cfg.Logger,
	}

	if cfg.PeerStateRepository != nil {
		st, err := cfg.PeerStateRepository.Load(ctx)
		if err != nil {
			c.logger.Warn("failed to load peer state", log.Err(err))
		} else if st.PortName == cfg.PortName {
			c.peers.restore(st)
		}
	}

	return c, nil
}

func buildTransport(cfg ClientConfig) ports.PeerTransport {
	if cfg.Protocol == ProtocolRAW {
		return raw.NewTransport(raw.Config{
			PortName:    cfg.PortName,
			InstanceURL: cfg.InstanceURL,
			TLSConfig:   cfg.TLSConfig,
			Compress:    cfg.Compress,
			Timeout:     cfg.Timeout,
			Logger:      cfg.Logger,
		})
	}
	proxy := EffectiveProxy(cfg.Protocol, cfg.Proxy)
	return httpAdapter.NewTransport(httpAdapter.Config{
		PortName:    cfg.PortName,
		InstanceURL: cfg.InstanceURL,
		Compress:    cfg.Compress,
		Client:      httpAdapter.NewHTTPClient(cfg.Timeout, cfg.TLSConfig, proxy.URL()),
		Logger:      cfg.Logger,
	})
}

// CreateTransaction opens a transaction on the first peer that accepts one.
// Returns (nil, nil) when every peer is penalized or refused.
func (c *Client) CreateTransaction(ctx context.Context, direction domain.TransferDirection) (ports.Transaction, error) {
	if direction != domain.DirectionSend {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedDirection, direction)
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, domain.ErrNotActive
	}

	for _, peer := range c.peers.candidates() {
		id := uuid.NewString()
		tx, err := c.transport.OpenTransaction(ctx, peer, id)
		if err == nil {
			c.logger.Debug("transaction opened",
				log.String("transaction", id),
				log.String("peer", peer.String()),
				log.String("protocol", c.cfg.Protocol.String()),
			)
			return &trackedTransaction{Transaction: tx, client: c, peer: peer}, nil
		}

		if errors.Is(err, domain.ErrPortNotFound) || errors.Is(err, domain.ErrUnauthorized) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.penalize(ctx, peer, err)
	}

	return nil, nil
}

// Close releases the transport and persists peer state. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.persist(context.Background())
	return c.transport.Close()
}

// PeerState returns the current status of every peer.
func (c *Client) PeerState() domain.PeerState {
	return c.peers.snapshot(c.cfg.PortName)
}

func (c *Client) penalize(ctx context.Context, peer *url.URL, cause error) {
	d := c.peers.penalize(peer)
	msg := fmt.Sprintf("unable to communicate with %s: %v; penalizing peer for %s", peer, cause, d.Round(time.Millisecond))
	c.cfg.EventReporter.Report(domain.SeverityWarning, EventCategory, msg)
	c.logger.Debug("peer penalized",
		log.String("peer", peer.String()),
		log.Duration("penalty", d),
		log.Err(cause),
	)
	c.persist(ctx)
}

func (c *Client) persist(ctx context.Context) {
	if c.cfg.PeerStateRepository == nil {
		return
	}
	if err := c.cfg.PeerStateRepository.Save(ctx, c.PeerState()); err != nil {
		c.logger.Warn("failed to save peer state", log.Err(err))
	}
}

// trackedTransaction feeds transaction outcomes back into peer selection.
type trackedTransaction struct {
	ports.Transaction
	client *Client
	peer   *url.URL
	sent   int
}

func (t *trackedTransaction) Send(ctx context.Context, data []byte, attrs map[string]string) error {
	if err := t.Transaction.Send(ctx, data, attrs); err != nil {
		return t.failed(ctx, err)
	}
	t.sent++
	return nil
}

func (t *trackedTransaction) Confirm(ctx context.Context) error {
	if err := t.Transaction.Confirm(ctx); err != nil {
		return t.failed(ctx, err)
	}
	return nil
}

func (t *trackedTransaction) Complete(ctx context.Context) error {
	if err := t.Transaction.Complete(ctx); err != nil {
		return t.failed(ctx, err)
	}
	t.client.peers.succeeded(t.peer, t.sent)
	t.client.persist(ctx)
	return nil
}

func (t *trackedTransaction) failed(ctx context.Context, err error) error {
	if !errors.Is(err, domain.ErrTransactionState) {
		t.client.penalize(ctx, t.peer, err)
		t.client.cfg.EventReporter.Report(domain.SeverityError, EventCategory,
			fmt.Sprintf("transaction with %s failed: %v", t.peer, err))
	}
	return err
}
