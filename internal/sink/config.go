package sink

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/ports"
	"github.com/bft-labs/recordship/internal/sitetosite"
)

// Default configuration values.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultBatchSize = 1000
	DefaultProtocol  = sitetosite.ProtocolRAW
)

// Config holds everything needed to activate a sink.
type Config struct {
	// DestinationURLs is a comma-separated list of peer URLs.
	DestinationURLs string
	PortName        string
	InstanceURL     string

	TLSConfig *tls.Config
	Compress  bool
	Timeout   time.Duration

	// BatchSize is carried for callers that batch input; Send ignores it.
	BatchSize int

	Protocol sitetosite.TransportProtocol
	Proxy    *sitetosite.HTTPProxy

	WriterFactory       ports.WriterFactory
	PeerStateRepository ports.PeerStateRepository
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if _, err := sitetosite.ParseClusterURLs(c.DestinationURLs); err != nil {
		return err
	}
	if c.PortName == "" {
		return fmt.Errorf("%w: port name is required", domain.ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", domain.ErrInvalidConfig)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must not be negative", domain.ErrInvalidConfig)
	}
	if c.Protocol != "" {
		if _, err := sitetosite.ParseTransportProtocol(string(c.Protocol)); err != nil {
			return err
		}
	}
	if c.WriterFactory == nil {
		return fmt.Errorf("%w: record writer is required", domain.ErrInvalidConfig)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Protocol == "" {
		c.Protocol = DefaultProtocol
	} else {
		c.Protocol, _ = sitetosite.ParseTransportProtocol(string(c.Protocol))
	}
	return c
}
