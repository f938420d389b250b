package sitetosite

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/bft-labs/recordship/internal/domain"
)

// LoadTLSConfig builds a client TLS configuration. certFile and keyFile hold
// the client certificate presented to peers (peers require client auth);
// caFile, when set, replaces the system roots for verifying peers.
// Returns nil when all paths are empty.
func LoadTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" && caFile == "" {
		return nil, nil
	}
	if (certFile == "") != (keyFile == "") {
		return nil, fmt.Errorf("%w: tls cert and key must be set together", domain.ErrInvalidConfig)
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates found in %s", domain.ErrInvalidConfig, caFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}
