package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/recordship/internal/adapters/fs"
	"github.com/bft-labs/recordship/internal/recordwriter"
	"github.com/bft-labs/recordship/internal/sink"
	"github.com/bft-labs/recordship/internal/sitetosite"
)

// Config holds CLI configuration for recordship.
type Config struct {
	DestinationURL string
	PortName       string
	InstanceURL    string

	Compress          bool
	Timeout           time.Duration
	BatchSize         int
	TransportProtocol string

	HTTPProxyHostname string
	HTTPProxyPort     int
	HTTPProxyUsername string
	HTTPProxyPassword string

	TLSCertFile string
	TLSKeyFile  string
	TLSCAFile   string

	RecordWriter    string
	StateDir        string
	SendZeroResults bool

	MetricsAddr string
	LogLevel    string

	SpoolDir          string
	SpoolPollInterval time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Timeout:           sink.DefaultTimeout,
		BatchSize:         sink.DefaultBatchSize,
		TransportProtocol: string(sink.DefaultProtocol),
		RecordWriter:      recordwriter.FormatJSON,
		LogLevel:          "info",
		SpoolPollInterval: 10 * time.Second,
		StateDir:          "", // Derived from $HOME during Validate
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DestinationURL == "" {
		return fmt.Errorf("destination-url is required")
	}
	if _, err := sitetosite.ParseClusterURLs(c.DestinationURL); err != nil {
		return err
	}
	if c.PortName == "" {
		return fmt.Errorf("port-name is required")
	}

	protocol, err := sitetosite.ParseTransportProtocol(c.TransportProtocol)
	if err != nil {
		return err
	}
	c.TransportProtocol = protocol.String()

	c.RecordWriter = strings.ToLower(c.RecordWriter)
	if _, err := recordwriter.New(c.RecordWriter); err != nil {
		return err
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.HTTPProxyPort < 0 || c.HTTPProxyPort > 65535 {
		return fmt.Errorf("http proxy port %d out of range", c.HTTPProxyPort)
	}
	if c.SpoolPollInterval <= 0 {
		return fmt.Errorf("spool poll interval must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	if c.InstanceURL == "" {
		if host, err := os.Hostname(); err == nil {
			c.InstanceURL = "http://" + host
		}
	}
	if c.StateDir == "" {
		if h, err := os.UserHomeDir(); err == nil {
			c.StateDir = filepath.Join(h, ".recordship", "state")
		}
	}

	return nil
}

// SinkConfig builds the sink configuration: it loads TLS material and
// resolves the record writer. Call Validate first.
func (c Config) SinkConfig() (sink.Config, error) {
	tlsConfig, err := sitetosite.LoadTLSConfig(c.TLSCertFile, c.TLSKeyFile, c.TLSCAFile)
	if err != nil {
		return sink.Config{}, err
	}
	factory, err := recordwriter.New(c.RecordWriter)
	if err != nil {
		return sink.Config{}, err
	}

	cfg := sink.Config{
		DestinationURLs: c.DestinationURL,
		PortName:        c.PortName,
		InstanceURL:     c.InstanceURL,
		TLSConfig:       tlsConfig,
		Compress:        c.Compress,
		Timeout:         c.Timeout,
		BatchSize:       c.BatchSize,
		Protocol:        sitetosite.TransportProtocol(c.TransportProtocol),
		WriterFactory:   factory,
	}
	if c.HTTPProxyHostname != "" {
		cfg.Proxy = &sitetosite.HTTPProxy{
			Host:     c.HTTPProxyHostname,
			Port:     c.HTTPProxyPort,
			Username: c.HTTPProxyUsername,
			Password: c.HTTPProxyPassword,
		}
	}
	if c.StateDir != "" {
		cfg.PeerStateRepository = fs.NewPeerStateFileRepository(c.StateDir)
	}
	return cfg, nil
}

// Masked returns a copy safe for logging.
func (c Config) Masked() Config {
	if c.HTTPProxyPassword != "" {
		c.HTTPProxyPassword = "*****"
	}
	return c
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
