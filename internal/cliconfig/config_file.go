package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DestinationURL    string `toml:"destination_url"`
	PortName          string `toml:"port_name"`
	InstanceURL       string `toml:"instance_url"`
	Compress          *bool  `toml:"compress"`
	Timeout           string `toml:"timeout"`
	BatchSize         int    `toml:"batch_size"`
	TransportProtocol string `toml:"transport_protocol"`
	HTTPProxyHostname string `toml:"http_proxy_hostname"`
	HTTPProxyPort     int    `toml:"http_proxy_port"`
	HTTPProxyUsername string `toml:"http_proxy_username"`
	HTTPProxyPassword string `toml:"http_proxy_password"`
	TLSCertFile       string `toml:"tls_cert_file"`
	TLSKeyFile        string `toml:"tls_key_file"`
	TLSCAFile         string `toml:"tls_ca_file"`
	RecordWriter      string `toml:"record_writer"`
	StateDir          string `toml:"state_dir"`
	SendZeroResults   *bool  `toml:"send_zero_results"`
	MetricsAddr       string `toml:"metrics_addr"`
	LogLevel          string `toml:"log_level"`
	SpoolDir          string `toml:"spool_dir"`
	SpoolPollInterval string `toml:"spool_poll_interval"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.recordship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".recordship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("destination-url", fc.DestinationURL, &cfg.DestinationURL)
	s.setString("port-name", fc.PortName, &cfg.PortName)
	s.setString("instance-url", fc.InstanceURL, &cfg.InstanceURL)
	s.setString("transport-protocol", fc.TransportProtocol, &cfg.TransportProtocol)
	s.setString("http-proxy-hostname", fc.HTTPProxyHostname, &cfg.HTTPProxyHostname)
	s.setString("http-proxy-username", fc.HTTPProxyUsername, &cfg.HTTPProxyUsername)
	s.setString("http-proxy-password", fc.HTTPProxyPassword, &cfg.HTTPProxyPassword)
	s.setString("tls-cert-file", fc.TLSCertFile, &cfg.TLSCertFile)
	s.setString("tls-key-file", fc.TLSKeyFile, &cfg.TLSKeyFile)
	s.setString("tls-ca-file", fc.TLSCAFile, &cfg.TLSCAFile)
	s.setString("record-writer", fc.RecordWriter, &cfg.RecordWriter)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("spool-dir", fc.SpoolDir, &cfg.SpoolDir)

	if err := s.setDuration("timeout", fc.Timeout, &cfg.Timeout); err != nil {
		return err
	}
	if err := s.setDuration("spool-poll-interval", fc.SpoolPollInterval, &cfg.SpoolPollInterval); err != nil {
		return err
	}

	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt("http-proxy-port", fc.HTTPProxyPort, &cfg.HTTPProxyPort)

	s.setBool("compress", fc.Compress, &cfg.Compress)
	s.setBool("send-zero-results", fc.SendZeroResults, &cfg.SendZeroResults)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Load builds a validated Config from base, the file at path (if it exists)
// and the environment. Flags already applied to base and listed in changed
// keep precedence. Used at startup and on every config reload.
func Load(base Config, path string, changed map[string]bool) (Config, error) {
	cfg := base
	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
