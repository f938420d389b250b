package cliconfig

import "os"

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "RECORDSHIP_"

// ApplyEnvConfig applies configuration from environment variables (RECORDSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(key string) string { return os.Getenv(EnvPrefix + key) }

	s.setString("destination-url", env("DESTINATION_URL"), &cfg.DestinationURL)
	s.setString("port-name", env("PORT_NAME"), &cfg.PortName)
	s.setString("instance-url", env("INSTANCE_URL"), &cfg.InstanceURL)
	s.setString("transport-protocol", env("TRANSPORT_PROTOCOL"), &cfg.TransportProtocol)
	s.setString("http-proxy-hostname", env("HTTP_PROXY_HOSTNAME"), &cfg.HTTPProxyHostname)
	s.setString("http-proxy-username", env("HTTP_PROXY_USERNAME"), &cfg.HTTPProxyUsername)
	s.setString("http-proxy-password", env("HTTP_PROXY_PASSWORD"), &cfg.HTTPProxyPassword)
	s.setString("tls-cert-file", env("TLS_CERT_FILE"), &cfg.TLSCertFile)
	s.setString("tls-key-file", env("TLS_KEY_FILE"), &cfg.TLSKeyFile)
	s.setString("tls-ca-file", env("TLS_CA_FILE"), &cfg.TLSCAFile)
	s.setString("record-writer", env("RECORD_WRITER"), &cfg.RecordWriter)
	s.setString("state-dir", env("STATE_DIR"), &cfg.StateDir)
	s.setString("metrics-addr", env("METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("spool-dir", env("SPOOL_DIR"), &cfg.SpoolDir)

	if err := s.setDuration("timeout", env("TIMEOUT"), &cfg.Timeout); err != nil {
		return err
	}
	if err := s.setDuration("spool-poll-interval", env("SPOOL_POLL_INTERVAL"), &cfg.SpoolPollInterval); err != nil {
		return err
	}

	if err := s.setIntFromString("batch-size", env("BATCH_SIZE"), &cfg.BatchSize); err != nil {
		return err
	}
	if err := s.setIntFromString("http-proxy-port", env("HTTP_PROXY_PORT"), &cfg.HTTPProxyPort); err != nil {
		return err
	}

	s.setBoolFromString("compress", env("COMPRESS"), &cfg.Compress)
	s.setBoolFromString("send-zero-results", env("SEND_ZERO_RESULTS"), &cfg.SendZeroResults)

	return nil
}
