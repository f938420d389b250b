package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"RECORDSHIP_DESTINATION_URL":     "http://env:8080/nifi",
				"RECORDSHIP_PORT_NAME":           "env-port",
				"RECORDSHIP_TIMEOUT":             "10s",
				"RECORDSHIP_BATCH_SIZE":          "200",
				"RECORDSHIP_HTTP_PROXY_PORT":     "3128",
				"RECORDSHIP_COMPRESS":            "true",
				"RECORDSHIP_SEND_ZERO_RESULTS":   "1",
				"RECORDSHIP_SPOOL_POLL_INTERVAL": "2s",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				DestinationURL:    "http://env:8080/nifi",
				PortName:          "env-port",
				Timeout:           10 * time.Second,
				BatchSize:         200,
				HTTPProxyPort:     3128,
				Compress:          true,
				SendZeroResults:   true,
				SpoolPollInterval: 2 * time.Second,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"RECORDSHIP_PORT_NAME":     "env-port",
				"RECORDSHIP_RECORD_WRITER": "csv",
			},
			changed:  map[string]bool{"port-name": true},
			initial:  Config{PortName: "flag-port"},
			expected: Config{PortName: "flag-port", RecordWriter: "csv"},
		},
		{
			name:     "non-positive batch size is ignored",
			envVars:  map[string]string{"RECORDSHIP_BATCH_SIZE": "0"},
			changed:  map[string]bool{},
			initial:  Config{BatchSize: 10},
			expected: Config{BatchSize: 10},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"RECORDSHIP_TIMEOUT": "not-a-duration"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"RECORDSHIP_BATCH_SIZE": "lots"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestConfigPrecedence(t *testing.T) {
	// flags > env > file > defaults
	cfg := DefaultConfig()
	cfg.PortName = "flag-port"
	changed := map[string]bool{"port-name": true}

	fc := FileConfig{
		PortName:       "file-port",
		DestinationURL: "http://file:8080/nifi",
		RecordWriter:   "yaml",
	}
	if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RECORDSHIP_PORT_NAME", "env-port")
	t.Setenv("RECORDSHIP_DESTINATION_URL", "http://env:8080/nifi")
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatal(err)
	}

	if cfg.PortName != "flag-port" {
		t.Errorf("PortName = %v, want flag-port", cfg.PortName)
	}
	if cfg.DestinationURL != "http://env:8080/nifi" {
		t.Errorf("DestinationURL = %v, want env value", cfg.DestinationURL)
	}
	if cfg.RecordWriter != "yaml" {
		t.Errorf("RecordWriter = %v, want yaml from file", cfg.RecordWriter)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want default 30s", cfg.Timeout)
	}
}
