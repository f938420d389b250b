package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/recordship/internal/cliconfig"
	"github.com/bft-labs/recordship/internal/recordwriter"
	"github.com/bft-labs/recordship/pkg/log"
)

const longHelp = `Ship record sets to a site-to-site input port.

recordship serializes records with a pluggable writer (json, csv, yaml) and
transfers each record set as one flow file inside a confirmed transaction.
Peers that fail are penalized and skipped until their penalty expires; when
every peer is penalized the send is declined and retried later.

Configuration is read from flags, then RECORDSHIP_* environment variables,
then the config file (default $HOME/.recordship/config.toml).`

var exampleUsage = strings.TrimSpace(`
  recordship send --destination-url http://nifi:8080/nifi --port-name records --input data.csv
  recordship spool --config $HOME/.recordship/config.toml --spool-dir /var/spool/records
  recordship receive --port-name records --raw-addr :10000 --http-addr :8080 --out-dir ./inbox
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries state shared by every subcommand.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	log     zerolog.Logger
}

// load resolves the effective configuration for cmd. The returned base
// holds defaults plus flags only and is reused on reload.
func (c *cli) load(cmd *cobra.Command) (cfg cliconfig.Config, base cliconfig.Config, path string, changed map[string]bool, err error) {
	path = c.cfgPath
	if path == "" {
		path = cliconfig.DefaultConfigPath()
	}

	changed = map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	base = c.cfg
	cfg, err = cliconfig.Load(base, path, changed)
	if err != nil {
		return cfg, base, path, changed, err
	}

	c.log = cliconfig.Logger(cfg.LogLevel)
	c.log.Info().Interface("config", cfg.Masked()).Msg("configuration")
	return cfg, base, path, changed, nil
}

func (c *cli) adapter() *log.ZerologAdapter {
	return log.NewZerologAdapterWithLogger(c.log)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func (c *cli) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			c.log.Info().Msg("received signal, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func main() {
	c := &cli{
		cfg: cliconfig.DefaultConfig(),
		log: cliconfig.Logger("info"),
	}
	cfg := &c.cfg

	root := &cobra.Command{
		Use:           "recordship",
		Short:         "Ship record sets to a site-to-site input port",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.recordship/config.toml)")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	pf.StringVar(&cfg.DestinationURL, "destination-url", cfg.DestinationURL, "comma-separated peer URLs, e.g. http://nifi:8080/nifi")
	pf.StringVar(&cfg.PortName, "port-name", cfg.PortName, "name of the remote input port")
	pf.StringVar(&cfg.InstanceURL, "instance-url", cfg.InstanceURL, "URL identifying this sender in events (defaults to http://<hostname>)")
	pf.BoolVar(&cfg.Compress, "compress", cfg.Compress, "compress transfers")
	pf.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "communications timeout")
	pf.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "maximum number of spool files sent per scan")
	pf.StringVar(&cfg.TransportProtocol, "transport-protocol", cfg.TransportProtocol, "transport protocol (RAW or HTTP)")

	pf.StringVar(&cfg.HTTPProxyHostname, "http-proxy-hostname", cfg.HTTPProxyHostname, "HTTP proxy host (HTTP transport only)")
	pf.IntVar(&cfg.HTTPProxyPort, "http-proxy-port", cfg.HTTPProxyPort, "HTTP proxy port")
	pf.StringVar(&cfg.HTTPProxyUsername, "http-proxy-username", cfg.HTTPProxyUsername, "HTTP proxy user")
	pf.StringVar(&cfg.HTTPProxyPassword, "http-proxy-password", cfg.HTTPProxyPassword, "HTTP proxy password")

	pf.StringVar(&cfg.TLSCertFile, "tls-cert-file", cfg.TLSCertFile, "client certificate (PEM)")
	pf.StringVar(&cfg.TLSKeyFile, "tls-key-file", cfg.TLSKeyFile, "client key (PEM)")
	pf.StringVar(&cfg.TLSCAFile, "tls-ca-file", cfg.TLSCAFile, "CA bundle for verifying peers (PEM)")

	pf.StringVar(&cfg.RecordWriter, "record-writer", cfg.RecordWriter, fmt.Sprintf("record writer (%s)", strings.Join(recordwriter.Formats(), ", ")))
	pf.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for peer penalty state (default: $HOME/.recordship/state)")
	pf.BoolVar(&cfg.SendZeroResults, "send-zero-results", cfg.SendZeroResults, "transmit a payload even when no records were written")
	pf.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address serving /metrics (empty disables)")

	root.AddCommand(newSendCommand(c), newSpoolCommand(c), newReceiveCommand(c))

	if err := root.Execute(); err != nil {
		c.log.Error().Err(err).Msg("recordship")
		os.Exit(1)
	}
}

func levelOrInfo(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
