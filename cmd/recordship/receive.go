package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/recordwriter"
	"github.com/bft-labs/recordship/internal/sitetosite"
)

func newReceiveCommand(c *cli) *cobra.Command {
	var (
		rawAddr  string
		httpAddr string
		outDir   string
	)

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Run a site-to-site endpoint that writes received flow files to a directory",
		Long: `Run a site-to-site endpoint that writes received flow files to a directory.

Each flow file is written as <uuid><ext> next to a <uuid>.attributes.json
sidecar holding its attributes. Intended for local testing of senders.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			c.log = c.log.Level(levelOrInfo(cfg.LogLevel))
			if cfg.PortName == "" {
				return errors.New("port-name is required")
			}
			if rawAddr == "" && httpAddr == "" {
				return errors.New("at least one of raw-addr or http-addr is required")
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create out dir: %w", err)
			}

			tlsConfig, err := sitetosite.LoadTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSCAFile)
			if err != nil {
				return err
			}

			recv := &sitetosite.Receiver{
				Ports:     splitPorts(cfg.PortName),
				TLSConfig: tlsConfig,
				Timeout:   cfg.Timeout,
				Logger:    c.adapter(),
				Handler: func(ctx context.Context, port string, files []sitetosite.FlowFile) error {
					for _, f := range files {
						name, err := writeFlowFile(outDir, f)
						if err != nil {
							return err
						}
						c.log.Info().Str("port", port).Str("file", name).Int("bytes", f.Size()).Msg("flow file received")
					}
					return nil
				},
			}

			ctx, cancel := c.signalContext()
			defer cancel()

			var wg sync.WaitGroup
			errCh := make(chan error, 2)

			if rawAddr != "" {
				ln, err := net.Listen("tcp", rawAddr)
				if err != nil {
					return err
				}
				c.log.Info().Str("addr", ln.Addr().String()).Msg("serving raw site-to-site")
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := recv.ServeRaw(ctx, ln); err != nil && ctx.Err() == nil {
						errCh <- fmt.Errorf("raw server: %w", err)
					}
				}()
			}

			if httpAddr != "" {
				srv := &http.Server{Addr: httpAddr, Handler: recv.HTTPHandler(), ReadHeaderTimeout: 10 * time.Second}
				c.log.Info().Str("addr", httpAddr).Msg("serving http site-to-site")
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- fmt.Errorf("http server: %w", err)
					}
				}()
				go func() {
					<-ctx.Done()
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			select {
			case <-ctx.Done():
			case err = <-errCh:
				cancel()
			}
			wg.Wait()
			return err
		},
	}

	cmd.Flags().StringVar(&rawAddr, "raw-addr", "", "listen address for the RAW protocol, e.g. :10000")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "listen address for the HTTP protocol, e.g. :8080")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory receiving flow files")
	return cmd
}

func splitPorts(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// extensionFor maps a writer mime type to a file extension.
func extensionFor(mimeType string) string {
	switch mimeType {
	case recordwriter.MimeJSON:
		return ".json"
	case recordwriter.MimeCSV:
		return ".csv"
	case recordwriter.MimeYAML:
		return ".yaml"
	default:
		return ".bin"
	}
}

// writeFlowFile stores f content and attributes under dir and returns the
// content file name. Files appear atomically.
func writeFlowFile(dir string, f sitetosite.FlowFile) (string, error) {
	id := f.Attributes[domain.AttrUUID]
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	name := id + extensionFor(f.Attributes[domain.AttrMimeType])

	attrs, err := json.MarshalIndent(f.Attributes, "", "  ")
	if err != nil {
		return "", err
	}
	if err := writeAtomic(filepath.Join(dir, id+".attributes.json"), attrs); err != nil {
		return "", err
	}
	if err := writeAtomic(filepath.Join(dir, name), f.Content); err != nil {
		return "", err
	}
	return name, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
