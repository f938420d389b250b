package sitetosite

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	httpAdapter "github.com/bft-labs/recordship/internal/adapters/http"
	"github.com/bft-labs/recordship/internal/adapters/raw"
	"github.com/bft-labs/recordship/internal/flowfile"
	"github.com/bft-labs/recordship/pkg/log"
)

// FlowFile is a received payload with its attributes.
type FlowFile = flowfile.FlowFile

// Receiver accepts transactions on a set of ports over both transport modes.
// Flow files reach Handler only after the client confirmed the transaction.
type Receiver struct {
	Ports   []string
	Handler func(ctx context.Context, port string, files []FlowFile) error

	// TLSConfig secures the RAW listener. The HTTP handler is secured by
	// whatever server mounts it.
	TLSConfig *tls.Config
	Timeout   time.Duration
	Logger    log.Logger
}

// ServeRaw accepts RAW connections on ln until ctx is cancelled.
func (r *Receiver) ServeRaw(ctx context.Context, ln net.Listener) error {
	srv := raw.NewServer(raw.ServerConfig{
		Ports:     r.Ports,
		TLSConfig: r.TLSConfig,
		Timeout:   r.Timeout,
		Deliver:   r.Handler,
		Logger:    r.logger(),
	})
	return srv.Serve(ctx, ln)
}

// HTTPHandler returns the HTTP transfer endpoints.
func (r *Receiver) HTTPHandler() http.Handler {
	return httpAdapter.NewHandler(httpAdapter.HandlerConfig{
		Ports:          r.Ports,
		TransactionTTL: r.Timeout,
		Deliver:        r.Handler,
		Logger:         r.logger(),
	})
}

func (r *Receiver) logger() log.Logger {
	if r.Logger == nil {
		return log.NewNoopLogger()
	}
	return r.Logger
}
