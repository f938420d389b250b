// Package http implements the HTTP transfer mode.
//
// A transaction is a REST resource on the peer:
//
//	POST   {peer}/data-transfer/input-ports/{port}/transactions          create (201 + Location)
//	POST   {transaction}/flow-files                                     upload, returns CRC32
//	DELETE {transaction}?responseCode=12                                 confirm and commit (CONFIRM)
//	DELETE {transaction}?responseCode=15                                 cancel (CANCEL)
//	DELETE {transaction}?responseCode=19                                 cancel on CRC32 mismatch
//
// Flowfiles are buffered by Send and uploaded as one body by Confirm.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/flowfile"
	"github.com/bft-labs/recordship/internal/ports"
	"github.com/bft-labs/recordship/pkg/log"
)

// Response codes carried in the responseCode query parameter.
const (
	responseConfirm     = 12
	responseCancel      = 15
	responseBadChecksum = 19
)

// Header names.
const (
	HeaderTransactionID = "X-Recordship-Transaction-Id"
	HeaderInstanceURL   = "X-Recordship-Instance-Url"
)

const contentTypeFlowFile = "application/octet-stream"

// Config holds the settings shared by every HTTP transaction.
type Config struct {
	PortName    string
	InstanceURL string
	Compress    bool

	// Client executes requests. Use NewHTTPClient to honour timeout, TLS and proxy.
	Client ports.HTTPClient
	Logger log.Logger
}

// NewHTTPClient builds an HTTP client with the given timeout, TLS settings and
// optional proxy. Proxy credentials in the URL are sent as Proxy-Authorization.
func NewHTTPClient(timeout time.Duration, tlsConfig *tls.Config, proxy *url.URL) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tlsConfig
	if proxy != nil {
		tr.Proxy = http.ProxyURL(proxy)
	} else {
		tr.Proxy = nil
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Transport implements ports.PeerTransport over HTTP.
type Transport struct {
	cfg Config
}

// NewTransport creates an HTTP transport.
func NewTransport(cfg Config) *Transport {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	return &Transport{cfg: cfg}
}

// TransactionsURL returns the transaction collection URL of port on peer.
func TransactionsURL(peer *url.URL, port string) string {
	return strings.TrimSuffix(peer.String(), "/") + "/data-transfer/input-ports/" + url.PathEscape(port) + "/transactions"
}

// OpenTransaction creates a transaction resource on peer.
func (t *Transport) OpenTransaction(ctx context.Context, peer *url.URL, transactionID string) (ports.Transaction, error) {
	endpoint := TransactionsURL(peer, t.cfg.PortName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	t.setHeaders(req, transactionID)

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s on %s", domain.ErrPortNotFound, t.cfg.PortName, peer.Host)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, peer.Host)
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: %s on %s", domain.ErrDestinationFull, t.cfg.PortName, peer.Host)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, fmt.Errorf("server did not return a transaction location")
	}
	txURL, err := req.URL.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("parse transaction location %q: %w", loc, err)
	}

	tx := &transaction{
		transport: t,
		url:       txURL.String(),
		id:        transactionID,
	}
	tx.checksum = flowfile.NewChecksumWriter(&tx.buf)
	return tx, nil
}

// Close releases idle connections of the underlying client.
func (t *Transport) Close() error {
	if c, ok := t.cfg.Client.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
	return nil
}

func (t *Transport) setHeaders(req *http.Request, transactionID string) {
	req.Header.Set(HeaderTransactionID, transactionID)
	if t.cfg.InstanceURL != "" {
		req.Header.Set(HeaderInstanceURL, t.cfg.InstanceURL)
	}
}

// transaction is one HTTP send transaction.
type transaction struct {
	mu        sync.Mutex
	tracker   domain.TransactionTracker
	transport *Transport

	url      string
	id       string
	buf      bytes.Buffer
	checksum *flowfile.ChecksumWriter
	sent     int
}

// Send buffers one packaged flowfile.
func (tx *transaction) Send(ctx context.Context, data []byte, attrs map[string]string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.tracker.Advance(domain.TransactionDataSent); err != nil {
		return err
	}
	if err := flowfile.Encode(tx.checksum, attrs, data); err != nil {
		tx.tracker.Advance(domain.TransactionFailed)
		return fmt.Errorf("package flowfile: %w", err)
	}
	tx.sent++
	return nil
}

// Confirm uploads the buffered flowfiles and compares checksums.
func (tx *transaction) Confirm(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if st := tx.tracker.State(); st != domain.TransactionOpen && st != domain.TransactionDataSent {
		return fmt.Errorf("%w: confirm in state %s", domain.ErrTransactionState, st)
	}

	body, encoding, err := tx.body()
	if err != nil {
		return tx.fail(ctx, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tx.url+"/flow-files", body)
	if err != nil {
		return tx.fail(ctx, fmt.Errorf("create request: %w", err))
	}
	tx.transport.setHeaders(req, tx.id)
	req.Header.Set("Content-Type", contentTypeFlowFile)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := tx.transport.cfg.Client.Do(req)
	if err != nil {
		return tx.fail(ctx, fmt.Errorf("upload flowfiles: %w", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return tx.fail(ctx, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody)))
	}

	remote, err := strconv.ParseUint(strings.TrimSpace(string(respBody)), 10, 32)
	if err != nil {
		return tx.fail(ctx, fmt.Errorf("parse checksum %q: %w", respBody, err))
	}
	if local := tx.checksum.Sum(); uint32(remote) != local {
		tx.delete(ctx, responseBadChecksum)
		tx.tracker.Advance(domain.TransactionFailed)
		return fmt.Errorf("%w: local %d, peer reported %d", domain.ErrChecksumMismatch, local, remote)
	}

	return tx.tracker.Advance(domain.TransactionConfirmed)
}

// Complete commits the transaction on the peer.
func (tx *transaction) Complete(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if st := tx.tracker.State(); st != domain.TransactionConfirmed {
		return fmt.Errorf("%w: complete in state %s", domain.ErrTransactionState, st)
	}
	if err := tx.delete(ctx, responseConfirm); err != nil {
		tx.tracker.Advance(domain.TransactionFailed)
		return fmt.Errorf("complete transaction: %w", err)
	}
	tx.buf.Reset()

	tx.transport.cfg.Logger.Debug("transaction completed",
		log.String("transaction", tx.id),
		log.String("url", tx.url),
		log.Int("flowfiles", tx.sent),
	)
	return tx.tracker.Advance(domain.TransactionCompleted)
}

// Cancel deletes the transaction resource on the peer.
func (tx *transaction) Cancel(ctx context.Context, reason string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.tracker.State().Terminal() {
		return nil
	}
	tx.tracker.Advance(domain.TransactionCancelled)
	tx.buf.Reset()

	tx.transport.cfg.Logger.Debug("transaction cancelled",
		log.String("transaction", tx.id),
		log.String("reason", reason),
	)
	if err := tx.delete(ctx, responseCancel); err != nil {
		return fmt.Errorf("cancel transaction: %w", err)
	}
	return nil
}

func (tx *transaction) body() (io.Reader, string, error) {
	if !tx.transport.cfg.Compress {
		return bytes.NewReader(tx.buf.Bytes()), "", nil
	}
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(tx.buf.Bytes()); err != nil {
		return nil, "", fmt.Errorf("compress flowfiles: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("compress flowfiles: %w", err)
	}
	return &gz, "gzip", nil
}

func (tx *transaction) delete(ctx context.Context, responseCode int) error {
	u := tx.url + "?responseCode=" + strconv.Itoa(responseCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	tx.transport.setHeaders(req, tx.id)

	resp, err := tx.transport.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (tx *transaction) fail(ctx context.Context, err error) error {
	tx.tracker.Advance(domain.TransactionFailed)
	tx.delete(ctx, responseCancel)
	return err
}

var _ ports.PeerTransport = (*Transport)(nil)
var _ ports.Transaction = (*transaction)(nil)
