package raw

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/flowfile"
	"github.com/bft-labs/recordship/internal/ports"
	"github.com/bft-labs/recordship/pkg/log"
)

// Config holds the settings shared by every RAW transaction.
type Config struct {
	PortName    string
	InstanceURL string
	TLSConfig   *tls.Config
	Compress    bool
	Timeout     time.Duration
	Logger      log.Logger
}

// Transport implements ports.PeerTransport over TCP sockets.
type Transport struct {
	cfg    Config
	dialer *net.Dialer
}

// NewTransport creates a RAW transport.
func NewTransport(cfg Config) *Transport {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	return &Transport{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.Timeout},
	}
}

// Address returns the socket address dialed for peer.
func Address(peer *url.URL) string {
	port := peer.Port()
	if port == "" {
		port = DefaultPort
	}
	return net.JoinHostPort(peer.Hostname(), port)
}

// OpenTransaction dials peer and performs the handshake.
func (t *Transport) OpenTransaction(ctx context.Context, peer *url.URL, transactionID string) (ports.Transaction, error) {
	addr := Address(peer)

	conn, err := t.dial(ctx, addr, peer.Hostname())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	tx := &transaction{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		writer:  bufio.NewWriter(conn),
		timeout: t.cfg.Timeout,
		id:      transactionID,
		peer:    addr,
		logger:  t.cfg.Logger,
	}

	if err := tx.handshake(ctx, handshake{
		TransactionID: transactionID,
		PortName:      t.cfg.PortName,
		InstanceURL:   t.cfg.InstanceURL,
		Compressed:    t.cfg.Compress,
		Direction:     directionSend,
	}); err != nil {
		conn.Close()
		return nil, err
	}

	if err := tx.startDataPhase(t.cfg.Compress); err != nil {
		conn.Close()
		return nil, err
	}
	return tx, nil
}

// Close is a no-op; RAW transactions own their connections.
func (t *Transport) Close() error {
	return nil
}

func (t *Transport) dial(ctx context.Context, addr, serverName string) (net.Conn, error) {
	if t.cfg.TLSConfig == nil {
		return t.dialer.DialContext(ctx, "tcp", addr)
	}
	cfg := t.cfg.TLSConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	d := &tls.Dialer{NetDialer: t.dialer, Config: cfg}
	return d.DialContext(ctx, "tcp", addr)
}

// transaction is one RAW send transaction.
type transaction struct {
	mu      sync.Mutex
	tracker domain.TransactionTracker

	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	timeout time.Duration
	id      string
	peer    string
	logger  log.Logger

	// data phase stream, compressed when enabled
	compressor *flate.Writer
	data       io.Writer
	checksum   *flowfile.ChecksumWriter
	dataClosed bool
	sent       int
}

func (tx *transaction) handshake(ctx context.Context, h handshake) error {
	tx.setDeadline(ctx)
	if err := writeHandshake(tx.writer, h); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}
	if err := tx.writer.Flush(); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}

	code, err := readCode(tx.reader)
	if err != nil {
		return fmt.Errorf("read handshake response: %w", err)
	}
	switch code {
	case codeProceed:
		return nil
	case codePortNotFound:
		return fmt.Errorf("%w: %s on %s", domain.ErrPortNotFound, h.PortName, tx.peer)
	case codeDestinationFull:
		return fmt.Errorf("%w: %s on %s", domain.ErrDestinationFull, h.PortName, tx.peer)
	case codeUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, tx.peer)
	default:
		return fmt.Errorf("unexpected handshake response %d from %s", code, tx.peer)
	}
}

func (tx *transaction) startDataPhase(compress bool) error {
	tx.data = tx.writer
	if compress {
		fw, err := flate.NewWriter(tx.writer, flate.DefaultCompression)
		if err != nil {
			return fmt.Errorf("create compressor: %w", err)
		}
		tx.compressor = fw
		tx.data = fw
	}
	tx.checksum = flowfile.NewChecksumWriter(tx.data)
	return nil
}

// Send writes one packaged flowfile.
func (tx *transaction) Send(ctx context.Context, data []byte, attrs map[string]string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.tracker.Advance(domain.TransactionDataSent); err != nil {
		return err
	}

	tx.setDeadline(ctx)
	if _, err := tx.data.Write([]byte{codeContinue}); err != nil {
		return tx.fail(fmt.Errorf("write continue: %w", err))
	}
	if err := flowfile.Encode(tx.checksum, attrs, data); err != nil {
		return tx.fail(fmt.Errorf("write flowfile: %w", err))
	}
	tx.sent++
	return nil
}

// Confirm ends the data phase and compares the peer's checksum with ours.
func (tx *transaction) Confirm(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if st := tx.tracker.State(); st != domain.TransactionOpen && st != domain.TransactionDataSent {
		return fmt.Errorf("%w: confirm in state %s", domain.ErrTransactionState, st)
	}

	tx.setDeadline(ctx)
	if err := tx.finishData(); err != nil {
		return tx.fail(err)
	}

	var sum [4]byte
	if _, err := io.ReadFull(tx.reader, sum[:]); err != nil {
		return tx.fail(fmt.Errorf("read checksum: %w", err))
	}
	remote := binary.BigEndian.Uint32(sum[:])
	local := tx.checksum.Sum()
	if remote != local {
		tx.writer.Write([]byte{codeBadChecksum})
		tx.writer.Flush()
		return tx.fail(fmt.Errorf("%w: local %d, peer %s reported %d", domain.ErrChecksumMismatch, local, tx.peer, remote))
	}

	return tx.tracker.Advance(domain.TransactionConfirmed)
}

// Complete tells the peer to commit and waits for its acknowledgement.
func (tx *transaction) Complete(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if st := tx.tracker.State(); st != domain.TransactionConfirmed {
		return fmt.Errorf("%w: complete in state %s", domain.ErrTransactionState, st)
	}

	tx.setDeadline(ctx)
	if _, err := tx.writer.Write([]byte{codeConfirm}); err != nil {
		return tx.fail(fmt.Errorf("write confirm: %w", err))
	}
	if err := tx.writer.Flush(); err != nil {
		return tx.fail(fmt.Errorf("write confirm: %w", err))
	}

	code, err := readCode(tx.reader)
	if err != nil {
		return tx.fail(fmt.Errorf("read completion: %w", err))
	}
	if code != codeTransactionFinished {
		return tx.fail(fmt.Errorf("peer %s did not finish transaction: code %d", tx.peer, code))
	}

	if err := tx.tracker.Advance(domain.TransactionCompleted); err != nil {
		return err
	}
	tx.logger.Debug("transaction completed",
		log.String("transaction", tx.id),
		log.String("peer", tx.peer),
		log.Int("flowfiles", tx.sent),
	)
	return tx.conn.Close()
}

// Cancel abandons the transaction. Calling Cancel on a finished transaction
// only releases the connection.
func (tx *transaction) Cancel(ctx context.Context, reason string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.tracker.State().Terminal() {
		tx.conn.Close()
		return nil
	}

	tx.setDeadline(ctx)
	w := tx.data
	if tx.dataClosed {
		w = tx.writer
	}
	// Best effort: the peer discards the transaction when the connection drops.
	if _, err := w.Write([]byte{codeCancel}); err == nil {
		if tx.compressor != nil && !tx.dataClosed {
			tx.compressor.Flush()
		}
		tx.writer.Flush()
	}

	tx.tracker.Advance(domain.TransactionCancelled)
	tx.logger.Debug("transaction cancelled",
		log.String("transaction", tx.id),
		log.String("peer", tx.peer),
		log.String("reason", reason),
	)
	return tx.conn.Close()
}

func (tx *transaction) finishData() error {
	if _, err := tx.data.Write([]byte{codeFinish}); err != nil {
		return fmt.Errorf("write finish: %w", err)
	}
	if tx.compressor != nil {
		if err := tx.compressor.Close(); err != nil {
			return fmt.Errorf("close compressor: %w", err)
		}
	}
	tx.dataClosed = true
	if err := tx.writer.Flush(); err != nil {
		return fmt.Errorf("write finish: %w", err)
	}
	return nil
}

func (tx *transaction) fail(err error) error {
	tx.tracker.Advance(domain.TransactionFailed)
	tx.conn.Close()
	return err
}

func (tx *transaction) setDeadline(ctx context.Context) {
	var deadline time.Time
	if tx.timeout > 0 {
		deadline = time.Now().Add(tx.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	tx.conn.SetDeadline(deadline)
}

var _ ports.PeerTransport = (*Transport)(nil)
var _ ports.Transaction = (*transaction)(nil)
