package raw

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/bft-labs/recordship/internal/flowfile"
	"github.com/bft-labs/recordship/pkg/log"
)

// ServerConfig configures a RAW receiving endpoint.
type ServerConfig struct {
	// Ports lists the port names accepted by the server.
	Ports []string

	// TLSConfig enables TLS on accepted connections when set.
	TLSConfig *tls.Config

	// Timeout bounds every read and write on a connection.
	Timeout time.Duration

	// Full reports whether a port currently refuses data. Optional.
	Full func(port string) bool

	// Authorize decides whether a client may send to a port. Optional.
	Authorize func(port, instanceURL string) bool

	// Limits bound each decoded flowfile. Zero means flowfile.DefaultLimits.
	Limits flowfile.Limits

	Deliver flowfile.DeliverFunc
	Logger  log.Logger
}

// Server accepts RAW transactions.
type Server struct {
	cfg   ServerConfig
	ports map[string]bool
	wg    sync.WaitGroup
}

// NewServer creates a RAW server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	ports := make(map[string]bool, len(cfg.Ports))
	for _, p := range cfg.Ports {
		ports[p] = true
	}
	return &Server{cfg: cfg, ports: ports}
}

// Serve accepts connections on ln until ctx is cancelled.
// It closes ln and waits for in-flight transactions before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	defer s.wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			if err := s.handle(ctx, conn); err != nil {
				s.cfg.Logger.Warn("raw transaction failed",
					log.String("remote", conn.RemoteAddr().String()),
					log.Err(err),
				)
			}
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	deadline := func() { conn.SetDeadline(time.Now().Add(s.cfg.Timeout)) }

	deadline()
	h, err := readHandshake(r)
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}

	code := codeProceed
	switch {
	case h.Direction != directionSend:
		code = codePortNotFound
	case !s.ports[h.PortName]:
		code = codePortNotFound
	case s.cfg.Authorize != nil && !s.cfg.Authorize(h.PortName, h.InstanceURL):
		code = codeUnauthorized
	case s.cfg.Full != nil && s.cfg.Full(h.PortName):
		code = codeDestinationFull
	}
	if err := writeCode(w, code); err != nil {
		return err
	}
	if code != codeProceed {
		return nil
	}

	var data io.Reader = r
	if h.Compressed {
		fr := flate.NewReader(r)
		defer fr.Close()
		data = fr
	}
	checksum := flowfile.NewChecksumReader(data)

	var files []flowfile.FlowFile
	for {
		deadline()
		code, err := readCode(data)
		if err != nil {
			return fmt.Errorf("read data code: %w", err)
		}

		switch code {
		case codeContinue:
			ff, err := flowfile.DecodeLimited(checksum, s.cfg.Limits.OrDefault())
			if err != nil {
				return fmt.Errorf("read flowfile: %w", err)
			}
			files = append(files, ff)
			continue
		case codeFinish:
		case codeCancel:
			s.cfg.Logger.Debug("transaction cancelled by client", log.String("transaction", h.TransactionID))
			return nil
		default:
			return fmt.Errorf("unexpected data code %d", code)
		}
		break
	}

	if h.Compressed {
		// Consume the end of the flate stream so the next read is plain.
		if _, err := io.Copy(io.Discard, data); err != nil {
			return fmt.Errorf("drain compressed stream: %w", err)
		}
	}

	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], checksum.Sum())
	if _, err := w.Write(sum[:]); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}

	deadline()
	code, err = readCode(r)
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	switch code {
	case codeConfirm:
	case codeBadChecksum:
		return fmt.Errorf("client reported bad checksum for transaction %s", h.TransactionID)
	case codeCancel:
		return nil
	default:
		return fmt.Errorf("unexpected confirmation code %d", code)
	}

	if s.cfg.Deliver != nil {
		if err := s.cfg.Deliver(ctx, h.PortName, files); err != nil {
			writeCode(w, codeCancel)
			return fmt.Errorf("deliver transaction %s: %w", h.TransactionID, err)
		}
	}

	s.cfg.Logger.Debug("transaction received",
		log.String("transaction", h.TransactionID),
		log.String("port", h.PortName),
		log.Int("flowfiles", len(files)),
	)
	return writeCode(w, codeTransactionFinished)
}

func writeCode(w *bufio.Writer, code byte) error {
	if err := w.WriteByte(code); err != nil {
		return err
	}
	return w.Flush()
}
