package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/bft-labs/recordship/internal/flowfile"
	"github.com/bft-labs/recordship/pkg/log"
)

// HandlerConfig configures an HTTP receiving endpoint.
type HandlerConfig struct {
	// Ports lists the port names accepted by the handler.
	Ports []string

	// TransactionTTL bounds how long an unfinished transaction is kept.
	TransactionTTL time.Duration

	// Full reports whether a port currently refuses data. Optional.
	Full func(port string) bool

	// Authorize decides whether a client may send to a port. Optional.
	Authorize func(port, instanceURL string) bool

	// Limits bound each decoded flowfile. Zero means flowfile.DefaultLimits.
	Limits flowfile.Limits

	Deliver flowfile.DeliverFunc
	Logger  log.Logger
}

type pendingTransaction struct {
	port      string
	files     []flowfile.FlowFile
	uploaded  bool
	createdAt time.Time
}

// Handler serves the HTTP transfer endpoints.
type Handler struct {
	cfg    HandlerConfig
	ports  map[string]bool
	router chi.Router

	mu  sync.Mutex
	txs map[string]*pendingTransaction
}

// NewHandler creates a receiving handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	if cfg.TransactionTTL <= 0 {
		cfg.TransactionTTL = 30 * time.Second
	}
	h := &Handler{
		cfg:   cfg,
		ports: make(map[string]bool, len(cfg.Ports)),
		txs:   make(map[string]*pendingTransaction),
	}
	for _, p := range cfg.Ports {
		h.ports[p] = true
	}

	r := chi.NewRouter()
	r.Route("/data-transfer/input-ports/{port}/transactions", func(r chi.Router) {
		r.Post("/", h.createTransaction)
		r.Post("/{id}/flow-files", h.receiveFlowFiles)
		r.Delete("/{id}", h.finishTransaction)
	})
	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Pending returns the number of unfinished transactions.
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.txs)
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	port := chi.URLParam(r, "port")
	switch {
	case !h.ports[port]:
		http.Error(w, "port not found", http.StatusNotFound)
		return
	case h.cfg.Authorize != nil && !h.cfg.Authorize(port, r.Header.Get(HeaderInstanceURL)):
		http.Error(w, "unauthorized", http.StatusForbidden)
		return
	case h.cfg.Full != nil && h.cfg.Full(port):
		http.Error(w, "destination full", http.StatusServiceUnavailable)
		return
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.expireLocked(time.Now())
	h.txs[id] = &pendingTransaction{port: port, createdAt: time.Now()}
	h.mu.Unlock()

	h.cfg.Logger.Debug("transaction created",
		log.String("transaction", id),
		log.String("client_transaction", r.Header.Get(HeaderTransactionID)),
		log.String("port", port),
	)

	w.Header().Set("Location", r.URL.Path+"/"+id)
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) receiveFlowFiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tx := h.lookup(id, chi.URLParam(r, "port"))
	if tx == nil {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}

	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, "bad gzip body", http.StatusBadRequest)
			return
		}
		defer zr.Close()
		body = zr
	}

	checksum := flowfile.NewChecksumReader(body)
	files, err := flowfile.DecodeAll(checksum, h.cfg.Limits.OrDefault())
	if err != nil {
		http.Error(w, fmt.Sprintf("decode flowfiles: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	tx.files = append(tx.files, files...)
	tx.uploaded = true
	h.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusAccepted)
	io.WriteString(w, strconv.FormatUint(uint64(checksum.Sum()), 10))
}

func (h *Handler) finishTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tx := h.lookup(id, chi.URLParam(r, "port"))
	if tx == nil {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}

	h.mu.Lock()
	delete(h.txs, id)
	h.mu.Unlock()

	code, _ := strconv.Atoi(r.URL.Query().Get("responseCode"))
	if code != responseConfirm {
		h.cfg.Logger.Debug("transaction discarded",
			log.String("transaction", id),
			log.Int("response_code", code),
		)
		w.WriteHeader(http.StatusOK)
		return
	}
	if !tx.uploaded {
		http.Error(w, "transaction was not confirmed", http.StatusBadRequest)
		return
	}

	if h.cfg.Deliver != nil {
		if err := h.cfg.Deliver(context.WithoutCancel(r.Context()), tx.port, tx.files); err != nil {
			h.cfg.Logger.Warn("deliver transaction failed", log.String("transaction", id), log.Err(err))
			http.Error(w, "deliver failed", http.StatusInternalServerError)
			return
		}
	}

	h.cfg.Logger.Debug("transaction received",
		log.String("transaction", id),
		log.String("port", tx.port),
		log.Int("flowfiles", len(tx.files)),
	)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) lookup(id, port string) *pendingTransaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	tx, ok := h.txs[id]
	if !ok || tx.port != port {
		return nil
	}
	return tx
}

func (h *Handler) expireLocked(now time.Time) {
	for id, tx := range h.txs {
		if now.Sub(tx.createdAt) > h.cfg.TransactionTTL {
			delete(h.txs, id)
		}
	}
}
