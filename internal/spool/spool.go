// Package spool ships record files dropped into a directory.
//
// Files ending in .csv, .jsonl or .ndjson are read as record sets and sent
// one file per transaction. A sent file is removed. A declined file stays in
// place and the spool backs off before trying again. A file that fails is
// moved to the failed/ subdirectory. Producers should write under a hidden
// or .tmp name and rename into place so partial files are never picked up.
package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/recordreader"
	"github.com/bft-labs/recordship/pkg/log"
)

// FailedDir is the subdirectory receiving files that could not be sent.
const FailedDir = "failed"

// Default configuration values.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxBackoff   = time.Minute
)

// Sender sends one record set. It returns (nil, nil) when the destination
// declined the send.
type Sender interface {
	Send(ctx context.Context, rs domain.RecordSet, attrs domain.Attributes, sendZeroResults bool) (*domain.WriteResult, error)
}

// Config holds configuration options for the spool.
type Config struct {
	Dir string

	// PollInterval is the period of the safety scan that runs even without
	// file events. It is also the first decline backoff.
	PollInterval time.Duration

	// MaxBackoff caps the delay after repeated declines.
	MaxBackoff time.Duration

	// MaxFilesPerScan bounds one scan. Zero means no limit.
	MaxFilesPerScan int

	SendZeroResults bool
	Logger          log.Logger
}

// Stats counts the outcome of one scan.
type Stats struct {
	Sent     int
	Declined int
	Failed   int
}

// Spool processes a spool directory.
type Spool struct {
	cfg    Config
	sender Sender
	logger log.Logger
	now    func() time.Time

	mu           sync.Mutex
	declines     int
	blockedUntil time.Time
}

// New creates a spool over cfg.Dir.
func New(cfg Config, sender Sender) *Spool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxBackoff < cfg.PollInterval {
		cfg.MaxBackoff = DefaultMaxBackoff
		if cfg.MaxBackoff < cfg.PollInterval {
			cfg.MaxBackoff = cfg.PollInterval
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	return &Spool{cfg: cfg, sender: sender, logger: cfg.Logger, now: time.Now}
}

// Run scans on every file event and every poll interval until ctx is cancelled.
func (s *Spool) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(s.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.cfg.Dir, err)
	}

	s.logger.Info("spool started",
		log.String("dir", s.cfg.Dir),
		log.Duration("poll_interval", s.cfg.PollInterval),
	)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.scanLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			s.scanLogged(ctx)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 || !eligible(filepath.Base(event.Name)) {
				continue
			}
			s.scanLogged(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("spool watcher error", log.Err(err))
		}
	}
}

func (s *Spool) scanLogged(ctx context.Context) {
	stats, err := s.Scan(ctx)
	if err != nil {
		s.logger.Error("spool scan failed", log.Err(err))
		return
	}
	if stats != (Stats{}) {
		s.logger.Info("spool scan",
			log.Int("sent", stats.Sent),
			log.Int("declined", stats.Declined),
			log.Int("failed", stats.Failed),
		)
	}
}

// Scan processes the eligible files once, in name order. It stops at the
// first decline and does nothing while a decline backoff is pending.
func (s *Spool) Scan(ctx context.Context) (Stats, error) {
	var stats Stats
	if s.backingOff() {
		return stats, nil
	}

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return stats, fmt.Errorf("read spool dir: %w", err)
	}

	processed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return stats, nil
		}
		if !e.Type().IsRegular() || !eligible(e.Name()) {
			continue
		}
		if s.cfg.MaxFilesPerScan > 0 && processed >= s.cfg.MaxFilesPerScan {
			break
		}
		processed++

		path := filepath.Join(s.cfg.Dir, e.Name())
		sent, err := s.sendFile(ctx, path)
		switch {
		case err != nil && (errors.Is(err, domain.ErrNotActive) || ctx.Err() != nil):
			// The sink is not serving; keep the file for later.
			s.logger.Warn("sink not active, keeping file", log.String("file", e.Name()), log.Err(err))
			stats.Declined++
			s.declined()
			return stats, nil
		case err != nil:
			stats.Failed++
			s.logger.Error("failed to send spool file", log.String("file", e.Name()), log.Err(err))
			if merr := s.moveToFailed(path); merr != nil {
				return stats, merr
			}
		case !sent:
			stats.Declined++
			s.declined()
			return stats, nil
		default:
			stats.Sent++
			s.succeeded()
			if err := os.Remove(path); err != nil {
				return stats, fmt.Errorf("remove sent file: %w", err)
			}
		}
	}
	return stats, nil
}

// sendFile reports whether the file was sent; false with a nil error is a decline.
func (s *Spool) sendFile(ctx context.Context, path string) (bool, error) {
	name := filepath.Base(path)
	format, _ := recordreader.FormatFromPath(name)

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	rs, err := recordreader.Open(format, f, strings.TrimSuffix(name, filepath.Ext(name)))
	if err != nil {
		return false, err
	}

	attrs := domain.Attributes{
		domain.AttrFilename: name,
		domain.AttrUUID:     uuid.NewString(),
	}
	res, err := s.sender.Send(ctx, rs, attrs, s.cfg.SendZeroResults)
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, nil
	}

	s.logger.Debug("spool file sent",
		log.String("file", name),
		log.Int("records", res.RecordCount),
	)
	return true, nil
}

func (s *Spool) moveToFailed(path string) error {
	dir := filepath.Join(s.cfg.Dir, FailedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create failed dir: %w", err)
	}
	if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
		return fmt.Errorf("move failed file: %w", err)
	}
	return nil
}

func (s *Spool) backingOff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.blockedUntil)
}

func (s *Spool) declined() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.declines++
	d := s.cfg.PollInterval
	for i := 1; i < s.declines && d < s.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > s.cfg.MaxBackoff {
		d = s.cfg.MaxBackoff
	}
	s.blockedUntil = s.now().Add(d)
	s.logger.Info("destination declined, backing off", log.Duration("delay", d))
}

func (s *Spool) succeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declines = 0
	s.blockedUntil = time.Time{}
}

func eligible(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return false
	}
	_, ok := recordreader.FormatFromPath(name)
	return ok
}
