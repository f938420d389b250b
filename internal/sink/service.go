package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/recordship/internal/app"
	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/pkg/log"
)

// Service holds the active Session of a long-running sink and moves it
// through the lifecycle states of package app.
type Service struct {
	lifecycle    *app.Lifecycle
	logger       log.Logger
	opts         []Option
	activate     func(context.Context, Config, ...Option) (*Session, error)
	drainTimeout time.Duration

	mu      sync.RWMutex
	current *leasedSession
}

// leasedSession counts the sends using a session so a replaced session is
// closed only after they finish.
type leasedSession struct {
	*Session
	inflight sync.WaitGroup
}

// NewService creates a disabled service. opts are applied to every activation.
func NewService(logger log.Logger, emitter app.EventEmitter, opts ...Option) *Service {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Service{
		lifecycle:    app.NewLifecycle(logger, emitter),
		logger:       logger,
		opts:         append([]Option{WithLogger(logger)}, opts...),
		activate:     Activate,
		drainTimeout: app.DrainTimeout,
	}
}

// State returns the lifecycle state.
func (s *Service) State() app.State {
	return s.lifecycle.State()
}

// Enable activates a session from cfg. A failed activation leaves the
// service Invalid until it is enabled again or disabled.
func (s *Service) Enable(ctx context.Context, cfg Config) error {
	if !s.lifecycle.CanEnable() {
		return domain.ErrAlreadyActive
	}
	if err := s.lifecycle.TransitionTo(app.StateEnabling, "enable requested"); err != nil {
		return err
	}

	sess, err := s.activate(ctx, cfg, s.opts...)
	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateInvalid, err.Error())
		return err
	}

	s.mu.Lock()
	s.current = &leasedSession{Session: sess}
	s.mu.Unlock()

	return s.lifecycle.TransitionTo(app.StateEnabled, "session active")
}

// Disable waits up to the drain timeout for in-flight sends, then releases
// the session. The session is closed even when the wait times out, in which
// case domain.ErrDrainTimeout is returned.
// Disabling a disabled service is a no-op.
func (s *Service) Disable() error {
	switch s.lifecycle.State() {
	case app.StateInvalid:
		return s.lifecycle.TransitionTo(app.StateDisabled, "disable requested")
	case app.StateEnabled:
	default:
		return nil
	}

	if err := s.lifecycle.TransitionTo(app.StateDisabling, "disable requested"); err != nil {
		return err
	}
	waitErr := s.lifecycle.WaitIdle(s.drainTimeout)

	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()

	var closeErr error
	if cur != nil {
		closeErr = cur.Close()
	}
	if err := s.lifecycle.TransitionTo(app.StateDisabled, "session released"); err != nil {
		return err
	}
	return errors.Join(waitErr, closeErr)
}

// Reload replaces the session with one built from cfg. The old session is
// closed once its in-flight sends finish or the drain timeout expires. When
// the new configuration fails to activate, the current session keeps serving.
// A service that is not enabled is enabled instead.
func (s *Service) Reload(ctx context.Context, cfg Config) error {
	if s.lifecycle.State() != app.StateEnabled {
		return s.Enable(ctx, cfg)
	}

	sess, err := s.activate(ctx, cfg, s.opts...)
	if err != nil {
		s.logger.Error("reload failed, keeping current configuration", log.Err(err))
		return err
	}

	s.mu.Lock()
	if s.lifecycle.State() != app.StateEnabled {
		s.mu.Unlock()
		s.logger.Warn("service disabled during reload, discarding new session")
		return errors.Join(domain.ErrNotActive, sess.Close())
	}
	old := s.current
	s.current = &leasedSession{Session: sess}
	s.mu.Unlock()

	s.logger.Info("configuration reloaded")
	return s.retire(old)
}

// retire closes a replaced session after its sends drain.
func (s *Service) retire(old *leasedSession) error {
	if old == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		old.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		s.logger.Warn("drain timeout, closing replaced session with sends in flight",
			log.Duration("timeout", s.drainTimeout),
		)
	}
	return old.Close()
}

// Send sends rs through the current session. It fails with a
// *domain.TransferError wrapping domain.ErrNotActive unless the service is enabled.
func (s *Service) Send(ctx context.Context, rs domain.RecordSet, attrs domain.Attributes, sendZeroResults bool) (*domain.WriteResult, error) {
	if !s.lifecycle.Acquire() {
		return nil, domain.NewTransferError(domain.ErrNotActive)
	}
	defer s.lifecycle.Release()

	s.mu.RLock()
	cur := s.current
	if cur != nil {
		cur.inflight.Add(1)
	}
	s.mu.RUnlock()
	if cur == nil {
		return nil, domain.NewTransferError(domain.ErrNotActive)
	}
	defer cur.inflight.Done()

	return cur.Send(ctx, rs, attrs, sendZeroResults)
}
