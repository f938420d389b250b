package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/recordship/internal/app"
	"github.com/bft-labs/recordship/internal/domain"
)

// newTestService activates sessions backed by the mock sessions in order.
// A session is consumed only by an activation that succeeds.
func newTestService(t *testing.T, sessions ...*mockSession) *Service {
	t.Helper()
	svc := NewService(nil, nil)
	next := 0
	svc.activate = func(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
		if next >= len(sessions) {
			t.Fatal("unexpected activation")
		}
		sess, err := Activate(ctx, cfg, append(opts, WithTransferSession(sessions[next]))...)
		if err == nil {
			next++
		}
		return sess, err
	}
	return svc
}

func TestService_EnableSendDisable(t *testing.T) {
	tx := &mockTransaction{}
	sess := &mockSession{tx: tx}
	svc := newTestService(t, sess)
	ctx := context.Background()

	if _, err := svc.Send(ctx, testRecordSet(1), nil, false); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("send before enable: expected ErrNotActive, got %v", err)
	}

	if err := svc.Enable(ctx, testConfig(&mockFactory{})); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if svc.State() != app.StateEnabled {
		t.Fatalf("state = %v, want Enabled", svc.State())
	}
	if err := svc.Enable(ctx, testConfig(&mockFactory{})); !errors.Is(err, domain.ErrAlreadyActive) {
		t.Errorf("second Enable: expected ErrAlreadyActive, got %v", err)
	}

	res, err := svc.Send(ctx, testRecordSet(2), nil, false)
	if err != nil || res.RecordCount != 2 {
		t.Fatalf("Send = %+v, %v", res, err)
	}

	if err := svc.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if svc.State() != app.StateDisabled || sess.closed != 1 {
		t.Errorf("state = %v closed = %d", svc.State(), sess.closed)
	}
	if err := svc.Disable(); err != nil {
		t.Errorf("second Disable: %v", err)
	}

	_, err = svc.Send(ctx, testRecordSet(1), nil, false)
	var te *domain.TransferError
	if !errors.As(err, &te) || !errors.Is(err, domain.ErrNotActive) {
		t.Errorf("send after disable: expected TransferError(ErrNotActive), got %v", err)
	}
}

func TestService_InvalidConfig(t *testing.T) {
	svc := newTestService(t, &mockSession{})
	ctx := context.Background()

	cfg := testConfig(&mockFactory{})
	cfg.PortName = ""
	err := svc.Enable(ctx, cfg)

	var ie *domain.InitError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InitError, got %v", err)
	}
	if svc.State() != app.StateInvalid {
		t.Fatalf("state = %v, want Invalid", svc.State())
	}

	if err := svc.Enable(ctx, testConfig(&mockFactory{})); err != nil {
		t.Fatalf("Enable after invalid: %v", err)
	}
	if svc.State() != app.StateEnabled {
		t.Errorf("state = %v, want Enabled", svc.State())
	}
}

func TestService_DisableFromInvalid(t *testing.T) {
	svc := newTestService(t)
	svc.activate = func(context.Context, Config, ...Option) (*Session, error) {
		return nil, domain.NewInitError(domain.ErrInvalidConfig)
	}

	_ = svc.Enable(context.Background(), Config{})
	if err := svc.Disable(); err != nil {
		t.Fatal(err)
	}
	if svc.State() != app.StateDisabled {
		t.Errorf("state = %v, want Disabled", svc.State())
	}
}

func TestService_Reload(t *testing.T) {
	first := &mockSession{tx: &mockTransaction{}}
	second := &mockSession{tx: &mockTransaction{}}
	svc := newTestService(t, first, second)
	ctx := context.Background()

	if err := svc.Enable(ctx, testConfig(&mockFactory{})); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reload(ctx, testConfig(&mockFactory{})); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if first.closed != 1 {
		t.Errorf("old session closed %d times, want 1", first.closed)
	}

	if _, err := svc.Send(ctx, testRecordSet(1), nil, false); err != nil {
		t.Fatal(err)
	}
	if first.created != 0 || second.created != 1 {
		t.Errorf("sends went to the wrong session: first=%d second=%d", first.created, second.created)
	}
}

func TestService_ReloadFailureKeepsSession(t *testing.T) {
	sess := &mockSession{tx: &mockTransaction{}}
	svc := newTestService(t, sess)
	ctx := context.Background()

	if err := svc.Enable(ctx, testConfig(&mockFactory{})); err != nil {
		t.Fatal(err)
	}

	bad := testConfig(&mockFactory{})
	bad.DestinationURLs = ""
	svc.activate = Activate
	if err := svc.Reload(ctx, bad); err == nil {
		t.Fatal("expected reload error")
	}

	if svc.State() != app.StateEnabled || sess.closed != 0 {
		t.Errorf("state = %v closed = %d", svc.State(), sess.closed)
	}
	if _, err := svc.Send(ctx, testRecordSet(1), nil, false); err != nil {
		t.Errorf("send after failed reload: %v", err)
	}
}

func TestService_ReloadWhenDisabledEnables(t *testing.T) {
	svc := newTestService(t, &mockSession{})
	if err := svc.Reload(context.Background(), testConfig(&mockFactory{})); err != nil {
		t.Fatal(err)
	}
	if svc.State() != app.StateEnabled {
		t.Errorf("state = %v, want Enabled", svc.State())
	}
}

// sendInBackground starts a send and waits until it reaches the transaction.
func sendInBackground(t *testing.T, svc *Service, started <-chan struct{}) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() {
		_, err := svc.Send(context.Background(), testRecordSet(1), nil, false)
		errc <- err
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("send never reached the transaction")
	}
	return errc
}

func TestService_DisableDrainTimeoutClosesSession(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	sess := &mockSession{tx: &mockTransaction{started: started, release: release}}
	svc := newTestService(t, sess)
	svc.drainTimeout = 20 * time.Millisecond

	if err := svc.Enable(context.Background(), testConfig(&mockFactory{})); err != nil {
		t.Fatal(err)
	}
	sendErr := sendInBackground(t, svc, started)

	done := make(chan error, 1)
	go func() { done <- svc.Disable() }()

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrDrainTimeout) {
			t.Errorf("Disable() = %v, want ErrDrainTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Disable blocked behind an in-flight send")
	}
	if svc.State() != app.StateDisabled {
		t.Errorf("state = %v, want Disabled", svc.State())
	}
	if n := sess.closeCount(); n != 1 {
		t.Errorf("session closed %d times, want 1", n)
	}

	close(release)
	<-sendErr
}

func TestService_ReloadWaitsForInFlightSend(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	first := &mockSession{tx: &mockTransaction{started: started, release: release}}
	second := &mockSession{tx: &mockTransaction{}}
	svc := newTestService(t, first, second)
	ctx := context.Background()

	if err := svc.Enable(ctx, testConfig(&mockFactory{})); err != nil {
		t.Fatal(err)
	}
	sendErr := sendInBackground(t, svc, started)

	reloaded := make(chan error, 1)
	go func() { reloaded <- svc.Reload(ctx, testConfig(&mockFactory{})) }()

	select {
	case err := <-reloaded:
		t.Fatalf("Reload returned %v while a send still used the old session", err)
	case <-time.After(50 * time.Millisecond):
	}
	if n := first.closeCount(); n != 0 {
		t.Fatalf("old session closed %d times during a send", n)
	}

	close(release)
	if err := <-sendErr; err != nil {
		t.Errorf("in-flight send: %v", err)
	}
	if err := <-reloaded; err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if n := first.closeCount(); n != 1 {
		t.Errorf("old session closed %d times, want 1", n)
	}
	if _, err := svc.Send(ctx, testRecordSet(1), nil, false); err != nil {
		t.Fatal(err)
	}
	if second.created != 1 {
		t.Errorf("new session created %d transactions, want 1", second.created)
	}
}

func TestService_ReloadDrainTimeoutClosesOldSession(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	first := &mockSession{tx: &mockTransaction{started: started, release: release}}
	svc := newTestService(t, first, &mockSession{tx: &mockTransaction{}})
	svc.drainTimeout = 20 * time.Millisecond
	ctx := context.Background()

	if err := svc.Enable(ctx, testConfig(&mockFactory{})); err != nil {
		t.Fatal(err)
	}
	sendErr := sendInBackground(t, svc, started)

	if err := svc.Reload(ctx, testConfig(&mockFactory{})); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if n := first.closeCount(); n != 1 {
		t.Errorf("old session closed %d times, want 1", n)
	}

	close(release)
	<-sendErr
}

func TestService_DisableDuringReloadDiscardsNewSession(t *testing.T) {
	first := &mockSession{tx: &mockTransaction{}}
	second := &mockSession{tx: &mockTransaction{}}
	svc := newTestService(t, first)
	ctx := context.Background()

	if err := svc.Enable(ctx, testConfig(&mockFactory{})); err != nil {
		t.Fatal(err)
	}
	svc.activate = func(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
		if err := svc.Disable(); err != nil {
			t.Errorf("Disable: %v", err)
		}
		return Activate(ctx, cfg, append(opts, WithTransferSession(second))...)
	}

	if err := svc.Reload(ctx, testConfig(&mockFactory{})); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("Reload() = %v, want ErrNotActive", err)
	}
	if svc.State() != app.StateDisabled {
		t.Errorf("state = %v, want Disabled", svc.State())
	}
	if first.closeCount() != 1 || second.closeCount() != 1 {
		t.Errorf("closed: first=%d second=%d, want 1 and 1", first.closeCount(), second.closeCount())
	}
	if _, err := svc.Send(ctx, testRecordSet(1), nil, false); !errors.Is(err, domain.ErrNotActive) {
		t.Errorf("send after disable: expected ErrNotActive, got %v", err)
	}
}
