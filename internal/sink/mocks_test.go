package sink

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/internal/ports"
	"github.com/bft-labs/recordship/pkg/log"
)

// mockSession hands out tx, or nothing when tx is nil.
type mockSession struct {
	mu        sync.Mutex
	tx        *mockTransaction
	err       error
	created   int
	closed    int
	direction domain.TransferDirection
}

func (m *mockSession) CreateTransaction(ctx context.Context, dir domain.TransferDirection) (ports.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	m.direction = dir
	if m.err != nil {
		return nil, m.err
	}
	if m.tx == nil {
		return nil, nil
	}
	return m.tx, nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockSession) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mockTransaction struct {
	mu          sync.Mutex
	sends       [][]byte
	sentAttrs   map[string]string
	confirmed   int
	completed   int
	cancelled   int
	sendErr     error
	confirmErr  error
	completeErr error

	// started and release, when set, hold Send until release is closed.
	started chan<- struct{}
	release <-chan struct{}
}

func (m *mockTransaction) Send(ctx context.Context, data []byte, attrs map[string]string) error {
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sends = append(m.sends, append([]byte(nil), data...))
	m.sentAttrs = make(map[string]string, len(attrs))
	for k, v := range attrs {
		m.sentAttrs[k] = v
	}
	return nil
}

func (m *mockTransaction) Confirm(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmed++
	return m.confirmErr
}

func (m *mockTransaction) Complete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
	return m.completeErr
}

func (m *mockTransaction) Cancel(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled++
	return nil
}

// mockFactory builds mockWriters and can fail at any step.
type mockFactory struct {
	schemaErr error
	createErr error
	writeErr  error
	finishErr error
	extra     map[string]string

	schemaCalls int
	writer      *mockWriter
}

func (f *mockFactory) Schema(record *domain.Record, input *domain.Schema) (*domain.Schema, error) {
	f.schemaCalls++
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	return input, nil
}

func (f *mockFactory) CreateWriter(logger log.Logger, schema *domain.Schema, out io.Writer, attrs domain.Attributes) (ports.RecordSetWriter, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.writer = &mockWriter{factory: f, out: out}
	return f.writer, nil
}

type mockWriter struct {
	factory *mockFactory
	out     io.Writer
	count   int
	begun   bool
	closed  int
}

func (w *mockWriter) BeginRecordSet() error {
	w.begun = true
	return nil
}

func (w *mockWriter) Write(r domain.Record) error {
	if w.factory.writeErr != nil {
		return w.factory.writeErr
	}
	w.count++
	_, err := io.WriteString(w.out, "rec;")
	return err
}

func (w *mockWriter) FinishRecordSet() (domain.WriteResult, error) {
	if w.factory.finishErr != nil {
		return domain.WriteResult{}, w.factory.finishErr
	}
	return domain.NewWriteResult(w.count, w.factory.extra), nil
}

func (w *mockWriter) MimeType() string { return "application/x-test" }

func (w *mockWriter) Close() error {
	w.closed++
	return nil
}

// failingRecordSet returns err after n records.
type failingRecordSet struct {
	schema *domain.Schema
	n      int
	err    error
}

func (f *failingRecordSet) Schema() *domain.Schema { return f.schema }

func (f *failingRecordSet) Next() (domain.Record, error) {
	if f.n == 0 {
		return domain.Record{}, f.err
	}
	f.n--
	return domain.NewRecord(f.schema, nil), nil
}

// recordingLogger keeps messages per level.
type recordingLogger struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{lines: map[string][]string{}}
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines[level] = append(l.lines[level], msg)
}

func (l *recordingLogger) get(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines[level]...)
}

func (l *recordingLogger) Debug(msg string, fields ...log.Field) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, fields ...log.Field)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, fields ...log.Field)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, fields ...log.Field) { l.add("error", msg) }

var errBoom = errors.New("boom")
