package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/playnet/internal/metrics"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// mockExecutor はExecContextの呼び出し内容を記録する。
type mockExecutor struct {
	mu     sync.Mutex
	calls  int
	query  string
	args   []interface{}
	result sql.Result
	err    error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.query = query
	m.args = args
	return m.result, m.err
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type purgeCollector struct {
	metrics.Nop
	purged []int
}

func (c *purgeCollector) RecordResetsPurged(count int) {
	c.purged = append(c.purged, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func findLogEntry(t *testing.T, buf *bytes.Buffer, key string) (interface{}, bool) {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestNewCleanupJob_Defaults(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockExecutor{}, newTestLogger(&buf), nil)

	if job.Retention != DefaultRetention {
		t.Errorf("Retention = %v, want %v", job.Retention, DefaultRetention)
	}
}

func TestCleanupJob_Run_DeletesStaleResets(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	collector := &purgeCollector{}
	job := NewCleanupJob(mock, newTestLogger(&buf), collector)
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if deleted != 5 {
		t.Errorf("deleted = %d, want 5", deleted)
	}
	if !strings.Contains(mock.query, "DELETE FROM password_resets") {
		t.Errorf("unexpected query: %s", mock.query)
	}
	for _, cond := range []string{"used_at IS NOT NULL", "expires_at <"} {
		if !strings.Contains(mock.query, cond) {
			t.Errorf("query missing %q: %s", cond, mock.query)
		}
	}

	cutoff, ok := mock.args[0].(time.Time)
	if !ok {
		t.Fatalf("first arg is %T, want time.Time", mock.args[0])
	}
	if want := now.Add(-DefaultRetention); !cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", cutoff, want)
	}
	if len(collector.purged) != 1 || collector.purged[0] != 5 {
		t.Errorf("purged metrics = %v, want [5]", collector.purged)
	}
	if v, ok := findLogEntry(t, &buf, "deleted_count"); !ok || v != float64(5) {
		t.Errorf("deleted_count log = %v, want 5. log: %s", v, buf.String())
	}
}

func TestCleanupJob_Run_CustomRetention(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf), nil)
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }
	job.Retention = 24 * time.Hour

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if got := mock.args[0].(time.Time); !got.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("cutoff = %v, want %v", got, now.Add(-24*time.Hour))
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockExecutor{result: &fakeResult{}}, newTestLogger(&buf), nil)

	for i := 0; i < 2; i++ {
		deleted, err := job.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d returned error: %v", i+1, err)
		}
		if deleted != 0 {
			t.Errorf("run %d deleted = %d, want 0", i+1, deleted)
		}
	}
	if v, ok := findLogEntry(t, &buf, "deleted_count"); !ok || v != float64(0) {
		t.Errorf("deleted_count=0 should be logged. log: %s", buf.String())
	}
}

func TestCleanupJob_Run_DBFailure(t *testing.T) {
	var buf bytes.Buffer
	collector := &purgeCollector{}
	job := NewCleanupJob(&mockExecutor{err: sql.ErrConnDone}, newTestLogger(&buf), collector)

	_, err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error on DB failure")
	}
	if !strings.Contains(err.Error(), sql.ErrConnDone.Error()) {
		t.Errorf("error should wrap the DB error: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("expected ERROR level log. log: %s", buf.String())
	}
	if len(collector.purged) != 0 {
		t.Errorf("no purge should be recorded on failure, got %v", collector.purged)
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for mock.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Start did not run the job immediately")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestCleanupJob_Start_NonPositiveIntervalDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		job.Start(ctx, 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return for a cancelled context")
	}
	// JSONハンドラーはDurationをナノ秒の整数で出力する
	if !strings.Contains(buf.String(), `"interval":`+strconv.FormatInt(int64(DefaultInterval), 10)) {
		t.Errorf("expected the default interval to be logged, got %s", buf.String())
	}
}
