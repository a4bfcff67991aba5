package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name    string
	err     error
	delay   time.Duration
	details map[string]interface{}
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

type detailedChecker struct {
	mockChecker
}

func (d *detailedChecker) Details() map[string]interface{} { return d.details }

func newTestManager() (*Manager, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return NewManager(log), hook
}

func TestManager_RunChecks(t *testing.T) {
	m, _ := newTestManager()
	m.Register(&mockChecker{name: "ok"})
	m.Register(&mockChecker{name: "broken", err: errors.New("broken failed")})
	m.Register(&mockChecker{name: "busy", err: Degraded("queue is long")})

	results := m.RunChecks(context.Background())
	require.Len(t, results, 3)

	assert.Equal(t, StatusOK, results["ok"].Status)
	assert.Empty(t, results["ok"].Message)

	assert.Equal(t, StatusDown, results["broken"].Status)
	assert.Contains(t, results["broken"].Message, "broken failed")

	assert.Equal(t, StatusDegraded, results["busy"].Status)
	assert.Equal(t, "queue is long", results["busy"].Message)

	assert.Equal(t, []string{"ok", "broken", "busy"}, m.Checkers())
}

func TestManager_OverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"all healthy", []Checker{&mockChecker{name: "a"}, &mockChecker{name: "b"}}, StatusOK},
		{"one degraded", []Checker{&mockChecker{name: "a"}, &mockChecker{name: "b", err: Degraded("slow")}}, StatusDegraded},
		{"down wins", []Checker{&mockChecker{name: "a", err: Degraded("slow")}, &mockChecker{name: "b", err: errors.New("x")}}, StatusDown},
		{"no checkers", nil, StatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager()
			for _, c := range tt.checkers {
				m.Register(c)
			}
			m.RunChecks(context.Background())
			assert.Equal(t, tt.want, m.GetOverallStatus())
		})
	}
}

func TestManager_Timeout(t *testing.T) {
	m, hook := newTestManager()
	m.timeout = 50 * time.Millisecond
	m.Register(&mockChecker{name: "slow", delay: 10 * time.Second})

	start := time.Now()
	results := m.RunChecks(context.Background())
	assert.Less(t, time.Since(start), 5*time.Second)

	require.NotNil(t, results["slow"])
	assert.Equal(t, StatusDown, results["slow"].Status)
	assert.Contains(t, results["slow"].Message, "timed out")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestManager_DetailsAndDuration(t *testing.T) {
	m, _ := newTestManager()
	m.Register(&detailedChecker{mockChecker{name: "d", delay: 20 * time.Millisecond, details: map[string]interface{}{"k": 1}}})

	check := m.RunChecks(context.Background())["d"]
	require.NotNil(t, check)
	assert.Equal(t, map[string]interface{}{"k": 1}, check.Details)
	assert.GreaterOrEqual(t, check.Duration, 20*time.Millisecond)
	assert.GreaterOrEqual(t, check.DurationMS, 20.0)
}

func TestManager_GetResultsReturnsCopies(t *testing.T) {
	m, _ := newTestManager()
	m.Register(&mockChecker{name: "c"})
	m.RunChecks(context.Background())

	results := m.GetResults()
	results["c"].Status = StatusDown
	assert.Equal(t, StatusOK, m.GetResults()["c"].Status)
}

func TestStartPeriodicChecks(t *testing.T) {
	m, _ := newTestManager()
	counter := &countingChecker{}
	m.Register(counter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.StartPeriodicChecks(ctx, 20*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return counter.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic checks did not stop")
	}
}
