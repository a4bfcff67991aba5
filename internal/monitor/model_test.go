package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/edgeview/internal/api"
	"github.com/zsiec/edgeview/internal/memory"
	"github.com/zsiec/edgeview/internal/stream"
	"github.com/zsiec/edgeview/pkg/version"
)

func sampleStats(processed, dropped int64) *api.StatsResponse {
	return &api.StatsResponse{
		UptimeSeconds: 90,
		Filter:        api.FilterInfo{Engine: "go", Layout: "abgr", LowThreshold: 50, HighThreshold: 150},
		HTTP:          api.HTTPStats{FramesProcessed: 2},
		Stream: stream.Stats{
			ActiveSessions:  1,
			TotalSessions:   3,
			FramesProcessed: processed,
			FramesDropped:   dropped,
		},
		Memory: &memory.Stats{GlobalUsage: 512 << 10, GlobalLimit: 1 << 20, ActiveOwners: 1},
	}
}

func TestClient_Fetch(t *testing.T) {
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		assert.Equal(t, StatsPath, r.URL.Path)
		_ = json.NewEncoder(w).Encode(sampleStats(10, 1))
	}))
	defer srv.Close()

	stats, err := NewClient(srv.URL+"/", nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Stream.FramesProcessed)
	assert.Equal(t, version.UserAgent(), userAgent)
}

func TestClient_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer bad.Close()

	_, err = NewClient(bad.URL, nil).Fetch(context.Background())
	assert.ErrorContains(t, err, "failed to decode stats")
}

func TestModel_Rates(t *testing.T) {
	m := NewModel(NewClient("http://unused", nil), "local", time.Second)
	t0 := time.Now()

	m.Update(statsMsg{stats: sampleStats(100, 0), at: t0})
	assert.Equal(t, Rates{}, m.Rates())

	m.Update(statsMsg{stats: sampleStats(160, 4), at: t0.Add(2 * time.Second)})
	assert.InDelta(t, 30.0, m.Rates().Processed, 0.001)
	assert.InDelta(t, 2.0, m.Rates().Dropped, 0.001)
	assert.Zero(t, m.Rates().Failed)
}

func TestModel_Keys(t *testing.T) {
	m := NewModel(NewClient("http://unused", nil), "local", time.Second)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())

	m = NewModel(NewClient("http://unused", nil), "local", time.Second)
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_FetchCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sampleStats(7, 0))
	}))
	defer srv.Close()

	m := NewModel(NewClient(srv.URL, nil), srv.URL, time.Second)
	msg := m.fetch()()
	sm, ok := msg.(statsMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, int64(7), sm.stats.Stream.FramesProcessed)

	srv.Close()
	_, ok = m.fetch()().(errMsg)
	assert.True(t, ok)
}

func TestModel_View(t *testing.T) {
	m := NewModel(NewClient("http://unused", nil), "localhost:8080", time.Second)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	assert.Contains(t, m.View(), "waiting for stats")

	m.Update(errMsg{errors.New("connection refused")})
	assert.Contains(t, m.View(), "connection refused")

	m.Update(statsMsg{stats: sampleStats(42, 5), at: time.Now()})
	view := m.View()
	for _, want := range []string{"EDGEVIEW", "localhost:8080", "Frames", "Sessions", "Memory", "44", "512.0 KiB", "go / abgr"} {
		assert.Contains(t, view, want)
	}
	assert.NotContains(t, view, "connection refused")
}

func TestProgressBar(t *testing.T) {
	count := func(s, r string) int { return strings.Count(s, r) }

	bar := progressBar(0.5, 10)
	assert.Equal(t, 5, count(bar, "█"))
	assert.Equal(t, 5, count(bar, "░"))

	assert.Equal(t, 10, count(progressBar(2, 10), "█"))
	assert.Equal(t, 10, count(progressBar(-1, 10), "░"))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KiB", formatBytes(1024))
	assert.Equal(t, "1.5 MiB", formatBytes(3<<19))
	assert.Equal(t, "2.0 GiB", formatBytes(2<<30))
}
