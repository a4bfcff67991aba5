package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/edgeview/internal/config"
	"github.com/zsiec/edgeview/internal/edgefilter"
	apperrors "github.com/zsiec/edgeview/internal/errors"
	"github.com/zsiec/edgeview/internal/memory"
	"github.com/zsiec/edgeview/internal/session"
)

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		Enabled:           true,
		MaxFrameRate:      1000,
		Burst:             100,
		AllowCompression:  true,
		SessionTTL:        30 * time.Second,
		HeartbeatInterval: 20 * time.Millisecond,
		PingInterval:      time.Second,
		WriteTimeout:      time.Second,
	}
}

type testServer struct {
	handler  *Handler
	server   *httptest.Server
	registry *session.MemoryRegistry
	filter   *edgefilter.Filter
}

func newTestServer(t *testing.T, cfg config.StreamConfig, mem *memory.Controller) *testServer {
	t.Helper()

	log, _ := test.NewNullLogger()
	filter := edgefilter.New()
	reg := session.NewMemoryRegistry(cfg.SessionTTL)
	h := NewHandler(filter, mem, reg, cfg, 1<<20, log)

	router := mux.NewRouter()
	h.RegisterRoutes(router)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Close(ctx)
		srv.Close()
	})

	return &testServer{handler: h, server: srv, registry: reg, filter: filter}
}

func (ts *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + Path + query
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// splitFrame is black in the left half and white in the right half.
func splitFrame(width, height int) []byte {
	pix := make([]byte, width*height*edgefilter.BytesPerPixel)
	for y := 0; y < height; y++ {
		for x := width / 2; x < width; x++ {
			i := (y*width + x) * edgefilter.BytesPerPixel
			pix[i], pix[i+1], pix[i+2] = 255, 255, 255
		}
		for x := 0; x < width; x++ {
			pix[(y*width+x)*edgefilter.BytesPerPixel+3] = 255
		}
	}
	return pix
}

func readFrame(t *testing.T, ws *websocket.Conn) (int, int, []byte) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, mt, "got %s", msg)
	w, h, payload, err := DecodeFrame(msg)
	require.NoError(t, err)
	return w, h, payload
}

func readNotice(t *testing.T, ws *websocket.Conn) Notice {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	var n Notice
	require.NoError(t, json.Unmarshal(msg, &n))
	return n
}

func TestStream_ProcessesFrames(t *testing.T) {
	ts := newTestServer(t, testStreamConfig(), nil)
	ws := ts.dial(t, "")

	in := splitFrame(8, 4)
	want, err := ts.filter.Process(in, 8, 4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, EncodeFrame(8, 4, in)))
		w, h, payload := readFrame(t, ws)
		assert.Equal(t, 8, w)
		assert.Equal(t, 4, h)
		assert.Equal(t, want, payload)
	}

	assert.Eventually(t, func() bool { return ts.handler.Stats().FramesProcessed == 3 },
		time.Second, 10*time.Millisecond)
}

func TestStream_ZstdCompression(t *testing.T) {
	ts := newTestServer(t, testStreamConfig(), nil)
	ws := ts.dial(t, "?compression=zstd")

	in := splitFrame(64, 48)
	want, err := ts.filter.Process(in, 64, 48)
	require.NoError(t, err)

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, EncodeFrame(64, 48, in)))
	w, h, payload := readFrame(t, ws)
	assert.Equal(t, 64, w)
	assert.Equal(t, 48, h)
	assert.Less(t, len(payload), len(want))

	got, err := DecompressPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStream_RejectsCompressionWhenDisabled(t *testing.T) {
	cfg := testStreamConfig()
	cfg.AllowCompression = false
	ts := newTestServer(t, cfg, nil)

	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + Path + "?compression=zstd"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(ts.server.URL, "http")+Path+"?compression=lz4", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStream_SessionLimit(t *testing.T) {
	cfg := testStreamConfig()
	cfg.MaxSessionsPerClient = 1
	ts := newTestServer(t, cfg, nil)

	first := ts.dial(t, "")
	require.Eventually(t, func() bool { return ts.handler.Stats().ActiveSessions == 1 },
		time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + Path
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	require.NoError(t, first.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return ts.handler.limiter.Total() == 0 },
		time.Second, 10*time.Millisecond)

	ts.dial(t, "")
}

func TestStream_GlobalSessionLimit(t *testing.T) {
	cfg := testStreamConfig()
	cfg.MaxSessions = 1
	ts := newTestServer(t, cfg, nil)

	ts.dial(t, "")
	require.Eventually(t, func() bool { return ts.handler.limiter.Total() == 1 },
		time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + Path
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStream_RefusesSessionsAfterClose(t *testing.T) {
	ts := newTestServer(t, testStreamConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ts.handler.Close(ctx))
	require.NoError(t, ts.handler.Close(ctx))

	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + Path
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body apperrors.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, apperrors.ErrorTypeServiceDown, body.Error.Type)
	assert.Equal(t, int64(0), ts.handler.Stats().TotalSessions)
	assert.Equal(t, 0, ts.handler.limiter.Total())
}

func TestStream_InvalidFramesKeepSessionOpen(t *testing.T) {
	ts := newTestServer(t, testStreamConfig(), nil)
	ws := ts.dial(t, "")

	tests := []struct {
		name string
		mt   int
		msg  []byte
		code string
	}{
		{"short header", websocket.BinaryMessage, []byte{0, 0, 0, 2}, apperrors.CodeFrameDecode},
		{"text frame", websocket.TextMessage, []byte("hello"), apperrors.CodeFrameDecode},
		{"zero width", websocket.BinaryMessage, EncodeFrame(0, 4, nil), apperrors.CodeFrameDimensions},
		{"length mismatch", websocket.BinaryMessage, EncodeFrame(2, 2, make([]byte, 15)), apperrors.CodeFrameSizeMismatch},
	}

	for i, tt := range tests {
		require.NoError(t, ws.WriteMessage(tt.mt, tt.msg), tt.name)
		n := readNotice(t, ws)
		assert.Equal(t, NoticeError, n.Type, tt.name)
		assert.Equal(t, uint64(i+1), n.Frame, tt.name)
		assert.Equal(t, tt.code, n.Code, tt.name)
		assert.NotEmpty(t, n.Message, tt.name)
	}

	// still usable
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, EncodeFrame(2, 1, splitFrame(2, 1))))
	w, h, payload := readFrame(t, ws)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)
	assert.Len(t, payload, 8)

	assert.Equal(t, int64(2), ts.handler.Stats().FramesFailed)
}

func TestStream_RateLimitDropsFrames(t *testing.T) {
	cfg := testStreamConfig()
	cfg.MaxFrameRate = 0.001
	cfg.Burst = 1
	ts := newTestServer(t, cfg, nil)
	ws := ts.dial(t, "")

	frame := EncodeFrame(4, 4, splitFrame(4, 4))

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, frame))
	_, _, payload := readFrame(t, ws)
	assert.Len(t, payload, 64)

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, frame))
	n := readNotice(t, ws)
	assert.Equal(t, Notice{Type: NoticeDropped, Frame: 2}, n)

	assert.Eventually(t, func() bool { return ts.handler.Stats().FramesDropped == 1 },
		time.Second, 10*time.Millisecond)
}

func TestStream_MemoryBudget(t *testing.T) {
	in := splitFrame(8, 8)
	// room for the input but not the output
	mem := memory.NewController(int64(len(in)+len(in)/2), 0)
	ts := newTestServer(t, testStreamConfig(), mem)
	ws := ts.dial(t, "")

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, EncodeFrame(8, 8, in)))
	n := readNotice(t, ws)
	assert.Equal(t, NoticeError, n.Type)
	assert.Equal(t, apperrors.CodeFrameAllocation, n.Code)

	// every reservation is returned after the frame
	assert.Eventually(t, func() bool { return mem.Stats().GlobalUsage == 0 },
		time.Second, 10*time.Millisecond)

	small := splitFrame(2, 2)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, EncodeFrame(2, 2, small)))
	_, _, payload := readFrame(t, ws)
	assert.Len(t, payload, len(small))
}

func TestStream_SessionBookkeeping(t *testing.T) {
	ts := newTestServer(t, testStreamConfig(), nil)
	ctx := context.Background()
	ws := ts.dial(t, "?compression=zstd")

	var id string
	require.Eventually(t, func() bool {
		list, err := ts.registry.List(ctx)
		if err != nil || len(list) != 1 {
			return false
		}
		id = list[0].ID
		return true
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), ts.handler.Stats().ActiveSessions)

	s, err := ts.registry.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, s.Compression)
	assert.Equal(t, session.StatusActive, s.Status)

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, EncodeFrame(4, 2, splitFrame(4, 2))))
	readFrame(t, ws)

	// heartbeat pushes counters
	assert.Eventually(t, func() bool {
		s, err := ts.registry.Get(ctx, id)
		return err == nil && s.FramesProcessed == 1 && s.LastWidth == 4 && s.LastHeight == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	assert.Eventually(t, func() bool {
		list, err := ts.registry.List(ctx)
		return err == nil && len(list) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return ts.handler.Stats().ActiveSessions == 0 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), ts.handler.Stats().TotalSessions)
}

func TestStream_CloseSendsGoingAway(t *testing.T) {
	ts := newTestServer(t, testStreamConfig(), nil)
	ws := ts.dial(t, "")

	require.Eventually(t, func() bool { return ts.handler.Stats().ActiveSessions == 1 },
		time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.handler.Close(ctx))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
