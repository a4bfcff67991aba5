package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a stream session.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Session is the bookkeeping record of one live frame stream. Pixels are
// never stored here.
type Session struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	Status        Status    `json:"status"`
	Compression   string    `json:"compression"`
	CreatedAt     time.Time `json:"created_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`

	// Statistics
	FramesProcessed int64 `json:"frames_processed"`
	FramesFailed    int64 `json:"frames_failed"`
	FramesDropped   int64 `json:"frames_dropped"`
	BytesIn         int64 `json:"bytes_in"`
	BytesOut        int64 `json:"bytes_out"`
	LastWidth       int   `json:"last_width"`
	LastHeight      int   `json:"last_height"`
}

// Stats is the counter snapshot a stream pushes on every heartbeat.
type Stats struct {
	FramesProcessed int64 `json:"frames_processed"`
	FramesFailed    int64 `json:"frames_failed"`
	FramesDropped   int64 `json:"frames_dropped"`
	BytesIn         int64 `json:"bytes_in"`
	BytesOut        int64 `json:"bytes_out"`
	LastWidth       int   `json:"last_width"`
	LastHeight      int   `json:"last_height"`
}

// NewID returns a session id of the form ws_<date>_<time>_<8 hex>.
func NewID() string {
	return fmt.Sprintf("ws_%s_%s", time.Now().UTC().Format("20060102_150405"), uuid.NewString()[:8])
}

// New creates an active session for a connection from remoteAddr.
func New(remoteAddr, compression string) *Session {
	now := time.Now()
	return &Session{
		ID:            NewID(),
		RemoteAddr:    remoteAddr,
		Status:        StatusActive,
		Compression:   compression,
		CreatedAt:     now,
		LastHeartbeat: now,
	}
}

// ApplyStats copies a stats snapshot into the session.
func (s *Session) ApplyStats(st Stats) {
	s.FramesProcessed = st.FramesProcessed
	s.FramesFailed = st.FramesFailed
	s.FramesDropped = st.FramesDropped
	s.BytesIn = st.BytesIn
	s.BytesOut = st.BytesOut
	s.LastWidth = st.LastWidth
	s.LastHeight = st.LastHeight
}

// Age returns how long the session has existed.
func (s *Session) Age() time.Duration {
	return time.Since(s.CreatedAt)
}
