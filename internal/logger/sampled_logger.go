package logger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Log categories for per-frame events on live streams.
const (
	CategoryFrameProcessing = "frame_processing"
	CategoryFrameDropped    = "frame_dropped"
	CategoryStreamSession   = "stream_session"
	CategoryMemoryPressure  = "memory_pressure"
)

// SampledLogger throttles high-frequency log categories. Messages in a
// category without a sampler, and all errors, are always logged.
type SampledLogger struct {
	base     Logger
	samplers *samplerSet
}

type samplerSet struct {
	mu sync.RWMutex
	m  map[string]*LogSampler
}

// LogSampler admits a burst of messages per interval, then every
// 1/sampleRate-th message until the interval elapses.
type LogSampler struct {
	name       string
	interval   time.Duration
	burst      int64
	sampleRate float64

	windowStart atomic.Int64 // unix nanos
	inWindow    atomic.Int64
	skipped     atomic.Int64 // since the last sampled message

	total   atomic.Int64
	logged  atomic.Int64
	dropped atomic.Int64
}

// SamplerStats holds statistics for a log sampler
type SamplerStats struct {
	Name            string  `json:"name"`
	TotalMessages   int64   `json:"total_messages"`
	SampledMessages int64   `json:"sampled_messages"`
	DroppedMessages int64   `json:"dropped_messages"`
	CurrentRate     float64 `json:"current_rate"`
}

// NewSampledLogger creates a sampled logger with no samplers.
func NewSampledLogger(base Logger) *SampledLogger {
	return &SampledLogger{
		base:     base,
		samplers: &samplerSet{m: make(map[string]*LogSampler)},
	}
}

// NewFrameLogger returns a sampled logger tuned for frame streams.
func NewFrameLogger(base Logger) *SampledLogger {
	return NewSampledLogger(base).
		// one line per frame at 30fps is noise: 5/s burst, then 5%
		WithSampler(CategoryFrameProcessing, time.Second, 5, 0.05).
		WithSampler(CategoryFrameDropped, time.Second, 3, 0.1).
		WithSampler(CategoryMemoryPressure, 5*time.Second, 1, 0)
	// stream_session is left unsampled
}

// WithSampler configures sampling for one category.
func (s *SampledLogger) WithSampler(category string, interval time.Duration, burst int, sampleRate float64) *SampledLogger {
	s.samplers.mu.Lock()
	defer s.samplers.mu.Unlock()

	s.samplers.m[category] = &LogSampler{
		name:       category,
		interval:   interval,
		burst:      int64(burst),
		sampleRate: sampleRate,
	}
	return s
}

func (s *SampledLogger) sampler(category string) *LogSampler {
	s.samplers.mu.RLock()
	defer s.samplers.mu.RUnlock()
	return s.samplers.m[category]
}

// allow reports whether a message arriving at now should be logged.
func (ls *LogSampler) allow(now time.Time) bool {
	ls.total.Add(1)

	ts := now.UnixNano()
	start := ls.windowStart.Load()
	if ts-start >= ls.interval.Nanoseconds() && ls.windowStart.CompareAndSwap(start, ts) {
		ls.inWindow.Store(0)
		ls.skipped.Store(0)
	}

	if ls.inWindow.Add(1) <= ls.burst {
		ls.logged.Add(1)
		return true
	}

	if ls.sampleRate > 0 && float64(ls.skipped.Add(1))*ls.sampleRate >= 1 {
		ls.skipped.Store(0)
		ls.logged.Add(1)
		return true
	}

	ls.dropped.Add(1)
	return false
}

func (ls *LogSampler) stats() SamplerStats {
	st := SamplerStats{
		Name:            ls.name,
		TotalMessages:   ls.total.Load(),
		SampledMessages: ls.logged.Load(),
		DroppedMessages: ls.dropped.Load(),
	}
	if st.TotalMessages > 0 {
		st.CurrentRate = float64(st.SampledMessages) / float64(st.TotalMessages)
	}
	return st
}

// FrameLog logs msg at level when the category's sampler admits it. The
// entry carries the category and the sampler's running totals.
func (s *SampledLogger) FrameLog(level logrus.Level, category, msg string, fields map[string]interface{}) {
	out := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		out[k] = v
	}
	out["category"] = category

	if level > logrus.ErrorLevel {
		if ls := s.sampler(category); ls != nil {
			if !ls.allow(time.Now()) {
				return
			}
			st := ls.stats()
			out["sampled_total"] = st.TotalMessages
			out["sampled_dropped"] = st.DroppedMessages
		}
	}

	s.base.WithFields(out).Log(level, msg)
}

func (s *SampledLogger) DebugWithCategory(category, msg string, fields map[string]interface{}) {
	s.FrameLog(logrus.DebugLevel, category, msg, fields)
}

func (s *SampledLogger) InfoWithCategory(category, msg string, fields map[string]interface{}) {
	s.FrameLog(logrus.InfoLevel, category, msg, fields)
}

func (s *SampledLogger) WarnWithCategory(category, msg string, fields map[string]interface{}) {
	s.FrameLog(logrus.WarnLevel, category, msg, fields)
}

// ErrorWithCategory is never sampled.
func (s *SampledLogger) ErrorWithCategory(category, msg string, fields map[string]interface{}) {
	s.FrameLog(logrus.ErrorLevel, category, msg, fields)
}

// GetSamplerStats returns statistics for all samplers
func (s *SampledLogger) GetSamplerStats() map[string]SamplerStats {
	s.samplers.mu.RLock()
	defer s.samplers.mu.RUnlock()

	stats := make(map[string]SamplerStats, len(s.samplers.m))
	for name, ls := range s.samplers.m {
		stats[name] = ls.stats()
	}
	return stats
}

// Derived loggers share the parent's samplers.

func (s *SampledLogger) WithFields(fields map[string]interface{}) Logger {
	return &SampledLogger{base: s.base.WithFields(fields), samplers: s.samplers}
}

func (s *SampledLogger) WithField(key string, value interface{}) Logger {
	return &SampledLogger{base: s.base.WithField(key, value), samplers: s.samplers}
}

func (s *SampledLogger) WithError(err error) Logger {
	return &SampledLogger{base: s.base.WithError(err), samplers: s.samplers}
}

func (s *SampledLogger) Debug(args ...interface{})                   { s.base.Debug(args...) }
func (s *SampledLogger) Info(args ...interface{})                    { s.base.Info(args...) }
func (s *SampledLogger) Warn(args ...interface{})                    { s.base.Warn(args...) }
func (s *SampledLogger) Error(args ...interface{})                   { s.base.Error(args...) }
func (s *SampledLogger) Log(level logrus.Level, args ...interface{}) { s.base.Log(level, args...) }
func (s *SampledLogger) Debugf(format string, args ...interface{})   { s.base.Debugf(format, args...) }
func (s *SampledLogger) Infof(format string, args ...interface{})    { s.base.Infof(format, args...) }
func (s *SampledLogger) Warnf(format string, args ...interface{})    { s.base.Warnf(format, args...) }
func (s *SampledLogger) Errorf(format string, args ...interface{})   { s.base.Errorf(format, args...) }
func (s *SampledLogger) Fatal(args ...interface{})                   { s.base.Fatal(args...) }
