// Package bridge exposes the edge filter to host applications through a
// small, panic-free surface whose signatures gomobile can bind.
package bridge

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zsiec/edgeview/internal/edgefilter"
	apperrors "github.com/zsiec/edgeview/internal/errors"
	"github.com/zsiec/edgeview/internal/logger"
	"github.com/zsiec/edgeview/internal/metrics"
)

// GreetMessage is the fixed reply of Greet.
const GreetMessage = "Hello from Go (bridge is working!)"

// Bridge binds a filter and a logger for boundary calls.
type Bridge struct {
	filter *edgefilter.Filter
	logger logger.Logger
}

// New creates a bridge. A nil filter uses the default pipeline.
func New(filter *edgefilter.Filter, log logger.Logger) *Bridge {
	if filter == nil {
		filter = edgefilter.New()
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Bridge{filter: filter, logger: log}
}

var defaultBridge = New(
	edgefilter.New(),
	logger.Component(logrus.StandardLogger(), "bridge"),
)

// Default returns the bridge behind the package-level functions.
func Default() *Bridge { return defaultBridge }

// Filter returns the bridge's filter.
func (b *Bridge) Filter() *edgefilter.Filter { return b.filter }

// Greet confirms the host can reach Go.
func (b *Bridge) Greet() string {
	b.logger.Info("Bridge greeting requested")
	return GreetMessage
}

// ProcessFrame filters one RGBA frame. It returns nil after logging a single
// diagnostic line when the frame cannot be processed.
func (b *Bridge) ProcessFrame(input []byte, width, height int) (out []byte) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			b.reject(fmt.Errorf("panic: %v", r), width, height, len(input))
			out = nil
		}
	}()

	out, err := b.filter.Process(input, width, height)
	if err != nil {
		b.reject(err, width, height, len(input))
		return nil
	}

	metrics.RecordFrameProcessed(metrics.SourceBridge, width, height, len(input), len(out), time.Since(start))
	return out
}

func (b *Bridge) reject(err error, width, height, n int) {
	metrics.RecordFrameError(metrics.SourceBridge, apperrors.Reason(err))
	b.logger.WithFields(map[string]interface{}{
		"width":  width,
		"height": height,
		"bytes":  n,
	}).WithError(err).Error("Frame processing failed")
}

// Greet calls Greet on the default bridge.
func Greet() string {
	return defaultBridge.Greet()
}

// ProcessFrame calls ProcessFrame on the default bridge.
func ProcessFrame(input []byte, width, height int) []byte {
	return defaultBridge.ProcessFrame(input, width, height)
}
