package bridge

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/edgeview/internal/edgefilter"
	"github.com/zsiec/edgeview/internal/logger"
)

func newTestBridge(opts ...edgefilter.Option) (*Bridge, *test.Hook) {
	log, hook := test.NewNullLogger()
	return New(edgefilter.New(opts...), logger.NewLogrusAdapter(logrus.NewEntry(log))), hook
}

type panicDetector struct{}

func (panicDetector) Name() string { return "panic" }

func (panicDetector) EdgeMap([]byte, int, int, edgefilter.Thresholds) ([]byte, error) {
	panic("detector exploded")
}

func TestGreet(t *testing.T) {
	b, hook := newTestBridge()

	assert.Equal(t, "Hello from Go (bridge is working!)", b.Greet())
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)

	assert.Equal(t, GreetMessage, Greet())
}

func TestProcessFrame(t *testing.T) {
	b, hook := newTestBridge(edgefilter.WithLayout(edgefilter.LayoutRGBA))

	// white | black: non-maximum suppression keeps the first pixel
	out := b.ProcessFrame([]byte{255, 255, 255, 255, 0, 0, 0, 255}, 2, 1)
	assert.Equal(t, []byte{255, 255, 255, 255, 0, 0, 0, 255}, out)
	assert.Empty(t, hook.AllEntries())
}

func TestProcessFrame_Failures(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		width  int
		height int
		want   error
	}{
		{"nil input", nil, 1, 1, edgefilter.ErrInputInaccessible},
		{"zero width", make([]byte, 4), 0, 1, edgefilter.ErrInvalidDimensions},
		{"negative height", make([]byte, 4), 1, -1, edgefilter.ErrInvalidDimensions},
		{"short buffer", make([]byte, 7), 2, 1, edgefilter.ErrSizeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, hook := newTestBridge()

			assert.Nil(t, b.ProcessFrame(tt.input, tt.width, tt.height))

			require.Len(t, hook.AllEntries(), 1)
			entry := hook.LastEntry()
			assert.Equal(t, logrus.ErrorLevel, entry.Level)
			assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), tt.want)
		})
	}
}

func TestProcessFrame_AllocationFailure(t *testing.T) {
	b, hook := newTestBridge(edgefilter.WithAllocator(edgefilter.AllocatorFunc(func(int) ([]byte, error) {
		return nil, assert.AnError
	})))

	assert.Nil(t, b.ProcessFrame(make([]byte, 16), 2, 2))
	require.Len(t, hook.AllEntries(), 1)
	assert.ErrorIs(t, hook.LastEntry().Data[logrus.ErrorKey].(error), edgefilter.ErrOutputAllocation)
}

func TestProcessFrame_RecoversPanic(t *testing.T) {
	b, hook := newTestBridge(edgefilter.WithDetector(panicDetector{}))

	assert.NotPanics(t, func() {
		assert.Nil(t, b.ProcessFrame(make([]byte, 4), 1, 1))
	})
	require.Len(t, hook.AllEntries(), 1)
	assert.Contains(t, hook.LastEntry().Data[logrus.ErrorKey].(error).Error(), "detector exploded")
}

func TestDefaultBridge(t *testing.T) {
	require.NotNil(t, Default())
	assert.NotNil(t, Default().Filter())

	out := ProcessFrame(make([]byte, 4*3*3), 3, 3)
	require.Len(t, out, 36)
	for i := 0; i < len(out); i += 4 {
		// default ABGR layout: alpha first
		assert.Equal(t, byte(255), out[i])
	}

	assert.Nil(t, ProcessFrame(nil, 3, 3))
}

func TestNew_Defaults(t *testing.T) {
	b := New(nil, nil)
	assert.NotNil(t, b.Filter())
	assert.Equal(t, GreetMessage, b.Greet())
}
