package output

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/retrovue/air/internal/frame"
	"github.com/retrovue/air/internal/ring"
)

// discardLoggerForTest is a *slog.Logger that writes nowhere, for tests that
// need a logger but don't want to spam test output with the loop's own
// info/debug lines.
func discardLoggerForTest() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// testBus is a sink.Bus that records every routed frame for inspection,
// guarded by a mutex since the render goroutine and the test goroutine both
// touch it (the test goroutine only after Stop has joined the render
// goroutine, but the mutex keeps `go test -race` happy regardless).
type testBus struct {
	mu    sync.Mutex
	video []*frame.VideoFrame
	audio []*frame.AudioFrame
}

func (b *testBus) RouteVideo(f *frame.VideoFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.video = append(b.video, f)
}

func (b *testBus) RouteAudio(f *frame.AudioFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = append(b.audio, f)
}

func (b *testBus) videoSnapshot() []*frame.VideoFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*frame.VideoFrame, len(b.video))
	copy(out, b.video)
	return out
}

func (b *testBus) audioSnapshot() []*frame.AudioFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*frame.AudioFrame, len(b.audio))
	copy(out, b.audio)
	return out
}

func TestNew_StatsStartAtZero(t *testing.T) {
	po := New("test", nil, nil)
	s := po.Stats()
	assert.Equal(t, Stats{}, s)
	assert.Equal(t, int64(0), po.GetLastEmittedPTS())
	assert.Equal(t, int64(0), po.GetFirstEmittedPTS())
}

func TestSetOutputBus_Idempotent(t *testing.T) {
	po := New("test", nil, nil)
	bus := &testBus{}

	po.SetOutputBus(bus)
	po.SetOutputBus(bus) // same bus again: no-op, must not panic

	assert.True(t, po.hasSink())
}

func TestSetOutputBus_ReplacingDifferentBusIsFatal(t *testing.T) {
	po := New("test", nil, nil)
	po.SetOutputBus(&testBus{})

	var paniced bool
	orig := panicFn
	panicFn = func(msg string) { paniced = true }
	defer func() { panicFn = orig }()

	po.SetOutputBus(&testBus{})

	assert.True(t, paniced)
}

func TestSetOutputBus_NilAlwaysClears(t *testing.T) {
	po := New("test", nil, nil)
	po.SetOutputBus(&testBus{})
	assert.True(t, po.hasSink())

	po.SetOutputBus(nil)
	assert.False(t, po.hasSink())

	// Having cleared it, a fresh distinct bus may now be installed.
	po.SetOutputBus(&testBus{})
	assert.True(t, po.hasSink())
}

func TestSetInputBuffer_ResetsSegmentState(t *testing.T) {
	po := New("test", nil, nil)

	po.firstPTSSetForSeg = true
	po.firstPTS.Store(555)
	po.successorFiredForSeg = true
	po.firstRealFrameEmitted = true

	po.SetInputBuffer(ring.New(4, 4))

	assert.False(t, po.firstPTSSetForSeg)
	assert.Equal(t, int64(0), po.GetFirstEmittedPTS())
	assert.False(t, po.successorFiredForSeg)
	assert.False(t, po.firstRealFrameEmitted)
}

func TestSetInputBuffer_PreservesLastPTSAndPadState(t *testing.T) {
	po := New("test", nil, nil)
	po.lastPTS.Store(123456)
	po.pad.initialized = true
	po.pad.width = 640
	po.pacing.inFreezeMode = true

	po.SetInputBuffer(ring.New(4, 4))

	assert.Equal(t, int64(123456), po.GetLastEmittedPTS())
	assert.True(t, po.pad.initialized)
	assert.Equal(t, 640, po.pad.width)
	assert.True(t, po.pacing.inFreezeMode)
}

func TestLockAudioFormat_NeverClearedByResetSegment(t *testing.T) {
	po := New("test", nil, nil)
	po.LockAudioFormat()
	assert.True(t, po.pad.audioFormatLocked)

	po.SetInputBuffer(ring.New(4, 4))
	assert.True(t, po.pad.audioFormatLocked)
}

func TestStart_TwiceReturnsError(t *testing.T) {
	po := New("test", nil, nil)
	po.SetOutputBus(&testBus{})

	assert.NoError(t, po.Start())
	assert.Error(t, po.Start())
	po.Stop()
}

func TestStop_IdempotentBeforeStart(t *testing.T) {
	po := New("test", nil, nil)
	assert.NotPanics(t, func() { po.Stop() })
}
