// Package output implements ProgramOutput: the real-time render loop that
// paces frames from a FrameRingBuffer against a MasterClock, synthesizes
// freeze/pad content on starvation, and routes frames to an OutputSink.
package output

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/retrovue/air/internal/clock"
	"github.com/retrovue/air/internal/frame"
	"github.com/retrovue/air/internal/ring"
	"github.com/retrovue/air/internal/sink"
)

// Two-phase wait thresholds shared by the pacing gate (step 2) and the CT
// gate (step 8): coarse-sleep while more than coarseThreshold remains,
// yield-spin down to spinThreshold, then busy-spin.
const (
	coarseThreshold = time.Millisecond
	spinThreshold   = 200 * time.Microsecond
	ctGateLeadUs    = 500 // §4.4.1 step 8: CT wait targets deadline-500us before spinning
)

// sinkGateSleep is how long the loop idles per iteration while no sink is
// attached (spec §4.4.1 step 1).
const sinkGateSleep = 10 * time.Millisecond

// panicFn aborts the process on a programming error (spec §4.4.7). It is a
// variable, not a direct os.Exit/panic call, so tests can observe fatal
// conditions without killing the test binary.
var panicFn = func(msg string) { panic(msg) }

// Stats is a point-in-time snapshot of ProgramOutput's counters. Safe to
// read concurrently; counters are updated only by the render goroutine
// (spec §5), so a snapshot may be torn across fields but each field itself
// is read atomically.
type Stats struct {
	RealFramesEmitted   int64
	FreezeFramesEmitted int64
	PadFramesEmitted    int64
	AudioFramesRouted   int64
	PacingLateEvents    int64
	CurrentFreezeStreak int32
}

// ProgramOutput is the render loop core described in spec §4.4. A
// ProgramOutput is created once per channel session; Start spawns its
// dedicated render goroutine and Stop joins it.
type ProgramOutput struct {
	log   *slog.Logger
	name  string
	clock clock.MasterClock

	// fallbackStart anchors a steady wall clock when clock is nil, per
	// spec §4.4.7 ("loop uses a monotonic steady reference for pacing").
	fallbackStart time.Time

	inputMu sync.Mutex
	input   *ring.Buffer

	busMu     sync.Mutex
	bus       sink.Bus
	videoSink sink.VideoRouteFunc
	audioSink sink.AudioRouteFunc

	// successorMu guards both the registered callback and successorFiredForSeg
	// (spec.md: "successor_observer: mutex-guarded") — SetOnSuccessorVideoEmitted,
	// resetSegment, and fireSuccessorObserver all take it.
	successorMu          sync.Mutex
	successor            func()
	successorFiredForSeg bool

	noContentSegment atomic.Bool

	started atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// render-goroutine-owned in steady state, but resetSegment (called from
	// SetInputBuffer) writes these from whatever goroutine calls
	// SetInputBuffer, concurrently with the render goroutine — so both sides
	// take segmentMu rather than relying on any implicit happens-before edge.
	segmentMu             sync.Mutex
	firstRealFrameEmitted bool
	firstPTSSetForSeg     bool

	// render-goroutine-owned state (spec §5): no external synchronization.
	pacing pacingState
	pad    padState

	// externally-readable segment observability, per the GetLastEmittedPTS/
	// GetFirstEmittedPTS control-surface methods (spec §6).
	lastPTS  atomic.Int64
	firstPTS atomic.Int64

	statsAtoms struct {
		real, freeze, pad, audio, late atomic.Int64
		freezeStreak                  atomic.Int32
	}

	violations *violationProbe
}

// New creates a ProgramOutput for a channel named name, driven by clk (which
// may be nil — see spec §4.4.7). log may be nil, in which case slog.Default()
// is used.
func New(name string, clk clock.MasterClock, log *slog.Logger) *ProgramOutput {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "program-output", "channel", name)

	po := &ProgramOutput{
		log:           log,
		name:          name,
		clock:         clk,
		fallbackStart: time.Now(),
		pacing:        newPacingState(),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	po.violations = newViolationProbe(log)
	return po
}

// SetInputBuffer atomically swaps the input buffer the render loop consumes
// from. Subsequent loop iterations observe the new buffer on the next
// snapshot (step 3). Per spec §4.4.4: resets first_pts_set, first_pts, and
// the successor-fired latch for the new segment, but deliberately does not
// touch last_pts, pacing state, pad state, freeze state, or the audio format
// lock — preserving those is what makes PTS continuity across a hot switch
// possible.
func (po *ProgramOutput) SetInputBuffer(b *ring.Buffer) {
	po.inputMu.Lock()
	po.input = b
	po.inputMu.Unlock()

	// SetInputBuffer is the one mutator any other goroutine is allowed to
	// call concurrently with a live render loop, per the segment-boundary
	// contract in spec §4.4.4 — so resetSegment takes the same locks the
	// render loop takes when it reads or writes these fields, rather than
	// relying on any implicit ordering between this call and the loop.
	po.resetSegment()

	po.log.Info("input buffer switched")
}

// resetSegment re-arms per-segment state for a new segment. Called either
// before Start (no render goroutine running yet) or from SetInputBuffer,
// concurrently with a live render loop — hence the locking.
func (po *ProgramOutput) resetSegment() {
	po.segmentMu.Lock()
	po.firstPTSSetForSeg = false
	// Resolves the §9 open question: I-CONTENT-BEFORE-PAD is scoped "per
	// segment", and SetInputBuffer is the segment boundary (§4.4.4), so the
	// gate re-arms here. ResetPipeline deliberately does not call this.
	po.firstRealFrameEmitted = false
	po.segmentMu.Unlock()

	po.firstPTS.Store(0)

	po.successorMu.Lock()
	po.successorFiredForSeg = false
	po.successorMu.Unlock()
}

// SetOutputBus installs b as the sink bus. Installing a bus is idempotent
// but non-replaceable (spec §4.3): calling SetOutputBus again with a
// different non-nil bus while one is already installed is a fatal
// programming error. Passing nil always clears the bus.
func (po *ProgramOutput) SetOutputBus(b sink.Bus) {
	po.busMu.Lock()
	defer po.busMu.Unlock()

	if b == nil {
		po.bus = nil
		return
	}
	if po.bus != nil && po.bus != b {
		po.log.Error("fatal: attempted to replace an installed output bus with a different non-nil bus",
			"tag", "INV-P10.5-OUTPUT-SAFETY-RAIL")
		panicFn("output: SetOutputBus called with a different non-nil bus while one is already installed")
		return
	}
	po.bus = b
}

// ClearOutputBus removes the installed bus, if any.
func (po *ProgramOutput) ClearOutputBus() {
	po.SetOutputBus(nil)
}

// SetSideSink installs the per-stream video callback used when no bus is
// attached.
func (po *ProgramOutput) SetSideSink(fn sink.VideoRouteFunc) {
	po.busMu.Lock()
	defer po.busMu.Unlock()
	po.videoSink = fn
}

// ClearSideSink removes the per-stream video callback.
func (po *ProgramOutput) ClearSideSink() {
	po.SetSideSink(nil)
}

// SetAudioSideSink installs the per-stream audio callback used when no bus
// is attached.
func (po *ProgramOutput) SetAudioSideSink(fn sink.AudioRouteFunc) {
	po.busMu.Lock()
	defer po.busMu.Unlock()
	po.audioSink = fn
}

// ClearAudioSideSink removes the per-stream audio callback.
func (po *ProgramOutput) ClearAudioSideSink() {
	po.SetAudioSideSink(nil)
}

// SetOnSuccessorVideoEmitted registers cb to be invoked exactly once per
// segment, on the first non-pad real video frame routed to the sink (spec
// §6). The callback is invoked with the registration mutex held briefly;
// it must not block.
func (po *ProgramOutput) SetOnSuccessorVideoEmitted(cb func()) {
	po.successorMu.Lock()
	defer po.successorMu.Unlock()
	po.successor = cb
}

// SetNoContentSegment toggles whether the current segment is declared
// content-less, per spec §4.4.1 step 4 / I-CONTENT-BEFORE-PAD.
func (po *ProgramOutput) SetNoContentSegment(v bool) {
	po.noContentSegment.Store(v)
}

// GetLastEmittedPTS returns the CT pts of the most recently emitted video
// frame (real, freeze, or pad), or 0 if none has been emitted yet.
func (po *ProgramOutput) GetLastEmittedPTS() int64 {
	return po.lastPTS.Load()
}

// GetFirstEmittedPTS returns the CT pts of the first non-pad frame emitted
// in the current segment, or 0 if none has been emitted yet this segment.
func (po *ProgramOutput) GetFirstEmittedPTS() int64 {
	return po.firstPTS.Load()
}

// Stats returns a snapshot of the render loop's counters.
func (po *ProgramOutput) Stats() Stats {
	return Stats{
		RealFramesEmitted:   po.statsAtoms.real.Load(),
		FreezeFramesEmitted: po.statsAtoms.freeze.Load(),
		PadFramesEmitted:    po.statsAtoms.pad.Load(),
		AudioFramesRouted:   po.statsAtoms.audio.Load(),
		PacingLateEvents:    po.statsAtoms.late.Load(),
		CurrentFreezeStreak: po.statsAtoms.freezeStreak.Load(),
	}
}

// LockAudioFormat engages the canonical audio format lock (spec §4.4.5).
// Called once at channel start, before Start spawns the render goroutine.
// Never cleared by subsequent Stop/Start cycles on the same ProgramOutput.
func (po *ProgramOutput) LockAudioFormat() {
	po.pad.audioFormatLocked = true
	po.log.Info("audio format locked",
		"sample_rate", frame.CanonicalSampleRate,
		"channels", frame.CanonicalChannels)
}

// Start engages the audio format lock and spawns the render goroutine. It
// is an error to call Start more than once on the same ProgramOutput.
func (po *ProgramOutput) Start() error {
	if !po.started.CompareAndSwap(false, true) {
		return fmt.Errorf("output: Start called twice on channel %q", po.name)
	}
	po.LockAudioFormat()
	go po.run()
	return nil
}

// Stop requests the render goroutine to exit and blocks until it has. Per
// spec §5, the worst-case shutdown latency is one frame period plus a
// sink-gate tick.
func (po *ProgramOutput) Stop() {
	if !po.started.Load() {
		return
	}
	select {
	case <-po.stopCh:
	default:
		close(po.stopCh)
	}
	<-po.doneCh
}

// ResetPipeline clears the input buffer and the wall-clock reference stamp
// only. Per spec §4.4.6, it must not reset last_pts or the pacing/pad
// state — the same continuity reason as a hot switch.
func (po *ProgramOutput) ResetPipeline() {
	po.inputMu.Lock()
	if po.input != nil {
		po.input.Clear()
	}
	po.inputMu.Unlock()

	po.fallbackStart = time.Now()
	po.log.Info("pipeline reset")
}

// hasSink reports whether any route is currently attached (step 1).
func (po *ProgramOutput) hasSink() bool {
	po.busMu.Lock()
	defer po.busMu.Unlock()
	return po.bus != nil || po.videoSink != nil || po.audioSink != nil
}

func (po *ProgramOutput) routeVideo(f *frame.VideoFrame) {
	po.busMu.Lock()
	bus, fn := po.bus, po.videoSink
	po.busMu.Unlock()

	if bus != nil {
		bus.RouteVideo(f)
		return
	}
	if fn != nil {
		fn(f)
	}
}

func (po *ProgramOutput) routeAudio(f *frame.AudioFrame) {
	po.busMu.Lock()
	bus, fn := po.bus, po.audioSink
	po.busMu.Unlock()

	if bus != nil {
		bus.RouteAudio(f)
	} else if fn != nil {
		fn(f)
	} else {
		return
	}
	po.statsAtoms.audio.Add(1)
}

// nowUs returns the current wall-clock microsecond reading: the MasterClock
// if one is attached, otherwise a steady fallback anchored at construction
// or the last ResetPipeline call (spec §4.4.7).
func (po *ProgramOutput) nowUs() int64 {
	if po.clock != nil {
		return po.clock.NowUTCUs()
	}
	return time.Since(po.fallbackStart).Microseconds()
}

// scheduledToUs maps a CT pts to wall-clock microseconds, or returns ptsUs
// unchanged if no clock is attached (CT gating is skipped entirely in that
// mode, per spec §4.4.7).
func (po *ProgramOutput) scheduledToUs(ptsUs int64) int64 {
	if po.clock != nil {
		return po.clock.ScheduledToUTCUs(ptsUs)
	}
	return ptsUs
}

func (po *ProgramOutput) epochUs() int64 {
	if po.clock != nil {
		return po.clock.EpochUTCUs()
	}
	return 0
}

// snapshotInput reads the current input buffer pointer under inputMu (step
// 3 — hot-switch safety).
func (po *ProgramOutput) snapshotInput() *ring.Buffer {
	po.inputMu.Lock()
	defer po.inputMu.Unlock()
	return po.input
}

// sleepUntil implements the two-phase wait strategy shared by steps 2 and 8:
// coarse sleep while more than coarseThreshold remains, then yield-spin
// until within spinThreshold, then busy-spin. Returns false if the stop
// signal fired before the deadline.
func (po *ProgramOutput) sleepUntil(deadlineUs int64) bool {
	for {
		select {
		case <-po.stopCh:
			return false
		default:
		}

		remaining := time.Duration(deadlineUs-po.nowUs()) * time.Microsecond
		if remaining <= 0 {
			return true
		}

		switch {
		case remaining > coarseThreshold:
			sleep := remaining - coarseThreshold
			if sleep > coarseThreshold {
				sleep = coarseThreshold
			}
			select {
			case <-po.stopCh:
				return false
			case <-time.After(sleep):
			}
		case remaining > spinThreshold:
			runtime.Gosched()
		default:
			// busy-spin through the final stretch
		}
	}
}
