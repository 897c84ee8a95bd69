package output

import (
	"math"
	"time"

	"github.com/retrovue/air/internal/frame"
	"github.com/retrovue/air/internal/ring"
)

// run is the render loop's goroutine entrypoint. It executes the
// thirteen-step cycle of spec §4.4.1 once per iteration until Stop is
// called, then closes doneCh.
func (po *ProgramOutput) run() {
	defer close(po.doneCh)

	for {
		select {
		case <-po.stopCh:
			return
		default:
		}

		// Step 1: sink gate.
		if !po.hasSink() {
			if !po.waitOrStop(sinkGateSleep) {
				return
			}
			continue
		}

		// Step 2: pacing gate.
		now := po.nowUs()
		if !po.pacing.haveLastEmission {
			po.pacing.lastEmissionUs = now
			po.pacing.haveLastEmission = true
		}
		nextDeadline := po.pacing.lastEmissionUs + po.pacing.framePeriodUs
		if !po.sleepUntil(nextDeadline) {
			return
		}
		now = po.nowUs()

		// Step 3: buffer snapshot.
		buf := po.snapshotInput()

		// Step 4: content-before-pad gate. firstRealFrameEmitted is also
		// written by resetSegment from whatever goroutine calls
		// SetInputBuffer, so it's read under segmentMu here rather than as a
		// plain field.
		po.segmentMu.Lock()
		firstRealFrameEmitted := po.firstRealFrameEmitted
		po.segmentMu.Unlock()
		if !firstRealFrameEmitted && !po.noContentSegment.Load() {
			// Real content may still be popped and emitted; only freeze and
			// pad are held back until it has been.
			if buf != nil {
				if realFrame, ok := buf.PopVideo(); ok {
					po.handleRealFrame(realFrame, now)
					continue
				}
			}
			po.pacing.lastEmissionUs = now
			continue
		}

		if buf == nil {
			// No input attached at all: behave exactly like an empty
			// buffer so freeze/pad logic still guarantees I-OUTPUT-NEVER-STALLS.
			po.emitFreezeOrPad(now, padReasonBufferTrulyEmpty)
			continue
		}

		// Step 5: pop attempt.
		if realFrame, ok := buf.PopVideo(); ok {
			po.handleRealFrame(realFrame, now)
			continue
		}

		po.emitFreezeOrPad(now, po.classifyPadReason(buf))
	}
}

// waitOrStop sleeps for d or until stop fires, whichever comes first.
// Returns false if stop fired.
func (po *ProgramOutput) waitOrStop(d time.Duration) bool {
	select {
	case <-po.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// classifyPadReason implements spec §4.4.1 step 5's diagnostic
// classification. Buffer's PopVideo only ever fails because the lane is
// actually empty, so this always returns BUFFER_TRULY_EMPTY;
// padReasonUnknown is defined but never returned here.
func (po *ProgramOutput) classifyPadReason(buf *ring.Buffer) padReason {
	return padReasonBufferTrulyEmpty
}

// handleRealFrame implements Case A of step 5: a real frame was popped.
func (po *ProgramOutput) handleRealFrame(f *frame.VideoFrame, now int64) {
	if !po.pad.initialized {
		po.pad.width = f.Width
		po.pad.height = f.Height
		if f.Duration > 0 {
			po.pad.durationUs = int64(f.Duration * 1e6)
			po.pacing.framePeriodUs = po.pad.durationUs
		}
		po.pad.initialized = true
	}

	if po.pacing.inFreezeMode {
		po.pacing.inFreezeMode = false
		po.log.Info("exiting freeze mode, real frame resumed",
			"freeze_streak", po.pacing.freezeStreak)
		po.pacing.freezeStreak = 0
		po.statsAtoms.freezeStreak.Store(0)
	}

	po.pacing.lastEmittedFrame = f
	po.pacing.hasLastFrame = true

	po.emitVideo(f, now, false)
	po.statsAtoms.real.Add(1)
}

// emitFreezeOrPad implements Case B and Case C of step 5: the buffer popped
// nothing this iteration.
func (po *ProgramOutput) emitFreezeOrPad(now int64, reason padReason) {
	if po.pacing.hasLastFrame {
		if !po.pacing.inFreezeMode {
			po.pacing.inFreezeMode = true
			po.pacing.freezeStartUs = now
			po.log.Warn("producer starvation detected, entering freeze",
				"tag", "pacing-lateness")
		}

		if now-po.pacing.freezeStartUs <= freezeWindowUs {
			po.pacing.freezeStreak++
			po.statsAtoms.freezeStreak.Store(int32(po.pacing.freezeStreak))
			po.emitFreezeFrame(po.pacing.lastEmittedFrame, now)
			return
		}
	}

	po.emitPadFrame(now, reason)
}

// emitFreezeFrame re-emits the cached last real frame (Case B).
func (po *ProgramOutput) emitFreezeFrame(f *frame.VideoFrame, now int64) {
	po.emitVideo(f, now, false)
	po.statsAtoms.freeze.Add(1)
}

// emitPadFrame synthesizes and emits a black pad frame, plus silence audio
// if the audio format is locked and the audio lane is empty (Case C,
// spec §4.4.1 steps 5 & 7).
func (po *ProgramOutput) emitPadFrame(now int64, reason padReason) {
	width, height := po.pad.width, po.pad.height
	if width == 0 || height == 0 {
		// No real frame has ever been learned; fall back to a sane default
		// so the loop can still satisfy I-OUTPUT-NEVER-STALLS from the very
		// first iteration if a producer never shows up at all.
		width, height = 1280, 720
	}
	durationUs := po.pad.durationUs
	if durationUs == 0 {
		durationUs = defaultFramePeriodUs
	}

	var padPTS int64
	if po.clock != nil {
		padPTS = now - po.epochUs()
	} else {
		// Emergency fallback per spec §4.4.1 step 5: only reached when the
		// clock itself is absent, never to "optimize" the common path.
		padPTS = po.lastPTS.Load() + durationUs
	}

	pf := frame.NewBlackFrame(width, height, padPTS, float64(durationUs)/1e6)
	po.log.Debug("emitting pad frame", "reason", reason.String(), "pts", padPTS)

	buf := po.snapshotInput()
	if buf != nil && po.pad.audioFormatLocked && buf.IsAudioEmpty() {
		po.emitSilenceAudio(now)
	}

	po.emitVideo(pf, now, true)
	po.statsAtoms.pad.Add(1)
}

// emitSilenceAudio synthesizes one canonical-format silent audio frame
// sized to stay phase-accurate with video over time, per spec §4.4.1 step 7.
func (po *ProgramOutput) emitSilenceAudio(now int64) {
	fps := 1e6 / float64(po.pacing.framePeriodUs)
	exact := float64(frame.CanonicalSampleRate)/fps + po.pad.audioSampleRemainder
	nbSamples := int(math.Floor(exact))
	po.pad.audioSampleRemainder = exact - float64(nbSamples)

	var pts int64
	if po.clock != nil {
		pts = now - po.epochUs()
	} else {
		pts = po.lastPTS.Load()
	}

	af := frame.NewSilenceFrame(pts, nbSamples)
	po.routeAudio(af)
}

// emitVideo performs steps 6 and 8–13 of §4.4.1 for a chosen video frame
// (real, freeze, or pad): drain due audio before the CT wait, wait for the
// frame's own CT, route it, latch first-frame/successor observability, drain
// audio again, then update pacing stats.
func (po *ProgramOutput) emitVideo(f *frame.VideoFrame, now int64, isPad bool) {
	po.drainDueAudio(now)

	if po.clock != nil {
		deadline := po.scheduledToUs(f.PTS)
		preWaitNow := now // sampled before the CT wait below runs or converges
		if !po.sleepUntil(deadline - ctGateLeadUs) {
			return
		}
		po.spinUntil(deadline - 200)
		now = po.nowUs()

		if preWaitNow > deadline {
			// Late frames are never dropped (spec §4.4.2); statistics only.
			// preWaitNow, not the post-wait now, is what tells us the frame
			// was already past its deadline on entry — by construction the
			// two-phase wait converges now to just under deadline on the
			// normal, on-time path.
			po.statsAtoms.late.Add(1)
		}
	}

	po.routeVideo(f)
	po.lastPTS.Store(f.PTS)

	if !isPad {
		po.segmentMu.Lock()
		if !po.firstRealFrameEmitted {
			po.firstRealFrameEmitted = true
		}
		if !po.firstPTSSetForSeg {
			po.firstPTSSetForSeg = true
			po.firstPTS.Store(f.PTS)
		}
		po.segmentMu.Unlock()

		po.fireSuccessorObserver()
	}

	po.drainDueAudio(po.nowUs())

	po.violations.observe(time.UnixMicro(po.nowUs()), po.pacing.framePeriodUs)
	po.pacing.lastEmissionUs = po.nowUs()
}

// spinUntil busy-waits (cancellable) until deadlineUs, for the final,
// sub-200us stretch of a CT wait.
func (po *ProgramOutput) spinUntil(deadlineUs int64) {
	for po.nowUs() < deadlineUs {
		select {
		case <-po.stopCh:
			return
		default:
		}
	}
}

// drainDueAudio implements steps 6/12: repeatedly peek the audio lane,
// popping and routing any frame whose CT has arrived, stopping at the first
// future frame or an empty lane. With no clock attached, CT gating is
// skipped and audio is released immediately on pop (spec §4.4.7).
func (po *ProgramOutput) drainDueAudio(now int64) {
	buf := po.snapshotInput()
	if buf == nil {
		return
	}
	for {
		af := buf.PeekAudio()
		if af == nil {
			return
		}
		if po.clock != nil && po.scheduledToUs(af.PTS) > now {
			return
		}
		popped, ok := buf.PopAudio()
		if !ok {
			return
		}
		po.routeAudio(popped)
	}
}

// fireSuccessorObserver invokes the registered successor callback at most
// once per segment (spec §4.4.1 step 11 / §6). Per spec.md's explicit
// locking discipline, the callback is invoked with successorMu held — callers
// are required not to block in it, precisely so this is safe.
func (po *ProgramOutput) fireSuccessorObserver() {
	po.successorMu.Lock()
	defer po.successorMu.Unlock()

	if po.successorFiredForSeg {
		return
	}
	po.successorFiredForSeg = true
	if po.successor != nil {
		po.successor()
	}
}
