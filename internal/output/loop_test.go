package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/retrovue/air/internal/clock"
	"github.com/retrovue/air/internal/frame"
	"github.com/retrovue/air/internal/ring"
)

// TestSleepUntil_ConvergesWithinDeadline is the P2 (pacing mean-interval
// bound) building block: sleepUntil is the primitive both the pacing gate
// (step 2) and the CT gate (step 8) rely on to not return before its
// deadline. Bounded to a few milliseconds of delta so the property
// test stays fast; the two-phase wait strategy's coarse/yield/spin thresholds
// are all well under that range.
func TestSleepUntil_ConvergesWithinDeadline(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deltaUs := rapid.Int64Range(0, 5000).Draw(t, "deltaUs")

		po := New("sleep-prop", nil, discardLoggerForTest())
		start := po.nowUs()
		deadline := start + deltaUs

		ok := po.sleepUntil(deadline)

		assert.True(t, ok, "sleepUntil must not report cancellation when stopCh was never closed")
		assert.GreaterOrEqual(t, po.nowUs(), deadline, "I-PACING-BOUND: sleepUntil must not return before its deadline")
	})
}

// TestDrainDueAudio_OnlyReleasesDueFrames_Property is P5 (CT gate on audio):
// for any CT epoch, any "now", and any non-decreasing sequence of audio PTS
// values queued ahead of it, drainDueAudio must release exactly the frames
// whose scheduled wall-clock time has arrived — as a contiguous FIFO prefix,
// since the lane is drained in order — and leave every future frame queued.
func TestDrainDueAudio_OnlyReleasesDueFrames_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		epochUs := rapid.Int64Range(0, 1_000_000).Draw(t, "epochUs")
		nowUs := rapid.Int64Range(0, 300_000).Draw(t, "nowUs")
		clk := clock.NewFakeClock(epochUs+nowUs, epochUs)

		n := rapid.IntRange(0, 8).Draw(t, "n")
		ptsValues := make([]int64, n)
		cursor := int64(0)
		for i := 0; i < n; i++ {
			cursor += rapid.Int64Range(0, 50_000).Draw(t, "ptsDelta")
			ptsValues[i] = cursor
		}

		buf := ring.New(16, 16)
		for _, pts := range ptsValues {
			buf.PushAudio(&frame.AudioFrame{
				PTS:        pts,
				SampleRate: frame.CanonicalSampleRate,
				Channels:   frame.CanonicalChannels,
				NbSamples:  10,
			})
		}

		bus := &testBus{}
		po := New("drain-prop", clk, discardLoggerForTest())
		po.SetInputBuffer(buf)
		po.SetOutputBus(bus)

		absoluteNow := epochUs + nowUs
		po.drainDueAudio(absoluteNow)

		routed := bus.audioSnapshot()

		wantReleased := 0
		for _, pts := range ptsValues {
			if epochUs+pts > absoluteNow {
				break
			}
			wantReleased++
		}

		assert.Len(t, routed, wantReleased, "drainDueAudio must release exactly the due prefix")
		for i, f := range routed {
			assert.Equal(t, ptsValues[i], f.PTS)
			assert.LessOrEqual(t, epochUs+f.PTS, absoluteNow, "I-CT-GATE: a released frame's CT must already have arrived")
		}
		for _, pts := range ptsValues[wantReleased:] {
			assert.Greater(t, epochUs+pts, absoluteNow, "a frame left queued must not yet be due")
		}
	})
}
