package output

import "github.com/retrovue/air/internal/frame"

// defaultFramePeriodUs is the pacing target before the first real frame is
// learned: 33,333us ≈ 30fps.
const defaultFramePeriodUs = 33333

// freezeWindowUs is the maximum span a starvation is bridged by re-emitting
// the last real frame before the loop falls back to pad generation.
const freezeWindowUs = 250000

// pacingState is owned exclusively by the render goroutine; nothing outside
// it touches these fields, per spec §5.
type pacingState struct {
	lastEmissionUs   int64
	framePeriodUs    int64
	inFreezeMode     bool
	freezeStartUs    int64
	freezeStreak     int
	lastEmittedFrame *frame.VideoFrame
	hasLastFrame     bool
	haveLastEmission bool // false until the first loop iteration records one
}

func newPacingState() pacingState {
	return pacingState{framePeriodUs: defaultFramePeriodUs}
}

// padState is owned exclusively by the render goroutine. audioFormatLocked
// is the one field that, once true, never reverts for the life of the
// channel session (spec §4.4.5) — it is set once, from Start, before the
// render goroutine is spawned, so no race exists despite the "owned
// exclusively" rule applying to the rest of this struct.
type padState struct {
	initialized          bool
	width                int
	height               int
	durationUs           int64
	audioFormatLocked    bool
	audioSampleRemainder float64
}

// padReason classifies why a pad frame was synthesized, for diagnostics
// only (spec §4.4.1 step 5).
type padReason int

const (
	padReasonBufferTrulyEmpty padReason = iota
	padReasonUnknown
)

func (r padReason) String() string {
	switch r {
	case padReasonBufferTrulyEmpty:
		return "BUFFER_TRULY_EMPTY"
	default:
		return "UNKNOWN"
	}
}
