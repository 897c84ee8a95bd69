package output

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// fastEmissionFraction is the threshold from spec §4.4.3: an inter-emission
// gap below this fraction of frame_period_us counts as a "fast emission".
const fastEmissionFraction = 0.3

// violationWindow is the rolling window the probe measures fps over.
const violationWindow = time.Second

// violationFPSMultiple is how far over target fps the measured rate must be
// at window close to log a pacing-violation event.
const violationFPSMultiple = 2.0

// violationProbe is a diagnostic-only rolling window that watches for
// emissions arriving implausibly fast — a symptom of a pacing-gate bug, not
// a condition the loop reacts to. It never alters scheduling decisions.
//
// The "log this at most once" latch is built on rate.Sometimes rather than a
// hand-rolled bool-and-mutex, the way the rest of the pack reaches for
// golang.org/x/time/rate for exactly this "do X no more than every so
// often" shape.
type violationProbe struct {
	log *slog.Logger

	windowStart    time.Time
	lastObservedAt time.Time
	windowCount    int
	fastEmissions  int

	latch rate.Sometimes
}

func newViolationProbe(log *slog.Logger) *violationProbe {
	return &violationProbe{
		log:   log,
		latch: rate.Sometimes{First: 1}, // fire on the first violation, never again
	}
}

// observe is called once per video emission with the wall-clock timestamp
// of this emission and the current target frame period. now must not be
// before the previous call's now.
func (p *violationProbe) observe(now time.Time, framePeriodUs int64) {
	if p.windowStart.IsZero() {
		p.windowStart = now
		p.windowCount = 1
		return
	}

	interval := now.Sub(p.lastObserved())
	if framePeriodUs > 0 && interval < time.Duration(float64(framePeriodUs)*fastEmissionFraction)*time.Microsecond {
		p.fastEmissions++
	}
	p.windowCount++
	p.lastObservedAt = now

	elapsed := now.Sub(p.windowStart)
	if elapsed < violationWindow {
		return
	}

	targetFPS := 1e6 / float64(framePeriodUs)
	measuredFPS := float64(p.windowCount) / elapsed.Seconds()

	if measuredFPS > violationFPSMultiple*targetFPS {
		p.latch.Do(func() {
			p.log.Error("pacing violation: emission rate exceeds target",
				"tag", "INV-PACING-002",
				"measured_fps", measuredFPS,
				"target_fps", targetFPS,
				"fast_emissions", p.fastEmissions,
			)
		})
	}

	p.windowStart = now
	p.windowCount = 0
	p.fastEmissions = 0
}

func (p *violationProbe) lastObserved() time.Time {
	if p.lastObservedAt.IsZero() {
		return p.windowStart
	}
	return p.lastObservedAt
}
