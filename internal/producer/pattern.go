// Package producer contains demo-only content producers for cmd/air. None of
// this is part of the playout core; ProgramOutput never imports it. It exists
// so the demo channel runner has something to push frames with.
package producer

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/retrovue/air/internal/frame"
	"github.com/retrovue/air/internal/ring"
)

// Pattern-generator constants. 1280x720 matches the pad frame fallback
// resolution in internal/output, so a hot switch between live pattern
// content and pad never changes apparent frame size.
const (
	patternWidth    = 1280
	patternHeight   = 720
	patternFPS      = 30
	patternFrameUs  = int64(time.Second / patternFPS / time.Microsecond)
	toneFrequencyHz = 1000.0
	toneAmplitude   = 0.25
)

// PatternGenerator pushes a synthetic color-bar video signal and a 1kHz sine
// tone into a ring.Buffer at patternFPS, the same
// "advance by frame_duration, sleep the remainder" idiom erparts-go-avebi's
// Player uses to pace decoded frames against a video's native frame rate.
type PatternGenerator struct {
	log  *slog.Logger
	buf  *ring.Buffer
	clk  clockSource
	bars [][3]byte

	frameIndex  int64
	samplePhase float64
}

// clockSource is the minimal subset of clock.MasterClock the generator
// needs; kept as an unexported interface so this package doesn't need to
// import internal/clock just to call one method.
type clockSource interface {
	NowUTCUs() int64
	EpochUTCUs() int64
}

// New creates a pattern generator that writes into buf, using clk to derive
// continuity-time PTS values for the frames it emits.
func New(buf *ring.Buffer, clk clockSource, log *slog.Logger) *PatternGenerator {
	if log == nil {
		log = slog.Default()
	}
	return &PatternGenerator{
		log:  log.With("component", "pattern-generator"),
		buf:  buf,
		clk:  clk,
		bars: colorBars(),
	}
}

// Run pushes frames at patternFPS until ctx is canceled.
func (g *PatternGenerator) Run(ctx context.Context) error {
	g.log.Info("pattern generator starting", "width", patternWidth, "height", patternHeight, "fps", patternFPS)
	ticker := time.NewTicker(time.Duration(patternFrameUs) * time.Microsecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.log.Info("pattern generator stopping")
			return ctx.Err()
		case <-ticker.C:
			pts := g.clk.NowUTCUs() - g.clk.EpochUTCUs()
			g.buf.PushVideo(g.nextVideoFrame(pts))
			g.buf.PushAudio(g.nextAudioFrame(pts))
			g.frameIndex++
		}
	}
}

func (g *PatternGenerator) nextVideoFrame(ptsUs int64) *frame.VideoFrame {
	f := &frame.VideoFrame{
		Width:    patternWidth,
		Height:   patternHeight,
		PTS:      ptsUs,
		DTS:      ptsUs,
		Duration: float64(patternFrameUs) / 1e6,
		HasCT:    true,
	}
	f.Data = make([]byte, f.YPlaneSize()+f.UPlaneSize()+f.VPlaneSize())
	fillColorBars(f, g.bars, int(g.frameIndex))
	return f
}

func (g *PatternGenerator) nextAudioFrame(ptsUs int64) *frame.AudioFrame {
	nbSamples := frame.CanonicalSampleRate / patternFPS
	af := &frame.AudioFrame{
		PTS:        ptsUs,
		SampleRate: frame.CanonicalSampleRate,
		Channels:   frame.CanonicalChannels,
		NbSamples:  nbSamples,
		Data:       make([]byte, nbSamples*frame.CanonicalChannels*2),
	}
	fillSineTone(af, &g.samplePhase)
	return af
}

// colorBars returns the eight classic SMPTE-ish bar colors as Y/U/V triplets.
func colorBars() [][3]byte {
	return [][3]byte{
		{235, 128, 128}, // white
		{210, 16, 146},  // yellow
		{170, 166, 16},  // cyan
		{145, 54, 34},   // green
		{106, 202, 222}, // magenta
		{81, 90, 240},   // red
		{41, 240, 110},  // blue
		{16, 128, 128},  // black
	}
}

// fillColorBars paints eight vertical bars into f.Data. The pattern is the
// same on every frame: frameIndex is accepted but does not change it.
func fillColorBars(f *frame.VideoFrame, bars [][3]byte, frameIndex int) {
	barCount := len(bars)
	barWidth := f.Width / barCount
	if barWidth == 0 {
		barWidth = 1
	}

	y := f.YPlane()
	for row := 0; row < f.Height; row++ {
		for col := 0; col < f.Width; col++ {
			bar := col / barWidth
			if bar >= barCount {
				bar = barCount - 1
			}
			y[row*f.Width+col] = bars[bar][0]
		}
	}

	cw, ch := f.Width/2, f.Height/2
	u := f.UPlane()
	v := f.VPlane()
	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			bar := (col * 2) / barWidth
			if bar >= barCount {
				bar = barCount - 1
			}
			u[row*cw+col] = bars[bar][1]
			v[row*cw+col] = bars[bar][2]
		}
	}
}

// fillSineTone writes a continuous-phase 1kHz sine wave into af.Data as
// interleaved signed 16-bit PCM, carrying phase forward across calls via
// phase so consecutive frames don't click at their boundary.
func fillSineTone(af *frame.AudioFrame, phase *float64) {
	step := 2 * math.Pi * toneFrequencyHz / float64(af.SampleRate)
	for i := 0; i < af.NbSamples; i++ {
		sample := int16(toneAmplitude * math.MaxInt16 * math.Sin(*phase))
		for ch := 0; ch < af.Channels; ch++ {
			off := (i*af.Channels + ch) * 2
			af.Data[off] = byte(sample)
			af.Data[off+1] = byte(sample >> 8)
		}
		*phase += step
		if *phase > 2*math.Pi {
			*phase -= 2 * math.Pi
		}
	}
}
