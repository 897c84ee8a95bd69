// Package frame defines the video and audio frame types that flow through
// the RetroVue Air playout core, from producer to ring buffer to
// ProgramOutput to OutputSink.
package frame

// PadAssetURI marks a video frame synthesized by the core itself (a black
// pad frame) rather than one that arrived from a producer.
const PadAssetURI = "pad://black"

// Canonical pad/locked audio format. Once ProgramOutput's audio format lock
// is engaged, every audio frame it routes — real or synthesized — carries
// these values.
const (
	CanonicalSampleRate = 48000
	CanonicalChannels   = 2
)

// Pad luma/chroma fill values for a black YUV420 frame (per ITU-R BT.601
// "studio swing" black, matching the spec's pad-frame definition).
const (
	PadLumaValue   byte = 16
	PadChromaValue byte = 128
)

// VideoFrame is a single decoded picture in YUV420 planar layout: a Y plane
// of Width*Height bytes, followed by a U plane and a V plane each of
// (Width/2)*(Height/2) bytes. It is produced once by a Producer, handed to a
// FrameRingBuffer, consumed once by ProgramOutput, and routed to an
// OutputSink — single-writer, single-reader, no shared mutation.
type VideoFrame struct {
	Width    int
	Height   int
	PTS      int64 // microseconds, continuity-time (CT)
	DTS      int64 // microseconds
	Duration float64 // seconds
	AssetURI string  // PadAssetURI for synthesized pad frames
	HasCT    bool    // true for every frame ProgramOutput emits
	Data     []byte  // Y, then U, then V, tightly packed
}

// IsPad reports whether this frame is a core-synthesized black pad frame.
func (f *VideoFrame) IsPad() bool {
	return f != nil && f.AssetURI == PadAssetURI
}

// YPlaneSize, UPlaneSize, and VPlaneSize return the byte length of each
// plane for this frame's dimensions, per the Y=Width*Height,
// U=V=(Width/2)*(Height/2) layout.
func (f *VideoFrame) YPlaneSize() int { return f.Width * f.Height }
func (f *VideoFrame) UPlaneSize() int { return (f.Width / 2) * (f.Height / 2) }
func (f *VideoFrame) VPlaneSize() int { return f.UPlaneSize() }

// YPlane, UPlane, and VPlane slice the packed Data buffer into its three
// planes. They assume Data is sized exactly to YPlaneSize()+UPlaneSize()+
// VPlaneSize(), as produced by NewBlackFrame and by well-formed producers.
func (f *VideoFrame) YPlane() []byte {
	return f.Data[:f.YPlaneSize()]
}

func (f *VideoFrame) UPlane() []byte {
	start := f.YPlaneSize()
	return f.Data[start : start+f.UPlaneSize()]
}

func (f *VideoFrame) VPlane() []byte {
	start := f.YPlaneSize() + f.UPlaneSize()
	return f.Data[start : start+f.VPlaneSize()]
}

// AudioFrame is a single interleaved signed 16-bit PCM audio frame. Data's
// length must equal NbSamples*Channels*2.
type AudioFrame struct {
	PTS        int64 // microseconds, continuity-time (CT)
	SampleRate int
	Channels   int
	NbSamples  int
	Data       []byte
}

// NewBlackFrame constructs a synthesized black YUV420 video frame of the
// given dimensions and duration, with asset URI PadAssetURI and HasCT set,
// per spec step 5 ("Case C").
func NewBlackFrame(width, height int, ptsUs int64, durationSec float64) *VideoFrame {
	f := &VideoFrame{
		Width:    width,
		Height:   height,
		PTS:      ptsUs,
		DTS:      ptsUs,
		Duration: durationSec,
		AssetURI: PadAssetURI,
		HasCT:    true,
	}
	ySize := f.YPlaneSize()
	uSize := f.UPlaneSize()
	vSize := f.VPlaneSize()
	f.Data = make([]byte, ySize+uSize+vSize)
	for i := 0; i < ySize; i++ {
		f.Data[i] = PadLumaValue
	}
	for i := ySize; i < ySize+uSize+vSize; i++ {
		f.Data[i] = PadChromaValue
	}
	return f
}

// NewSilenceFrame constructs a zero-filled canonical-format PCM audio frame
// of nbSamples samples per channel, per spec §4.4.1 step 7.
func NewSilenceFrame(ptsUs int64, nbSamples int) *AudioFrame {
	return &AudioFrame{
		PTS:        ptsUs,
		SampleRate: CanonicalSampleRate,
		Channels:   CanonicalChannels,
		NbSamples:  nbSamples,
		Data:       make([]byte, nbSamples*CanonicalChannels*2),
	}
}
