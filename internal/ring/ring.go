// Package ring implements FrameRingBuffer: the bounded, two-lane
// producer-to-consumer queue that decouples a Producer from ProgramOutput.
package ring

import (
	"sync"

	"github.com/retrovue/air/internal/frame"
)

// Default lane capacities, sized the way the teacher pack sizes its decoder
// output channels: a couple of seconds of real-time buffering so producer
// jitter doesn't immediately starve the render loop.
const (
	DefaultVideoLaneCapacity = 64  // ~2s at 30fps
	DefaultAudioLaneCapacity = 256 // ~5.5s of 1024-sample frames at 48kHz
)

// videoLane and audioLane are plain slice-backed FIFOs guarded by their own
// mutex. Each is deliberately a concrete, non-generic type: video and audio
// frames have distinct element types and distinct lane semantics (only video
// carries the content-before-pad gate, for instance), so a shared generic
// lane type would buy nothing but indirection.
type videoLane struct {
	mu       sync.Mutex
	items    []*frame.VideoFrame
	capacity int
}

type audioLane struct {
	mu       sync.Mutex
	items    []*frame.AudioFrame
	capacity int
}

// Buffer is the FrameRingBuffer: two independent FIFOs, one per lane, with
// no ordering guarantee across lanes. Safe for one writer and one reader per
// lane to operate concurrently without external locking; a single Buffer may
// have its video lane written by one goroutine while its audio lane is
// written by another (or the same producer goroutine serially), and all
// lanes read by the render loop.
type Buffer struct {
	video videoLane
	audio audioLane
}

// New creates a Buffer with the given per-lane capacities. A non-positive
// capacity falls back to the package default for that lane.
func New(videoCapacity, audioCapacity int) *Buffer {
	if videoCapacity <= 0 {
		videoCapacity = DefaultVideoLaneCapacity
	}
	if audioCapacity <= 0 {
		audioCapacity = DefaultAudioLaneCapacity
	}
	return &Buffer{
		video: videoLane{capacity: videoCapacity},
		audio: audioLane{capacity: audioCapacity},
	}
}

// PushVideo appends f to the video lane. Returns false without blocking if
// the lane is at capacity — a full buffer is the producer's concern, not an
// error condition the core reports.
func (b *Buffer) PushVideo(f *frame.VideoFrame) bool {
	b.video.mu.Lock()
	defer b.video.mu.Unlock()
	if len(b.video.items) >= b.video.capacity {
		return false
	}
	b.video.items = append(b.video.items, f)
	return true
}

// PopVideo removes and returns the oldest video frame. Returns (nil, false)
// if the lane is empty.
func (b *Buffer) PopVideo() (*frame.VideoFrame, bool) {
	b.video.mu.Lock()
	defer b.video.mu.Unlock()
	if len(b.video.items) == 0 {
		return nil, false
	}
	f := b.video.items[0]
	b.video.items[0] = nil
	b.video.items = b.video.items[1:]
	return f, true
}

// PeekVideo returns the oldest video frame without removing it, or nil if
// the lane is empty. The returned pointer is only valid until the next
// mutation of the video lane.
func (b *Buffer) PeekVideo() *frame.VideoFrame {
	b.video.mu.Lock()
	defer b.video.mu.Unlock()
	if len(b.video.items) == 0 {
		return nil
	}
	return b.video.items[0]
}

// SizeVideo returns the current number of buffered video frames.
func (b *Buffer) SizeVideo() int {
	b.video.mu.Lock()
	defer b.video.mu.Unlock()
	return len(b.video.items)
}

// PushAudio appends f to the audio lane. Returns false without blocking if
// the lane is at capacity.
func (b *Buffer) PushAudio(f *frame.AudioFrame) bool {
	b.audio.mu.Lock()
	defer b.audio.mu.Unlock()
	if len(b.audio.items) >= b.audio.capacity {
		return false
	}
	b.audio.items = append(b.audio.items, f)
	return true
}

// PopAudio removes and returns the oldest audio frame. Returns (nil, false)
// if the lane is empty.
func (b *Buffer) PopAudio() (*frame.AudioFrame, bool) {
	b.audio.mu.Lock()
	defer b.audio.mu.Unlock()
	if len(b.audio.items) == 0 {
		return nil, false
	}
	f := b.audio.items[0]
	b.audio.items[0] = nil
	b.audio.items = b.audio.items[1:]
	return f, true
}

// PeekAudio returns the oldest audio frame without removing it, or nil if
// the lane is empty. The returned pointer is only valid until the next
// mutation of the audio lane.
func (b *Buffer) PeekAudio() *frame.AudioFrame {
	b.audio.mu.Lock()
	defer b.audio.mu.Unlock()
	if len(b.audio.items) == 0 {
		return nil
	}
	return b.audio.items[0]
}

// SizeAudio returns the current number of buffered audio frames.
func (b *Buffer) SizeAudio() int {
	b.audio.mu.Lock()
	defer b.audio.mu.Unlock()
	return len(b.audio.items)
}

// IsAudioEmpty reports whether the audio lane currently has no buffered
// frames.
func (b *Buffer) IsAudioEmpty() bool {
	return b.SizeAudio() == 0
}

// Clear drops all frames on both lanes.
func (b *Buffer) Clear() {
	b.video.mu.Lock()
	b.video.items = nil
	b.video.mu.Unlock()

	b.audio.mu.Lock()
	b.audio.items = nil
	b.audio.mu.Unlock()
}
