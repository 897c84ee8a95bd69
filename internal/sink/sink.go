// Package sink defines the OutputSink boundary: the callback bundle that
// ProgramOutput routes frames to. The sink itself — encoding, muxing,
// transmission — is not part of the core; only the contract lives here.
package sink

import "github.com/retrovue/air/internal/frame"

// Bus receives both the video and audio routes. If a Bus is installed it
// supersedes the individual VideoRouteFunc/AudioRouteFunc callbacks, mirroring
// the teacher's single fan-out hub (distribution.Relay) pattern: one place
// that receives everything, rather than two independently-wired callbacks.
type Bus interface {
	RouteVideo(f *frame.VideoFrame)
	RouteAudio(f *frame.AudioFrame)
}

// VideoRouteFunc and AudioRouteFunc are the per-stream callback shapes used
// when no Bus is installed. Both must be non-blocking and must not panic —
// per spec §4.3/§4.4.7, sinks are required to be non-throwing and
// non-blocking; a violation is undefined behavior on the sink's side, not
// something the core guards against.
type VideoRouteFunc func(f *frame.VideoFrame)
type AudioRouteFunc func(f *frame.AudioFrame)
