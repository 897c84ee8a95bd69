package main

import (
	"log/slog"

	"github.com/retrovue/air/internal/frame"
)

// loggingSink is a demo OutputSink that counts routed frames and logs a line
// per routed frame, with the running count, at debug level, standing in for a real
// encoder/transmitter. It satisfies sink.Bus.
type loggingSink struct {
	log     *slog.Logger
	channel string

	videoCount int64
	audioCount int64
}

func newLoggingSink(log *slog.Logger, channel string) *loggingSink {
	return &loggingSink{
		log:     log.With("component", "demo-sink", "channel", channel),
		channel: channel,
	}
}

func (s *loggingSink) RouteVideo(f *frame.VideoFrame) {
	s.videoCount++
	s.log.Debug("video frame routed", "pts", f.PTS, "pad", f.IsPad(), "count", s.videoCount)
}

func (s *loggingSink) RouteAudio(f *frame.AudioFrame) {
	s.audioCount++
	s.log.Debug("audio frame routed", "pts", f.PTS, "samples", f.NbSamples, "count", s.audioCount)
}
