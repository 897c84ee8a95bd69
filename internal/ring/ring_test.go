package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/retrovue/air/internal/frame"
)

func TestBuffer_VideoFIFOOrder(t *testing.T) {
	b := New(4, 4)

	for i := int64(0); i < 3; i++ {
		ok := b.PushVideo(&frame.VideoFrame{PTS: i})
		assert.True(t, ok)
	}

	for i := int64(0); i < 3; i++ {
		f, ok := b.PopVideo()
		assert.True(t, ok)
		assert.Equal(t, i, f.PTS)
	}

	_, ok := b.PopVideo()
	assert.False(t, ok)
}

func TestBuffer_VideoCapacityRejectsOverflow(t *testing.T) {
	b := New(2, 2)

	assert.True(t, b.PushVideo(&frame.VideoFrame{PTS: 1}))
	assert.True(t, b.PushVideo(&frame.VideoFrame{PTS: 2}))
	assert.False(t, b.PushVideo(&frame.VideoFrame{PTS: 3}))

	assert.Equal(t, 2, b.SizeVideo())
}

func TestBuffer_AudioPeekDoesNotConsume(t *testing.T) {
	b := New(2, 2)
	b.PushAudio(&frame.AudioFrame{PTS: 42})

	peeked := b.PeekAudio()
	assert.NotNil(t, peeked)
	assert.Equal(t, int64(42), peeked.PTS)
	assert.Equal(t, 1, b.SizeAudio())
	assert.False(t, b.IsAudioEmpty())

	popped, ok := b.PopAudio()
	assert.True(t, ok)
	assert.Equal(t, int64(42), popped.PTS)
	assert.True(t, b.IsAudioEmpty())
}

func TestBuffer_ClearDropsBothLanes(t *testing.T) {
	b := New(4, 4)
	b.PushVideo(&frame.VideoFrame{PTS: 1})
	b.PushAudio(&frame.AudioFrame{PTS: 1})

	b.Clear()

	assert.Equal(t, 0, b.SizeVideo())
	assert.Equal(t, 0, b.SizeAudio())
	assert.Nil(t, b.PeekVideo())
	assert.Nil(t, b.PeekAudio())
}

// TestBuffer_VideoFIFOOrder_Property checks that for any sequence of pushes
// within capacity, pops return frames in the same order they were pushed —
// the defining property of a FIFO ring buffer.
func TestBuffer_VideoFIFOOrder_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 32).Draw(t, "capacity")
		count := rapid.IntRange(0, capacity).Draw(t, "count")

		b := New(capacity, capacity)
		pts := make([]int64, count)
		for i := 0; i < count; i++ {
			pts[i] = rapid.Int64().Draw(t, "pts")
			assert.True(t, b.PushVideo(&frame.VideoFrame{PTS: pts[i]}))
		}

		for i := 0; i < count; i++ {
			f, ok := b.PopVideo()
			assert.True(t, ok)
			assert.Equal(t, pts[i], f.PTS)
		}
		_, ok := b.PopVideo()
		assert.False(t, ok)
	})
}
