package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/retrovue/air/internal/frame"
	"github.com/retrovue/air/internal/output"
)

func TestRegistry_CreateRejectsDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	po := output.New("ch1", nil, nil)

	_, ok := r.Create("ch1", po)
	assert.True(t, ok)

	_, ok = r.Create("ch1", output.New("ch1", nil, nil))
	assert.False(t, ok)
}

func TestRegistry_GetAndList(t *testing.T) {
	r := NewRegistry(nil)
	po := output.New("ch1", nil, nil)
	r.Create("ch1", po)

	e, ok := r.Get("ch1")
	assert.True(t, ok)
	assert.Same(t, po, e.Output)

	assert.Len(t, r.List(), 1)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RemoveStopsOutput(t *testing.T) {
	r := NewRegistry(nil)
	po := output.New("ch1", nil, nil)
	po.SetOutputBus(nopBus{})
	assert.NoError(t, po.Start())
	r.Create("ch1", po)

	r.Remove("ch1")

	_, ok := r.Get("ch1")
	assert.False(t, ok)

	assert.Len(t, r.List(), 0)
}

type nopBus struct{}

func (nopBus) RouteVideo(f *frame.VideoFrame) {}
func (nopBus) RouteAudio(f *frame.AudioFrame) {}
