// Package channel tracks the lifecycle of active playout channels, providing
// create/remove/list operations for whatever external ChannelManager drives
// the core (spec §6 "ChannelManager→Core control surface"). It is scaffolding
// around ProgramOutput, not part of the render-loop core itself.
package channel

import (
	"log/slog"
	"sync"
	"time"

	"github.com/retrovue/air/internal/output"
)

// Entry pairs a running ProgramOutput with the bookkeeping a registry needs
// to report on it.
type Entry struct {
	Name      string
	Output    *output.ProgramOutput
	StartedAt time.Time
}

// Registry manages the set of active channels by name.
type Registry struct {
	log     *slog.Logger
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates a new channel registry. If log is nil, slog.Default()
// is used.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log.With("component", "channel-registry"),
		entries: make(map[string]*Entry),
	}
}

// Create registers po under name. Returns the entry and true if created, or
// nil and false if a channel with this name is already registered.
func (r *Registry) Create(name string, po *output.ProgramOutput) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		r.log.Warn("channel already exists, rejecting duplicate", "channel", name)
		return nil, false
	}

	e := &Entry{
		Name:      name,
		Output:    po,
		StartedAt: time.Now(),
	}
	r.entries[name] = e
	r.log.Info("channel registered", "channel", name)
	return e, true
}

// Get returns the entry for name, or nil and false if no such channel is
// registered.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Remove stops and unregisters the channel named name, if present.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	e.Output.Stop()
	r.log.Info("channel removed", "channel", name)
}

// List returns all currently registered channel entries.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	return entries
}
