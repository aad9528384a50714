// Package channel implements the channel registry (spec.md §4.4): a
// mapping from channel name to a channel descriptor, each bound 1:1
// to a stream named "chat/<name>" (spec.md §3 "Channel"). Grounded on
// original_source/collection/channels.py's loadChannels/addChannel/
// addTempChannel/addHiddenChannel/removeChannel semantics.
package channel

import (
	"sync"

	"bancho/internal/streamreg"
)

// Descriptor is a channel's metadata (spec.md §3 "Channel").
type Descriptor struct {
	Name        string
	Description string
	PublicRead  bool
	PublicWrite bool
	Temp        bool   // auto-delete when last subscriber leaves
	Hidden      bool   // omit from channel listing
	Moderated   bool
}

// StreamName returns the stream bound to this channel, per spec.md §3
// ("Derived: bound stream chat/<name>").
func (d Descriptor) StreamName() string {
	return "chat/" + d.Name
}

// Registry is the channel name -> Descriptor map.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Descriptor
	streams  *streamreg.Registry
}

func New(streams *streamreg.Registry) *Registry {
	return &Registry{channels: make(map[string]Descriptor), streams: streams}
}

// Load replaces the registry's contents with descs, each bound to its
// chat/<name> stream, matching channels.py's loadChannels (startup
// load from the user store).
func (r *Registry) Load(descs []Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		r.channels[d.Name] = d
		r.streams.Add(d.StreamName())
	}
}

// Add registers a channel and binds its stream (channels.py addChannel).
func (r *Registry) Add(d Descriptor) {
	r.streams.Add(d.StreamName())
	r.mu.Lock()
	r.channels[d.Name] = d
	r.mu.Unlock()
}

// AddTemp adds a temp+hidden channel (channels.py addTempChannel),
// used for virtual `#spect_<hostUserId>` / `#multi_<matchId>` channels.
func (r *Registry) AddTemp(name, description string) {
	r.Add(Descriptor{Name: name, Description: description, Temp: true, Hidden: true, PublicRead: true, PublicWrite: true})
}

// AddHidden adds a hidden (but not temp) channel (channels.py
// addHiddenChannel).
func (r *Registry) AddHidden(name, description string, publicRead, publicWrite bool) {
	r.Add(Descriptor{Name: name, Description: description, Hidden: true, PublicRead: publicRead, PublicWrite: publicWrite})
}

// Get returns name's descriptor.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.channels[name]
	return d, ok
}

// Exists reports whether name is a registered channel.
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// All returns every non-hidden channel, for the channel-info listing
// sent at login (spec.md §4.8 step 8).
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.channels))
	for _, d := range r.channels {
		if !d.Hidden {
			out = append(out, d)
		}
	}
	return out
}

// Remove kicks every subscriber (via kick, the chat-part path with
// kick=true) then disposes and removes the bound stream, matching
// channels.py removeChannel's ordering: kick-then-dispose-then-remove.
func (r *Registry) Remove(name string, kick func(sub streamreg.Subscriber)) bool {
	d, ok := r.Get(name)
	if !ok {
		return false
	}
	r.streams.Dispose(d.StreamName(), kick)
	r.streams.Remove(d.StreamName(), nil)
	r.mu.Lock()
	delete(r.channels, name)
	r.mu.Unlock()
	return true
}

// RemoveIfEmptyTemp removes name if it is a temp channel whose bound
// stream now has zero subscribers, matching chatHelper.py part's
// "temp channel with zero subscribers is removed entirely" rule.
// Reports whether it removed the channel.
func (r *Registry) RemoveIfEmptyTemp(name string) bool {
	d, ok := r.Get(name)
	if !ok || !d.Temp {
		return false
	}
	if r.streams.Count(d.StreamName()) > 0 {
		return false
	}
	r.mu.Lock()
	delete(r.channels, name)
	r.mu.Unlock()
	r.streams.Remove(d.StreamName(), nil)
	return true
}

// SetModerated flips name's moderated flag (fokabotCommands.py's
// "!moderated" command), reporting whether the channel existed.
func (r *Registry) SetModerated(name string, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.channels[name]
	if !ok {
		return false
	}
	d.Moderated = on
	r.channels[name] = d
	return true
}
