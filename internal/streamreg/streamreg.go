// Package streamreg implements the stream registry (spec.md §4.2): a
// mapping from stream name to an ordered set of subscribed session
// tokens, with broadcast fan-out. It is the primitive underlying
// channels, spectator groups, and multiplayer matches.
//
// The broadcast implementation follows the teacher's snapshot-under-
// RLock-then-release-before-I/O pattern (bken's room.go Broadcast):
// the subscriber list is copied out while holding the read lock, then
// the lock is released before any Enqueue call runs, so a slow or
// blocked subscriber never holds up the registry.
package streamreg

import "sync"

// Subscriber is anything that can receive broadcast bytes and report
// its own identity. Session implements this.
type Subscriber interface {
	TokenID() string
	Enqueue(data []byte)
}

type stream struct {
	name        string
	subscribers []Subscriber // ordered, distinct by TokenID
}

func (s *stream) indexOf(id string) int {
	for i, sub := range s.subscribers {
		if sub.TokenID() == id {
			return i
		}
	}
	return -1
}

// Registry is the stream name -> stream map. Zero value is not usable;
// construct with New.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*stream
}

func New() *Registry {
	return &Registry{streams: make(map[string]*stream)}
}

// Add creates name if absent. Idempotent.
func (r *Registry) Add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[name]; !ok {
		r.streams[name] = &stream{name: name}
	}
}

// Remove evicts every subscriber (via leave, a no-op for subscribers
// that don't care) and deletes the stream. Reports whether a stream
// actually existed.
func (r *Registry) Remove(name string, leave func(Subscriber)) bool {
	r.mu.Lock()
	s, ok := r.streams[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	subs := append([]Subscriber(nil), s.subscribers...)
	delete(r.streams, name)
	r.mu.Unlock()

	if leave != nil {
		for _, sub := range subs {
			leave(sub)
		}
	}
	return true
}

// Join adds sub to name's subscriber list. No-op if name is absent or
// sub is already a member.
func (r *Registry) Join(name string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[name]
	if !ok {
		return
	}
	if s.indexOf(sub.TokenID()) >= 0 {
		return
	}
	s.subscribers = append(s.subscribers, sub)
}

// Leave removes sub from name's subscriber list. No-op if absent.
func (r *Registry) Leave(name string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[name]
	if !ok {
		return
	}
	i := s.indexOf(sub.TokenID())
	if i < 0 {
		return
	}
	s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
}

// Broadcast appends data to every non-excluded subscriber's outbound
// queue. No-op if name is absent. For any single subscriber, broadcast
// order on a given stream equals the order of Broadcast calls serially
// issued against it by the caller (spec.md §4.2 ordering guarantee);
// the snapshot-then-release pattern below preserves that because the
// snapshot is taken and enqueued within one call, never interleaved
// with another Broadcast's snapshot on the same stream under the same
// lock holder.
func (r *Registry) Broadcast(name string, data []byte, exclude map[string]bool) {
	r.mu.RLock()
	s, ok := r.streams[name]
	if !ok {
		r.mu.RUnlock()
		return
	}
	snapshot := make([]Subscriber, len(s.subscribers))
	copy(snapshot, s.subscribers)
	r.mu.RUnlock()

	for _, sub := range snapshot {
		if exclude != nil && exclude[sub.TokenID()] {
			continue
		}
		sub.Enqueue(data)
	}
}

// Dispose tells every subscriber to leave the stream, without removing
// the stream entry itself.
func (r *Registry) Dispose(name string, leave func(Subscriber)) {
	r.mu.RLock()
	s, ok := r.streams[name]
	if !ok {
		r.mu.RUnlock()
		return
	}
	snapshot := make([]Subscriber, len(s.subscribers))
	copy(snapshot, s.subscribers)
	r.mu.RUnlock()

	if leave != nil {
		for _, sub := range snapshot {
			leave(sub)
		}
	}
}

// Count returns the number of subscribers on name, or 0 if absent.
func (r *Registry) Count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[name]
	if !ok {
		return 0
	}
	return len(s.subscribers)
}

// Exists reports whether name has a stream entry.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.streams[name]
	return ok
}
