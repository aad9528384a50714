package session

import (
	"strings"
	"sync"
	"time"
)

// TimeoutSeconds and SpamResetInterval match
// original_source/collection/tokens.py's usersTimeoutCheckLoop (100s)
// and spamProtectionResetLoop (10s).
const (
	TimeoutSeconds       = 100
	SpamResetInterval    = 10 * time.Second
	TimeoutSweepInterval = 100 * time.Second
)

// Registry is the id -> Session map (spec.md §4.3). All mutations are
// serialized by one lock; readers may coexist with no writer (spec.md
// §5 "Shared state").
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Session
	byUserID map[int32][]*Session // reverse index (spec.md §9 design note)
}

func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Session),
		byUserID: make(map[int32][]*Session),
	}
}

// Add inserts a session built by New/session construction. Callers
// decide token uniqueness; Add itself just publishes into the index.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
	r.byUserID[s.UserID] = append(r.byUserID[s.UserID], s)
}

// Delete removes tokenID from the registry. Reports whether it was
// present.
func (r *Registry) Delete(tokenID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[tokenID]
	if !ok {
		return nil, false
	}
	delete(r.byID, tokenID)
	list := r.byUserID[s.UserID]
	for i, cand := range list {
		if cand.ID == tokenID {
			r.byUserID[s.UserID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.byUserID[s.UserID]) == 0 {
		delete(r.byUserID, s.UserID)
	}
	return s, true
}

// Get returns the session for tokenID.
func (r *Registry) Get(tokenID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[tokenID]
	return s, ok
}

// ByUserID returns the first session registered for uid, in insertion
// order (spec.md S5: "byUserID(U) returns one of them deterministically
// -- the first in insertion order").
func (r *Registry) ByUserID(uid int32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byUserID[uid]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// AllByUserID returns every session registered for uid (tournament
// clients may have more than one, spec.md §8 property 1).
func (r *Registry) AllByUserID(uid int32) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, len(r.byUserID[uid]))
	copy(out, r.byUserID[uid])
	return out
}

// ByName performs a linear scan over display name (or, if safe is
// true, the normalized/safe name), matching
// original_source/collection/tokens.py's getTokenFromUsername.
func (r *Registry) ByName(name string, safe bool) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		if safe {
			if s.SafeUsername == name {
				return s, true
			}
			continue
		}
		if s.Username == name {
			return s, true
		}
	}
	return nil, false
}

// All returns a snapshot of every session currently registered.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Count reports the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// MultipleEnqueue broadcasts data to the listed user ids, or (if
// negate is true) to every session NOT in the list -- matching
// original_source/collection/tokens.py's multipleEnqueue(but=...).
func (r *Registry) MultipleEnqueue(data []byte, userIDs []int32, negate bool) {
	want := make(map[int32]bool, len(userIDs))
	for _, u := range userIDs {
		want[u] = true
	}
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		if want[s.UserID] != negate {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		s.Enqueue(data)
	}
}

// NormalizeUsername lowercases and replaces spaces with underscores,
// matching the "safe username" scheme used throughout osuToken.py /
// chatHelper.py.
func NormalizeUsername(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// SweepTimeouts deletes every session whose LastSeen is older than
// TimeoutSeconds and that is not the bot, not IRC, and not a
// tournament client, invoking onTimeout (the caller's full logout
// path: stop spectating, leave match, part channels, broadcast
// logout, then Delete) for each. Individual onTimeout failures are
// collected and returned together after the sweep completes (spec.md
// §4.3 "the sweep is exception-safe").
func (r *Registry) SweepTimeouts(isBot func(*Session) bool, onTimeout func(*Session) error) []error {
	now := time.Now().Unix()
	r.mu.RLock()
	var stale []*Session
	for _, s := range r.byID {
		if s.IsIRC || s.IsTournament {
			continue
		}
		if isBot != nil && isBot(s) {
			continue
		}
		if now-s.LastSeen >= TimeoutSeconds {
			stale = append(stale, s)
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, s := range stale {
		if err := onTimeout(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ResetAllSpam zeroes every session's spam counter (spec.md §4.9,
// every 10s).
func (r *Registry) ResetAllSpam() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		s.ResetSpam()
	}
}
