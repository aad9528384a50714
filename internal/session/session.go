// Package session implements the session/token registry (spec.md
// §4.3) and the Session data model (spec.md §3), grounded on
// original_source/objects/osuToken.py for the field list and
// per-session operations, and on the teacher's room.go for the
// sync.RWMutex-guarded map + sync/atomic counter concurrency idiom.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action mirrors osuToken.py's cached "what is the user doing" state,
// refreshed by ClientChangeAction packets and broadcast as part of
// user_stats.
type Action struct {
	ID        byte
	Text      string
	MD5       string
	Mods      uint32
	GameMode  byte
	BeatmapID int32
}

// Stats is the cached score snapshot attached to every session,
// replaced on peppy:update_cached_stats pub/sub events when a stats
// lookup is wired (spec.md §3, §6). Login does not load it from the
// user store, so a new session starts with zero stats.
type Stats struct {
	RankedScore uint64
	Accuracy    float32 // [0.0, 1.0]
	Playcount   uint32
	TotalScore  uint64
	GlobalRank  uint32
	PP          uint16
}

// Tillerino is the per-session (beatmap, mods, accuracy) context used
// by bot commands to answer "what if I played with these mods"
// (spec.md GLOSSARY, SPEC_FULL.md ADDED-C.3).
type Tillerino struct {
	BeatmapID int32
	Mods      uint32
	Accuracy  float32
}

// messageBufferSize and messageBufferMaxLen match osuToken.py's
// addMessageInBuffer: the last 10 messages, each truncated to 50
// chars.
const (
	messageBufferSize   = 10
	messageBufferMaxLen = 50
)

// Session is one live client connection (spec.md §3 "Session").
type Session struct {
	ID string // opaque 128-bit session id (UUID string)

	UserID        int32
	Username      string
	SafeUsername  string // lowercased, spaces -> underscores
	Privileges    uint64
	SilenceEnd    int64 // epoch seconds
	IP            string
	TimeOffset    int
	IsIRC         bool
	IsTournament  bool
	LoginTime     int64
	LastSeen      int64 // last ping time, epoch seconds
	Country       byte
	Latitude      float32
	Longitude     float32
	Relaxing      bool
	Autopiloting  bool

	AwayMessage    string
	awayNotifiedMu sync.Mutex
	awayNotified   map[int32]bool // sender user id -> already auto-replied (ADDED-C.2)

	Action Action
	Stats  Stats

	Tillerino Tillerino

	MatchID int64 // 0 means none; matches are numbered starting at 1

	spectatorMu   sync.RWMutex // re-entrant in the Python original; Go callers must not nest lock calls
	spectatingOf  *Session     // host this session is spectating, or nil
	spectatorUID  int32        // cached host user id, survives host disconnect
	spectators    []*Session   // sessions spectating this one

	joinedMu       sync.RWMutex
	joinedStreams  map[string]bool
	joinedChannels []string // ordered

	bufferMu sync.Mutex
	msgBuffer []bufferedMessage

	spamMu    sync.Mutex
	spamCount int

	outboundMu sync.Mutex
	outbound   []byte

	// NoEnqueue marks the bot's reserved session: enqueue is a no-op
	// (spec.md §4.10).
	NoEnqueue bool

	onEnqueueNotify func() // test hook; nil in production
}

type bufferedMessage struct {
	Channel string
	Message string
}

// New constructs a Session with a fresh UUID token, per spec.md §4.3
// "add". Callers are expected to seed Stats/Action/Privileges from the
// user store before publishing the session into a Registry.
func New(userID int32, ip string, tournament bool, timeOffsetMinutes int) *Session {
	now := time.Now().Unix()
	return &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		IP:            ip,
		IsTournament:  tournament,
		TimeOffset:    timeOffsetMinutes,
		LoginTime:     now,
		LastSeen:      now,
		joinedStreams: make(map[string]bool),
		awayNotified:  make(map[int32]bool),
	}
}

// TokenID implements streamreg.Subscriber.
func (s *Session) TokenID() string { return s.ID }

// Enqueue appends data to the outbound queue. A no-op for the bot
// session (spec.md §4.10).
func (s *Session) Enqueue(data []byte) {
	if s.NoEnqueue || len(data) == 0 {
		return
	}
	s.outboundMu.Lock()
	s.outbound = append(s.outbound, data...)
	s.outboundMu.Unlock()
	if s.onEnqueueNotify != nil {
		s.onEnqueueNotify()
	}
}

// DrainQueue fetches and clears the outbound queue atomically (spec.md
// §8 property 4: drain is idempotent, draining an empty queue returns
// nothing and leaves it empty).
func (s *Session) DrainQueue() []byte {
	s.outboundMu.Lock()
	defer s.outboundMu.Unlock()
	if len(s.outbound) == 0 {
		return nil
	}
	out := s.outbound
	s.outbound = nil
	return out
}

// Restricted mirrors osuToken.py's `restricted` property: true unless
// the public-access privilege bit is set (SPEC_FULL.md ADDED-C.4).
func (s *Session) Restricted(publicBit uint64) bool {
	return s.Privileges&publicBit == 0
}

// Silenced mirrors osuToken.py's `silenced` property.
func (s *Session) Silenced() bool {
	return s.SilenceEnd-time.Now().Unix() > 0
}

// SilenceSecondsLeft returns the remaining silence duration, clamped
// to 0.
func (s *Session) SilenceSecondsLeft() int64 {
	left := s.SilenceEnd - time.Now().Unix()
	if left < 0 {
		return 0
	}
	return left
}

// Silence sets the silence deadline seconds from now (spec.md §4.5
// spam protection uses this with reason "Spamming (auto spam
// protection)").
func (s *Session) Silence(seconds int64) {
	s.SilenceEnd = time.Now().Unix() + seconds
}

// UpdatePingTime refreshes LastSeen, used by the timeout sweep
// (spec.md §4.3, §4.9).
func (s *Session) UpdatePingTime() {
	s.LastSeen = time.Now().Unix()
}

// IncrementSpam increments the spam counter and reports the new
// value, per spec.md §4.5's spam-protection rule ("except bot and
// admins... if counter > 10 before the 10-s reset, silence").
func (s *Session) IncrementSpam() int {
	s.spamMu.Lock()
	defer s.spamMu.Unlock()
	s.spamCount++
	return s.spamCount
}

// ResetSpam zeroes the spam counter; called by the periodic spam-rate
// reset loop (spec.md §4.9, every 10s).
func (s *Session) ResetSpam() {
	s.spamMu.Lock()
	s.spamCount = 0
	s.spamMu.Unlock()
}

// JoinedStream reports whether name is in the session's joined-streams
// set (spec.md §8 property 2, subscription coherence).
func (s *Session) JoinedStream(name string) bool {
	s.joinedMu.RLock()
	defer s.joinedMu.RUnlock()
	return s.joinedStreams[name]
}

// MarkJoinedStream / MarkLeftStream update the session's own view of
// its stream membership; callers (streamreg.Registry.Join/Leave) own
// the authoritative subscriber list, this just keeps the invariant in
// spec.md §3 true from the session's side.
func (s *Session) MarkJoinedStream(name string) {
	s.joinedMu.Lock()
	s.joinedStreams[name] = true
	s.joinedMu.Unlock()
}

func (s *Session) MarkLeftStream(name string) {
	s.joinedMu.Lock()
	delete(s.joinedStreams, name)
	s.joinedMu.Unlock()
}

// JoinedChannels returns a copy of the ordered joined-channels list.
func (s *Session) JoinedChannels() []string {
	s.joinedMu.RLock()
	defer s.joinedMu.RUnlock()
	out := make([]string, len(s.joinedChannels))
	copy(out, s.joinedChannels)
	return out
}

func (s *Session) InChannel(name string) bool {
	s.joinedMu.RLock()
	defer s.joinedMu.RUnlock()
	for _, c := range s.joinedChannels {
		if c == name {
			return true
		}
	}
	return false
}

func (s *Session) AddJoinedChannel(name string) {
	s.joinedMu.Lock()
	s.joinedChannels = append(s.joinedChannels, name)
	s.joinedMu.Unlock()
}

func (s *Session) RemoveJoinedChannel(name string) {
	s.joinedMu.Lock()
	defer s.joinedMu.Unlock()
	for i, c := range s.joinedChannels {
		if c == name {
			s.joinedChannels = append(s.joinedChannels[:i], s.joinedChannels[i+1:]...)
			return
		}
	}
}

// AddMessageToBuffer appends a truncated message to the 10-entry ring
// buffer (osuToken.py addMessageInBuffer).
func (s *Session) AddMessageToBuffer(channel, message string) {
	if len(message) > messageBufferMaxLen {
		message = message[:messageBufferMaxLen]
	}
	s.bufferMu.Lock()
	defer s.bufferMu.Unlock()
	s.msgBuffer = append(s.msgBuffer, bufferedMessage{Channel: channel, Message: message})
	if len(s.msgBuffer) > messageBufferSize {
		s.msgBuffer = s.msgBuffer[len(s.msgBuffer)-messageBufferSize:]
	}
}

// AwayAlreadyNotified reports and records whether sender has already
// received this session's away auto-reply (ADDED-C.2). Resetting the
// away message clears the notified set.
func (s *Session) AwayAlreadyNotified(sender int32) bool {
	s.awayNotifiedMu.Lock()
	defer s.awayNotifiedMu.Unlock()
	if s.awayNotified[sender] {
		return true
	}
	s.awayNotified[sender] = true
	return false
}

// SetAwayMessage replaces the away message and clears the notified set.
func (s *Session) SetAwayMessage(msg string) {
	s.awayNotifiedMu.Lock()
	s.awayNotified = make(map[int32]bool)
	s.awayNotifiedMu.Unlock()
	s.AwayMessage = msg
}

// Spectating returns the session currently being spectated, if any.
func (s *Session) Spectating() *Session {
	s.spectatorMu.RLock()
	defer s.spectatorMu.RUnlock()
	return s.spectatingOf
}

func (s *Session) SpectatingUserID() int32 {
	s.spectatorMu.RLock()
	defer s.spectatorMu.RUnlock()
	return s.spectatorUID
}

func (s *Session) SetSpectating(host *Session, hostUserID int32) {
	s.spectatorMu.Lock()
	s.spectatingOf = host
	s.spectatorUID = hostUserID
	s.spectatorMu.Unlock()
}

func (s *Session) ClearSpectating() {
	s.spectatorMu.Lock()
	s.spectatingOf = nil
	s.spectatorMu.Unlock()
}

func (s *Session) Spectators() []*Session {
	s.spectatorMu.RLock()
	defer s.spectatorMu.RUnlock()
	out := make([]*Session, len(s.spectators))
	copy(out, s.spectators)
	return out
}

func (s *Session) AddSpectator(spec *Session) {
	s.spectatorMu.Lock()
	s.spectators = append(s.spectators, spec)
	s.spectatorMu.Unlock()
}

func (s *Session) RemoveSpectator(spec *Session) {
	s.spectatorMu.Lock()
	defer s.spectatorMu.Unlock()
	for i, sp := range s.spectators {
		if sp == spec {
			s.spectators = append(s.spectators[:i], s.spectators[i+1:]...)
			return
		}
	}
}

func (s *Session) SpectatorCount() int {
	s.spectatorMu.RLock()
	defer s.spectatorMu.RUnlock()
	return len(s.spectators)
}
