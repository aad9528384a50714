// Package match implements the multiplayer match registry and slot
// state machine (spec.md §4.7), grounded on
// original_source/collection/matches.py for the registry shape
// (monotonic id, dispose ordering) and on osuToken.py's match-facing
// calls for the slot lifecycle, since match.py itself was only
// reachable indirectly through its call sites in the retrieved
// source set.
package match

import (
	"sync"
	"time"

	"bancho/internal/banchoerr"
	"bancho/internal/channel"
	"bancho/internal/session"
	"bancho/internal/streamreg"
	"bancho/internal/wire"
)

const slotCount = 16

// emptyMatchTimeout is the "empty ≥120s" threshold for the cleanup
// loop (spec.md §8 property 10, §4.7 "Cleanup loop").
const emptyMatchTimeout = 120 * time.Second

// Slot status bitmask values, matching the client's well-known slot
// status encoding.
const (
	SlotFree     byte = 1
	SlotLocked   byte = 2
	SlotNotReady byte = 4
	SlotReady    byte = 8
	SlotNoMap    byte = 16
	SlotPlaying  byte = 32
	SlotComplete byte = 64
	SlotQuit     byte = 128
)

const (
	TeamNeutral byte = 0
	TeamBlue    byte = 1
	TeamRed     byte = 2
)

const (
	ScoringScore    byte = 0
	ScoringAccuracy byte = 1
	ScoringCombo    byte = 2
	ScoringScoreV2  byte = 3
)

const (
	TeamTypeHeadToHead byte = 0
	TeamTypeTagCoop    byte = 1
	TeamTypeTeamVs     byte = 2
	TeamTypeTagTeamVs  byte = 3
)

const (
	ModModeNormal  byte = 0
	ModModeFreemod byte = 1
)

// Slot is one of the 16 fixed positions inside a match (spec.md §3
// "Match" / Slot).
type Slot struct {
	Status    byte
	Team      byte
	Session   *session.Session // nil iff Status is Free or Locked
	Mods      uint32           // meaningful only when the match is in freemod
	Loaded    bool
	Skipped   bool
	Completed bool
	Failed    bool
}

func (s *Slot) occupied() bool { return s.Session != nil }

func (s *Slot) userID() int32 {
	if s.Session == nil {
		return -1
	}
	return s.Session.UserID
}

func (s *Slot) reset() {
	*s = Slot{Status: SlotFree}
}

// Match is a multiplayer room (spec.md §3 "Match").
type Match struct {
	mu sync.Mutex

	ID           uint32
	Name         string
	Password     string // md5 form; "" means open
	BeatmapID    int32
	BeatmapName  string
	BeatmapMD5   string
	GameMode     byte
	HostUserID   int32 // -1 once unset
	IsTourney    bool
	IsLocked     bool
	InProgress   bool
	ScoringType  byte
	TeamType     byte
	ModMode      byte
	Mods         uint32 // global mods, meaningful unless freemod
	CreationTime int64
	Slots        [slotCount]Slot
}

func newMatch(id uint32, name, password string, beatmapID int32, beatmapName, beatmapMD5 string, gameMode byte, hostUserID int32, tourney bool) *Match {
	m := &Match{
		ID:           id,
		Name:         name,
		Password:     password,
		BeatmapID:    beatmapID,
		BeatmapName:  beatmapName,
		BeatmapMD5:   beatmapMD5,
		GameMode:     gameMode,
		HostUserID:   hostUserID,
		IsTourney:    tourney,
		ScoringType:  ScoringScore,
		TeamType:     TeamTypeHeadToHead,
		ModMode:      ModModeNormal,
		CreationTime: time.Now().Unix(),
	}
	for i := range m.Slots {
		m.Slots[i].Status = SlotFree
	}
	return m
}

// occupantCount reports how many slots currently hold a user; callers
// must hold m.mu.
func (m *Match) occupantCount() int {
	n := 0
	for i := range m.Slots {
		if m.Slots[i].occupied() {
			n++
		}
	}
	return n
}

func (m *Match) allReady() bool {
	any := false
	for i := range m.Slots {
		if !m.Slots[i].occupied() {
			continue
		}
		any = true
		if m.Slots[i].Status != SlotReady {
			return false
		}
	}
	return any
}

func streamName(id uint32) string       { return "multi/" + uitoa(id) }
func playingStreamName(id uint32) string { return "multi/" + uitoa(id) + "/playing" }
func channelName(id uint32) string       { return "#multi_" + uitoa(id) }

func uitoa(id uint32) string {
	if id == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[i:])
}

// Registry is the id -> Match map (spec.md §4.7), bound to the shared
// stream and channel registries so it can manage each match's two
// streams and one channel directly.
type Registry struct {
	mu      sync.RWMutex
	matches map[uint32]*Match
	nextID  uint32

	Streams  *streamreg.Registry
	Channels *channel.Registry
}

func NewRegistry(streams *streamreg.Registry, channels *channel.Registry) *Registry {
	return &Registry{matches: make(map[uint32]*Match), nextID: 1, Streams: streams, Channels: channels}
}

// Create makes a new match, bound to multi/<id>, multi/<id>/playing
// and #multi_<id>, and returns it. The id is never reused.
func (r *Registry) Create(name, password string, beatmapID int32, beatmapName, beatmapMD5 string, gameMode byte, host *session.Session, tourney bool) *Match {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	m := newMatch(id, name, password, beatmapID, beatmapName, beatmapMD5, gameMode, host.UserID, tourney)
	r.matches[id] = m
	r.mu.Unlock()

	r.Streams.Add(streamName(id))
	r.Streams.Add(playingStreamName(id))
	r.Channels.Add(channel.Descriptor{Name: channelName(id), Description: name, Temp: true, Hidden: true, PublicRead: true, PublicWrite: true})

	r.Streams.Broadcast("lobby", wire.NewMatchPacket(matchData(m)), nil)
	return m
}

func (r *Registry) Get(id uint32) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	return m, ok
}

func (r *Registry) All() []*Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

func (r *Registry) delete(id uint32) {
	r.mu.Lock()
	delete(r.matches, id)
	r.mu.Unlock()
}

// broadcastUpdate sends the current (password-censored) match data to
// both the match's own stream and the lobby (spec.md §4.7 join/leave).
func (r *Registry) broadcastUpdate(m *Match) {
	data := wire.UpdateMatchPacket(matchData(m))
	r.Streams.Broadcast(streamName(m.ID), data, nil)
	r.Streams.Broadcast("lobby", data, nil)
}

// Join implements spec.md §4.7 "Join match".
func (r *Registry) Join(m *Match, s *session.Session, password string) error {
	m.mu.Lock()
	if m.Password != "" && m.Password != password {
		m.mu.Unlock()
		return banchoerr.New(banchoerr.InvalidArguments, "wrong match password")
	}
	slotIdx := -1
	for i := range m.Slots {
		if m.Slots[i].Status == SlotFree {
			slotIdx = i
			break
		}
	}
	if slotIdx == -1 {
		m.mu.Unlock()
		s.Enqueue(wire.MatchJoinFailPacket)
		return banchoerr.New(banchoerr.InvalidArguments, "match is full")
	}
	m.Slots[slotIdx] = Slot{Status: SlotNotReady, Session: s}
	m.mu.Unlock()

	s.MatchID = int64(m.ID)
	r.Streams.Join(streamName(m.ID), s)
	s.MarkJoinedStream(streamName(m.ID))

	s.Enqueue(wire.MatchJoinSuccess(matchData(m)))
	r.broadcastUpdate(m)
	return nil
}

// Leave implements spec.md §4.7 "Leave". If the host leaves and other
// players remain, host transfers to the lowest-index active slot; if
// the match becomes empty, it is disposed.
func (r *Registry) Leave(m *Match, s *session.Session) error {
	m.mu.Lock()
	idx := -1
	for i := range m.Slots {
		if m.Slots[i].Session == s {
			idx = i
			break
		}
	}
	if idx == -1 {
		m.mu.Unlock()
		return banchoerr.New(banchoerr.InvalidArguments, "not in this match")
	}
	m.Slots[idx].reset()
	wasHost := m.HostUserID == s.UserID
	var newHost *session.Session
	if wasHost {
		for i := range m.Slots {
			if m.Slots[i].occupied() {
				newHost = m.Slots[i].Session
				m.HostUserID = newHost.UserID
				break
			}
		}
		if newHost == nil {
			m.HostUserID = -1
		}
	}
	empty := m.occupantCount() == 0
	m.mu.Unlock()

	s.MatchID = 0
	r.Streams.Leave(streamName(m.ID), s)
	s.MarkLeftStream(streamName(m.ID))
	r.Streams.Leave(playingStreamName(m.ID), s)
	s.MarkLeftStream(playingStreamName(m.ID))

	if newHost != nil {
		newHost.Enqueue(wire.MatchNewHostPacket)
	}
	if empty {
		r.Dispose(m)
		return nil
	}
	r.broadcastUpdate(m)
	return nil
}

// ChangeSlot implements spec.md §4.7 "Slot move": only onto a slot
// that is free and not locked.
func (r *Registry) ChangeSlot(m *Match, s *session.Session, to int) error {
	if to < 0 || to >= slotCount {
		return banchoerr.New(banchoerr.InvalidArguments, "slot %d out of range", to)
	}
	m.mu.Lock()
	if m.Slots[to].Status != SlotFree {
		m.mu.Unlock()
		return banchoerr.New(banchoerr.InvalidArguments, "slot %d is not free", to)
	}
	from := -1
	for i := range m.Slots {
		if m.Slots[i].Session == s {
			from = i
			break
		}
	}
	if from == -1 {
		m.mu.Unlock()
		return banchoerr.New(banchoerr.InvalidArguments, "not in this match")
	}
	m.Slots[to] = m.Slots[from]
	m.Slots[from].reset()
	m.mu.Unlock()

	r.broadcastUpdate(m)
	return nil
}

// LockSlot implements spec.md §4.7 "Slot lock": toggles free/locked;
// an occupied slot is forcibly vacated first.
func (r *Registry) LockSlot(m *Match, idx int) error {
	if idx < 0 || idx >= slotCount {
		return banchoerr.New(banchoerr.InvalidArguments, "slot %d out of range", idx)
	}
	m.mu.Lock()
	evicted := m.Slots[idx].Session
	m.mu.Unlock()
	if evicted != nil {
		_ = r.Leave(m, evicted)
	}

	m.mu.Lock()
	switch m.Slots[idx].Status {
	case SlotLocked:
		m.Slots[idx].reset()
	default:
		m.Slots[idx].reset()
		m.Slots[idx].Status = SlotLocked
	}
	m.mu.Unlock()

	r.broadcastUpdate(m)
	return nil
}

// ToggleReady implements spec.md §4.7 "Ready toggle": flips between
// ready and not-ready only; invalid from no-map.
func (r *Registry) ToggleReady(m *Match, s *session.Session) error {
	m.mu.Lock()
	for i := range m.Slots {
		if m.Slots[i].Session != s {
			continue
		}
		switch m.Slots[i].Status {
		case SlotNotReady:
			m.Slots[i].Status = SlotReady
		case SlotReady:
			m.Slots[i].Status = SlotNotReady
		default:
			m.mu.Unlock()
			return banchoerr.New(banchoerr.InvalidArguments, "cannot toggle ready from this state")
		}
		m.mu.Unlock()
		r.broadcastUpdate(m)
		return nil
	}
	m.mu.Unlock()
	return banchoerr.New(banchoerr.InvalidArguments, "not in this match")
}

// ChangeMap implements spec.md §4.7 "Map change": resets every
// occupied slot's ready state to not-ready (client re-reports no-map
// via a subsequent status packet, per spec.md).
func (r *Registry) ChangeMap(m *Match, beatmapID int32, beatmapName, beatmapMD5 string, gameMode byte) {
	m.mu.Lock()
	m.BeatmapID = beatmapID
	m.BeatmapName = beatmapName
	m.BeatmapMD5 = beatmapMD5
	m.GameMode = gameMode
	for i := range m.Slots {
		if m.Slots[i].occupied() {
			m.Slots[i].Status = SlotNotReady
		}
	}
	m.mu.Unlock()
	r.broadcastUpdate(m)
}

// ChangeMods implements spec.md §4.7 "Mod change". In freemod, mods
// are per-slot; otherwise the match holds one mod word. Switching
// modes resets per-slot mods. tag-coop/tag-team-vs force normal.
func (r *Registry) ChangeMods(m *Match, s *session.Session, mods uint32) {
	m.mu.Lock()
	if m.ModMode == ModModeFreemod {
		for i := range m.Slots {
			if m.Slots[i].Session == s {
				m.Slots[i].Mods = mods
				break
			}
		}
	} else {
		m.Mods = mods
	}
	m.mu.Unlock()
	r.broadcastUpdate(m)
}

// SetModMode switches between normal and freemod, resetting per-slot
// mods on the transition, and forces normal for tag modes.
func (r *Registry) SetModMode(m *Match, mode byte) {
	m.mu.Lock()
	if m.TeamType == TeamTypeTagCoop || m.TeamType == TeamTypeTagTeamVs {
		mode = ModModeNormal
	}
	if mode != m.ModMode {
		for i := range m.Slots {
			m.Slots[i].Mods = 0
		}
	}
	m.ModMode = mode
	m.mu.Unlock()
	r.broadcastUpdate(m)
}

// SetTeamType sets the team mode, forcing normal mod mode for
// tag-coop/tag-team-vs.
func (r *Registry) SetTeamType(m *Match, teamType byte) {
	m.mu.Lock()
	m.TeamType = teamType
	if teamType == TeamTypeTagCoop || teamType == TeamTypeTagTeamVs {
		m.ModMode = ModModeNormal
	}
	m.mu.Unlock()
	r.broadcastUpdate(m)
}

// SetScoringType sets the match's scoring type (score/accuracy/combo/
// scoreV2).
func (r *Registry) SetScoringType(m *Match, scoringType byte) {
	m.mu.Lock()
	m.ScoringType = scoringType
	m.mu.Unlock()
	r.broadcastUpdate(m)
}

// ChangeTeam sets the team of s's slot.
func (r *Registry) ChangeTeam(m *Match, s *session.Session, team byte) error {
	m.mu.Lock()
	for i := range m.Slots {
		if m.Slots[i].Session == s {
			m.Slots[i].Team = team
			m.mu.Unlock()
			r.broadcastUpdate(m)
			return nil
		}
	}
	m.mu.Unlock()
	return banchoerr.New(banchoerr.InvalidArguments, "not in this match")
}

// TransferHost hands the host role to whichever session occupies slot
// idx, matching osuToken.py's transferHost call site.
func (r *Registry) TransferHost(m *Match, idx int) error {
	if idx < 0 || idx >= slotCount {
		return banchoerr.New(banchoerr.InvalidArguments, "slot %d out of range", idx)
	}
	m.mu.Lock()
	target := m.Slots[idx].Session
	if target == nil {
		m.mu.Unlock()
		return banchoerr.New(banchoerr.InvalidArguments, "slot %d is empty", idx)
	}
	m.HostUserID = target.UserID
	m.mu.Unlock()
	target.Enqueue(wire.MatchNewHostPacket)
	r.broadcastUpdate(m)
	return nil
}

// SetNoBeatmap implements the "has beatmap"/"no beatmap" status toggle
// reported by the client while a map download is in progress: missing
// true moves the slot into SlotNoMap, false moves it back to
// SlotNotReady.
func (r *Registry) SetNoBeatmap(m *Match, s *session.Session, missing bool) {
	m.mu.Lock()
	for i := range m.Slots {
		if m.Slots[i].Session != s {
			continue
		}
		if missing {
			m.Slots[i].Status = SlotNoMap
		} else if m.Slots[i].Status == SlotNoMap {
			m.Slots[i].Status = SlotNotReady
		}
		break
	}
	m.mu.Unlock()
	r.broadcastUpdate(m)
}

// ChangePassword implements spec.md §4.7 "password change".
func (r *Registry) ChangePassword(m *Match, newPassword string) {
	m.mu.Lock()
	m.Password = newPassword
	m.mu.Unlock()
	r.Streams.Broadcast(streamName(m.ID), wire.MatchChangePassword(newPassword), nil)
	r.broadcastUpdate(m)
}

// Rename sets the match's display name.
func (r *Registry) Rename(m *Match, name string) {
	m.mu.Lock()
	m.Name = name
	m.mu.Unlock()
	r.broadcastUpdate(m)
}

// Start implements spec.md §4.7 "Start": refuses unless every
// occupied slot is ready, unless force is set (which readies
// everyone first).
func (r *Registry) Start(m *Match, force bool) error {
	m.mu.Lock()
	if force {
		for i := range m.Slots {
			if m.Slots[i].occupied() && m.Slots[i].Status == SlotNotReady {
				m.Slots[i].Status = SlotReady
			}
		}
	}
	if !m.allReady() {
		m.mu.Unlock()
		return banchoerr.New(banchoerr.InvalidArguments, "some users aren't ready yet")
	}
	var playing []*session.Session
	for i := range m.Slots {
		if !m.Slots[i].occupied() {
			continue
		}
		if m.Slots[i].Status == SlotReady {
			m.Slots[i].Status = SlotPlaying
			m.Slots[i].Loaded = false
			m.Slots[i].Skipped = false
			m.Slots[i].Completed = false
			m.Slots[i].Failed = false
			playing = append(playing, m.Slots[i].Session)
		}
	}
	m.InProgress = true
	m.mu.Unlock()

	for _, s := range playing {
		r.Streams.Join(playingStreamName(m.ID), s)
		s.MarkJoinedStream(playingStreamName(m.ID))
	}
	r.Streams.Broadcast(streamName(m.ID), wire.MatchStartPacket(matchData(m)), nil)
	return nil
}

// Frames implements spec.md §4.7 "Frames": updates nothing beyond the
// relay itself (score/HP tracking lives client-side in the payload),
// and rebroadcasts a match-score-update with the slot id substituted.
func (r *Registry) Frames(m *Match, s *session.Session, payload []byte) {
	m.mu.Lock()
	slotID := byte(255)
	for i := range m.Slots {
		if m.Slots[i].Session == s {
			slotID = byte(i)
			break
		}
	}
	m.mu.Unlock()
	if slotID == 255 {
		return
	}
	r.Streams.Broadcast(playingStreamName(m.ID), wire.MatchScoreUpdate(slotID, payload), nil)
}

// markPlayingFlag sets one per-slot flag for s and, if every playing
// slot now has it set, broadcasts the given "all-*" packet.
func (r *Registry) markPlayingFlag(m *Match, s *session.Session, set func(*Slot), allSet func(*Slot) bool, allPacket []byte) {
	m.mu.Lock()
	for i := range m.Slots {
		if m.Slots[i].Session == s && m.Slots[i].Status == SlotPlaying {
			set(&m.Slots[i])
		}
	}
	allDone := true
	any := false
	for i := range m.Slots {
		if m.Slots[i].Status != SlotPlaying {
			continue
		}
		any = true
		if !allSet(&m.Slots[i]) {
			allDone = false
			break
		}
	}
	m.mu.Unlock()
	if any && allDone {
		r.Streams.Broadcast(streamName(m.ID), allPacket, nil)
	}
}

func (r *Registry) AllLoaded(m *Match, s *session.Session) {
	r.markPlayingFlag(m, s,
		func(sl *Slot) { sl.Loaded = true },
		func(sl *Slot) bool { return sl.Loaded },
		wire.MatchAllPlayersLoadedPacket)
}

func (r *Registry) Skip(m *Match, s *session.Session) {
	m.mu.Lock()
	var uid int32 = -1
	for i := range m.Slots {
		if m.Slots[i].Session == s && m.Slots[i].Status == SlotPlaying {
			m.Slots[i].Skipped = true
			uid = s.UserID
		}
	}
	m.mu.Unlock()
	if uid != -1 {
		r.Streams.Broadcast(streamName(m.ID), wire.MatchPlayerSkipped(uid), nil)
	}
	r.markPlayingFlag(m, s,
		func(sl *Slot) {},
		func(sl *Slot) bool { return sl.Skipped },
		wire.MatchAllSkippedPacket)
}

func (r *Registry) Fail(m *Match, s *session.Session) {
	m.mu.Lock()
	var slotID uint32
	found := false
	for i := range m.Slots {
		if m.Slots[i].Session == s && m.Slots[i].Status == SlotPlaying {
			m.Slots[i].Failed = true
			slotID = uint32(i)
			found = true
		}
	}
	m.mu.Unlock()
	if found {
		r.Streams.Broadcast(streamName(m.ID), wire.MatchPlayerFailed(slotID), nil)
	}
}

// Complete implements spec.md §4.7 "complete": when every playing
// slot is complete or quit, the match ends.
func (r *Registry) Complete(m *Match, s *session.Session) {
	m.mu.Lock()
	for i := range m.Slots {
		if m.Slots[i].Session == s && m.Slots[i].Status == SlotPlaying {
			m.Slots[i].Status = SlotComplete
		}
	}
	done := true
	any := false
	var demoted []*session.Session
	for i := range m.Slots {
		if !m.Slots[i].occupied() {
			continue
		}
		if m.Slots[i].Status == SlotPlaying || m.Slots[i].Status == SlotComplete || m.Slots[i].Status == SlotQuit {
			if m.Slots[i].Status == SlotPlaying {
				done = false
			}
			if m.Slots[i].Status == SlotComplete || m.Slots[i].Status == SlotQuit {
				any = true
			}
		}
	}
	if done && any {
		for i := range m.Slots {
			if m.Slots[i].occupied() && (m.Slots[i].Status == SlotComplete || m.Slots[i].Status == SlotQuit) {
				m.Slots[i].Status = SlotNotReady
				demoted = append(demoted, m.Slots[i].Session)
			}
		}
		m.InProgress = false
	}
	m.mu.Unlock()

	if done && any {
		r.Streams.Broadcast(streamName(m.ID), wire.MatchCompletePacket, nil)
		for _, d := range demoted {
			r.Streams.Leave(playingStreamName(m.ID), d)
			d.MarkLeftStream(playingStreamName(m.ID))
		}
		r.broadcastUpdate(m)
	}
}

// Abort implements spec.md §4.7 "Abort": unconditionally ends any
// in-progress game.
func (r *Registry) Abort(m *Match) {
	m.mu.Lock()
	for i := range m.Slots {
		if m.Slots[i].Status == SlotPlaying {
			m.Slots[i].Status = SlotNotReady
		}
	}
	m.InProgress = false
	m.mu.Unlock()
	r.Streams.Broadcast(streamName(m.ID), wire.MatchAbortPacket, nil)
	r.broadcastUpdate(m)
}

// Dispose implements spec.md §4.7 "Dispose": evicts every occupant
// (without recursively disposing), removes the bound channel (which
// kicks its subscribers), disposes both streams, and deletes the
// entry.
func (r *Registry) Dispose(m *Match) {
	m.mu.Lock()
	var occupants []*session.Session
	for i := range m.Slots {
		if m.Slots[i].occupied() {
			occupants = append(occupants, m.Slots[i].Session)
		}
	}
	m.mu.Unlock()

	for _, s := range occupants {
		s.MatchID = 0
		r.Streams.Leave(streamName(m.ID), s)
		s.MarkLeftStream(streamName(m.ID))
		r.Streams.Leave(playingStreamName(m.ID), s)
		s.MarkLeftStream(playingStreamName(m.ID))
	}

	r.Channels.Remove(channelName(m.ID), func(sub streamreg.Subscriber) {
		sub.Enqueue(wire.ChannelKicked(channelName(m.ID)))
	})

	r.Streams.Broadcast(streamName(m.ID), wire.DisposeMatch(m.ID), nil)
	r.Streams.Broadcast("lobby", wire.DisposeMatch(m.ID), nil)
	r.Streams.Remove(streamName(m.ID), nil)
	r.Streams.Remove(playingStreamName(m.ID), nil)

	r.delete(m.ID)
}

// Cleanup implements spec.md §4.7 "Cleanup loop": disposes any match
// with no occupants that has existed ≥120s. Per-match failures are
// collected and returned together (spec.md §7 PeriodicLoopAggregate).
func (r *Registry) Cleanup(now time.Time) []error {
	var stale []*Match
	for _, m := range r.All() {
		m.mu.Lock()
		empty := m.occupantCount() == 0
		age := now.Sub(time.Unix(m.CreationTime, 0))
		m.mu.Unlock()
		if empty && age >= emptyMatchTimeout {
			stale = append(stale, m)
		}
	}
	var errs []error
	for _, m := range stale {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					errs = append(errs, banchoerr.New(banchoerr.PeriodicLoopAggregate, "match %d cleanup panicked: %v", m.ID, rec))
				}
			}()
			r.Dispose(m)
		}()
	}
	return errs
}
