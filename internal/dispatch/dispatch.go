// Package dispatch maps inbound wire-protocol client packets to calls
// against the chat/spectate/match registries (spec.md §4.1's "packet
// exchange" leg of the HTTP front), grounded on
// original_source/constants/clientPackets.py for each packet's field
// layout and on the call sites in osuToken.py/chatHelper.py for which
// registry operation each one triggers.
package dispatch

import (
	"strconv"

	"bancho/internal/bot"
	"bancho/internal/match"
	"bancho/internal/serverctx"
	"bancho/internal/session"
	"bancho/internal/wire"
)

// Dispatcher holds everything a packet handler needs beyond the
// session it is acting on.
type Dispatcher struct {
	Ctx *serverctx.Context
	Bot *bot.Bot
}

func New(ctx *serverctx.Context, b *bot.Bot) *Dispatcher {
	return &Dispatcher{Ctx: ctx, Bot: b}
}

// Handle applies one decoded frame to s. Unrecognized packet ids are
// silently ignored (spec.md §4.1: the codec is total over well-formed
// input, but the dispatch table itself is not required to cover every
// id the client may send).
func (d *Dispatcher) Handle(s *session.Session, f wire.Frame) {
	r := wire.NewReader(f.Payload)
	switch f.ID {
	case wire.ClientChangeAction:
		d.handleChangeAction(s, r)
	case wire.ClientSendPublicMessage, wire.ClientSendPrivateMessage:
		d.handleSendMessage(s, r)
	case wire.ClientLogout:
		_ = d.Ctx.Logout(s)
	case wire.ClientRequestStatusUpdate:
		d.sendOwnStats(s)
	case wire.ClientPong:
		s.UpdatePingTime()
	case wire.ClientStartSpectating:
		d.handleStartSpectating(s, r)
	case wire.ClientStopSpectating:
		_ = d.Ctx.Spectators.Stop(s)
	case wire.ClientSpectateFrames:
		d.Ctx.Spectators.Frames(s, r.Raw())
	case wire.ClientChannelJoin:
		_ = d.Ctx.Chat.Join(s, r.String(), false)
	case wire.ClientChannelPart:
		_ = d.Ctx.Chat.Part(s, r.String(), false, false)
	case wire.ClientUserStatsRequest:
		d.handleUserStatsRequest(s, r)
	case wire.ClientUserPanelRequest:
		d.handleUserPanelRequest(s, r)
	case wire.ClientSetAwayMessage:
		d.handleSetAwayMessage(s, r)
	case wire.ClientCreateMatch:
		d.handleCreateMatch(s, r)
	case wire.ClientJoinMatch:
		d.handleJoinMatch(s, r)
	case wire.ClientPartMatch:
		d.leaveCurrentMatch(s)
	case wire.ClientMatchChangeSlot:
		d.withMatch(s, func(m *match.Match) { _ = d.Ctx.Matches.ChangeSlot(m, s, int(r.UInt32())) })
	case wire.ClientMatchReady, wire.ClientMatchNotReady:
		d.withMatch(s, func(m *match.Match) { _ = d.Ctx.Matches.ToggleReady(m, s) })
	case wire.ClientMatchLock:
		d.withMatch(s, func(m *match.Match) { _ = d.Ctx.Matches.LockSlot(m, int(r.UInt32())) })
	case wire.ClientMatchChangeSettings:
		d.handleChangeSettings(s, r)
	case wire.ClientMatchStart:
		d.withMatch(s, func(m *match.Match) { _ = d.Ctx.Matches.Start(m, false) })
	case wire.ClientMatchFrames:
		d.withMatch(s, func(m *match.Match) { d.Ctx.Matches.Frames(m, s, r.Raw()) })
	case wire.ClientMatchComplete:
		d.withMatch(s, func(m *match.Match) { d.Ctx.Matches.Complete(m, s) })
	case wire.ClientMatchChangeMods:
		mods := r.UInt32()
		d.withMatch(s, func(m *match.Match) { d.Ctx.Matches.ChangeMods(m, s, mods) })
	case wire.ClientMatchLoadComplete:
		d.withMatch(s, func(m *match.Match) { d.Ctx.Matches.AllLoaded(m, s) })
	case wire.ClientMatchNoBeatmap:
		d.withMatch(s, func(m *match.Match) { d.Ctx.Matches.SetNoBeatmap(m, s, true) })
	case wire.ClientMatchHasBeatmap:
		d.withMatch(s, func(m *match.Match) { d.Ctx.Matches.SetNoBeatmap(m, s, false) })
	case wire.ClientMatchFailed:
		d.withMatch(s, func(m *match.Match) { d.Ctx.Matches.Fail(m, s) })
	case wire.ClientMatchSkipRequest:
		d.withMatch(s, func(m *match.Match) { d.Ctx.Matches.Skip(m, s) })
	case wire.ClientMatchTransferHost:
		idx := int(r.UInt32())
		d.withMatch(s, func(m *match.Match) {
			if m.HostUserID == s.UserID {
				_ = d.Ctx.Matches.TransferHost(m, idx)
			}
		})
	case wire.ClientMatchInvite:
		d.handleMatchInvite(s, r)
	}
}

// withMatch runs fn against s's current match, if any.
func (d *Dispatcher) withMatch(s *session.Session, fn func(*match.Match)) {
	if s.MatchID == 0 {
		return
	}
	if m, ok := d.Ctx.Matches.Get(uint32(s.MatchID)); ok {
		fn(m)
	}
}

// sendOwnStats re-sends s's own presence+stats, matching the client's
// "request status update" packet.
func (d *Dispatcher) sendOwnStats(s *session.Session) {
	s.Enqueue(wire.UserStats(s.UserID, s.Action.ID, s.Action.Text, s.Action.MD5, s.Action.Mods, s.Action.GameMode, s.Action.BeatmapID, s.Stats.RankedScore, s.Stats.Accuracy, s.Stats.Playcount, s.Stats.TotalScore, s.Stats.GlobalRank, s.Stats.PP))
}

func (d *Dispatcher) handleChangeAction(s *session.Session, r *wire.Reader) {
	s.Action.ID = r.Byte()
	s.Action.Text = r.String()
	s.Action.MD5 = r.String()
	s.Action.Mods = r.UInt32()
	s.Action.GameMode = r.Byte()
	s.Action.BeatmapID = r.SInt32()
	if r.Err() != nil {
		return
	}
	if !s.Restricted(d.Ctx.PublicBit) {
		d.Ctx.Streams.Broadcast("main", wire.UserStats(s.UserID, s.Action.ID, s.Action.Text, s.Action.MD5, s.Action.Mods, s.Action.GameMode, s.Action.BeatmapID, s.Stats.RankedScore, s.Stats.Accuracy, s.Stats.Playcount, s.Stats.TotalScore, s.Stats.GlobalRank, s.Stats.PP), nil)
	}
}

func (d *Dispatcher) handleSendMessage(s *session.Session, r *wire.Reader) {
	_ = r.String() // sender name, ignored: the server trusts the session's own identity
	message := r.String()
	to := r.String()
	if r.Err() != nil {
		return
	}
	_ = d.Ctx.Chat.Send(s, to, message)
}

func (d *Dispatcher) handleStartSpectating(s *session.Session, r *wire.Reader) {
	hostID := r.SInt32()
	if r.Err() != nil {
		return
	}
	host, ok := d.Ctx.Sessions.ByUserID(hostID)
	if !ok {
		d.Ctx.Spectators.CantSpectate(s)
		return
	}
	_ = d.Ctx.Spectators.Start(s, host)
}

func (d *Dispatcher) handleUserStatsRequest(s *session.Session, r *wire.Reader) {
	for _, uid := range r.IntList() {
		other, ok := d.Ctx.Sessions.ByUserID(uid)
		if !ok {
			continue
		}
		s.Enqueue(wire.UserStats(other.UserID, other.Action.ID, other.Action.Text, other.Action.MD5, other.Action.Mods, other.Action.GameMode, other.Action.BeatmapID, other.Stats.RankedScore, other.Stats.Accuracy, other.Stats.Playcount, other.Stats.TotalScore, other.Stats.GlobalRank, other.Stats.PP))
	}
}

func (d *Dispatcher) handleUserPanelRequest(s *session.Session, r *wire.Reader) {
	for _, uid := range r.IntList() {
		other, ok := d.Ctx.Sessions.ByUserID(uid)
		if !ok || other.Restricted(d.Ctx.PublicBit) {
			continue
		}
		s.Enqueue(wire.UserPresence(other.UserID, other.Username, byte(24+other.TimeOffset/60), other.Country, 0, 0, other.Latitude, other.Longitude, 0))
	}
}

func (d *Dispatcher) handleSetAwayMessage(s *session.Session, r *wire.Reader) {
	_ = r.String() // unused field, clientPackets.py's setAwayMessage
	msg := r.String()
	if r.Err() != nil {
		return
	}
	s.SetAwayMessage(msg)
}

func (d *Dispatcher) handleMatchInvite(s *session.Session, r *wire.Reader) {
	targetID := int32(r.UInt32())
	if r.Err() != nil || s.MatchID == 0 {
		return
	}
	target, ok := d.Ctx.Sessions.ByUserID(targetID)
	if !ok {
		return
	}
	m, ok := d.Ctx.Matches.Get(uint32(s.MatchID))
	if !ok {
		return
	}
	_ = d.Ctx.Chat.Send(s, target.Username, "Come join my multiplayer match: \"osump://"+strconv.FormatUint(uint64(m.ID), 10)+"/"+m.Password+" "+m.Name+"\"")
}

// matchSlotFields holds the decoded fields of clientPackets.py's
// matchSettings struct, shared by ClientCreateMatch and
// ClientMatchChangeSettings.
type matchSlotFields struct {
	name, password string
	beatmapName    string
	beatmapID      int32
	beatmapMD5     string
	mods           uint32
	gameMode       byte
	scoringType    byte
	teamType       byte
	freeMods       bool
}

// readMatchSettings decodes clientPackets.py's matchSettings frame,
// skipping the slot-status/team/userID block the client sends but
// that the server derives from its own Slots state instead of trusting.
func readMatchSettings(r *wire.Reader) matchSlotFields {
	r.UInt16() // matchID, ignored: the server assigns/owns match ids
	r.Byte()   // inProgress, ignored
	r.Byte()   // unknown pad byte
	mods := r.UInt32()
	name := r.String()
	password := r.String()
	beatmapName := r.String()
	beatmapID := r.SInt32()
	beatmapMD5 := r.String()

	var status [16]byte
	for i := range status {
		status[i] = r.Byte()
	}
	for i := range status {
		r.Byte() // team, ignored
	}
	for _, st := range status {
		if st&(4|8|16|32|64) > 0 {
			r.SInt32() // per-slot userID, ignored
		}
	}

	r.SInt32() // hostUserID, ignored: the server already knows its host
	gameMode := r.Byte()
	scoringType := r.Byte()
	teamType := r.Byte()
	freeMods := r.Byte()

	return matchSlotFields{
		name:        name,
		password:    password,
		beatmapName: beatmapName,
		beatmapID:   beatmapID,
		beatmapMD5:  beatmapMD5,
		mods:        mods,
		gameMode:    gameMode,
		scoringType: scoringType,
		teamType:    teamType,
		freeMods:    freeMods != 0,
	}
}

func (d *Dispatcher) handleCreateMatch(s *session.Session, r *wire.Reader) {
	f := readMatchSettings(r)
	if r.Err() != nil {
		return
	}
	m := d.Ctx.Matches.Create(f.name, f.password, f.beatmapID, f.beatmapName, f.beatmapMD5, f.gameMode, s, false)
	_ = d.Ctx.Matches.Join(m, s, f.password)
}

func (d *Dispatcher) handleJoinMatch(s *session.Session, r *wire.Reader) {
	matchID := r.UInt32()
	password := r.String()
	if r.Err() != nil {
		return
	}
	m, ok := d.Ctx.Matches.Get(matchID)
	if !ok {
		return
	}
	_ = d.Ctx.Matches.Join(m, s, password)
}

func (d *Dispatcher) handleChangeSettings(s *session.Session, r *wire.Reader) {
	f := readMatchSettings(r)
	if r.Err() != nil {
		return
	}
	d.withMatch(s, func(m *match.Match) {
		if m.HostUserID != s.UserID {
			return
		}
		d.Ctx.Matches.Rename(m, f.name)
		d.Ctx.Matches.ChangePassword(m, f.password)
		d.Ctx.Matches.ChangeMap(m, f.beatmapID, f.beatmapName, f.beatmapMD5, f.gameMode)
		d.Ctx.Matches.SetTeamType(m, f.teamType)
		d.Ctx.Matches.SetScoringType(m, f.scoringType)
		if f.freeMods {
			d.Ctx.Matches.SetModMode(m, match.ModModeFreemod)
		} else {
			d.Ctx.Matches.SetModMode(m, match.ModModeNormal)
			d.Ctx.Matches.ChangeMods(m, s, f.mods)
		}
	})
}

func (d *Dispatcher) leaveCurrentMatch(s *session.Session) {
	if s.MatchID == 0 {
		return
	}
	if m, ok := d.Ctx.Matches.Get(uint32(s.MatchID)); ok {
		_ = d.Ctx.Matches.Leave(m, s)
	}
}
