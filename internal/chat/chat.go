// Package chat implements the chat router (spec.md §4.5): join/part/
// send semantics over channels and private messages, grounded on
// original_source/helpers/chatHelper.py (joinChannel, partChannel,
// sendMessage) line-for-line.
package chat

import (
	"strconv"
	"strings"

	"bancho/internal/banchoerr"
	"bancho/internal/channel"
	"bancho/internal/session"
	"bancho/internal/streamreg"
	"bancho/internal/wire"
)

// BotName is the reserved display name fokabot answers to, and the
// implicit destination for "!report" (chatHelper.py sendMessage).
const BotName = "FokaBot"

// VirtualAliases resolves the two virtual channel names to their real,
// per-user/per-match backing channel (spec.md §3 "Derived" / §4.5),
// kept out of this package to avoid an import cycle with match/spectate:
// the router only needs "what is this session's current alias target",
// not the match/spectate registries themselves.
type VirtualAliases interface {
	// SpectatingHostUserID returns the user id of the host this
	// session is currently spectating, or the session's own user id
	// if it is not spectating anyone (chatHelper.py: "if
	// token.spectating is None: s = userID").
	SpectatingHostUserID(s *session.Session) int32
	// CurrentMatchID returns the session's current match id, or 0.
	CurrentMatchID(s *session.Session) int64
}

// Router implements spec.md §4.5 over the channel/session/stream
// registries.
type Router struct {
	Channels  *channel.Registry
	Streams   *streamreg.Registry
	Sessions  *session.Registry
	Aliases   VirtualAliases
	IsAdmin   func(*session.Session) bool
	PublicBit uint64 // privilege bit tested by Session.Restricted

	// OnChatLog is called after a successful PM send or a send to a
	// real channel (not the #spectator/#multiplayer aliases), outside
	// any lock (ADDED-C.6 chat-log egress: chat_logs / chat_chan_logs).
	OnChatLog func(from *session.Session, to string, isChannel bool, message string)
	// Bot, if non-nil, is consulted after a successful channel send or
	// a PM addressed to BotName (spec.md §4.10); a non-empty return
	// is sent back via Send.
	Bot func(fromName, to, message string) string
	// BotSender returns the bot's own session, used as the sender
	// identity when relaying a Bot reply back through Send.
	BotSender func() *session.Session
}

// resolveTarget maps the client-facing name (possibly "#spectator" or
// "#multiplayer") to the real backing channel name, and returns the
// client-facing alias to use in outgoing packets, matching
// chatHelper.py's inline resolution in both partChannel and
// sendMessage.
func (r *Router) resolveTarget(s *session.Session, name string) (real, clientFacing string) {
	switch {
	case name == "#spectator":
		host := r.Aliases.SpectatingHostUserID(s)
		return "#spect_" + strconv.FormatInt(int64(host), 10), name
	case name == "#multiplayer":
		return "#multi_" + strconv.FormatInt(r.Aliases.CurrentMatchID(s), 10), name
	case strings.HasPrefix(name, "#spect_"):
		return name, "#spectator"
	case strings.HasPrefix(name, "#multi_"):
		return name, "#multiplayer"
	default:
		return name, name
	}
}

// Join implements spec.md §4.5 "join".
func (r *Router) Join(s *session.Session, channelName string, force bool) error {
	real, clientFacing := r.resolveTarget(s, channelName)

	desc, ok := r.Channels.Get(real)
	if !ok {
		return banchoerr.New(banchoerr.ChannelUnknown, "%s", real)
	}
	special := strings.HasPrefix(real, "#spect_") || strings.HasPrefix(real, "#multi_")
	if special && !force {
		return banchoerr.New(banchoerr.ChannelUnknown, "%s (special, not forced)", real)
	}
	if s.InChannel(real) {
		return banchoerr.New(banchoerr.UserAlreadyInChannel, "%s", real)
	}
	if !desc.PublicRead && r.IsAdmin != nil && !r.IsAdmin(s) {
		return banchoerr.New(banchoerr.ChannelNoPermissions, "%s", real)
	}

	s.AddJoinedChannel(real)
	r.Streams.Join(desc.StreamName(), s)
	s.MarkJoinedStream(desc.StreamName())
	s.Enqueue(wire.ChannelJoinSuccess(clientFacing))
	return nil
}

// Part implements spec.md §4.5 "part". A PM-tab close (name not
// starting with "#") is a silent no-op, matching chatHelper.py.
func (r *Router) Part(s *session.Session, channelName string, kick, force bool) error {
	if !strings.HasPrefix(channelName, "#") {
		return nil
	}
	real, clientFacing := r.resolveTarget(s, channelName)

	desc, ok := r.Channels.Get(real)
	if !ok {
		return banchoerr.New(banchoerr.ChannelUnknown, "%s", real)
	}
	special := strings.HasPrefix(real, "#spect_") || strings.HasPrefix(real, "#multi_")
	if special && !force {
		return banchoerr.New(banchoerr.ChannelUnknown, "%s (special, not forced)", real)
	}
	if !s.InChannel(real) {
		return banchoerr.New(banchoerr.UserNotInChannel, "%s", real)
	}

	s.RemoveJoinedChannel(real)
	r.Streams.Leave(desc.StreamName(), s)
	s.MarkLeftStream(desc.StreamName())

	r.Channels.RemoveIfEmptyTemp(real)

	if kick {
		s.Enqueue(wire.ChannelKicked(clientFacing))
	}
	return nil
}

// Send implements spec.md §4.5 "send".
func (r *Router) Send(from *session.Session, to, message string) error {
	if from.Restricted(r.PublicBit) {
		return banchoerr.New(banchoerr.UserRestricted, "%s", from.Username)
	}
	if from.Silenced() {
		from.Enqueue(wire.SilenceEndNotify(uint32(from.SilenceSecondsLeft())))
		return banchoerr.New(banchoerr.UserSilenced, "%s", from.Username)
	}

	if strings.HasPrefix(message, "!report") {
		to = BotName
	}

	real, clientFacing := r.resolveTarget(from, to)

	if strings.TrimSpace(message) == "" {
		return banchoerr.New(banchoerr.InvalidArguments, "empty message")
	}
	message = truncate(message)

	packet := wire.MessageNotify(from.Username, message, clientFacing, from.UserID)

	isChannel := strings.HasPrefix(real, "#")
	if isChannel {
		if err := r.sendToChannel(from, real, clientFacing, message, packet); err != nil {
			return err
		}
	} else {
		if err := r.sendToUser(from, real, message, packet); err != nil {
			return err
		}
	}

	if from.UserID > 999 && (r.IsAdmin == nil || !r.IsAdmin(from)) {
		if n := from.IncrementSpam(); n > 10 {
			from.Silence(30 * 60)
		}
	}

	if r.Bot != nil && (isChannel || strings.EqualFold(to, BotName)) {
		if reply := r.Bot(from.Username, to, message); reply != "" {
			replyTo := to
			if !isChannel {
				replyTo = from.Username
			}
			if r.BotSender != nil {
				_ = r.Send(r.BotSender(), replyTo, reply)
			}
		}
	}
	return nil
}

func (r *Router) sendToChannel(from *session.Session, real, clientFacing, message string, packet []byte) error {
	desc, ok := r.Channels.Get(real)
	if !ok {
		return banchoerr.New(banchoerr.ChannelUnknown, "%s", real)
	}
	if desc.Moderated && (r.IsAdmin == nil || !r.IsAdmin(from)) {
		return banchoerr.New(banchoerr.ChannelModerated, "%s", real)
	}
	if !from.InChannel(real) {
		return banchoerr.New(banchoerr.ChannelNoPermissions, "%s", real)
	}
	if !desc.PublicWrite && (r.IsAdmin == nil || !r.IsAdmin(from)) {
		return banchoerr.New(banchoerr.ChannelNoPermissions, "%s", real)
	}

	from.AddMessageToBuffer(real, message)
	r.Streams.Broadcast(desc.StreamName(), packet, map[string]bool{from.ID: true})

	if r.OnChatLog != nil && clientFacing != "#multiplayer" && clientFacing != "#spectator" {
		r.OnChatLog(from, real, true, message)
	}
	return nil
}

func (r *Router) sendToUser(from *session.Session, to, message string, packet []byte) error {
	recipient, ok := r.Sessions.ByName(to, false)
	if !ok {
		return banchoerr.New(banchoerr.UserNotFound, "%s", to)
	}
	if recipient.Restricted(r.PublicBit) && !strings.EqualFold(from.Username, BotName) {
		return banchoerr.New(banchoerr.UserRestricted, "%s", to)
	}

	if !recipient.AwayAlreadyNotified(from.UserID) && recipient.AwayMessage != "" {
		_ = r.Send(recipient, from.Username, "\x01ACTION is away: "+recipient.AwayMessage+"\x01")
	}

	recipient.Enqueue(packet)
	if r.OnChatLog != nil {
		r.OnChatLog(from, to, false, message)
	}
	return nil
}
