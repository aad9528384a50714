// Package spectate implements the spectator subsystem (spec.md §4.6):
// derived entirely from sessions and streams, with no state of its
// own beyond what a stream registry + channel registry already
// provide. Grounded on original_source/objects/osuToken.py's
// startSpectating/stopSpectating methods.
package spectate

import (
	"strconv"

	"bancho/internal/banchoerr"
	"bancho/internal/channel"
	"bancho/internal/session"
	"bancho/internal/streamreg"
	"bancho/internal/wire"
)

// Manager wires the spectator operations onto the shared stream and
// channel registries; it holds no subscriber state of its own.
type Manager struct {
	Streams  *streamreg.Registry
	Channels *channel.Registry
}

func streamNameFor(hostUserID int32) string {
	return "spect/" + strconv.FormatInt(int64(hostUserID), 10)
}

func channelNameFor(hostUserID int32) string {
	return "#spect_" + strconv.FormatInt(int64(hostUserID), 10)
}

// Start implements spec.md §4.6 "Start". If spectator is already
// spectating someone else, it stops that first (osuToken.py:
// startSpectating calls stopSpectating unconditionally).
func (m *Manager) Start(spectator, host *session.Session) error {
	if spectator.UserID == host.UserID {
		return banchoerr.New(banchoerr.InvalidArguments, "cannot spectate self")
	}
	if spectator.Spectating() != nil {
		_ = m.Stop(spectator)
	}

	existing := host.Spectators()

	streamName := streamNameFor(host.UserID)
	channelName := channelNameFor(host.UserID)

	m.Streams.Add(streamName)
	if !m.Channels.Exists(channelName) {
		m.Channels.AddTemp(channelName, "spectator chat")
	}

	spectator.SetSpectating(host, host.UserID)
	host.AddSpectator(spectator)

	m.Streams.Join(streamName, spectator)
	spectator.MarkJoinedStream(streamName)
	firstSpectator := len(existing) == 0
	if firstSpectator {
		m.Streams.Join(streamName, host)
		host.MarkJoinedStream(streamName)
	}

	host.Enqueue(wire.SpectatorAdd(spectator.UserID))

	m.joinSpectatorChannel(spectator, channelName)
	if firstSpectator {
		m.joinSpectatorChannel(host, channelName)
	}

	m.Streams.Broadcast(streamName, wire.FellowSpectatorJoined(spectator.UserID), map[string]bool{host.ID: true, spectator.ID: true})
	for _, prior := range existing {
		spectator.Enqueue(wire.FellowSpectatorJoined(prior.UserID))
	}
	return nil
}

// Stop implements spec.md §4.6 "Stop": reverses Start, and if the
// host's spectator list becomes empty, the host also leaves the
// stream and parts the temp channel.
func (m *Manager) Stop(spectator *session.Session) error {
	host := spectator.Spectating()
	if host == nil {
		return banchoerr.New(banchoerr.InvalidArguments, "not spectating")
	}

	streamName := streamNameFor(host.UserID)
	channelName := channelNameFor(host.UserID)

	host.RemoveSpectator(spectator)
	spectator.ClearSpectating()

	m.Streams.Leave(streamName, spectator)
	spectator.MarkLeftStream(streamName)
	m.leaveSpectatorChannel(spectator, channelName)

	host.Enqueue(wire.SpectatorRemove(spectator.UserID))
	m.Streams.Broadcast(streamName, wire.FellowSpectatorLeft(spectator.UserID), map[string]bool{host.ID: true})

	if host.SpectatorCount() == 0 {
		m.Streams.Leave(streamName, host)
		host.MarkLeftStream(streamName)
		m.leaveSpectatorChannel(host, channelName)
		m.Channels.RemoveIfEmptyTemp(channelName)
	}
	return nil
}

// Frames rebroadcasts a host's spectator-frames payload verbatim to
// its spectator stream, excluding the host itself.
func (m *Manager) Frames(host *session.Session, payload []byte) {
	m.Streams.Broadcast(streamNameFor(host.UserID), wire.SpectatorFrames(payload), map[string]bool{host.ID: true})
}

// CantSpectate forwards a "cannot spectate" notice to the host
// unchanged (spec.md §4.6).
func (m *Manager) CantSpectate(spectator *session.Session) {
	host := spectator.Spectating()
	if host == nil {
		return
	}
	host.Enqueue(wire.SpectatorCantSpectate(spectator.UserID))
}

func (m *Manager) joinSpectatorChannel(s *session.Session, channelName string) {
	if s.InChannel(channelName) {
		return
	}
	desc, ok := m.Channels.Get(channelName)
	if !ok {
		return
	}
	s.AddJoinedChannel(channelName)
	m.Streams.Join(desc.StreamName(), s)
	s.MarkJoinedStream(desc.StreamName())
	s.Enqueue(wire.ChannelJoinSuccess(channelName))
}

func (m *Manager) leaveSpectatorChannel(s *session.Session, channelName string) {
	if !s.InChannel(channelName) {
		return
	}
	desc, ok := m.Channels.Get(channelName)
	if !ok {
		return
	}
	s.RemoveJoinedChannel(channelName)
	m.Streams.Leave(desc.StreamName(), s)
	s.MarkLeftStream(desc.StreamName())
}
