package dispatch

import (
	"testing"
	"time"

	"bancho/internal/bot"
	"bancho/internal/channel"
	"bancho/internal/chat"
	"bancho/internal/match"
	"bancho/internal/serverctx"
	"bancho/internal/session"
	"bancho/internal/spectate"
	"bancho/internal/streamreg"
	"bancho/internal/userstore"
	"bancho/internal/wire"
)

type fakeStore struct{}

func (fakeStore) UserByName(safeUsername string) (userstore.User, bool, error) {
	return userstore.User{}, false, nil
}
func (fakeStore) UserByID(userID int32) (userstore.User, bool, error) {
	return userstore.User{}, false, nil
}
func (fakeStore) PasswordHash(userID int32) (string, error)              { return "", nil }
func (fakeStore) UpdateSilence(userID int32, until int64) error          { return nil }
func (fakeStore) UpdatePrivileges(userID int32, privileges uint64) error { return nil }
func (fakeStore) UpdateCountry(userID int32, country byte) error         { return nil }
func (fakeStore) FriendIDs(userID int32) ([]int32, error)                { return nil, nil }
func (fakeStore) ChannelList() ([]userstore.ChannelRow, error)           { return nil, nil }
func (fakeStore) AppendChatLog(int32, string, string, time.Time) error   { return nil }
func (fakeStore) AppendMatchLog(uint32, string, time.Time) error         { return nil }
func (fakeStore) InsertBan(int32, string, int32, time.Time) error        { return nil }
func (fakeStore) Close() error                                          { return nil }

type noopAliases struct{}

func (noopAliases) SpectatingHostUserID(s *session.Session) int32 { return s.UserID }
func (noopAliases) CurrentMatchID(s *session.Session) int64       { return 0 }

func newTestDispatcher(t *testing.T) (*Dispatcher, *serverctx.Context) {
	t.Helper()
	streams := streamreg.New()
	streams.Add("main")
	streams.Add("lobby")
	channels := channel.New(streams)
	channels.Load([]channel.Descriptor{{Name: "#osu", PublicRead: true, PublicWrite: true}})
	sessions := session.NewRegistry()
	matches := match.NewRegistry(streams, channels)
	spectators := &spectate.Manager{Streams: streams, Channels: channels}
	router := &chat.Router{
		Channels:  channels,
		Streams:   streams,
		Sessions:  sessions,
		Aliases:   noopAliases{},
		PublicBit: session.PrivPublic,
	}
	ctx := &serverctx.Context{
		Store:      fakeStore{},
		Sessions:   sessions,
		Channels:   channels,
		Streams:    streams,
		Matches:    matches,
		Spectators: spectators,
		Chat:       router,
		Settings:   serverctx.NewSettings(),
		PublicBit:  session.PrivPublic,
	}
	b := bot.New(ctx, "FokaBot")
	return New(ctx, b), ctx
}

func addSession(ctx *serverctx.Context, userID int32, name string) *session.Session {
	s := session.New(userID, "127.0.0.1", false, 0)
	s.Username, s.SafeUsername = name, session.NormalizeUsername(name)
	s.Privileges = session.PrivNormal | session.PrivPublic
	ctx.Sessions.Add(s)
	return s
}

func frame(id uint16, w *wire.Writer) wire.Frame {
	return wire.Frame{ID: id, Payload: w.Bytes()}
}

func TestHandlePongUpdatesLastSeen(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	s := addSession(ctx, 1, "alice")
	s.LastSeen = 0

	d.Handle(s, frame(wire.ClientPong, wire.NewWriter(0)))

	if s.LastSeen == 0 {
		t.Fatal("expected LastSeen to be refreshed")
	}
}

func TestHandleChangeActionUpdatesAndBroadcasts(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	s := addSession(ctx, 1, "alice")
	other := addSession(ctx, 2, "bob")

	w := wire.NewWriter(32)
	w.Byte(2).String("playing a map").String("abc123").UInt32(16).Byte(0).SInt32(456)
	d.Handle(s, frame(wire.ClientChangeAction, w))

	if s.Action.ID != 2 || s.Action.BeatmapID != 456 || s.Action.Text != "playing a map" {
		t.Fatalf("unexpected action state: %+v", s.Action)
	}
	if len(other.DrainQueue()) == 0 {
		t.Fatal("expected bob to receive the broadcast stats packet")
	}
}

func TestHandleLogoutRemovesSession(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	s := addSession(ctx, 1, "alice")

	d.Handle(s, frame(wire.ClientLogout, wire.NewWriter(0)))

	if _, ok := ctx.Sessions.Get(s.ID); ok {
		t.Fatal("expected session to be removed after ClientLogout")
	}
}

func TestHandleChannelJoinAndPart(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	s := addSession(ctx, 1, "alice")

	w := wire.NewWriter(8)
	w.String("#osu")
	d.Handle(s, frame(wire.ClientChannelJoin, w))
	if !s.InChannel("#osu") {
		t.Fatal("expected alice to have joined #osu")
	}

	w2 := wire.NewWriter(8)
	w2.String("#osu")
	d.Handle(s, frame(wire.ClientChannelPart, w2))
	if s.InChannel("#osu") {
		t.Fatal("expected alice to have left #osu")
	}
}

func TestHandleSendPublicMessageReachesChannel(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	s := addSession(ctx, 1, "alice")
	other := addSession(ctx, 2, "bob")
	_ = ctx.Chat.Join(s, "#osu", false)
	_ = ctx.Chat.Join(other, "#osu", false)

	w := wire.NewWriter(32)
	w.String("alice").String("hello!").String("#osu")
	d.Handle(s, frame(wire.ClientSendPublicMessage, w))

	if len(other.DrainQueue()) == 0 {
		t.Fatal("expected bob to receive the channel message")
	}
}

func TestHandleStartAndStopSpectating(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	host := addSession(ctx, 1, "host")
	spec := addSession(ctx, 2, "watcher")

	w := wire.NewWriter(8)
	w.SInt32(host.UserID)
	d.Handle(spec, frame(wire.ClientStartSpectating, w))
	if spec.Spectating() != host {
		t.Fatal("expected watcher to be spectating host")
	}

	d.Handle(spec, frame(wire.ClientStopSpectating, wire.NewWriter(0)))
	if spec.Spectating() != nil {
		t.Fatal("expected watcher to have stopped spectating")
	}
}

func TestHandleCreateMatchJoinsCreator(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	host := addSession(ctx, 1, "host")

	w := wire.NewWriter(64)
	w.UInt16(0).Byte(0).Byte(0).UInt32(0)
	w.String("my room").String("")
	w.String("Some Beatmap").SInt32(123).String("md5")
	for i := 0; i < 16; i++ {
		w.Byte(match.SlotFree)
	}
	for i := 0; i < 16; i++ {
		w.Byte(0)
	}
	w.SInt32(host.UserID)
	w.Byte(0).Byte(0).Byte(0).Byte(0)

	d.Handle(host, frame(wire.ClientCreateMatch, w))

	if host.MatchID == 0 {
		t.Fatal("expected host to have joined the newly created match")
	}
	m, ok := ctx.Matches.Get(uint32(host.MatchID))
	if !ok || m.Name != "my room" {
		t.Fatalf("expected a match named %q, got %+v", "my room", m)
	}
}

func TestHandleUnknownPacketIsIgnored(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	s := addSession(ctx, 1, "alice")

	d.Handle(s, wire.Frame{ID: 65535, Payload: nil})

	if _, ok := ctx.Sessions.Get(s.ID); !ok {
		t.Fatal("unknown packet must not disrupt session state")
	}
}
