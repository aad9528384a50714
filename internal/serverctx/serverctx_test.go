package serverctx

import (
	"testing"

	"bancho/internal/channel"
	"bancho/internal/chat"
	"bancho/internal/match"
	"bancho/internal/session"
	"bancho/internal/spectate"
	"bancho/internal/streamreg"
)

type noopAliases struct{}

func (noopAliases) SpectatingHostUserID(s *session.Session) int32 { return s.UserID }
func (noopAliases) CurrentMatchID(s *session.Session) int64       { return 0 }

func newTestContext() *Context {
	streams := streamreg.New()
	streams.Add("main")
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
	return &Context{
		Sessions:   sessions,
		Channels:   channels,
		Streams:    streams,
		Matches:    matches,
		Spectators: spectators,
		Chat:       router,
		Settings:   NewSettings(),
		PublicBit:  session.PrivPublic,
	}
}

func TestLogoutRemovesSessionAndChannels(t *testing.T) {
	ctx := newTestContext()
	s := session.New(1, "127.0.0.1", false, 0)
	s.Username = "alice"
	s.SafeUsername = "alice"
	s.Privileges = session.PrivNormal | session.PrivPublic
	ctx.Sessions.Add(s)

	if err := ctx.Chat.Join(s, "#osu", true); err != nil {
		t.Fatalf("join: %v", err)
	}
	if !s.InChannel("#osu") {
		t.Fatal("expected session to be in #osu before logout")
	}

	if err := ctx.Logout(s); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, ok := ctx.Sessions.Get(s.ID); ok {
		t.Fatal("expected session to be removed from the registry")
	}
	if s.InChannel("#osu") {
		t.Fatal("expected #osu to be parted on logout")
	}
}

func TestLogoutStopsSpectatingAndSpectators(t *testing.T) {
	ctx := newTestContext()
	host := session.New(1, "1.1.1.1", false, 0)
	host.Username, host.SafeUsername = "host", "host"
	host.Privileges = session.PrivNormal | session.PrivPublic
	spec := session.New(2, "2.2.2.2", false, 0)
	spec.Username, spec.SafeUsername = "spec", "spec"
	spec.Privileges = session.PrivNormal | session.PrivPublic
	ctx.Sessions.Add(host)
	ctx.Sessions.Add(spec)

	if err := ctx.Spectators.Start(spec, host); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if host.SpectatorCount() != 1 {
		t.Fatalf("expected 1 spectator, got %d", host.SpectatorCount())
	}

	if err := ctx.Logout(host); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if spec.Spectating() != nil {
		t.Fatal("expected spectator to be detached when host logs out")
	}
}

func TestSettingsToggles(t *testing.T) {
	s := NewSettings()
	if s.Maintenance() || s.Restarting() {
		t.Fatal("expected settings to start false")
	}
	s.SetMaintenance(true)
	s.SetRestarting(true)
	s.SetMenuIcon("icon.png|https://example.com")
	if !s.Maintenance() || !s.Restarting() {
		t.Fatal("expected settings to reflect the set values")
	}
	if s.MenuIcon() != "icon.png|https://example.com" {
		t.Fatalf("unexpected menu icon: %q", s.MenuIcon())
	}
}
