package bot

import (
	"strings"
	"testing"
	"time"

	"bancho/internal/channel"
	"bancho/internal/chat"
	"bancho/internal/match"
	"bancho/internal/serverctx"
	"bancho/internal/session"
	"bancho/internal/spectate"
	"bancho/internal/streamreg"
	"bancho/internal/userstore"
)

type fakeStore struct {
	byName map[string]userstore.User
}

func (f *fakeStore) UserByName(safeUsername string) (userstore.User, bool, error) {
	u, ok := f.byName[safeUsername]
	return u, ok, nil
}
func (f *fakeStore) UserByID(userID int32) (userstore.User, bool, error) {
	for _, u := range f.byName {
		if u.ID == userID {
			return u, true, nil
		}
	}
	return userstore.User{}, false, nil
}
func (f *fakeStore) PasswordHash(userID int32) (string, error)     { return "", nil }
func (f *fakeStore) UpdateSilence(userID int32, until int64) error { return nil }
func (f *fakeStore) UpdatePrivileges(userID int32, privileges uint64) error {
	for name, u := range f.byName {
		if u.ID == userID {
			u.Privileges = privileges
			f.byName[name] = u
		}
	}
	return nil
}
func (f *fakeStore) UpdateCountry(userID int32, country byte) error      { return nil }
func (f *fakeStore) FriendIDs(userID int32) ([]int32, error)             { return nil, nil }
func (f *fakeStore) ChannelList() ([]userstore.ChannelRow, error)        { return nil, nil }
func (f *fakeStore) AppendChatLog(int32, string, string, time.Time) error { return nil }
func (f *fakeStore) AppendMatchLog(uint32, string, time.Time) error       { return nil }
func (f *fakeStore) InsertBan(int32, string, int32, time.Time) error      { return nil }
func (f *fakeStore) Close() error                                        { return nil }

type noopAliases struct{}

func (noopAliases) SpectatingHostUserID(s *session.Session) int32 { return s.UserID }
func (noopAliases) CurrentMatchID(s *session.Session) int64       { return 0 }

func newTestBot(t *testing.T, store *fakeStore) (*Bot, *serverctx.Context) {
	t.Helper()
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
	ctx := &serverctx.Context{
		Store:      store,
		Sessions:   sessions,
		Channels:   channels,
		Streams:    streams,
		Matches:    matches,
		Spectators: spectators,
		Chat:       router,
		Settings:   serverctx.NewSettings(),
		PublicBit:  session.PrivPublic,
	}
	return New(ctx, "FokaBot"), ctx
}

func addSession(ctx *serverctx.Context, userID int32, name string, privileges uint64) *session.Session {
	s := session.New(userID, "127.0.0.1", false, 0)
	s.Username, s.SafeUsername = name, session.NormalizeUsername(name)
	s.Privileges = privileges
	ctx.Sessions.Add(s)
	return s
}

func TestHandleRollReturnsMessage(t *testing.T) {
	store := &fakeStore{byName: map[string]userstore.User{}}
	b, ctx := newTestBot(t, store)
	addSession(ctx, 1, "alice", session.PrivNormal|session.PrivPublic)

	reply := b.Handle("alice", "#osu", "!roll")
	if !strings.Contains(reply, "alice rolls") {
		t.Fatalf("unexpected roll reply: %q", reply)
	}
}

func TestHandleUnknownSenderReturnsEmpty(t *testing.T) {
	store := &fakeStore{byName: map[string]userstore.User{}}
	b, _ := newTestBot(t, store)

	if reply := b.Handle("ghost", "#osu", "!roll"); reply != "" {
		t.Fatalf("expected no reply for unknown sender, got %q", reply)
	}
}

func TestHandlePrivilegedCommandRejectsNonAdmin(t *testing.T) {
	store := &fakeStore{byName: map[string]userstore.User{}}
	b, ctx := newTestBot(t, store)
	addSession(ctx, 1, "alice", session.PrivNormal|session.PrivPublic)

	if reply := b.Handle("alice", "#osu", "!system restart"); reply != "" {
		t.Fatalf("expected no reply for a non-admin privileged command, got %q", reply)
	}
	if ctx.Settings.Restarting() {
		t.Fatal("expected restarting flag to remain unset")
	}
}

func TestHandleKickRemovesVictimSession(t *testing.T) {
	store := &fakeStore{byName: map[string]userstore.User{}}
	b, ctx := newTestBot(t, store)
	addSession(ctx, 1, "admin", session.PrivNormal|session.PrivPublic|session.PrivAdmin)
	victim := addSession(ctx, 2, "bob", session.PrivNormal|session.PrivPublic)

	reply := b.Handle("admin", "#osu", "!kick bob")
	if !strings.Contains(reply, "kicked") {
		t.Fatalf("unexpected kick reply: %q", reply)
	}
	if _, ok := ctx.Sessions.Get(victim.ID); ok {
		t.Fatal("expected victim session to be removed")
	}
}

func TestHandleBanUpdatesStorePrivileges(t *testing.T) {
	store := &fakeStore{byName: map[string]userstore.User{
		"bob": {ID: 2, Username: "bob", Privileges: session.PrivNormal | session.PrivPublic},
	}}
	b, ctx := newTestBot(t, store)
	addSession(ctx, 1, "admin", session.PrivNormal|session.PrivPublic|session.PrivAdmin)

	reply := b.Handle("admin", "#osu", "!ban bob")
	if !strings.Contains(reply, "RIP bob") {
		t.Fatalf("unexpected ban reply: %q", reply)
	}
	if store.byName["bob"].Privileges&3 != 0 {
		t.Fatal("expected banned user's privileges to be cleared")
	}
}

func TestHandleDefaultGreetingForPlainPM(t *testing.T) {
	store := &fakeStore{byName: map[string]userstore.User{}}
	b, ctx := newTestBot(t, store)
	addSession(ctx, 1, "alice", session.PrivNormal|session.PrivPublic)

	reply := b.Handle("alice", "FokaBot", "hello there")
	if !strings.Contains(reply, "Hello I'm FokaBot") {
		t.Fatalf("expected canned greeting, got %q", reply)
	}
}

func TestHandleSyntaxGateRejectsShortArgs(t *testing.T) {
	store := &fakeStore{byName: map[string]userstore.User{}}
	b, ctx := newTestBot(t, store)
	addSession(ctx, 1, "admin", session.PrivNormal|session.PrivPublic|session.PrivAdmin)

	reply := b.Handle("admin", "#osu", "!kick")
	if !strings.HasPrefix(reply, "Wrong syntax") {
		t.Fatalf("expected a syntax error, got %q", reply)
	}
}
