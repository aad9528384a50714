package pubsub

import (
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
	byID map[int32]userstore.User
}

func (f *fakeStore) UserByName(safeUsername string) (userstore.User, bool, error) {
	for _, u := range f.byID {
		if u.Username == safeUsername {
			return u, true, nil
		}
	}
	return userstore.User{}, false, nil
}
func (f *fakeStore) UserByID(userID int32) (userstore.User, bool, error) {
	u, ok := f.byID[userID]
	return u, ok, nil
}
func (f *fakeStore) PasswordHash(userID int32) (string, error)         { return "", nil }
func (f *fakeStore) UpdateSilence(userID int32, until int64) error     { return nil }
func (f *fakeStore) UpdatePrivileges(userID int32, privileges uint64) error {
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

func newTestListener(t *testing.T, store *fakeStore) (*Listener, *session.Session) {
	t.Helper()
	streams := streamreg.New()
	streams.Add("main")
	channels := channel.New(streams)
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

	sess := session.New(1, "127.0.0.1", false, 0)
	sess.Username, sess.SafeUsername = "alice", "alice"
	sess.Privileges = session.PrivNormal | session.PrivPublic
	sessions.Add(sess)

	l := New(ctx, nil, nil, nil)
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return l, sess
}

func TestOnDisconnectLogsOutSession(t *testing.T) {
	store := &fakeStore{byID: map[int32]userstore.User{1: {ID: 1, Username: "alice"}}}
	l, sess := newTestListener(t, store)

	l.Bus.Publish(TopicDisconnect, int32(1))
	time.Sleep(10 * time.Millisecond)

	if _, ok := l.Ctx.Sessions.Get(sess.ID); ok {
		t.Fatal("expected session to be removed after peppy:disconnect")
	}
}

func TestOnSilenceRefreshesFromStore(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	store := &fakeStore{byID: map[int32]userstore.User{1: {ID: 1, Username: "alice", SilenceEnd: future}}}
	l, sess := newTestListener(t, store)

	l.Bus.Publish(TopicSilence, int32(1))
	time.Sleep(10 * time.Millisecond)

	if sess.SilenceEnd != future {
		t.Fatalf("expected silence_end %d, got %d", future, sess.SilenceEnd)
	}
}

func TestOnRefreshPrivsUpdatesSession(t *testing.T) {
	store := &fakeStore{byID: map[int32]userstore.User{1: {ID: 1, Username: "alice", Privileges: session.PrivNormal}}}
	l, sess := newTestListener(t, store)

	l.Bus.Publish(TopicRefreshPrivs, int32(1))
	time.Sleep(10 * time.Millisecond)

	if sess.Privileges != session.PrivNormal {
		t.Fatalf("expected privileges to be refreshed to %d, got %d", session.PrivNormal, sess.Privileges)
	}
}

func TestOnSetMainMenuIconUpdatesSettings(t *testing.T) {
	store := &fakeStore{byID: map[int32]userstore.User{}}
	l, _ := newTestListener(t, store)

	l.Bus.Publish(TopicSetMainMenuIcon, "icon.png|https://example.com")
	time.Sleep(10 * time.Millisecond)

	if got := l.Ctx.Settings.MenuIcon(); got != "icon.png|https://example.com" {
		t.Fatalf("unexpected menu icon: %q", got)
	}
}

func TestOnChangeUsernameUpdatesSession(t *testing.T) {
	store := &fakeStore{byID: map[int32]userstore.User{1: {ID: 1, Username: "alice"}}}
	l, sess := newTestListener(t, store)

	l.Bus.Publish(TopicChangeUsername, int32(1), "newname")
	time.Sleep(10 * time.Millisecond)

	if sess.Username != "newname" || sess.SafeUsername != "newname" {
		t.Fatalf("expected username to be updated, got %q/%q", sess.Username, sess.SafeUsername)
	}
}
