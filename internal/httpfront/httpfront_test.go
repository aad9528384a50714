package httpfront

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bancho/internal/bot"
	"bancho/internal/channel"
	"bancho/internal/chat"
	"bancho/internal/dispatch"
	"bancho/internal/login"
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

func newTestServer(t *testing.T) (*Server, *serverctx.Context) {
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
		Store:      fakeStore{},
		Sessions:   sessions,
		Channels:   channels,
		Streams:    streams,
		Matches:    matches,
		Spectators: spectators,
		Chat:       router,
		Settings:   serverctx.NewSettings(),
		StartTime:  time.Now(),
		PublicBit:  session.PrivPublic,
	}
	b := bot.New(ctx, "FokaBot")
	d := dispatch.New(ctx, b)
	loginDeps := &login.Deps{
		Store:     fakeStore{},
		Sessions:  sessions,
		Channels:  channels,
		Streams:   streams,
		Chat:      router,
		PublicBit: session.PrivPublic,
	}
	return New(ctx, loginDeps, d, b, "secret"), ctx
}

func addSession(ctx *serverctx.Context, userID int32, name string) *session.Session {
	s := session.New(userID, "127.0.0.1", false, 0)
	s.Username, s.SafeUsername = name, session.NormalizeUsername(name)
	s.Privileges = session.PrivNormal | session.PrivPublic
	ctx.Sessions.Add(s)
	return s
}

func TestPacketExchangeUnknownTokenReturnsLoginError(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	req.Header.Set("osu-token", "does-not-exist")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != string(wire.LoginErrorPacket) {
		t.Fatalf("expected the login-error packet body, got %q", rec.Body.String())
	}
}

func TestPacketExchangeDrainsQueue(t *testing.T) {
	srv, ctx := newTestServer(t)
	s := addSession(ctx, 1, "alice")
	s.Enqueue(wire.Notification("hi"))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	req.Header.Set("osu-token", s.ID)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Body.Len() == 0 {
		t.Fatal("expected the queued notification to be drained into the response body")
	}
}

func TestIsOnlineReportsOnlineUser(t *testing.T) {
	srv, ctx := newTestServer(t)
	addSession(ctx, 1, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/isOnline?u=alice", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"result":1`) {
		t.Fatalf("expected result:1, got %s", rec.Body.String())
	}
}

func TestIsOnlineReportsOfflineUser(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/isOnline?u=nobody", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"result":0`) {
		t.Fatalf("expected result:0, got %s", rec.Body.String())
	}
}

func TestServerStatusReportsCounts(t *testing.T) {
	srv, ctx := newTestServer(t)
	addSession(ctx, 1, "alice")
	addSession(ctx, 2, "bob")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/serverStatus", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"connected_users":2`) {
		t.Fatalf("expected connected_users:2, got %s", rec.Body.String())
	}
}

func TestCITriggerRejectsWrongKey(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ciTrigger?k=wrong", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCITriggerAcceptsCorrectKey(t *testing.T) {
	srv, ctx := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ciTrigger?k=secret", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !ctx.Settings.Restarting() {
		t.Fatal("expected the restarting flag to be set")
	}
}

func TestClientSnapshotNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/clients/42", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestClientSnapshotFound(t *testing.T) {
	srv, ctx := newTestServer(t)
	addSession(ctx, 42, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v2/clients/42", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "alice") {
		t.Fatalf("expected 200 with alice's snapshot, got %d %s", rec.Code, rec.Body.String())
	}
}
