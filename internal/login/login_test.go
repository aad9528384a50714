package login

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bancho/internal/channel"
	"bancho/internal/chat"
	"bancho/internal/session"
	"bancho/internal/streamreg"
	"bancho/internal/userstore"
	"bancho/internal/wire"
)

type fakeStore struct {
	users     map[string]userstore.User
	byID      map[int32]userstore.User
	passwords map[int32]string // bcrypt hash
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]userstore.User),
		byID:      make(map[int32]userstore.User),
		passwords: make(map[int32]string),
	}
}

func (f *fakeStore) addUser(u userstore.User, plaintextPassword string) {
	f.users[u.Username] = u
	f.byID[u.ID] = u
	hash, _ := bcrypt.GenerateFromPassword([]byte(plaintextPassword), bcrypt.MinCost)
	f.passwords[u.ID] = string(hash)
}

func (f *fakeStore) UserByName(safeUsername string) (userstore.User, bool, error) {
	u, ok := f.users[safeUsername]
	return u, ok, nil
}
func (f *fakeStore) UserByID(userID int32) (userstore.User, bool, error) {
	u, ok := f.byID[userID]
	return u, ok, nil
}
func (f *fakeStore) PasswordHash(userID int32) (string, error) { return f.passwords[userID], nil }
func (f *fakeStore) UpdateSilence(userID int32, until int64) error { return nil }
func (f *fakeStore) UpdatePrivileges(userID int32, privileges uint64) error {
	u := f.byID[userID]
	u.Privileges = privileges
	f.byID[userID] = u
	f.users[u.Username] = u
	return nil
}
func (f *fakeStore) UpdateCountry(userID int32, country byte) error { return nil }
func (f *fakeStore) FriendIDs(userID int32) ([]int32, error)       { return nil, nil }
func (f *fakeStore) ChannelList() ([]userstore.ChannelRow, error)  { return nil, nil }
func (f *fakeStore) AppendChatLog(fromUserID int32, target, message string, when time.Time) error {
	return nil
}
func (f *fakeStore) AppendMatchLog(matchID uint32, message string, when time.Time) error {
	return nil
}
func (f *fakeStore) InsertBan(userID int32, reason string, bannedBy int32, when time.Time) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }

func newTestDeps(t *testing.T, store *fakeStore) *Deps {
	t.Helper()
	streams := streamreg.New()
	channels := channel.New(streams)
	channels.Load([]channel.Descriptor{
		{Name: "#osu", PublicRead: true, PublicWrite: true},
		{Name: "#announce", PublicRead: true, PublicWrite: true},
		{Name: "#admin", PublicRead: false, PublicWrite: true, Hidden: true},
	})
	sessions := session.NewRegistry()
	router := &chat.Router{
		Channels:  channels,
		Streams:   streams,
		Sessions:  sessions,
		PublicBit: session.PrivPublic,
		Aliases:   noopAliases{},
	}
	return &Deps{
		Store:              store,
		Sessions:           sessions,
		Channels:            channels,
		Streams:              streams,
		Chat:                 router,
		PublicBit:            session.PrivPublic,
		PendingVerifyBit:     session.PrivPendingVerification,
		DonorBit:             session.PrivDonor,
		TournamentStaffBit:   session.PrivTournamentStaff,
		AdminRank:            func(s *session.Session) bool { return s.IsAdmin() },
	}
}

type noopAliases struct{}

func (noopAliases) SpectatingHostUserID(s *session.Session) int32 { return s.UserID }
func (noopAliases) CurrentMatchID(s *session.Session) int64      { return 0 }

func TestHandleSuccessfulLoginWelcomeOrdering(t *testing.T) {
	store := newFakeStore()
	store.addUser(userstore.User{ID: 1, Username: "alice", Privileges: session.PrivNormal | session.PrivPublic}, "hunter2md5")

	deps := newTestDeps(t, store)
	req := Request{
		Username:    "alice",
		PasswordMD5: "hunter2md5",
		IP:          "127.0.0.1",
		ClientInfo:  ClientInfo{OSUVersion: "b20231001.1", TimeOffset: 0},
	}

	result := Handle(deps, req)
	if result.TokenID == "" {
		t.Fatalf("expected a session id, got empty body %x", result.Body)
	}

	frames, err := wire.ReadFrames(result.Body)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	wantIDs := []uint16{
		wire.ServerSilenceEnd,
		wire.ServerUserID,
		wire.ServerProtocolVersion,
		wire.ServerSupporterGMT,
		wire.ServerUserPanel,
		wire.ServerUserStats,
		wire.ServerChannelInfoEnd,
		wire.ServerFriendsList,
	}
	if len(frames) < len(wantIDs) {
		t.Fatalf("expected at least %d frames, got %d", len(wantIDs), len(frames))
	}
	for i, id := range wantIDs {
		if frames[i].ID != id {
			t.Fatalf("frame %d: want packet id %d, got %d", i, id, frames[i].ID)
		}
	}

	sess, ok := deps.Sessions.ByUserID(1)
	if !ok {
		t.Fatal("expected session to be registered")
	}
	if !sess.InChannel("#osu") || !sess.InChannel("#announce") {
		t.Fatal("expected auto-join of #osu and #announce")
	}
	if sess.InChannel("#admin") {
		t.Fatal("non-admin should not auto-join #admin")
	}
}

func TestHandleUnknownUserReturnsLoginFailed(t *testing.T) {
	store := newFakeStore()
	deps := newTestDeps(t, store)

	result := Handle(deps, Request{Username: "ghost", PasswordMD5: "x", ClientInfo: ClientInfo{OSUVersion: "b20231001.1"}})
	if result.TokenID != "" {
		t.Fatal("expected no session id on failed login")
	}
	frames, err := wire.ReadFrames(result.Body)
	if err != nil || len(frames) == 0 {
		t.Fatalf("ReadFrames: %v, %d frames", err, len(frames))
	}
	if frames[len(frames)-1].ID != wire.ServerUserID {
		t.Fatalf("expected trailing login-failed reply, got id %d", frames[len(frames)-1].ID)
	}
}

func TestHandleWrongPasswordFails(t *testing.T) {
	store := newFakeStore()
	store.addUser(userstore.User{ID: 2, Username: "bob", Privileges: session.PrivNormal | session.PrivPublic}, "correct")
	deps := newTestDeps(t, store)

	result := Handle(deps, Request{Username: "bob", PasswordMD5: "wrong", ClientInfo: ClientInfo{OSUVersion: "b20231001.1"}})
	if result.TokenID != "" {
		t.Fatal("expected login failure for wrong password")
	}
}

func TestHandleBannedUserGetsLoginBanned(t *testing.T) {
	store := newFakeStore()
	store.addUser(userstore.User{ID: 3, Username: "carl", Privileges: 0}, "pw")
	deps := newTestDeps(t, store)

	result := Handle(deps, Request{Username: "carl", PasswordMD5: "pw", ClientInfo: ClientInfo{OSUVersion: "b20231001.1"}})
	if result.TokenID != "" {
		t.Fatal("expected login-banned, no session created")
	}
}

func TestHandleCheatClientIsRejectedAndRestricted(t *testing.T) {
	store := newFakeStore()
	store.addUser(userstore.User{ID: 4, Username: "dan", Privileges: session.PrivNormal | session.PrivPublic}, "pw")
	deps := newTestDeps(t, store)

	result := Handle(deps, Request{Username: "dan", PasswordMD5: "pw", ClientInfo: ClientInfo{OSUVersion: "b20190226.2"}})
	if result.TokenID != "" {
		t.Fatal("expected cheat-client rejection, no session created")
	}
	if store.byID[4].Privileges&3 != 0 {
		t.Fatal("expected offending account to be restricted")
	}
}

func TestParseRequestRejectsShortBody(t *testing.T) {
	if _, err := ParseRequest("only\ntwo", "1.2.3.4"); err == nil {
		t.Fatal("expected an error for a body with fewer than 3 fields")
	}
}

func TestParseRequestExtractsClientInfo(t *testing.T) {
	req, err := ParseRequest("alice\npw\nb20231001.1|5|a:b:c:d:e|uid|disk", "1.2.3.4")
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.ClientInfo.OSUVersion != "b20231001.1" || req.ClientInfo.TimeOffset != 5 {
		t.Fatalf("unexpected client info: %+v", req.ClientInfo)
	}
}
