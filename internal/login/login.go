// Package login implements the login pipeline (spec.md §4.8), grounded
// line-for-line on original_source/events/loginEvent.py's handle
// function: parse the three-field body, look the user up in one query,
// verify the password, gate on privileges, apply a client-version
// policy, create the session, and enqueue the exact welcome-packet
// sequence.
package login

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bancho/internal/banchoerr"
	"bancho/internal/channel"
	"bancho/internal/chat"
	"bancho/internal/session"
	"bancho/internal/streamreg"
	"bancho/internal/userstore"
	"bancho/internal/wire"
)

// ClientInfo is the pipe-separated third body field (spec.md §4.8):
// osu-version, timezone offset, machine identifier triplet, unique id,
// disk id.
type ClientInfo struct {
	OSUVersion string
	TimeOffset int
	Tournament bool // "tourney" substring in OSUVersion, loginEvent.py's isTournament
}

// Request is the parsed login body.
type Request struct {
	Username     string
	PasswordMD5  string
	ClientInfo   ClientInfo
	IP           string
}

// restrictReason maps a handful of known cheat-client osu! version
// strings to the note appended when the offending account is
// restricted (loginEvent.py's Ainu/hqOsu/skoot branches).
var restrictReason = map[string]string{
	"0Ainu":       "User restricted on login for Ainu Client 2019 (or older).",
	"b20190326.2": "User restricted on login for Ainu Client 2019 (or older).",
	"b20191223.3": "User restricted on login for Ainu Client 2019 (or older).",
	"b20190226.2": "User restricted on login for HQOsu (normal).",
	"b20190716.5": "User restricted on login for HQOsu (legacy).",
}

// ParseRequest splits the wrapper-stripped POST body into its three
// newline-separated fields, matching loginEvent.py's
// `str(body)[2:-3].split("\\n")` followed by the pipe/colon splits on
// the third field.
func ParseRequest(body string, ip string) (Request, error) {
	parts := strings.SplitN(body, "\n", 3)
	if len(parts) < 3 {
		return Request{}, banchoerr.New(banchoerr.InvalidArguments, "expected 3 newline-separated fields, got %d", len(parts))
	}

	fields := strings.Split(parts[2], "|")
	if len(fields) < 2 {
		return Request{}, banchoerr.New(banchoerr.InvalidArguments, "missing client-info fields")
	}
	osuVersion := fields[0]
	timeOffset, err := strconv.Atoi(fields[1])
	if err != nil {
		return Request{}, banchoerr.New(banchoerr.InvalidArguments, "non-numeric time offset %q", fields[1])
	}

	return Request{
		Username:    parts[0],
		PasswordMD5: parts[1],
		IP:          ip,
		ClientInfo: ClientInfo{
			OSUVersion: osuVersion,
			TimeOffset: timeOffset,
			Tournament: strings.Contains(osuVersion, "tourney"),
		},
	}, nil
}

// HardwareChecker is the deferred hardware/multi-account check (spec.md
// §4.8 step 5); nil means "always allowed" (e.g. in tests).
type HardwareChecker func(userID int32, info ClientInfo) (allowed bool)

// GeoLocator resolves an IP to a country id plus coordinates (spec.md
// §4.8 step 9), grounded on original_source/helpers/geo_helper.py's
// get_full.
type GeoLocator func(ip string) (country byte, latitude, longitude float32)

// Deps bundles everything the pipeline needs, replacing the reference
// implementation's glob module singletons (spec.md §9 design note).
type Deps struct {
	Store    userstore.Store
	Cache    *userstore.Cache
	Sessions *session.Registry
	Channels *channel.Registry
	Streams  *streamreg.Registry
	Chat     *chat.Router

	PublicBit           uint64
	PendingVerifyBit    uint64
	DonorBit            uint64
	TournamentStaffBit  uint64

	Hardware HardwareChecker
	GeoLocate GeoLocator
	MenuIcon  func() string // empty string means no menu icon packet

	Maintenance func() bool // glob.banchoConf.config["banchoMaintenance"]
	Restarting  func() bool
	AdminRank   func(s *session.Session) bool // session.IsAdmin, injected for testability
}

// Result is what Handle hands back to the HTTP front: the session id
// (empty on any failure path) and the exact response body bytes.
type Result struct {
	TokenID string
	Body    []byte
}

// Handle runs the full pipeline described in spec.md §4.8. It never
// returns a Go error: every failure mode degrades to a protocol-level
// response, exactly like loginEvent.py's try/except ladder.
func Handle(d *Deps, req Request) Result {
	safeUsername := session.NormalizeUsername(strings.TrimRight(req.Username, " "))

	user, found, err := d.Store.UserByName(safeUsername)
	if err != nil || !found {
		return Result{Body: concat(wire.Notification("RealistikOsu: This user does not exist!"), wire.LoginFailedPacket)}
	}

	if !verifyPassword(d, user.ID, req.PasswordMD5) {
		return Result{Body: concat(wire.Notification("RealistikOsu: Invalid password!"), wire.LoginFailedPacket)}
	}

	if user.Privileges&3 == 0 && user.Privileges&d.PendingVerifyBit == 0 {
		return Result{Body: wire.LoginBanned("RealistikOsu: You have been banned!")}
	}

	if d.Hardware != nil && !d.Hardware(user.ID, req.ClientInfo) {
		return Result{Body: concat(wire.ForceUpdatePacket, wire.Notification("What..."))}
	}

	if reason, blocked := restrictReason[req.ClientInfo.OSUVersion]; blocked {
		_ = d.Store.UpdatePrivileges(user.ID, user.Privileges&^3)
		_ = d.Store.InsertBan(user.ID, reason, 0, time.Now())
		return Result{Body: wire.LoginCheatClient(reason)}
	}

	if d.Restarting != nil && d.Restarting() {
		return Result{Body: concat(wire.Notification("Bancho is restarting. Try again in a few minutes."), wire.LoginFailedPacket)}
	}

	if !isTournament(req.ClientInfo) {
		for _, old := range d.Sessions.AllByUserID(user.ID) {
			d.Sessions.Delete(old.ID)
		}
	}

	sess := session.New(user.ID, req.IP, isTournament(req.ClientInfo), req.ClientInfo.TimeOffset)
	sess.Username = user.Username
	sess.SafeUsername = safeUsername
	sess.Privileges = user.Privileges
	sess.SilenceEnd = user.SilenceEnd

	restricted := sess.Restricted(d.PublicBit)
	isAdmin := d.AdminRank != nil && d.AdminRank(sess)

	if d.Maintenance != nil && d.Maintenance() && !isAdmin {
		return Result{Body: concat(wire.Notification("Our bancho server is in maintenance mode. Please try to login again later."), wire.LoginFailedPacket)}
	}

	d.Sessions.Add(sess)
	if d.Maintenance != nil && d.Maintenance() && isAdmin {
		sess.Enqueue(wire.Notification("Bancho is in maintenance mode. Only mods/admins have full access to the server.\nType !system maintenance off in chat to turn off maintenance mode."))
	}

	enqueueWelcome(d, sess, restricted, isAdmin)

	if d.GeoLocate != nil {
		country, lat, lon := d.GeoLocate(req.IP)
		sess.Country = country
		sess.Latitude = lat
		sess.Longitude = lon
		if user.Country == 0 {
			_ = d.Store.UpdateCountry(user.ID, country)
		}
	}

	if !restricted {
		d.Streams.Broadcast("main", wire.UserPresence(sess.UserID, sess.Username, byte(24+sess.TimeOffset/60), sess.Country, presenceRank(sess, isAdmin, d.DonorBit), 0, sess.Latitude, sess.Longitude, 0), nil)
	}

	return Result{TokenID: sess.ID, Body: sess.DrainQueue()}
}

func isTournament(info ClientInfo) bool { return info.Tournament }

// verifyPassword implements spec.md §4.8 step 3: cached-hash fast path,
// falling back to bcrypt, caching on success.
func verifyPassword(d *Deps, userID int32, passwordMD5 string) bool {
	if d.Cache != nil {
		if ok, err := d.Cache.MatchesCache(userID, passwordMD5); err == nil && ok {
			return true
		}
	}
	hash, err := d.Store.PasswordHash(userID)
	if err != nil {
		return false
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(passwordMD5)) != nil {
		return false
	}
	if d.Cache != nil {
		_ = d.Cache.CachePassword(userID, passwordMD5)
	}
	return true
}

// presenceRank mirrors user_presence's userRank username-colouring
// rule: one rank flag selected by privilege, most-privileged first.
func presenceRank(s *session.Session, isAdmin bool, donorBit uint64) byte {
	switch {
	case s.Privileges&session.PrivDeveloper != 0:
		return byte(session.RankAdmin)
	case isAdmin:
		return byte(session.RankMod)
	case s.Privileges&donorBit != 0:
		return byte(session.RankSupporter)
	default:
		return byte(session.RankNormal)
	}
}

// enqueueWelcome appends the exact welcome-packet sequence from
// spec.md §4.8 step 8.
func enqueueWelcome(d *Deps, sess *session.Session, restricted, isAdmin bool) {
	sess.Enqueue(wire.SilenceEndNotify(uint32(sess.SilenceSecondsLeft())))
	sess.Enqueue(wire.LoginReply(sess.UserID))
	sess.Enqueue(wire.ProtocolVersionPacket)

	flags := session.RankNormal
	if !restricted {
		flags |= session.RankSupporter
	}
	if isAdmin {
		flags |= session.RankBAT
	}
	if sess.Privileges&d.TournamentStaffBit != 0 {
		flags |= session.RankTournamentStaff
	}
	sess.Enqueue(wire.BanchoPriv(flags))

	sess.Enqueue(wire.UserPresence(sess.UserID, sess.Username, byte(24+sess.TimeOffset/60), sess.Country, presenceRank(sess, isAdmin, d.DonorBit), 0, sess.Latitude, sess.Longitude, 0))
	sess.Enqueue(wire.UserStats(sess.UserID, sess.Action.ID, sess.Action.Text, sess.Action.MD5, sess.Action.Mods, sess.Action.GameMode, sess.Action.BeatmapID, sess.Stats.RankedScore, sess.Stats.Accuracy, sess.Stats.Playcount, sess.Stats.TotalScore, sess.Stats.GlobalRank, sess.Stats.PP))
	sess.Enqueue(wire.ChannelInfoEndPacket)
	friends, _ := d.Store.FriendIDs(sess.UserID)
	sess.Enqueue(wire.FriendsList(friends))

	_ = d.Chat.Join(sess, "#osu", true)
	_ = d.Chat.Join(sess, "#announce", true)
	if isAdmin {
		_ = d.Chat.Join(sess, "#admin", true)
	}

	for _, desc := range d.Channels.All() {
		if desc.PublicRead {
			sess.Enqueue(wire.ChannelInfo(desc.Name, desc.Description, uint16(d.Streams.Count(desc.StreamName()))))
		}
	}

	if d.MenuIcon != nil {
		if icon := d.MenuIcon(); icon != "" {
			sess.Enqueue(wire.MenuIcon(icon))
		}
	}

	for _, other := range d.Sessions.All() {
		if other.ID == sess.ID {
			continue
		}
		if other.Restricted(d.PublicBit) {
			continue
		}
		sess.Enqueue(wire.UserPresence(other.UserID, other.Username, byte(24+other.TimeOffset/60), other.Country, presenceRank(other, false, d.DonorBit), 0, other.Latitude, other.Longitude, 0))
	}
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
