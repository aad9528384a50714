package wire

// Packet ids. Values for ServerUserID, ServerProtocolVersion,
// ServerChannelInfoEnd, ServerPing, and the match-lifecycle packets
// below are recovered by decoding the precomputed literal byte
// constants in the reference implementation's server packet builders
// (the first two header bytes, little-endian); the remainder of the
// table is this implementation's own consistent assignment, since the
// symbolic id table itself was not part of the retrieved source.
const (
	ServerUserID                  uint16 = 5
	ServerSendMessage             uint16 = 7
	ServerPing                    uint16 = 8
	ServerUserLogout               uint16 = 12
	ServerSilenceEnd               uint16 = 9
	ServerUserPanel                uint16 = 11
	ServerMainMenuIcon              uint16 = 76
	ServerSupporterGMT              uint16 = 71
	ServerFriendsList               uint16 = 14
	ServerUserStats                 uint16 = 13
	ServerChannelJoinSuccess         uint16 = 64
	ServerChannelInfo                uint16 = 65
	ServerChannelInfoEnd             uint16 = 89
	ServerChannelKicked              uint16 = 66
	ServerUserSilenced               uint16 = 43
	ServerSpectatorJoined            uint16 = 42
	ServerSpectatorLeft              uint16 = 29
	ServerSpectateFrames             uint16 = 15
	ServerSpectatorCantSpectate      uint16 = 27
	ServerFellowSpectatorJoined      uint16 = 88
	ServerFellowSpectatorLeft        uint16 = 30
	ServerNewMatch                   uint16 = 26
	ServerUpdateMatch                uint16 = 22
	ServerMatchStart                 uint16 = 46
	ServerDisposeMatch               uint16 = 97
	ServerMatchJoinSuccess           uint16 = 36
	ServerMatchJoinFail              uint16 = 37
	ServerMatchChangePassword        uint16 = 52
	ServerMatchAllPlayersLoaded      uint16 = 53
	ServerMatchPlayerSkipped         uint16 = 57
	ServerMatchAllSkipped            uint16 = 61
	ServerMatchScoreUpdate           uint16 = 47
	ServerMatchComplete              uint16 = 58
	ServerMatchPlayerFailed          uint16 = 56
	ServerMatchNewHost               uint16 = 50
	ServerMatchAbort                 uint16 = 106
	ServerSwitchServer               uint16 = 51
	ServerNotification               uint16 = 24
	ServerRestart                    uint16 = 86
	ServerProtocolVersion            uint16 = 75

	ClientChangeAction        uint16 = 0
	ClientSendPublicMessage   uint16 = 1
	ClientLogout              uint16 = 2
	ClientRequestStatusUpdate uint16 = 3
	ClientPong                uint16 = 4
	ClientStartSpectating     uint16 = 17
	ClientStopSpectating      uint16 = 18
	ClientSpectateFrames      uint16 = 19
	ClientSendPrivateMessage  uint16 = 25
	ClientChannelJoin         uint16 = 63
	ClientChannelPart         uint16 = 78
	ClientFriendAdd           uint16 = 30
	ClientFriendRemove        uint16 = 32
	ClientUserStatsRequest    uint16 = 85
	ClientUserPanelRequest    uint16 = 97
	ClientCreateMatch         uint16 = 31
	ClientJoinMatch           uint16 = 38
	ClientPartMatch           uint16 = 39
	ClientMatchChangeSlot     uint16 = 41
	ClientMatchReady          uint16 = 42
	ClientMatchLock           uint16 = 43
	ClientMatchChangeSettings uint16 = 44
	ClientMatchStart          uint16 = 48
	ClientMatchFrames         uint16 = 47
	ClientMatchComplete       uint16 = 49
	ClientMatchChangeMods     uint16 = 53
	ClientMatchLoadComplete   uint16 = 54
	ClientMatchNoBeatmap      uint16 = 55
	ClientMatchNotReady       uint16 = 56
	ClientMatchFailed         uint16 = 57
	ClientMatchHasBeatmap     uint16 = 59
	ClientMatchSkipRequest    uint16 = 60
	ClientMatchTransferHost   uint16 = 77
	ClientMatchInvite         uint16 = 87
	ClientSetAwayMessage      uint16 = 82
)

// Precomputed literal packets, kept as byte constants to avoid encode
// overhead on hot paths (spec §4.1, §9 design note), decoded directly
// from the reference implementation's literals.
var (
	LoginFailedPacket           = []byte{0x05, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff}
	ForceUpdatePacket           = []byte{0x05, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xfe, 0xff, 0xff, 0xff}
	LoginErrorPacket            = []byte{0x05, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xfb, 0xff, 0xff, 0xff}
	VerificationRequiredPacket  = []byte{0x05, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xf8, 0xff, 0xff, 0xff}
	ProtocolVersionPacket       []byte
	ChannelInfoEndPacket        = WritePacket(ServerChannelInfoEnd, nil)
	MatchJoinFailPacket         = WritePacket(ServerMatchJoinFail, nil)
	MatchAllPlayersLoadedPacket = WritePacket(ServerMatchAllPlayersLoaded, nil)
	MatchAllSkippedPacket       = WritePacket(ServerMatchAllSkipped, nil)
	MatchCompletePacket         = WritePacket(ServerMatchComplete, nil)
	MatchNewHostPacket          = WritePacket(ServerMatchNewHost, nil)
	MatchAbortPacket            = WritePacket(ServerMatchAbort, nil)
)

func init() {
	// protocol_version is always 19 in the reference implementation.
	w := NewWriter(4)
	w.UInt32(19)
	ProtocolVersionPacket = Packet(ServerProtocolVersion, w)
}

// LoginReply builds the server_userID packet for a successful login.
func LoginReply(userID int32) []byte {
	w := NewWriter(4)
	w.SInt32(userID)
	return Packet(ServerUserID, w)
}

// SilenceEndNotify builds the server_silenceEnd packet.
func SilenceEndNotify(seconds uint32) []byte {
	w := NewWriter(4)
	w.UInt32(seconds)
	return Packet(ServerSilenceEnd, w)
}

// LogoutNotify builds the server_userLogout packet.
func LogoutNotify(userID int32) []byte {
	w := NewWriter(5)
	w.SInt32(userID).Byte(0)
	return Packet(ServerUserLogout, w)
}

// MessageNotify builds the server_sendMessage packet.
func MessageNotify(from, message, to string, fromUserID int32) []byte {
	w := NewWriter(len(from) + len(message) + len(to) + 16)
	w.String(from).String(message).String(to).SInt32(fromUserID)
	return Packet(ServerSendMessage, w)
}

// ChannelJoinSuccess builds the server_channel_join_success packet.
func ChannelJoinSuccess(channel string) []byte {
	w := NewWriter(len(channel) + 4)
	w.String(channel)
	return Packet(ServerChannelJoinSuccess, w)
}

// ChannelInfo builds the server_channelInfo packet.
func ChannelInfo(name, description string, subscriberCount uint16) []byte {
	w := NewWriter(len(name) + len(description) + 8)
	w.String(name).String(description).UInt16(subscriberCount)
	return Packet(ServerChannelInfo, w)
}

// ChannelKicked builds the server_channelKicked packet.
func ChannelKicked(channel string) []byte {
	w := NewWriter(len(channel) + 4)
	w.String(channel)
	return Packet(ServerChannelKicked, w)
}

// SilencedNotify builds the server_userSilenced packet.
func SilencedNotify(userID uint32) []byte {
	w := NewWriter(4)
	w.UInt32(userID)
	return Packet(ServerUserSilenced, w)
}

// SpectatorAdd builds the server_spectatorJoined packet.
func SpectatorAdd(userID int32) []byte {
	w := NewWriter(4)
	w.SInt32(userID)
	return Packet(ServerSpectatorJoined, w)
}

// SpectatorRemove builds the server_spectatorLeft packet.
func SpectatorRemove(userID int32) []byte {
	w := NewWriter(4)
	w.SInt32(userID)
	return Packet(ServerSpectatorLeft, w)
}

// SpectatorFrames wraps the host's relayed frame payload verbatim.
func SpectatorFrames(payload []byte) []byte {
	return WritePacket(ServerSpectateFrames, payload)
}

// SpectatorCantSpectate builds the server_spectatorCantSpectate packet.
func SpectatorCantSpectate(userID int32) []byte {
	w := NewWriter(4)
	w.SInt32(userID)
	return Packet(ServerSpectatorCantSpectate, w)
}

// FellowSpectatorJoined builds the server_fellowSpectatorJoined packet.
func FellowSpectatorJoined(userID int32) []byte {
	w := NewWriter(4)
	w.SInt32(userID)
	return Packet(ServerFellowSpectatorJoined, w)
}

// FellowSpectatorLeft builds the server_fellowSpectatorLeft packet.
func FellowSpectatorLeft(userID int32) []byte {
	w := NewWriter(4)
	w.SInt32(userID)
	return Packet(ServerFellowSpectatorLeft, w)
}

// DisposeMatch builds the server_disposeMatch packet.
func DisposeMatch(matchID uint32) []byte {
	w := NewWriter(4)
	w.UInt32(matchID)
	return Packet(ServerDisposeMatch, w)
}

// MatchChangePassword builds the server_matchChangePassword packet.
func MatchChangePassword(newPassword string) []byte {
	w := NewWriter(len(newPassword) + 4)
	w.String(newPassword)
	return Packet(ServerMatchChangePassword, w)
}

// MatchPlayerSkipped builds the server_matchPlayerSkipped packet.
func MatchPlayerSkipped(userID int32) []byte {
	w := NewWriter(4)
	w.SInt32(userID)
	return Packet(ServerMatchPlayerSkipped, w)
}

// MatchScoreUpdate re-frames a client match-frames payload with the
// slot id substituted in, per §4.7 "Frames".
func MatchScoreUpdate(slotID byte, data []byte) []byte {
	w := NewWriter(len(data) + 1)
	if len(data) >= 4 {
		w.Raw(data[0:4])
	}
	w.Byte(slotID)
	if len(data) >= 5 {
		w.Raw(data[5:])
	}
	return Packet(ServerMatchScoreUpdate, w)
}

// MatchPlayerFailed builds the server_matchPlayerFailed packet.
func MatchPlayerFailed(slotID uint32) []byte {
	w := NewWriter(4)
	w.UInt32(slotID)
	return Packet(ServerMatchPlayerFailed, w)
}

// ServerSwitch builds the server_switchServer packet.
func ServerSwitch(address string) []byte {
	w := NewWriter(len(address) + 4)
	w.String(address)
	return Packet(ServerSwitchServer, w)
}

// Notification builds the server_notification packet.
func Notification(message string) []byte {
	w := NewWriter(len(message) + 4)
	w.String(message)
	return Packet(ServerNotification, w)
}

// ServerRestartNotify builds the server_restart packet.
func ServerRestartNotify(msUntilReconnection uint32) []byte {
	w := NewWriter(4)
	w.UInt32(msUntilReconnection)
	return Packet(ServerRestart, w)
}

// MenuIcon builds the server_mainMenuIcon packet.
func MenuIcon(icon string) []byte {
	w := NewWriter(len(icon) + 4)
	w.String(icon)
	return Packet(ServerMainMenuIcon, w)
}

// BanchoPriv builds the server_supporterGMT packet.
func BanchoPriv(flags uint32) []byte {
	w := NewWriter(4)
	w.UInt32(flags)
	return Packet(ServerSupporterGMT, w)
}

// FriendsList builds the server_friendsList packet.
func FriendsList(friendIDs []int32) []byte {
	w := NewWriter(2 + len(friendIDs)*4)
	w.IntList(friendIDs)
	return Packet(ServerFriendsList, w)
}

// UserPresence builds the server_userPanel packet (spec.md §4.8 step
// 8 "self presence"; also used for the per-user presence broadcast on
// login and the presence bundle sent to a fresh login for every
// online user).
func UserPresence(userID int32, username string, timezone byte, country byte, privileges byte, mode byte, latitude, longitude float32, rank int32) []byte {
	w := NewWriter(len(username) + 24)
	w.SInt32(userID).String(username).Byte(timezone).Byte(country).Byte(privileges).Byte(mode)
	w.Float32(latitude).Float32(longitude).SInt32(rank)
	return Packet(ServerUserPanel, w)
}

// UserStats builds the server_userStats packet (spec.md §3 "cached
// stats"; sent at login and on peppy:update_cached_stats).
func UserStats(userID int32, actionID byte, actionText, actionMD5 string, actionMods uint32, gameMode byte, beatmapID int32, rankedScore uint64, accuracy float32, playcount uint32, totalScore uint64, globalRank uint32, pp uint16) []byte {
	w := NewWriter(len(actionText) + len(actionMD5) + 48)
	w.SInt32(userID).Byte(actionID).String(actionText).String(actionMD5).UInt32(actionMods).Byte(gameMode).SInt32(beatmapID)
	w.UInt64(rankedScore).Float32(accuracy).UInt32(playcount).UInt64(totalScore).UInt32(globalRank).UInt16(pp)
	return Packet(ServerUserStats, w)
}

// LoginBanned builds the composite login-banned reply: a login-failed
// user id reply plus an explanatory notification (spec.md §4.8 step 4).
func LoginBanned(reason string) []byte {
	out := make([]byte, 0, len(LoginFailedPacket)+len(reason)+8)
	out = append(out, LoginFailedPacket...)
	out = append(out, Notification(reason)...)
	return out
}

// LoginCheatClient builds the composite cheat-client rejection: a
// restriction notice followed by a login-failed reply (spec.md §4.8
// step 6).
func LoginCheatClient(reason string) []byte {
	out := make([]byte, 0, len(LoginFailedPacket)+len(reason)+8)
	out = append(out, Notification(reason)...)
	out = append(out, LoginFailedPacket...)
	return out
}

// MatchJoinSuccess builds the server_matchJoinSuccess packet: the
// match data payload is pre-built by the match package (it alone
// knows the slot layout) and framed here.
func MatchJoinSuccess(matchData []byte) []byte {
	return WritePacket(ServerMatchJoinSuccess, matchData)
}

// NewMatchPacket frames a match-data payload as server_newMatch, sent
// when the lobby list gains an entry.
func NewMatchPacket(matchData []byte) []byte {
	return WritePacket(ServerNewMatch, matchData)
}

// UpdateMatchPacket frames a match-data payload as server_updateMatch,
// sent on every state change broadcast to the match and lobby.
func UpdateMatchPacket(matchData []byte) []byte {
	return WritePacket(ServerUpdateMatch, matchData)
}

// MatchStartPacket frames a match-data payload as server_matchStart.
func MatchStartPacket(matchData []byte) []byte {
	return WritePacket(ServerMatchStart, matchData)
}
