package session

// Privilege bits tested against Session.Privileges. The symbolic
// privilege-bit table (common.constants.privileges in the reference
// implementation) was not itself part of the retrieved source --
// login.py and chatHelper.py only ever reference bits by name
// (USER_NORMAL, USER_PUBLIC, ...) -- so this is this implementation's
// own self-consistent bit assignment, following the same transparent
// approach already used for the wire package's packet id table.
const (
	PrivNormal               uint64 = 1 << 0
	PrivPublic               uint64 = 1 << 1
	PrivPendingVerification  uint64 = 1 << 2
	PrivDonor                uint64 = 1 << 3
	PrivModerator            uint64 = 1 << 4
	PrivAdmin                uint64 = 1 << 5
	PrivDeveloper            uint64 = 1 << 6
	PrivTournamentStaff      uint64 = 1 << 7
)

// IsAdmin reports whether the session holds moderator, admin, or
// developer privileges (chatHelper.py's recurring `token.admin` gate).
func (s *Session) IsAdmin() bool {
	return s.Privileges&(PrivModerator|PrivAdmin|PrivDeveloper) != 0
}

// Rank flag bits fed into wire.BanchoPriv (serverPackets.py's
// bancho_priv / user_presence userRank colouring). The reference
// implementation computes these from a userRanks module that, like
// common.constants.privileges, never appeared in the retrieved
// source -- only the call sites (`result |= userRanks.SUPPORTER`,
// `userRank |= userRanks.ADMIN`, ...) did. This is this
// implementation's own self-consistent bit assignment for that table,
// following the same precedent as the privilege bits above.
const (
	RankNormal          uint32 = 1 << 0
	RankBAT             uint32 = 1 << 1 // GMT/BAT
	RankSupporter       uint32 = 1 << 2
	RankAdmin           uint32 = 1 << 3
	RankPeppy           uint32 = 1 << 4
	RankMod             uint32 = 1 << 5
	RankTournamentStaff uint32 = 1 << 6
)
