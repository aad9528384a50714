// Package userstore is the external user-store collaborator (spec.md
// §1 "out of scope... via §6", SPEC_FULL.md ADDED-C.6): the core only
// ever issues the small set of read/write calls named below against
// the persistent user/score/beatmap database, grounded on
// original_source/helpers/user_helper.py and config.py's table/column
// usage.
package userstore

import "time"

// User is the subset of the users table row the core actually reads
// (original_source/events/loginEvent.py's single-query login fetch).
type User struct {
	ID         int32
	Username   string
	Privileges uint64
	SilenceEnd int64
	Country    byte
}

// Store is everything the login pipeline, chat router, and bot need
// from the persistent user/score/beatmap database (ADDED-C.6).
type Store interface {
	UserByName(safeUsername string) (User, bool, error)
	UserByID(userID int32) (User, bool, error)
	PasswordHash(userID int32) (string, error)
	UpdateSilence(userID int32, until int64) error
	UpdatePrivileges(userID int32, privileges uint64) error
	UpdateCountry(userID int32, country byte) error
	FriendIDs(userID int32) ([]int32, error)
	ChannelList() ([]ChannelRow, error)
	AppendChatLog(fromUserID int32, target string, message string, when time.Time) error
	AppendMatchLog(matchID uint32, message string, when time.Time) error
	InsertBan(userID int32, reason string, bannedBy int32, when time.Time) error
	Close() error
}

// ChannelRow mirrors the bancho_channels table row used to seed
// internal/channel's registry at startup.
type ChannelRow struct {
	Name        string
	Description string
	PublicRead  bool
	PublicWrite bool
}
