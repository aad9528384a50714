package match

import "bancho/internal/wire"

// matchData serializes m's full state (spec.md §3 "Match" fields):
// header fields, both 16-slot status/team arrays, a bitmask of
// occupied slots with their user ids, host/mode/scoring/team fields,
// and per-slot mods when in freemod. The password is always censored
// to "yes"/"no" per spec.md §4.7's join/leave broadcast note — no
// wire consumer needs the plaintext password out of band.
//
// The exact field layout is this implementation's own consistent
// choice: the reference client's match-data byte format was not
// reachable from the retrieved source (match.py was referenced only
// indirectly through its call sites), so this follows the same
// widely-documented slot-status-bitmask convention used elsewhere in
// the wire package rather than guessing at an unseen layout.
func matchData(m *Match) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := wire.NewWriter(96)
	w.UInt16(uint16(m.ID))
	w.Byte(boolByte(m.InProgress))
	w.Byte(0) // match type: always "standard"
	w.UInt32(m.Mods)
	w.String(m.Name)
	if m.Password != "" {
		w.String("yes")
	} else {
		w.String("no")
	}
	w.String(m.BeatmapName)
	w.String(m.BeatmapMD5)
	w.SInt32(m.BeatmapID)

	for i := range m.Slots {
		w.Byte(m.Slots[i].Status)
	}
	for i := range m.Slots {
		w.Byte(m.Slots[i].Team)
	}

	var occupiedMask uint16
	for i := range m.Slots {
		if m.Slots[i].occupied() {
			occupiedMask |= 1 << uint(i)
		}
	}
	w.UInt16(occupiedMask)
	for i := range m.Slots {
		if m.Slots[i].occupied() {
			w.SInt32(m.Slots[i].userID())
		}
	}

	w.SInt32(m.HostUserID)
	w.Byte(m.GameMode)
	w.Byte(m.ScoringType)
	w.Byte(m.TeamType)
	w.Byte(m.ModMode)
	if m.ModMode == ModModeFreemod {
		for i := range m.Slots {
			w.UInt32(m.Slots[i].Mods)
		}
	}
	w.UInt32(0) // seed, unused outside mania random-seed sync

	return w.Bytes()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
