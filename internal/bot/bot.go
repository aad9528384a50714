// Package bot implements the bot command table (spec.md §4.10),
// grounded on original_source/objects/fokabot.py's fokabotResponse
// dispatch and original_source/constants/fokabotCommands.py's
// @registerCommand table (trigger, syntax, required privileges,
// callback).
package bot

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bancho/internal/serverctx"
	"bancho/internal/session"
	"bancho/internal/wire"
)

// UserID is the bot's reserved user id (fokabot.py's hardcoded 999).
const UserID int32 = 999

// Command is one entry in the dispatch table (spec.md §4.10): a
// trigger string, an optional syntax description used only for the
// argument-count gate and the !help listing, a required-
// privileges mask (0 means anyone), and the callback itself.
type Command struct {
	Trigger    string
	Syntax     string
	Privileges uint64
	Describe   string
	Callback   func(b *Bot, sender *session.Session, target string, args []string) string
}

type compiledCommand struct {
	regex *regexp.Regexp
	cmd   Command
}

// Bot holds the compiled command table and the server context it
// mutates, replacing fokabotCommands.py's module-level `commands` dict
// and its direct `glob.*` references.
type Bot struct {
	Ctx  *serverctx.Context
	Name string

	commands []compiledCommand
}

// New builds a Bot with the default command table registered.
func New(ctx *serverctx.Context, name string) *Bot {
	b := &Bot{Ctx: ctx, Name: name}
	b.registerDefaults()
	return b
}

// Connect creates and registers the bot's reserved, never-enqueuing
// session (spec.md §4.10, §3 "bot session is special-cased to never
// buffer outbound"), matching fokabot.py's connect().
func (b *Bot) Connect() *session.Session {
	s := session.New(UserID, "127.0.0.1", false, 0)
	s.Username = b.Name
	s.SafeUsername = session.NormalizeUsername(b.Name)
	s.Privileges = session.PrivNormal | session.PrivPublic
	s.NoEnqueue = true
	b.Ctx.Sessions.Add(s)
	if !s.Restricted(b.Ctx.PublicBit) {
		b.Ctx.Streams.Broadcast("main", wire.UserPresence(s.UserID, s.Username, 24, s.Country, byte(session.RankNormal), 0, 0, 0, 0), nil)
	}
	return s
}

// Register compiles trigger into "^trigger( (.+)?)?$" (fokabotCommands.py's
// REGEX template) and appends cmd to the dispatch table. Registration
// order is match-precedence order, first match wins.
func (b *Bot) Register(cmd Command) {
	rgx := regexp.MustCompile("^" + regexp.QuoteMeta(cmd.Trigger) + "( (.+)?)?$")
	b.commands = append(b.commands, compiledCommand{regex: rgx, cmd: cmd})
}

// Handle implements spec.md §4.10's dispatch rule: scan the table only
// when target is a channel or message looks like a command; otherwise
// return the canned greeting, matching fokabotResponse's early return.
func (b *Bot) Handle(fromName, target, message string) string {
	sender, ok := b.Ctx.Sessions.ByName(fromName, false)
	if !ok {
		return ""
	}

	isCommand := strings.HasPrefix(message, "!") || strings.HasPrefix(message, "\x01ACTION")
	isChannel := strings.HasPrefix(target, "#")
	if !isCommand && !isChannel {
		return fmt.Sprintf("Hello I'm %s! The server's official bot to assist you, if you want to know what I can do just type !help", b.Name)
	}

	for _, c := range b.commands {
		if !c.regex.MatchString(message) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(message, c.cmd.Trigger))
		var args []string
		if rest != "" {
			args = strings.Split(rest, " ")
		}
		if c.cmd.Privileges != 0 && sender.Privileges&c.cmd.Privileges == 0 {
			return ""
		}
		if c.cmd.Syntax != "" && len(args) < len(strings.Split(c.cmd.Syntax, " ")) {
			return fmt.Sprintf("Wrong syntax: %s %s", c.cmd.Trigger, c.cmd.Syntax)
		}
		return c.cmd.Callback(b, sender, target, args)
	}
	return ""
}

func (b *Bot) registerDefaults() {
	b.Register(Command{
		Trigger:  "!roll",
		Describe: "Rolls a number between 0 and 100 (or a provided maximum).",
		Callback: cmdRoll,
	})
	b.Register(Command{
		Trigger:  "!help",
		Describe: "Lists the commands available to you.",
		Callback: cmdHelp,
	})
	b.Register(Command{
		Trigger:    "!alert",
		Syntax:     "<message>",
		Privileges: session.PrivAdmin,
		Describe:   "Sends a notification to every connected user.",
		Callback:   cmdAlert,
	})
	b.Register(Command{
		Trigger:    "!moderated",
		Privileges: session.PrivAdmin,
		Describe:   "Toggles moderated mode for the current channel.",
		Callback:   cmdModerated,
	})
	b.Register(Command{
		Trigger:    "!kick",
		Syntax:     "<target>",
		Privileges: session.PrivAdmin,
		Describe:   "Kicks a user from the server.",
		Callback:   cmdKick,
	})
	b.Register(Command{
		Trigger:    "!ban",
		Syntax:     "<target>",
		Privileges: session.PrivAdmin,
		Describe:   "Bans a user.",
		Callback:   cmdBan,
	})
	b.Register(Command{
		Trigger:    "!unban",
		Syntax:     "<target>",
		Privileges: session.PrivAdmin,
		Describe:   "Unbans a user.",
		Callback:   cmdUnban,
	})
	b.Register(Command{
		Trigger:    "!system maintenance",
		Privileges: session.PrivAdmin,
		Describe:   "Toggles server-wide maintenance mode (append 'off' to disable).",
		Callback:   cmdSystemMaintenance,
	})
	b.Register(Command{
		Trigger:    "!system restart",
		Privileges: session.PrivAdmin,
		Describe:   "Marks the server as restarting, rejecting new logins.",
		Callback:   cmdSystemRestart,
	})
	b.Register(Command{
		Trigger:  "\x01ACTION",
		Describe: "Records the beatmap/mods a client reports itself as listening to, playing, or watching (the /np equivalent).",
		Callback: cmdNowPlaying,
	})
	b.Register(Command{
		Trigger:  "!with",
		Syntax:   "<mods>",
		Describe: "Re-evaluates the last /np'd beatmap with the given mods, e.g. !with HDHR.",
		Callback: cmdWith,
	})
	b.Register(Command{
		Trigger:  "!acc",
		Syntax:   "<accuracy>",
		Describe: "Re-evaluates the last /np'd beatmap at the given accuracy.",
		Callback: cmdAcc,
	})
}

func cmdRoll(b *Bot, sender *session.Session, target string, args []string) string {
	maxPoints := 100
	if len(args) >= 1 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			maxPoints = n
		}
	}
	return fmt.Sprintf("%s rolls %d points!", sender.Username, rand.Intn(maxPoints))
}

func cmdHelp(b *Bot, sender *session.Session, target string, args []string) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("--- commands available to %s ---", sender.Username))
	for i, c := range b.commands {
		if !strings.HasPrefix(c.cmd.Trigger, "!") {
			continue
		}
		if c.cmd.Privileges != 0 && sender.Privileges&c.cmd.Privileges == 0 {
			continue
		}
		name := c.cmd.Trigger
		if c.cmd.Syntax != "" {
			name += " " + c.cmd.Syntax
		}
		desc := c.cmd.Describe
		if desc == "" {
			desc = "No description available."
		}
		lines = append(lines, fmt.Sprintf("%d. %s - %s", i+1, name, desc))
	}
	return strings.Join(lines, "\n")
}

func cmdAlert(b *Bot, sender *session.Session, target string, args []string) string {
	msg := strings.Join(args, " ")
	if strings.TrimSpace(msg) == "" {
		return ""
	}
	b.Ctx.Streams.Broadcast("main", wire.Notification(msg), nil)
	return ""
}

func cmdModerated(b *Bot, sender *session.Session, target string, args []string) string {
	if !strings.HasPrefix(target, "#") {
		return "You are trying to put a private chat in moderated mode. Are you serious?"
	}
	on := true
	if len(args) >= 1 && args[0] == "off" {
		on = false
	}
	if !b.Ctx.Channels.SetModerated(target, on) {
		return "Unknown channel."
	}
	if on {
		return "This channel is now in moderated mode!"
	}
	return "This channel is no longer in moderated mode!"
}

func cmdKick(b *Bot, sender *session.Session, target string, args []string) string {
	name := session.NormalizeUsername(strings.Join(args, " "))
	if name == session.NormalizeUsername(b.Name) {
		return "Nope."
	}
	victim, ok := b.Ctx.Sessions.ByName(name, true)
	if !ok {
		return fmt.Sprintf("%s is not online.", name)
	}
	victim.Enqueue(wire.LoginErrorPacket)
	_ = b.Ctx.Logout(victim)
	return fmt.Sprintf("%s has been kicked from the server.", victim.Username)
}

func cmdBan(b *Bot, sender *session.Session, target string, args []string) string {
	name := session.NormalizeUsername(strings.Join(args, " "))
	user, found, err := b.Ctx.Store.UserByName(name)
	if err != nil || !found {
		return fmt.Sprintf("%s: user not found", name)
	}
	if user.ID == UserID {
		return "NO!"
	}
	_ = b.Ctx.Store.UpdatePrivileges(user.ID, user.Privileges&^3)
	_ = b.Ctx.Store.InsertBan(user.ID, "Banned by "+sender.Username, sender.UserID, time.Now())
	if victim, ok := b.Ctx.Sessions.ByName(name, true); ok {
		victim.Enqueue(wire.LoginBanned("You have been banned."))
		_ = b.Ctx.Logout(victim)
	}
	return fmt.Sprintf("RIP %s. You will not be missed.", name)
}

func cmdUnban(b *Bot, sender *session.Session, target string, args []string) string {
	name := session.NormalizeUsername(strings.Join(args, " "))
	user, found, err := b.Ctx.Store.UserByName(name)
	if err != nil || !found {
		return fmt.Sprintf("%s: user not found", name)
	}
	_ = b.Ctx.Store.UpdatePrivileges(user.ID, user.Privileges|session.PrivNormal)
	return fmt.Sprintf("Welcome back %s!", name)
}

func cmdSystemMaintenance(b *Bot, sender *session.Session, target string, args []string) string {
	on := true
	if len(args) >= 1 && args[0] == "off" {
		on = false
	}
	b.Ctx.Settings.SetMaintenance(on)
	if on {
		b.Ctx.Streams.Broadcast("main", wire.Notification("Our realtime server is in maintenance mode. Please try to login again later."), nil)
		return "The server is now in maintenance mode!"
	}
	return "The server is no longer in maintenance mode!"
}

func cmdSystemRestart(b *Bot, sender *session.Session, target string, args []string) string {
	b.Ctx.Settings.SetRestarting(true)
	b.Ctx.Streams.Broadcast("main", wire.Notification("We are restarting Bancho. Be right back!"), nil)
	return "Bancho is now restarting."
}

// osu! client mod bits (stable wire-protocol values, independent of
// server version), used only to decode the mod tokens that appear in
// "now playing" messages and !with's compact mod string
// (fokabotCommands.py's mods.* lookups).
const (
	modNoFail      uint32 = 1 << 0
	modEasy        uint32 = 1 << 1
	modHidden      uint32 = 1 << 3
	modHardRock    uint32 = 1 << 4
	modDoubleTime  uint32 = 1 << 6
	modRelax       uint32 = 1 << 7
	modHalfTime    uint32 = 1 << 8
	modNightcore   uint32 = 1 << 9
	modFlashlight  uint32 = 1 << 10
	modSpunOut     uint32 = 1 << 12
	modAutopilot   uint32 = 1 << 13
)

// npModTokens maps the literal mod words a client appends to a
// "playing"/"watching" now-playing message to their bit (tillerinoNp's
// mapping dict).
var npModTokens = map[string]uint32{
	"-Easy":       modEasy,
	"-NoFail":     modNoFail,
	"+Hidden":     modHidden,
	"+HardRock":   modHardRock,
	"+Nightcore":  modNightcore,
	"+DoubleTime": modDoubleTime,
	"-HalfTime":   modHalfTime,
	"+Flashlight": modFlashlight,
	"-SpunOut":    modSpunOut,
}

// withModTokens maps the two-letter abbreviations !with accepts to
// their bit; "NO" is valid but contributes nothing (tillerinoMods's
// modsInt dict).
var withModTokens = map[string]uint32{
	"NO": 0,
	"NF": modNoFail,
	"EZ": modEasy,
	"HD": modHidden,
	"HR": modHardRock,
	"DT": modDoubleTime,
	"HT": modHalfTime,
	"NC": modNightcore,
	"FL": modFlashlight,
	"SO": modSpunOut,
	"RX": modRelax,
	"AP": modAutopilot,
}

// readableMods renders a mods bitmask as the "+HDHR"-style suffix
// getPPMessage appends to the beatmap title.
func readableMods(m uint32) string {
	if m == 0 {
		return ""
	}
	var sb strings.Builder
	for _, pair := range []struct {
		bit   uint32
		short string
	}{
		{modNoFail, "NF"}, {modEasy, "EZ"}, {modHidden, "HD"}, {modHardRock, "HR"},
		{modDoubleTime, "DT"}, {modRelax, "RX"}, {modHalfTime, "HT"}, {modNightcore, "NC"},
		{modFlashlight, "FL"}, {modSpunOut, "SO"}, {modAutopilot, "AP"},
	} {
		if m&pair.bit != 0 {
			sb.WriteString(pair.short)
		}
	}
	return "+" + sb.String()
}

// tillerinoMessage formats the current (beatmap, mods, accuracy)
// context into a response string. A real deployment would query a
// difficulty-calculation service for the pp values (getPPMessage's
// LETS API call); that service is outside this repo's scope, so the
// reply echoes the resolved beatmap/mods/accuracy back to the player
// instead of computed pp.
func tillerinoMessage(t session.Tillerino) string {
	suffix := readableMods(t.Mods)
	if suffix != "" {
		suffix = " " + suffix
	}
	if t.Accuracy < 0 {
		return fmt.Sprintf("Beatmap https://osu.ppy.sh/b/%d%s queued. Use !with <mods> or !acc <value> to refine.", t.BeatmapID, suffix)
	}
	return fmt.Sprintf("Beatmap https://osu.ppy.sh/b/%d%s at %.2f%% accuracy.", t.BeatmapID, suffix, t.Accuracy)
}

// cmdNowPlaying is the /np equivalent: clients report what they are
// currently listening to, playing, or watching as a CTCP-style action
// message, which seeds Tillerino for !with/!acc (tillerinoNp).
func cmdNowPlaying(b *Bot, sender *session.Session, target string, args []string) string {
	if strings.HasPrefix(target, "#") {
		return ""
	}
	if len(args) < 2 {
		return ""
	}

	var rawURL string
	playWatch := args[1] == "playing" || args[1] == "watching"
	switch {
	case args[1] == "listening":
		if len(args) < 4 {
			return ""
		}
		rawURL = args[3]
	case playWatch:
		if len(args) < 3 {
			return ""
		}
		rawURL = args[2]
	default:
		return ""
	}
	rawURL = strings.TrimPrefix(rawURL, "[")

	var modsEnum uint32
	if playWatch {
		for _, part := range args {
			modsEnum += npModTokens[strings.ReplaceAll(part, "\x01", "")]
		}
	}

	beatmapURL := rawURL
	if idx := strings.LastIndex(beatmapURL, "/"); idx != -1 {
		beatmapURL = beatmapURL[idx+1:]
	}
	if idx := strings.Index(beatmapURL, "#"); idx != -1 {
		beatmapURL = beatmapURL[:idx]
	}
	beatmapID, err := strconv.Atoi(beatmapURL)
	if err != nil {
		return ""
	}

	sender.Tillerino = session.Tillerino{BeatmapID: int32(beatmapID), Mods: modsEnum, Accuracy: -1}
	return tillerinoMessage(sender.Tillerino)
}

// cmdWith re-evaluates the /np'd beatmap with an explicit mod
// combination, e.g. "!with HDHR" (tillerinoMods).
func cmdWith(b *Bot, sender *session.Session, target string, args []string) string {
	if strings.HasPrefix(target, "#") {
		return ""
	}
	if sender.Tillerino.BeatmapID == 0 {
		return "You must firstly select a beatmap using the /np command."
	}
	if len(args) < 1 {
		return ""
	}

	raw := strings.ToUpper(args[0])
	var modsEnum uint32
	for i := 0; i < len(raw); i += 2 {
		end := i + 2
		if end > len(raw) {
			end = len(raw)
		}
		token := raw[i:end]
		bit, known := withModTokens[token]
		if !known {
			return "Invalid mods. Allowed mods: NO, NF, EZ, HD, HR, DT, HT, NC, FL, SO, RX, AP. Do not use spaces for multiple mods."
		}
		modsEnum += bit
	}

	sender.Tillerino.Mods = modsEnum
	return tillerinoMessage(sender.Tillerino)
}

// cmdAcc re-evaluates the /np'd beatmap at an explicit accuracy
// (tillerinoAcc).
func cmdAcc(b *Bot, sender *session.Session, target string, args []string) string {
	if strings.HasPrefix(target, "#") {
		return ""
	}
	if sender.Tillerino.BeatmapID == 0 {
		return "You must firstly select a beatmap using the /np command."
	}
	if len(args) < 1 {
		return "Invalid acc value"
	}
	acc, err := strconv.ParseFloat(args[0], 32)
	if err != nil {
		return "Invalid acc value"
	}

	sender.Tillerino.Accuracy = float32(acc)
	return tillerinoMessage(sender.Tillerino)
}
