// Package pubsub wires the bancho-internal event bus to the registries
// in internal/serverctx, replacing the reference implementation's
// Redis subscriber (original_source/pep.py's main, the
// `peppy:*`-prefixed channel set). No pack repo imports a real Redis
// client, so github.com/vardius/message-bus (used directly by
// carbynestack-ephemeral's discovery publisher/subscriber pair) stands
// in as the in-process bus. Nothing else in the module publishes on
// it; events reach the handlers through Listener.Bus.
package pubsub

import (
	"strings"

	mb "github.com/vardius/message-bus"
	"go.uber.org/zap"

	"bancho/internal/serverctx"
	"bancho/internal/session"
	"bancho/internal/wire"
)

// Topic names match pep.py's Redis channel names verbatim so anything
// grounded on that file (including this package itself) can be
// cross-checked against it directly.
const (
	TopicDisconnect        = "peppy:disconnect"
	TopicChangeUsername    = "peppy:change_username"
	TopicReloadSettings    = "peppy:reload_settings"
	TopicUpdateCachedStats = "peppy:update_cached_stats"
	TopicSilence           = "peppy:silence"
	TopicBan               = "peppy:ban"
	TopicNotification      = "peppy:notification"
	TopicSetMainMenuIcon   = "peppy:set_main_menu_icon"
	TopicRefreshPrivs      = "peppy:refresh_privs"
	TopicChangePass        = "peppy:change_pass"
	TopicBotMsg            = "peppy:bot_msg"

	// busSize is the per-topic buffered-channel size message-bus
	// allocates internally; pep.py has no equivalent concept since
	// Redis pub/sub has no such buffer, so this is picked generously
	// for a single-process deployment rather than grounded on a
	// retrieved constant.
	busSize = 256
)

// SettingsReloader re-reads the bancho_settings table (spec.md §4.9
// "reload"), replacing glob.banchoConf.reload()'s in-place refresh.
type SettingsReloader func() (maintenance, restarting bool, menuIcon string)

// StatsLookup resolves a fresh Stats snapshot for userID, used by the
// update_cached_stats handler; nil means "no stats backend wired"
// (e.g. in tests).
type StatsLookup func(userID int32) (session.Stats, bool)

// Listener subscribes every peppy:* handler onto bus and dispatches
// into ctx.
type Listener struct {
	Bus     mb.MessageBus
	Ctx     *serverctx.Context
	Reload  SettingsReloader
	Stats   StatsLookup
	BotName string // not read by the handlers in this package
	Log     *zap.SugaredLogger
}

// New allocates the message bus and a Listener bound to ctx.
func New(ctx *serverctx.Context, reload SettingsReloader, stats StatsLookup, log *zap.SugaredLogger) *Listener {
	return &Listener{
		Bus:    mb.New(busSize),
		Ctx:    ctx,
		Reload: reload,
		Stats:  stats,
		Log:    log,
	}
}

// Start subscribes every handler. Matches pep.py main()'s block of
// `pubSub.listenChannel(...)` registrations.
func (l *Listener) Start() error {
	subs := []struct {
		topic   string
		handler interface{}
	}{
		{TopicDisconnect, l.onDisconnect},
		{TopicChangeUsername, l.onChangeUsername},
		{TopicReloadSettings, l.onReloadSettings},
		{TopicUpdateCachedStats, l.onUpdateCachedStats},
		{TopicSilence, l.onSilence},
		{TopicBan, l.onBan},
		{TopicNotification, l.onNotification},
		{TopicSetMainMenuIcon, l.onSetMainMenuIcon},
		{TopicRefreshPrivs, l.onRefreshPrivs},
		{TopicChangePass, l.onChangePass},
		{TopicBotMsg, l.onBotMsg},
	}
	for _, s := range subs {
		if err := l.Bus.Subscribe(s.topic, s.handler); err != nil {
			return err
		}
	}
	return nil
}

func (l *Listener) logf(topic string, err error) {
	if err == nil || l.Log == nil {
		return
	}
	l.Log.Warnw("pubsub handler error", "topic", topic, "error", err)
}

// onDisconnect implements peppy:disconnect {userID}: run the full
// logout procedure, matching pep.py's deleteToken-on-disconnect path.
func (l *Listener) onDisconnect(userID int32) {
	sess, ok := l.Ctx.Sessions.ByUserID(userID)
	if !ok {
		return
	}
	l.logf(TopicDisconnect, l.Ctx.Logout(sess))
}

// onChangeUsername implements peppy:change_username {userID, newUsername}.
func (l *Listener) onChangeUsername(userID int32, newUsername string) {
	sess, ok := l.Ctx.Sessions.ByUserID(userID)
	if !ok {
		return
	}
	sess.Username = newUsername
	sess.SafeUsername = session.NormalizeUsername(newUsername)
}

// onReloadSettings implements peppy:reload_settings "reload" (a raw
// string payload, not JSON, matching pep.py's literal channel body).
func (l *Listener) onReloadSettings(_ string) {
	if l.Reload == nil {
		return
	}
	maintenance, restarting, menuIcon := l.Reload()
	l.Ctx.Settings.SetMaintenance(maintenance)
	l.Ctx.Settings.SetRestarting(restarting)
	l.Ctx.Settings.SetMenuIcon(menuIcon)
}

// onUpdateCachedStats implements peppy:update_cached_stats {userID}.
func (l *Listener) onUpdateCachedStats(userID int32) {
	if l.Stats == nil {
		return
	}
	sess, ok := l.Ctx.Sessions.ByUserID(userID)
	if !ok {
		return
	}
	if stats, ok := l.Stats(userID); ok {
		sess.Stats = stats
		sess.Enqueue(wire.UserStats(sess.UserID, sess.Action.ID, sess.Action.Text, sess.Action.MD5, sess.Action.Mods, sess.Action.GameMode, sess.Action.BeatmapID, stats.RankedScore, stats.Accuracy, stats.Playcount, stats.TotalScore, stats.GlobalRank, stats.PP))
	}
}

// onSilence implements peppy:silence {userID}: refresh the cached
// silence_end from the store (an admin silence issued through a
// different front door than the chat router's own spam-protection
// path, which sets it directly).
func (l *Listener) onSilence(userID int32) {
	sess, ok := l.Ctx.Sessions.ByUserID(userID)
	if !ok {
		return
	}
	user, found, err := l.Ctx.Store.UserByID(userID)
	if err != nil || !found {
		l.logf(TopicSilence, err)
		return
	}
	sess.SilenceEnd = user.SilenceEnd
	sess.Enqueue(wire.SilenceEndNotify(uint32(sess.SilenceSecondsLeft())))
}

// onBan implements peppy:ban {userID}: force a logout, matching
// pep.py's ban handler which just disconnects the token.
func (l *Listener) onBan(userID int32) {
	l.onDisconnect(userID)
}

// onNotification implements peppy:notification {userID, message}.
func (l *Listener) onNotification(userID int32, message string) {
	sess, ok := l.Ctx.Sessions.ByUserID(userID)
	if !ok {
		return
	}
	sess.Enqueue(wire.Notification(message))
}

// onSetMainMenuIcon implements peppy:set_main_menu_icon {icon}.
func (l *Listener) onSetMainMenuIcon(icon string) {
	l.Ctx.Settings.SetMenuIcon(icon)
}

// onRefreshPrivs implements peppy:refresh_privs {user_id}.
func (l *Listener) onRefreshPrivs(userID int32) {
	sess, ok := l.Ctx.Sessions.ByUserID(userID)
	if !ok {
		return
	}
	user, found, err := l.Ctx.Store.UserByID(userID)
	if err != nil || !found {
		l.logf(TopicRefreshPrivs, err)
		return
	}
	sess.Privileges = user.Privileges
}

// onChangePass implements peppy:change_pass {user_id}: drop the cached
// password hash so the next login re-verifies against the store.
func (l *Listener) onChangePass(userID int32) {
	if l.Ctx.PassCache == nil {
		return
	}
	l.logf(TopicChangePass, l.Ctx.PassCache.InvalidateCache(userID))
}

// onBotMsg implements peppy:bot_msg {to, message}: relay a message
// from the bot into the chat router, matching pep.py's
// fokabotMessage injection route.
func (l *Listener) onBotMsg(to, message string) {
	if l.Ctx.Chat.BotSender == nil {
		return
	}
	if strings.TrimSpace(message) == "" {
		return
	}
	l.logf(TopicBotMsg, l.Ctx.Chat.Send(l.Ctx.Chat.BotSender(), to, message))
}
