// Command banchod is the bancho server process: it wires every
// internal package into one serverctx.Context, brings up the
// periodic maintenance loops, the pub/sub listener, and the HTTP
// front, then blocks until interrupted.
//
// Startup order: connect the store and open the local cache, register
// the "main"/"lobby" streams, load channels, construct the session,
// match and spectator registries, connect the bot, start the
// timeout-check/spam-reset/multiplayer-cleanup loops, start the
// pub/sub listener, and run the HTTP listener last.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"bancho/internal/bot"
	"bancho/internal/channel"
	"bancho/internal/chat"
	"bancho/internal/config"
	"bancho/internal/dispatch"
	"bancho/internal/httpfront"
	"bancho/internal/logging"
	"bancho/internal/login"
	"bancho/internal/match"
	"bancho/internal/pubsub"
	"bancho/internal/serverctx"
	"bancho/internal/session"
	"bancho/internal/spectate"
	"bancho/internal/streamreg"
	"bancho/internal/userstore"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config.json")
	cachePath := flag.String("password-cache", "password_cache.db", "SQLite path for the bcrypt password cache")
	addr := flag.String("addr", "", "HTTP listen address (overrides config.json's port when set)")
	development := flag.Bool("dev", false, "use human-readable console logging instead of JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if err == config.ErrNeedsReview {
			fmt.Fprintf(os.Stderr, "%s was created or updated with default values; review it before restarting.\n", *configPath)
			os.Exit(0)
		}
		log.Fatalf("[config] %v", err)
	}

	zapLog, err := logging.New(*development)
	if err != nil {
		log.Fatalf("[logging] %v", err)
	}
	defer zapLog.Sync() //nolint:errcheck

	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s", cfg.DBUsername, cfg.DBPassword, cfg.DBHost, cfg.DBDatabase)
	store, err := userstore.DialMySQL(dsn)
	if err != nil {
		zapLog.Fatalw("dial mysql", "error", err)
	}
	defer store.Close() //nolint:errcheck

	cache, err := userstore.OpenCache(*cachePath)
	if err != nil {
		zapLog.Fatalw("open password cache", "error", err)
	}
	defer cache.Close() //nolint:errcheck

	streams := streamreg.New()
	streams.Add("main")
	streams.Add("lobby")

	channels := channel.New(streams)
	rows, err := store.ChannelList()
	if err != nil {
		zapLog.Warnw("load channels from store, using local mirror", "error", err)
		rows, err = cache.MirroredChannels()
	} else {
		err = cache.RefreshChannelMirror(rows)
	}
	if err != nil {
		zapLog.Warnw("channel mirror", "error", err)
	}
	descs := make([]channel.Descriptor, 0, len(rows))
	for _, row := range rows {
		descs = append(descs, channel.Descriptor{
			Name:        row.Name,
			Description: row.Description,
			PublicRead:  row.PublicRead,
			PublicWrite: row.PublicWrite,
		})
	}
	channels.Load(descs)

	sessions := session.NewRegistry()
	matches := match.NewRegistry(streams, channels)
	spectators := &spectate.Manager{Streams: streams, Channels: channels}

	const (
		publicBit = session.PrivPublic
		adminBit  = session.PrivModerator | session.PrivAdmin | session.PrivDeveloper
	)

	router := &chat.Router{
		Channels:  channels,
		Streams:   streams,
		Sessions:  sessions,
		PublicBit: publicBit,
	}

	ctx := &serverctx.Context{
		Store:      store,
		PassCache:  cache,
		Sessions:   sessions,
		Channels:   channels,
		Streams:    streams,
		Matches:    matches,
		Spectators: spectators,
		Chat:       router,
		Settings:   serverctx.NewSettings(),
		StartTime:  time.Now(),
		Debug:      *development,
		PublicBit:  publicBit,
		AdminBit:   adminBit,
		Log:        zapLog,
	}
	router.IsAdmin = ctx.IsAdmin
	router.Aliases = chatAliases{}
	router.OnChatLog = func(from *session.Session, to string, isChannel bool, message string) {
		if err := store.AppendChatLog(from.UserID, to, message, time.Now()); err != nil {
			zapLog.Warnw("append chat log", "error", err)
		}
	}

	b := bot.New(ctx, "FokaBot")
	botSession := b.Connect()
	_ = ctx.Chat.Join(botSession, "#osu", true)
	router.Bot = b.Handle
	router.BotSender = func() *session.Session { return botSession }

	loginDeps := &login.Deps{
		Store:              store,
		Cache:              cache,
		Sessions:           sessions,
		Channels:           channels,
		Streams:            streams,
		Chat:               router,
		PublicBit:          publicBit,
		PendingVerifyBit:   session.PrivPendingVerification,
		DonorBit:           session.PrivDonor,
		TournamentStaffBit: session.PrivTournamentStaff,
		Maintenance:        ctx.Settings.Maintenance,
		Restarting:         ctx.Settings.Restarting,
		AdminRank:          ctx.IsAdmin,
		MenuIcon:           ctx.Settings.MenuIcon,
	}

	d := dispatch.New(ctx, b)
	front := httpfront.New(ctx, loginDeps, d, b, cfg.CIKey)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		zapLog.Info("shutting down...")
		cancel()
	}()

	// Timeout-check, spam-reset, and multiplayer-cleanup loops
	// (spec.md §4.9): three independent self-rescheduling timers.
	go runTimeoutLoop(runCtx, ctx)
	go runSpamResetLoop(runCtx, ctx)
	go runMatchCleanupLoop(runCtx, ctx)
	go serverctx.RunMetrics(runCtx, ctx, 30*time.Second)

	bus := pubsub.New(ctx, nil, nil, zapLog)
	if err := bus.Start(); err != nil {
		zapLog.Fatalw("start pubsub listener", "error", err)
	}

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%d", cfg.Port)
	}
	zapLog.Infow("listening", "addr", listenAddr)
	front.Run(runCtx, listenAddr)
}

func runTimeoutLoop(ctx context.Context, c *serverctx.Context) {
	ticker := time.NewTicker(session.TimeoutSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			errs := c.Sessions.SweepTimeouts(
				func(s *session.Session) bool { return s.UserID == bot.UserID },
				c.Logout,
			)
			for _, err := range errs {
				c.Log.Warnw("timeout sweep", "error", err)
			}
		}
	}
}

func runSpamResetLoop(ctx context.Context, c *serverctx.Context) {
	ticker := time.NewTicker(session.SpamResetInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sessions.ResetAllSpam()
		}
	}
}

func runMatchCleanupLoop(ctx context.Context, c *serverctx.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, err := range c.Matches.Cleanup(time.Now()) {
				c.Log.Warnw("match cleanup", "error", err)
			}
		}
	}
}

// chatAliases implements chat.VirtualAliases directly against
// Session's own spectating/match-id fields, replacing chatHelper.py's
// direct reads of a token's in-progress state.
type chatAliases struct{}

func (a chatAliases) SpectatingHostUserID(s *session.Session) int32 {
	if host := s.Spectating(); host != nil {
		return host.UserID
	}
	return s.UserID
}

func (a chatAliases) CurrentMatchID(s *session.Session) int64 {
	return s.MatchID
}
