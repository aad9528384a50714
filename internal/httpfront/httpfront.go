// Package httpfront implements the HTTP surface (spec.md §6): the
// single `POST /` endpoint that multiplexes login and packet exchange
// depending on the `osu-token` header, plus the small JSON admin/status
// API, grounded on the teacher's api.go (echo-based APIServer,
// registerRoutes, jsonErrorHandler, middleware.Recover()) and
// original_source/pep.py's route table.
package httpfront

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"bancho/internal/bot"
	"bancho/internal/dispatch"
	"bancho/internal/login"
	"bancho/internal/serverctx"
	"bancho/internal/session"
	"bancho/internal/wire"
)

const tokenHeader = "osu-token"

// Server wraps the echo.Echo instance serving every route in spec.md
// §6, bound to the shared server context.
type Server struct {
	Ctx        *serverctx.Context
	LoginDeps  *login.Deps
	Dispatcher *dispatch.Dispatcher
	Bot        *bot.Bot
	CIKey      string

	echo *echo.Echo
}

// New builds a Server with every route registered.
func New(ctx *serverctx.Context, loginDeps *login.Deps, d *dispatch.Dispatcher, b *bot.Bot, ciKey string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[http] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &Server{Ctx: ctx, LoginDeps: loginDeps, Dispatcher: d, Bot: b, CIKey: ciKey, echo: e}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.POST("/", s.handleRoot)
	s.echo.GET("/api/v1/isOnline", s.handleIsOnline)
	s.echo.GET("/api/v1/onlineUsers", s.handleOnlineUsers)
	s.echo.GET("/api/v1/serverStatus", s.handleServerStatus)
	s.echo.GET("/api/v1/ciTrigger", s.handleCITrigger)
	s.echo.GET("/api/v1/fokabotMessage", s.handleFokabotMessage)
	s.echo.GET("/api/v1/verifiedStatus", s.handleVerifiedStatus)
	s.echo.GET("/api/v2/clients/:uid", s.handleClientSnapshot)
	s.echo.GET("/infos", s.handleInfos)
}

// Run starts the server on addr and blocks until ctx is cancelled
// (teacher's api.go Run: start in a goroutine, wait on ctx.Done(), then
// shut down with a bounded grace period).
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[http] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[http] shutdown: %v", err)
	}
}

func (s *Server) handleRoot(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	if token := c.Request().Header.Get(tokenHeader); token != "" {
		return s.handlePacketExchange(c, token, body)
	}
	return s.handleLogin(c, body)
}

func (s *Server) handleLogin(c echo.Context, body []byte) error {
	req, err := login.ParseRequest(string(body), c.RealIP())
	if err != nil {
		return c.Blob(http.StatusOK, "application/octet-stream", wire.LoginFailedPacket)
	}
	result := login.Handle(s.LoginDeps, req)
	if result.TokenID != "" {
		c.Response().Header().Set("cho-token", result.TokenID)
	}
	return c.Blob(http.StatusOK, "application/octet-stream", result.Body)
}

func (s *Server) handlePacketExchange(c echo.Context, token string, body []byte) error {
	sess, ok := s.Ctx.Sessions.Get(token)
	if !ok {
		return c.Blob(http.StatusOK, "application/octet-stream", wire.LoginErrorPacket)
	}
	sess.UpdatePingTime()

	frames, _ := wire.ReadFrames(body)
	for _, f := range frames {
		s.Dispatcher.Handle(sess, f)
	}
	return c.Blob(http.StatusOK, "application/octet-stream", sess.DrainQueue())
}

func (s *Server) handleIsOnline(c echo.Context) error {
	name := c.QueryParam("u")
	var online bool
	if name != "" {
		_, online = s.Ctx.Sessions.ByName(name, false)
	} else if id := c.QueryParam("id"); id != "" {
		if uid, err := parseInt32(id); err == nil {
			_, online = s.Ctx.Sessions.ByUserID(uid)
		}
	}
	result := 0
	if online {
		result = 1
	}
	return c.JSON(http.StatusOK, map[string]int{"status": 200, "result": result})
}

func (s *Server) handleOnlineUsers(c echo.Context) error {
	all := s.Ctx.Sessions.All()
	ids := make([]int32, 0, len(all))
	for _, sess := range all {
		ids = append(ids, sess.UserID)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": 200, "result": len(ids), "ids": ids})
}

func (s *Server) handleServerStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":          200,
		"connected_users": s.Ctx.Sessions.Count(),
		"matches":         s.Ctx.Matches.Count(),
		"uptime_seconds":  int64(time.Since(s.Ctx.StartTime).Seconds()),
		"maintenance":     s.Ctx.Settings.Maintenance(),
		"restarting":      s.Ctx.Settings.Restarting(),
	})
}

// handleCITrigger serves pep.py's /api/v1/ciTrigger: when k matches
// the configured CI key it sets the restarting flag, so new logins are
// refused, and logs once 5 seconds have passed. It does not restart
// the process.
func (s *Server) handleCITrigger(c echo.Context) error {
	if s.CIKey == "" || c.QueryParam("k") != s.CIKey {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid key")
	}
	s.Ctx.Settings.SetRestarting(true)
	go func() {
		time.Sleep(5 * time.Second)
		log.Printf("[http] ciTrigger: restart window elapsed")
	}()
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleFokabotMessage(c echo.Context) error {
	if s.CIKey == "" || c.QueryParam("k") != s.CIKey {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid key")
	}
	to := c.QueryParam("to")
	msg := c.QueryParam("msg")
	if to == "" || msg == "" || s.Bot == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing to/msg")
	}
	reply := s.Bot.Handle(s.Bot.Name, to, msg)
	return c.String(http.StatusOK, reply)
}

func (s *Server) handleVerifiedStatus(c echo.Context) error {
	uidStr := c.QueryParam("u")
	uid, err := parseInt32(uidStr)
	if err != nil {
		return c.String(http.StatusOK, "-1")
	}
	user, found, err := s.Ctx.Store.UserByID(uid)
	if err != nil || !found {
		return c.String(http.StatusOK, "-1")
	}
	if user.Privileges&session.PrivPendingVerification != 0 {
		return c.String(http.StatusOK, "0")
	}
	return c.String(http.StatusOK, "1")
}

func (s *Server) handleClientSnapshot(c echo.Context) error {
	uid, err := parseInt32(c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid uid")
	}
	sess, ok := s.Ctx.Sessions.ByUserID(uid)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "not online")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":         sess.UserID,
		"username":   sess.Username,
		"action":     sess.Action.ID,
		"game_mode":  sess.Action.GameMode,
		"beatmap_id": sess.Action.BeatmapID,
		"country":    sess.Country,
		"match_id":   sess.MatchID,
	})
}

func (s *Server) handleInfos(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"players_online": s.Ctx.Sessions.Count(),
		"matches":        s.Ctx.Matches.Count(),
	})
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	return int32(v), err
}

// jsonErrorHandler gives every error response a consistent JSON body
// (teacher's api.go jsonErrorHandler, adapted verbatim).
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			c.NoContent(code) //nolint:errcheck
		} else {
			c.JSON(code, map[string]string{"error": msg}) //nolint:errcheck
		}
	}
}
