// Package api exposes the live coordination operations over HTTP. Handlers
// are thin glue: they resolve the session, build the participant key and
// delegate to the bus or the registry, which never fail.
package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jfinfoproyectos/seiac-live/internal/block"
	"github.com/jfinfoproyectos/seiac-live/internal/bus"
	"github.com/jfinfoproyectos/seiac-live/internal/config"
	"github.com/jfinfoproyectos/seiac-live/internal/database"
	"github.com/jfinfoproyectos/seiac-live/internal/session"
	"github.com/jfinfoproyectos/seiac-live/pkg/types"
)

// Options carries the server dependencies.
type Options struct {
	Config   *config.Config
	Sessions *session.Manager
	Bus      *bus.Bus
	Blocks   *block.Registry
	DB       *database.Manager
	Logger   zerolog.Logger
}

// Server is the echo application.
type Server struct {
	opts     Options
	app      *echo.Echo
	validate *validator.Validate
	log      zerolog.Logger
}

// NewServer builds the router and wires middleware.
func NewServer(opts Options) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		validate: validator.New(),
		log:      opts.Logger.With().Str("component", "api").Logger(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HTTPErrorHandler = newHTTPErrorHandler(s.log)
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.Recover())
	s.app.Use(middleware.CORS())

	s.app.GET("/health", s.health)

	v1 := s.app.Group("/v1")

	v1.POST("/sessions", s.createSession)
	v1.GET("/sessions", s.listSessions)
	v1.GET("/sessions/:code", s.getSession)
	v1.DELETE("/sessions/:code", s.endSession)

	pg := v1.Group("/sessions/:code/participants/:email", s.participantMiddleware)
	pg.POST("/messages", s.publishMessage)
	pg.GET("/messages", s.readMessages)
	pg.DELETE("/messages/:id", s.ackMessage)
	pg.PUT("/block", s.blockParticipant)
	pg.GET("/block", s.blockStatus)
	pg.DELETE("/block", s.unblockParticipant)

	v1.GET("/blocks", s.listBlocks)
	v1.POST("/maintenance/sweep", s.sweep)
}

// ServeHTTP lets tests drive the server without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

// participantMiddleware validates the path identity and stashes the
// resolved session plus the coordination key in the request context.
func (s *Server) participantMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		code := ctx.Param("code")
		email := ctx.Param("email")

		if !types.IsValidUniqueCode(code) {
			return errInvalidCode
		}
		if !types.IsValidEmail(email) {
			return errInvalidEmail
		}

		sess, err := s.opts.Sessions.GetByCode(ctx.Request().Context(), code)
		if errors.Is(err, database.ErrSessionNotFound) {
			return errSessionNotFound
		}
		if err != nil {
			return errors.Wrap(err, "resolving session")
		}

		ctx.Set("session", sess)
		ctx.Set("key", types.ParticipantKey(code, email))
		return next(ctx)
	}
}

// Session handlers

type createSessionRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	TeacherEmail string `json:"teacher_email" validate:"required,email"`
}

func (s *Server) createSession(ctx echo.Context) error {
	var req createSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return err
	}

	sess, err := s.opts.Sessions.CreateSession(ctx.Request().Context(), req.Title, req.TeacherEmail)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (s *Server) listSessions(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"sessions": s.opts.Sessions.ListActive(),
	})
}

func (s *Server) getSession(ctx echo.Context) error {
	sess, err := s.opts.Sessions.GetByCode(ctx.Request().Context(), ctx.Param("code"))
	if errors.Is(err, database.ErrSessionNotFound) {
		return errSessionNotFound
	}
	if err != nil {
		return errors.Wrap(err, "resolving session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (s *Server) endSession(ctx echo.Context) error {
	err := s.opts.Sessions.EndSession(ctx.Request().Context(), ctx.Param("code"))
	switch {
	case errors.Is(err, database.ErrSessionNotFound):
		return errSessionNotFound
	case errors.Is(err, session.ErrSessionEnded):
		return errSessionEnded
	case err != nil:
		return errors.Wrap(err, "ending session")
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "session ended"})
}

// Message handlers

type publishRequest struct {
	Content string `json:"content" validate:"required"`
	TTLMs   int64  `json:"ttl_ms" validate:"omitempty,gt=0"`
	Scope   string `json:"scope" validate:"omitempty,oneof=all individual"`
}

func (s *Server) publishMessage(ctx echo.Context) error {
	sess := ctx.Get("session").(*types.Session)
	if !sess.Active() {
		return errSessionEnded
	}

	var req publishRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return err
	}

	ttl := s.opts.Config.MessageTTL
	if req.TTLMs > 0 {
		ttl = time.Duration(req.TTLMs) * time.Millisecond
	}

	key := ctx.Get("key").(string)
	msg := s.opts.Bus.Publish(key, req.Content, ttl, req.Scope)

	s.log.Debug().Str("key", key).Str("id", msg.ID).Msg("message published")
	return ctx.JSON(http.StatusCreated, msg)
}

func (s *Server) readMessages(ctx echo.Context) error {
	key := ctx.Get("key").(string)

	var msgs []bus.Message
	if ctx.QueryParam("peek") == "true" {
		msgs = s.opts.Bus.Peek(key)
	} else {
		msgs = s.opts.Bus.Consume(key)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) ackMessage(ctx echo.Context) error {
	key := ctx.Get("key").(string)
	if !s.opts.Bus.Ack(key, ctx.Param("id")) {
		return errMessageNotFound
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"acknowledged": true})
}

// Block handlers

type blockRequest struct {
	Minutes int `json:"minutes"`
}

type blockStatusResponse struct {
	Blocked     bool  `json:"blocked"`
	RemainingMs int64 `json:"remaining_ms"`
}

func (s *Server) blockParticipant(ctx echo.Context) error {
	sess := ctx.Get("session").(*types.Session)
	if !sess.Active() {
		return errSessionEnded
	}

	var req blockRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}

	minutes := req.Minutes
	if minutes == 0 {
		minutes = s.opts.Config.BlockMinutes
	}

	key := ctx.Get("key").(string)
	rec := s.opts.Blocks.Block(key, minutes)

	s.log.Info().Str("key", key).Time("until", rec.BlockedUntil).Msg("participant blocked")
	return ctx.JSON(http.StatusOK, rec)
}

func (s *Server) blockStatus(ctx echo.Context) error {
	st := s.opts.Blocks.Status(ctx.Get("key").(string))
	return ctx.JSON(http.StatusOK, blockStatusResponse{
		Blocked:     st.Blocked,
		RemainingMs: st.Remaining.Milliseconds(),
	})
}

func (s *Server) unblockParticipant(ctx echo.Context) error {
	key := ctx.Get("key").(string)
	existed := s.opts.Blocks.Unblock(key)
	if existed {
		s.log.Info().Str("key", key).Msg("participant unblocked")
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"unblocked": existed})
}

func (s *Server) listBlocks(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{"blocks": s.opts.Blocks.All()})
}

// Maintenance

func (s *Server) sweep(ctx echo.Context) error {
	s.opts.Bus.CleanExpired()
	active := s.opts.Blocks.All()

	buckets, messages := s.opts.Bus.Stats()
	return ctx.JSON(http.StatusOK, map[string]any{
		"buckets":       buckets,
		"messages":      messages,
		"active_blocks": len(active),
	})
}

func (s *Server) health(ctx echo.Context) error {
	code := http.StatusOK
	status := "healthy"
	dbStatus := "healthy"
	if err := s.opts.DB.HealthCheck(ctx.Request().Context()); err != nil {
		code = http.StatusServiceUnavailable
		status = "unhealthy"
		dbStatus = err.Error()
	}

	buckets, messages := s.opts.Bus.Stats()
	return ctx.JSON(code, map[string]any{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC(),
		"bus": map[string]int{
			"buckets":  buckets,
			"messages": messages,
		},
		"blocks": len(s.opts.Blocks.All()),
	})
}
