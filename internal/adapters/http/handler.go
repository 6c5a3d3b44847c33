package httpadapter

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/PabloGalante/gpt-relay/internal/app/dispatch"
	"github.com/PabloGalante/gpt-relay/internal/domain"
	"github.com/PabloGalante/gpt-relay/internal/observability"
)

// CommandHandler is satisfied by *dispatch.Dispatcher.
type CommandHandler interface {
	Handle(ctx context.Context, cmd dispatch.Command) dispatch.Reply
	Prefix() string
}

// SessionLister is implemented by the storage backends that can enumerate
// one server's sessions.
type SessionLister interface {
	ListSessionsByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Session, error)
}

type Server struct {
	commands CommandHandler
	lister   SessionLister
}

// NewServer wires the routes. lister may be nil, in which case the session
// listing route is not registered.
func NewServer(commands CommandHandler, lister SessionLister) *echo.Echo {
	s := &Server{commands: commands, lister: lister}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(withRequestID())
	e.Use(withLogging())
	e.Use(middleware.Recover())

	e.GET("/healthz", s.handleHealthz)
	e.POST("/v1/commands", s.handleCommand)
	if lister != nil {
		e.GET("/v1/servers/:server_id/sessions", s.handleListSessions)
	}

	return e
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type commandRequest struct {
	ServerID string `json:"server_id"`
	UserID   string `json:"user_id"`
	AuthorID string `json:"author_id,omitempty"`
	Text     string `json:"text"`
}

type commandResponse struct {
	Title string `json:"title"`
	Field string `json:"field"`
	Value string `json:"value"`
	Error bool   `json:"error"`
}

type sessionSummary struct {
	UserID    string    `json:"user_id"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type listSessionsResponse struct {
	ServerID string           `json:"server_id"`
	Sessions []sessionSummary `json:"sessions"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleCommand runs one chat line as if it had been posted in a server.
// POST /v1/commands
func (s *Server) handleCommand(c echo.Context) error {
	var req commandRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if strings.TrimSpace(req.ServerID) == "" {
		return badRequest(c, "server_id is required")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return badRequest(c, "user_id is required")
	}

	// author_id only differs from user_id when replaying messages from
	// another client; the session is always keyed by the author.
	author := req.AuthorID
	if author == "" {
		author = req.UserID
	}

	cmd, ok := dispatch.Route(dispatch.Incoming{
		ServerID: domain.ServerID(req.ServerID),
		AuthorID: domain.UserID(author),
		Content:  req.Text,
	}, "", s.commands.Prefix())
	if !ok {
		return badRequest(c, "text is not a command, try "+s.commands.Prefix()+"help")
	}

	reply := s.commands.Handle(c.Request().Context(), cmd)
	return c.JSON(http.StatusOK, toCommandResponse(reply))
}

// handleListSessions lists the sessions of one server.
// GET /v1/servers/:server_id/sessions
func (s *Server) handleListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	serverID := domain.ServerID(c.Param("server_id"))

	sessions, err := s.lister.ListSessionsByServer(ctx, serverID)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to list sessions", "server", serverID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
	}

	resp := listSessionsResponse{
		ServerID: string(serverID),
		Sessions: make([]sessionSummary, 0, len(sessions)),
	}
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, sessionSummary{
			UserID:    string(sess.Key.UserID),
			Messages:  len(sess.History),
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		})
	}

	return c.JSON(http.StatusOK, resp)
}

func toCommandResponse(r dispatch.Reply) commandResponse {
	return commandResponse{
		Title: r.Title,
		Field: r.Field,
		Value: r.Value,
		Error: r.IsError(),
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
