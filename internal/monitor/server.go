package monitor

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/wicaksana/swara/internal/auth"
	"github.com/wicaksana/swara/internal/engine"
)

// Server exposes the observational HTTP surface: status and history
// over REST, live notifications over WebSocket, and session controls.
type Server struct {
	echo   *echo.Echo
	ctrl   *engine.Controller
	hub    *Hub
	issuer *auth.TokenIssuer
	logger *zap.Logger
}

// NewServer creates the monitor server. A nil issuer disables
// authentication; intended for loopback-only listeners.
func NewServer(ctrl *engine.Controller, hub *Hub, issuer *auth.TokenIssuer, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		ctrl:   ctrl,
		hub:    hub,
		issuer: issuer,
		logger: logger,
	}
	s.initRoutes()
	return s
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) initRoutes() {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "swara",
		})
	})

	v1 := s.echo.Group("/api/v1")
	if s.issuer != nil {
		v1.Use(s.requireToken)
	}

	v1.GET("/status", s.getStatus)
	v1.GET("/history", s.getHistory)
	v1.POST("/messages", s.postMessage)
	v1.POST("/session/start", s.postSessionStart)
	v1.POST("/session/stop", s.postSessionStop)
	v1.POST("/session/retry", s.postSessionRetry)
	v1.POST("/talk", s.postTalk)

	s.echo.GET("/ws", s.handleWebSocket)
}

// requireToken validates the bearer token on every API request.
func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "Access token is required in Authorization header",
			})
		}
		if _, err := s.issuer.ValidateToken(token); err != nil {
			s.logger.Warn("Monitor request rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired access token",
			})
		}
		return next(c)
	}
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		State:    s.ctrl.State(),
		Speaking: s.ctrl.Speaking(),
		TalkMode: s.ctrl.TalkMode().String(),
	})
}

func (s *Server) getHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, HistoryResponse{
		Messages: s.ctrl.History().Messages(),
	})
}

func (s *Server) postMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Text is required",
		})
	}

	s.ctrl.SendText(req.Text)
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) postSessionStart(c echo.Context) error {
	s.ctrl.Start()
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) postSessionStop(c echo.Context) error {
	s.ctrl.Stop()
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) postSessionRetry(c echo.Context) error {
	s.ctrl.Retry()
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) postTalk(c echo.Context) error {
	var req TalkRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	switch req.Mode {
	case "":
	case "continuous":
		s.ctrl.SetTalkMode(engine.TalkModeContinuous)
	case "push-to-talk":
		s.ctrl.SetTalkMode(engine.TalkModePushToTalk)
	default:
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_mode",
			Message: "Mode must be continuous or push-to-talk",
		})
	}

	if req.Pressed != nil {
		s.ctrl.SetPushToTalk(*req.Pressed)
	}
	return c.NoContent(http.StatusAccepted)
}

// handleWebSocket authenticates the upgrade request, then hands the
// connection to the hub. Browsers cannot set headers on websocket
// upgrades, so a token query parameter is accepted as well.
func (s *Server) handleWebSocket(c echo.Context) error {
	if s.issuer != nil {
		token := bearerToken(c)
		if token == "" {
			token = c.QueryParam("token")
		}
		if token == "" {
			s.logger.Warn("WebSocket connection rejected: missing token")
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "Access token is required",
			})
		}
		if _, err := s.issuer.ValidateToken(token); err != nil {
			s.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired access token",
			})
		}
	}

	return HandleWebSocket(s.hub, c, s.logger)
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
