package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// APIServer is the ambient, read-mostly HTTP surface described in the
// expanded spec's §6.1. It runs on its own TCP port, reuses exactly the
// Registry/HistoryStore/Counters components the WebSocket path uses, and never
// mutates the registry except through the one admin endpoint, which itself
// routes through SessionManager.OnClose so every registry invariant holds.
type APIServer struct {
	registry *Registry
	history  *HistoryStore
	counters *Counters
	sessions *SessionManager
	echo     *echo.Echo
}

// NewAPIServer constructs an APIServer and registers all routes.
func NewAPIServer(reg *Registry, hist *HistoryStore, counters *Counters, sessions *SessionManager) *APIServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[api] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &APIServer{registry: reg, history: hist, counters: counters, sessions: sessions, echo: e}
	s.registerRoutes()
	return s
}

func (s *APIServer) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/version", s.handleVersion)
	s.echo.GET("/api/roster", s.handleRoster)
	s.echo.GET("/api/history/:target", s.handleHistory)
	s.echo.GET("/api/metrics", s.handleMetrics)
	s.echo.POST("/api/admin/disconnect/:name", s.handleAdminDisconnect)
}

// Run starts the Echo HTTP server on addr and blocks until ctx is cancelled.
func (s *APIServer) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
}

// Version is the current server version. Set at build time via -ldflags.
var Version = "0.1.0-dev"

// VersionResponse is the payload for GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}

func (s *APIServer) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, VersionResponse{Version: Version})
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Users  int    `json:"users"`
}

func (s *APIServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Users:  s.registry.Count(),
	})
}

// RosterEntry is one element of GET /api/roster.
type RosterEntry struct {
	Username  string `json:"username"`
	UUID      string `json:"uuid"`
	Status    uint8  `json:"status"`
	Connected bool   `json:"connected"`
}

func (s *APIServer) handleRoster(c echo.Context) error {
	users := s.registry.Snapshot()
	resp := make([]RosterEntry, 0, len(users))
	for _, u := range users {
		resp = append(resp, RosterEntry{
			Username:  u.Username,
			UUID:      u.UUID,
			Status:    uint8(u.Status),
			Connected: u.Connected,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// HistoryEntryResponse is one element of GET /api/history/:target.
type HistoryEntryResponse struct {
	From string `json:"from"`
	Text string `json:"text"`
}

func (s *APIServer) handleHistory(c echo.Context) error {
	target := c.Param("target")
	if target == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing target")
	}
	// For a private log the wire protocol always has a natural "viewer"
	// (the requesting connection); the admin surface has no connection of
	// its own, so it accepts the other party via ?as=. Without ?as= the viewer
	// defaults to target itself, so a non-general target returns only that
	// user's self-addressed log.
	viewer := c.QueryParam("as")
	if viewer == "" {
		viewer = target
	}
	entries := s.history.Read(viewer, target)
	resp := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, HistoryEntryResponse{From: e.From, Text: e.Text})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIServer) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.counters.Snapshot())
}

// handleAdminDisconnect force-closes a connected user's transport. It is an
// administrative escape hatch, not a second admission path: the actual
// registry cleanup still happens through the normal on_close flow once the
// transport's read loop observes the closed connection.
func (s *APIServer) handleAdminDisconnect(c echo.Context) error {
	name := c.Param("name")
	conn, ok := s.registry.ConnIfConnected(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "user not connected")
	}
	if err := conn.Close("admin disconnect"); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// jsonErrorHandler ensures all error responses have a consistent JSON body:
//
//	{"error": "message"}
//
// This replaces Echo's default handler which varies between text and JSON.
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
