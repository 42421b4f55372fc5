package main

import (
	"context"
	"sync"
	"time"
)

// SessionManager wires the Registry, HistoryStore, Notifier, and Logger
// together and is the single entry point the transport layer (server.go)
// calls into: on_open/on_message/on_close. It owns the start-once guard for
// the background monitors, matching the original's "first connection starts
// the monitor threads" behavior without needing a dedicated bootstrap step.
type SessionManager struct {
	registry *Registry
	history  *HistoryStore
	notifier *Notifier
	logger   Logger
	counters *Counters

	monitorOnce sync.Once
	monitorStop context.CancelFunc
}

// NewSessionManager builds a SessionManager over the given components.
func NewSessionManager(reg *Registry, hist *HistoryStore, notif *Notifier, lg Logger, counters *Counters) *SessionManager {
	return &SessionManager{
		registry: reg,
		history:  hist,
		notifier: notif,
		logger:   lg,
		counters: counters,
	}
}

// startMonitorsOnce launches the inactivity monitor and disconnection
// reaper exactly once, on the first successful admission. ctx bounds their
// lifetime to the server's lifetime; it is cancelled from Shutdown.
func (s *SessionManager) startMonitorsOnce(parent context.Context) {
	s.monitorOnce.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		s.monitorStop = cancel
		go runInactivityMonitor(ctx, s.registry, s.notifier, s.logger)
		go runDisconnectionReaper(ctx, s.registry, s.logger, s.counters)
	})
}

// Shutdown stops the background monitors, if they were started.
func (s *SessionManager) Shutdown() {
	if s.monitorStop != nil {
		s.monitorStop()
	}
}

// OnOpen admits a new connection under the claimed name. It delegates to
// Registry.Admit, starts the background monitors on the first successful
// admission, and notifies peers via USER_JOINED (spec §4.D / §8 scenario 1),
// unconditionally on every admit, reconnects included, matching the original's
// notify_user_joined call. When the result is not Admitted, the caller
// (server.go) sends the rejection reason as a text frame and closes conn.
func (s *SessionManager) OnOpen(ctx context.Context, name string, conn Conn, remoteIP string) AdmitResult {
	res := s.registry.Admit(name, conn, remoteIP, time.Now())
	if !res.Admitted() {
		s.counters.rejected.Add(1)
		s.logger.Event("admit_rejected", map[string]any{"name": name, "reason": int(res.Reason)})
		return res
	}

	s.startMonitorsOnce(ctx)
	s.counters.admitted.Add(1)
	s.logger.Event("admit_ok", map[string]any{"name": name, "uuid": res.UUID, "new_user": res.NewUser})

	// notify_joined fires on every admit, reconnects included; the original
	// never special-cases a returning user here.
	s.notifier.NotifyJoined(s.registry, name, res.UUID)
	return res
}

// OnMessage routes one inbound binary frame through the dispatcher. See
// dispatch.go for the opcode table and per-opcode semantics.
func (s *SessionManager) OnMessage(conn Conn, frame []byte) {
	dispatchFrame(s.registry, s.history, s.notifier, s.logger, s.counters, conn, frame)
}

// OnClose detaches conn from the registry (idempotent — a frame that
// arrives after the transport already failed is not an error) and notifies
// peers of the resulting DISCONNECTED status.
func (s *SessionManager) OnClose(conn Conn) {
	name, ok := s.registry.Detach(conn)
	if !ok {
		return
	}
	s.counters.disconnected.Add(1)
	s.logger.Event("disconnect", map[string]any{"name": name})
	s.notifier.NotifyStatusChange(s.registry, name, StatusDisconnected)
}
