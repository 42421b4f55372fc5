package main

import (
	"fmt"
	"log"

	"github.com/xtsebas/chatterbox/store"
)

// Logger is the single sink every component calls instead of writing to
// stdout directly (spec §9, "Singleton logger... model as an asynchronous
// sink injected at construction"). kind is a short event name
// ("admit_ok", "disconnect", ...); fields carries the event's structured
// detail.
type Logger interface {
	Event(kind string, fields map[string]any)
}

// StdLogger wraps the standard library logger, the teacher's own
// convention in main.go and room.go ("[component] message" lines via
// log.Printf).
type StdLogger struct {
	prefix string
}

// NewStdLogger returns a Logger that writes through log.Printf with the
// given component prefix.
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{prefix: prefix}
}

func (l *StdLogger) Event(kind string, fields map[string]any) {
	log.Printf("[%s] %s %v", l.prefix, kind, fields)
}

// defaultLogger is the process-wide instance used by callers that don't
// carry their own Logger reference (convenience only; every core component
// still takes one explicitly at construction).
var defaultLogger Logger = NewStdLogger("engine")

// SQLiteAuditLogger is the optional persisted sink described in the
// expanded spec's §7.1: an audit trail for operators, grounded in the
// teacher's modernc.org/sqlite-backed store, trimmed to the audit_log
// table. It is never read back into the Registry at startup — this is
// diagnostics, not session-state persistence.
type SQLiteAuditLogger struct {
	st   *store.Store
	next Logger // also logs through StdLogger so operators see events live
}

// NewSQLiteAuditLogger wraps st, additionally forwarding every event to
// next (typically a StdLogger) so a missing or full disk never silences
// the live log stream.
func NewSQLiteAuditLogger(st *store.Store, next Logger) *SQLiteAuditLogger {
	return &SQLiteAuditLogger{st: st, next: next}
}

func (l *SQLiteAuditLogger) Event(kind string, fields map[string]any) {
	if l.next != nil {
		l.next.Event(kind, fields)
	}
	username, _ := fields["name"].(string)
	detail := fmt.Sprintf("%v", fields)
	if err := l.st.InsertAuditLog(username, kind, detail); err != nil {
		log.Printf("[audit] insert failed: %v", err)
	}
}
