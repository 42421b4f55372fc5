package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a user's presence state.
type Status uint8

const (
	StatusDisconnected Status = 0
	StatusActive       Status = 1
	StatusBusy         Status = 2
	StatusInactive     Status = 3
)

// statusValid reports whether b is one of the four wire status values.
func statusValid(b byte) bool {
	return b <= byte(StatusInactive)
}

// Conn is the minimal transport handle the registry and notifier need.
// The real implementation is a *websocket.Conn wrapper (see server.go);
// tests inject a fake.
type Conn interface {
	SendBinary(payload []byte) error
	Close(reason string) error
	RemoteAddr() string
}

// userRecord is one row of the registry, keyed by username.
type userRecord struct {
	uuid       string
	status     Status
	conn       Conn // nil when status == StatusDisconnected
	lastActive time.Time
	remoteIP   string
}

// UserInfo is an immutable snapshot of a userRecord, safe to read after the
// registry lock is released.
type UserInfo struct {
	Username   string
	UUID       string
	Status     Status
	LastActive time.Time
	RemoteIP   string
	Connected  bool
}

// AdmitReason explains a rejected admit() call.
type AdmitReason int

const (
	AdmitOK AdmitReason = iota
	AdmitInvalidName
	AdmitDuplicate
)

// AdmitResult is the outcome of Registry.Admit.
type AdmitResult struct {
	Reason  AdmitReason
	UUID    string
	Status  Status
	NewUser bool
}

func (r AdmitResult) Admitted() bool { return r.Reason == AdmitOK }

// Registry is the authoritative, in-memory map of known users. One
// sync.RWMutex guards this map and the retained-status side table — the
// two are mutated together so admit/detach stay single atomic transitions
// (spec §9, "Global mutable maps → one registry component").
type Registry struct {
	mu            sync.RWMutex
	users         map[string]*userRecord
	retainStatus  map[string]Status // last non-DISCONNECTED status, survives the DISCONNECTED window
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		users:        make(map[string]*userRecord),
		retainStatus: make(map[string]Status),
	}
}

// validateUsername enforces spec §3's username constraints: 1..20 UTF-8
// bytes, and never equal to the reserved general-chat marker.
func validateUsername(name string) bool {
	if len(name) == 0 || len(name) > maxUsernameLen {
		return false
	}
	if name == generalChatID {
		return false
	}
	return true
}

// Admit implements spec §4.B's admit logic: reject invalid names, create a
// brand-new ACTIVE record, reject a live duplicate, or revive a retained
// DISCONNECTED record back to ACTIVE. now is passed in so tests can control
// timestamps without sleeping.
func (r *Registry) Admit(name string, conn Conn, ip string, now time.Time) AdmitResult {
	if !validateUsername(name) {
		return AdmitResult{Reason: AdmitInvalidName}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.users[name]
	if !exists {
		rec = &userRecord{
			uuid:       uuid.NewString(),
			status:     StatusActive,
			conn:       conn,
			lastActive: now,
			remoteIP:   ip,
		}
		r.users[name] = rec
		return AdmitResult{Reason: AdmitOK, UUID: rec.uuid, Status: rec.status, NewUser: true}
	}

	if rec.conn != nil {
		return AdmitResult{Reason: AdmitDuplicate}
	}

	// Reconnect: policy forces ACTIVE regardless of the retained status.
	rec.conn = conn
	rec.status = StatusActive
	rec.lastActive = now
	rec.remoteIP = ip
	return AdmitResult{Reason: AdmitOK, UUID: rec.uuid, Status: rec.status, NewUser: false}
}

// Lookup returns a snapshot of the record for name, or false if unknown.
func (r *Registry) Lookup(name string) (UserInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.users[name]
	if !ok {
		return UserInfo{}, false
	}
	return snapshotLocked(name, rec), true
}

// LookupByConn scans the registry for the record holding conn. This is the
// dispatcher's only sender-lookup path (spec §4.E point 1): O(n) in
// connected users, acceptable at the target scale.
func (r *Registry) LookupByConn(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, rec := range r.users {
		if rec.conn == conn {
			return name, true
		}
	}
	return "", false
}

// Detach locates the record holding conn, marks it DISCONNECTED, clears the
// connection, and retains the record. Idempotent: detaching an unknown or
// already-disconnected conn is a no-op. Returns the username if a record was
// changed.
func (r *Registry) Detach(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, rec := range r.users {
		if rec.conn == conn {
			r.retainStatus[name] = rec.status
			rec.status = StatusDisconnected
			rec.conn = nil
			return name, true
		}
	}
	return "", false
}

// UpdateStatus mutates status and last_active, returning the previous
// status and whether the user was found.
func (r *Registry) UpdateStatus(name string, newStatus Status, now time.Time) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.users[name]
	if !ok {
		return 0, false
	}
	old := rec.status
	rec.status = newStatus
	rec.lastActive = now
	return old, true
}

// Touch refreshes last_active only, leaving status untouched.
func (r *Registry) Touch(name string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.users[name]; ok {
		rec.lastActive = now
	}
}

// Snapshot copies every record, for roster responses — this deliberately
// avoids holding the exclusive lock during wire encoding or fan-out.
func (r *Registry) Snapshot() []UserInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]UserInfo, 0, len(r.users))
	for name, rec := range r.users {
		out = append(out, snapshotLocked(name, rec))
	}
	return out
}

func snapshotLocked(name string, rec *userRecord) UserInfo {
	return UserInfo{
		Username:   name,
		UUID:       rec.uuid,
		Status:     rec.status,
		LastActive: rec.lastActive,
		RemoteIP:   rec.remoteIP,
		Connected:  rec.conn != nil,
	}
}

// RetainedStatus returns the last non-DISCONNECTED status recorded for
// name, for diagnostics (spec §3's retained-status side table is not
// currently consulted by any policy — reconnect always forces ACTIVE).
func (r *Registry) RetainedStatus(name string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.retainStatus[name]
	return st, ok
}

// inactivityCandidate is a (name, connection) pair captured under the lock,
// either for an inactivity transition (ScanInactive) or as a fan-out target
// (ConnectedTargets), so the caller can notify after releasing it.
type inactivityCandidate struct {
	name string
	conn Conn
}

// ScanInactive returns every ACTIVE/BUSY connected user whose last_active is
// at least threshold old, and promotes each one to INACTIVE in the same
// pass. Mutation and candidate collection happen under one lock acquisition
// so a concurrent inbound frame can't race the transition.
func (r *Registry) ScanInactive(now time.Time, threshold time.Duration) []inactivityCandidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hits []inactivityCandidate
	for name, rec := range r.users {
		if rec.conn == nil {
			continue
		}
		if rec.status != StatusActive && rec.status != StatusBusy {
			continue
		}
		if now.Sub(rec.lastActive) >= threshold {
			rec.status = StatusInactive
			hits = append(hits, inactivityCandidate{name: name, conn: rec.conn})
		}
	}
	return hits
}

// ReapDisconnected hard-evicts every DISCONNECTED record whose last_active
// is at least grace old. Returns the evicted usernames.
func (r *Registry) ReapDisconnected(now time.Time, grace time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for name, rec := range r.users {
		if rec.conn != nil {
			continue
		}
		if now.Sub(rec.lastActive) >= grace {
			delete(r.users, name)
			delete(r.retainStatus, name)
			evicted = append(evicted, name)
		}
	}
	return evicted
}

// ConnectedTargets returns (name, conn) for every currently-connected user,
// for the notifier's snapshot-then-release fan-out pattern.
func (r *Registry) ConnectedTargets() []inactivityCandidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]inactivityCandidate, 0, len(r.users))
	for name, rec := range r.users {
		if rec.conn != nil {
			out = append(out, inactivityCandidate{name: name, conn: rec.conn})
		}
	}
	return out
}

// ConnIfConnected returns the live connection handle for name, if any.
// Used by the notifier's private-message path, which addresses exactly two
// named recipients rather than a full snapshot.
func (r *Registry) ConnIfConnected(name string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.users[name]
	if !ok || rec.conn == nil {
		return nil, false
	}
	return rec.conn, true
}

// Count returns the number of known records (connected or retained).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
