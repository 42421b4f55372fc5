package main

import (
	"testing"
	"time"
)

func TestRegistryAdmitNewUser(t *testing.T) {
	reg := NewRegistry()
	conn := newMockConn("1.2.3.4")
	now := time.Now()

	res := reg.Admit("alice", conn, "1.2.3.4", now)
	if !res.Admitted() || !res.NewUser {
		t.Fatalf("Admit() = %+v, want Admitted(new_user=true)", res)
	}
	if res.Status != StatusActive {
		t.Fatalf("new user status = %v, want ACTIVE", res.Status)
	}

	info, ok := reg.Lookup("alice")
	if !ok || info.UUID != res.UUID || info.Status != StatusActive {
		t.Fatalf("Lookup() = %+v, ok=%v", info, ok)
	}
}

func TestRegistryAdmitInvalidName(t *testing.T) {
	reg := NewRegistry()
	conn := newMockConn("1.2.3.4")

	cases := []string{"", generalChatID, string(make([]byte, 21))}
	for _, name := range cases {
		res := reg.Admit(name, conn, "1.2.3.4", time.Now())
		if res.Admitted() || res.Reason != AdmitInvalidName {
			t.Errorf("Admit(%q) = %+v, want Rejected(INVALID_NAME)", name, res)
		}
	}
}

func TestRegistryAdmitDuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	first := newMockConn("1.1.1.1")
	second := newMockConn("2.2.2.2")
	now := time.Now()

	reg.Admit("alice", first, "1.1.1.1", now)
	res := reg.Admit("alice", second, "2.2.2.2", now)
	if res.Admitted() || res.Reason != AdmitDuplicate {
		t.Fatalf("second Admit() = %+v, want Rejected(DUPLICATE)", res)
	}
	if reg.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", reg.Count())
	}
}

func TestRegistryReconnectForcesActive(t *testing.T) {
	reg := NewRegistry()
	conn := newMockConn("1.1.1.1")
	now := time.Now()

	reg.Admit("alice", conn, "1.1.1.1", now)
	reg.UpdateStatus("alice", StatusBusy, now)
	reg.Detach(conn)

	info, _ := reg.Lookup("alice")
	if info.Status != StatusDisconnected || info.Connected {
		t.Fatalf("after detach: %+v", info)
	}

	reconn := newMockConn("9.9.9.9")
	res := reg.Admit("alice", reconn, "9.9.9.9", now)
	if !res.Admitted() || res.NewUser {
		t.Fatalf("reconnect Admit() = %+v, want Admitted(new_user=false)", res)
	}
	if res.Status != StatusActive {
		t.Fatalf("reconnect status = %v, want ACTIVE even though retained was BUSY", res.Status)
	}

	retained, ok := reg.RetainedStatus("alice")
	if !ok || retained != StatusBusy {
		t.Fatalf("RetainedStatus() = %v, %v, want BUSY, true", retained, ok)
	}
}

func TestRegistryDetachIdempotent(t *testing.T) {
	reg := NewRegistry()
	conn := newMockConn("1.1.1.1")
	reg.Admit("alice", conn, "1.1.1.1", time.Now())

	name, ok := reg.Detach(conn)
	if !ok || name != "alice" {
		t.Fatalf("first Detach() = %q, %v", name, ok)
	}
	if _, ok := reg.Detach(conn); ok {
		t.Fatal("second Detach() on the same conn should be a no-op")
	}
}

func TestRegistryLookupByConn(t *testing.T) {
	reg := NewRegistry()
	conn := newMockConn("1.1.1.1")
	reg.Admit("bob", conn, "1.1.1.1", time.Now())

	name, ok := reg.LookupByConn(conn)
	if !ok || name != "bob" {
		t.Fatalf("LookupByConn() = %q, %v, want bob, true", name, ok)
	}

	if _, ok := reg.LookupByConn(newMockConn("2.2.2.2")); ok {
		t.Fatal("LookupByConn() for an unregistered conn returned true")
	}
}

func TestRegistryScanInactivePromotesOnce(t *testing.T) {
	reg := NewRegistry()
	conn := newMockConn("1.1.1.1")
	start := time.Now()
	reg.Admit("alice", conn, "1.1.1.1", start)

	later := start.Add(70 * time.Second)
	hits := reg.ScanInactive(later, inactivityThreshold)
	if len(hits) != 1 || hits[0].name != "alice" {
		t.Fatalf("ScanInactive() = %+v, want one hit for alice", hits)
	}

	info, _ := reg.Lookup("alice")
	if info.Status != StatusInactive {
		t.Fatalf("status after scan = %v, want INACTIVE", info.Status)
	}

	// A second scan should not re-report an already-INACTIVE user.
	hits = reg.ScanInactive(later.Add(time.Second), inactivityThreshold)
	if len(hits) != 0 {
		t.Fatalf("second ScanInactive() = %+v, want no hits", hits)
	}
}

func TestRegistryReapDisconnected(t *testing.T) {
	reg := NewRegistry()
	conn := newMockConn("1.1.1.1")
	start := time.Now()
	reg.Admit("alice", conn, "1.1.1.1", start)
	reg.Detach(conn)

	tooSoon := reg.ReapDisconnected(start.Add(time.Minute), reaperGracePeriod)
	if len(tooSoon) != 0 {
		t.Fatalf("ReapDisconnected() too soon = %+v, want none", tooSoon)
	}

	evicted := reg.ReapDisconnected(start.Add(6*time.Minute), reaperGracePeriod)
	if len(evicted) != 1 || evicted[0] != "alice" {
		t.Fatalf("ReapDisconnected() after grace = %+v, want [alice]", evicted)
	}
	if reg.Count() != 0 {
		t.Fatalf("Count() after reap = %d, want 0", reg.Count())
	}
}

func TestRegistrySnapshotIndependentOfLiveState(t *testing.T) {
	reg := NewRegistry()
	reg.Admit("alice", newMockConn("1.1.1.1"), "1.1.1.1", time.Now())
	reg.Admit("bob", newMockConn("2.2.2.2"), "2.2.2.2", time.Now())

	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(snap))
	}

	reg.UpdateStatus("alice", StatusBusy, time.Now())
	for _, u := range snap {
		if u.Username == "alice" && u.Status != StatusActive {
			t.Fatal("snapshot entry mutated after being taken")
		}
	}
}
