package main

import (
	"context"
	"testing"
)

func newTestSessionManager() (*SessionManager, *Registry, *Counters) {
	reg := NewRegistry()
	hist := NewHistoryStore()
	notif := NewNotifier(nopLogger{})
	counters := &Counters{}
	return NewSessionManager(reg, hist, notif, nopLogger{}, counters), reg, counters
}

func TestSessionOnOpenAdmitsAndCounts(t *testing.T) {
	sm, reg, counters := newTestSessionManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := newMockConn("1.1.1.1")
	res := sm.OnOpen(ctx, "alice", conn, "1.1.1.1")
	if !res.Admitted() {
		t.Fatalf("OnOpen() = %+v, want admitted", res)
	}
	if counters.admitted.Load() != 1 {
		t.Fatalf("admitted counter = %d, want 1", counters.admitted.Load())
	}
	if _, ok := reg.Lookup("alice"); !ok {
		t.Fatal("alice not present in registry after OnOpen")
	}
	sm.Shutdown()
}

func TestSessionOnOpenRejectsDuplicateAndCounts(t *testing.T) {
	sm, _, counters := newTestSessionManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sm.OnOpen(ctx, "alice", newMockConn("1.1.1.1"), "1.1.1.1")
	res := sm.OnOpen(ctx, "alice", newMockConn("2.2.2.2"), "2.2.2.2")
	if res.Admitted() || res.Reason != AdmitDuplicate {
		t.Fatalf("second OnOpen() = %+v, want Rejected(DUPLICATE)", res)
	}
	if counters.rejected.Load() != 1 {
		t.Fatalf("rejected counter = %d, want 1", counters.rejected.Load())
	}
	if counters.admitted.Load() != 1 {
		t.Fatalf("admitted counter = %d, want 1 (only the first connection)", counters.admitted.Load())
	}
	sm.Shutdown()
}

func TestSessionOnOpenNewJoinerNotNotifiedOfOwnJoin(t *testing.T) {
	sm, _, _ := newTestSessionManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := newMockConn("1.1.1.1")
	sm.OnOpen(ctx, "alice", alice, "1.1.1.1")
	if len(alice.frames()) != 0 {
		t.Fatalf("joiner itself received %d frames, want 0", len(alice.frames()))
	}

	bob := newMockConn("2.2.2.2")
	sm.OnOpen(ctx, "bob", bob, "2.2.2.2")
	if len(alice.frames()) != 1 {
		t.Fatalf("existing user frames after new joiner = %d, want 1", len(alice.frames()))
	}
	sm.Shutdown()
}

func TestSessionOnOpenReconnectSendsUserJoinedNotStatusChange(t *testing.T) {
	sm, _, _ := newTestSessionManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := newMockConn("1.1.1.1")
	bob := newMockConn("2.2.2.2")
	sm.OnOpen(ctx, "alice", alice, "1.1.1.1")
	sm.OnOpen(ctx, "bob", bob, "2.2.2.2")
	sm.OnClose(alice)

	reconn := newMockConn("3.3.3.3")
	res := sm.OnOpen(ctx, "alice", reconn, "3.3.3.3")
	if !res.Admitted() || res.NewUser {
		t.Fatalf("reconnect OnOpen() = %+v, want Admitted(new_user=false)", res)
	}

	got := bob.lastFrame()
	if got == nil || got[0] != opUserJoined {
		t.Fatalf("bob's frame after alice's reconnect = %v, want USER_JOINED (opcode %d)", got, opUserJoined)
	}
	if len(reconn.frames()) != 0 {
		t.Fatal("the reconnecting user should not receive its own USER_JOINED frame")
	}
	sm.Shutdown()
}

func TestSessionOnMessageDispatches(t *testing.T) {
	sm, _, counters := newTestSessionManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := newMockConn("1.1.1.1")
	sm.OnOpen(ctx, "alice", conn, "1.1.1.1")

	frame := newEncoder(opSendMessage).putStr8(generalChatID).putStr8("hi").bytes()
	sm.OnMessage(conn, frame)

	if counters.messagesSent.Load() != 1 {
		t.Fatalf("messagesSent = %d, want 1", counters.messagesSent.Load())
	}
	sm.Shutdown()
}

func TestSessionOnCloseDetachesAndNotifies(t *testing.T) {
	sm, reg, counters := newTestSessionManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := newMockConn("1.1.1.1")
	bob := newMockConn("2.2.2.2")
	sm.OnOpen(ctx, "alice", alice, "1.1.1.1")
	sm.OnOpen(ctx, "bob", bob, "2.2.2.2")

	sm.OnClose(alice)
	if counters.disconnected.Load() != 1 {
		t.Fatalf("disconnected counter = %d, want 1", counters.disconnected.Load())
	}
	info, _ := reg.Lookup("alice")
	if info.Status != StatusDisconnected {
		t.Fatalf("alice status after close = %v, want DISCONNECTED", info.Status)
	}
	if got := bob.lastFrame(); got == nil || got[0] != opUserStatusChange {
		t.Fatalf("bob not notified of alice's disconnect, last frame = %v", got)
	}
	sm.Shutdown()
}

func TestSessionOnCloseIgnoresUnknownConn(t *testing.T) {
	sm, _, counters := newTestSessionManager()
	stranger := newMockConn("9.9.9.9")
	sm.OnClose(stranger)
	if counters.disconnected.Load() != 0 {
		t.Fatalf("disconnected counter = %d, want 0 for an unregistered conn", counters.disconnected.Load())
	}
}

func TestSessionMonitorsStartOnlyOnce(t *testing.T) {
	sm, _, _ := newTestSessionManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sm.OnOpen(ctx, "alice", newMockConn("1.1.1.1"), "1.1.1.1")
	if sm.monitorStop == nil {
		t.Fatal("monitorStop never set after first OnOpen")
	}

	// A second OnOpen must not start a second pair of monitors; Shutdown
	// should still cleanly cancel the single pair started on the first call.
	sm.OnOpen(ctx, "bob", newMockConn("2.2.2.2"), "2.2.2.2")
	sm.Shutdown()
}
