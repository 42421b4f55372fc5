package main

import "time"

// Operational limits and timing constants, kept together the way the
// teacher's limits.go centralises magic numbers that would otherwise be
// scattered across the dispatch and monitor code.
const (
	// maxUsernameLen is the largest accepted username, in bytes.
	maxUsernameLen = 20

	// maxMessageLen is the largest accepted message body, in bytes. Longer
	// text is truncated rather than rejected (see dispatch.go).
	maxMessageLen = 255

	// maxHistoryEntries bounds a single HISTORY_REPLY frame; the count is
	// wire-encoded as a single byte so this is also a hard wire limit.
	maxHistoryEntries = 255

	// generalChatID is the reserved destination/history key for the
	// broadcast channel.
	generalChatID = "~"

	// inactivityTick is how often the inactivity monitor scans the registry.
	inactivityTick = 5 * time.Second

	// inactivityThreshold is how long a connected ACTIVE/BUSY user may go
	// without an inbound frame before being promoted to INACTIVE.
	inactivityThreshold = 60 * time.Second

	// reaperTick is how often the disconnection reaper scans the registry.
	reaperTick = 60 * time.Second

	// reaperGracePeriod is how long a DISCONNECTED record is retained
	// before the reaper evicts it.
	reaperGracePeriod = 5 * time.Minute
)
