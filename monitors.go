package main

import (
	"context"
	"time"
)

// runInactivityMonitor implements spec §4.G's inactivity timer: every
// inactivityTick, promote every connected ACTIVE/BUSY user idle for at
// least inactivityThreshold to INACTIVE, then notify — after the lock is
// released — exactly once per transition.
func runInactivityMonitor(ctx context.Context, reg *Registry, notif *Notifier, lg Logger) {
	ticker := time.NewTicker(inactivityTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hits := reg.ScanInactive(time.Now(), inactivityThreshold)
			for _, h := range hits {
				lg.Event("inactivity_promoted", map[string]any{"name": h.name})
				notif.NotifyStatusChange(reg, h.name, StatusInactive)
			}
		}
	}
}

// runDisconnectionReaper implements spec §4.G's reaper: every reaperTick,
// hard-evict DISCONNECTED records older than reaperGracePeriod. No
// notification is sent for an eviction — the user is by definition already
// gone and no connected peer holds a reference to them as "online".
func runDisconnectionReaper(ctx context.Context, reg *Registry, lg Logger, counters *Counters) {
	ticker := time.NewTicker(reaperTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := reg.ReapDisconnected(time.Now(), reaperGracePeriod)
			for _, name := range evicted {
				counters.evicted.Add(1)
				lg.Event("reaped", map[string]any{"name": name})
			}
		}
	}
}
