package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/xtsebas/chatterbox/store"
)

func main() {
	// Check for CLI subcommands before parsing flags. "serve" is the
	// default subcommand and is stripped so its own flags still parse.
	args := os.Args[1:]
	if len(args) > 0 {
		cliDB := "chatterbox.db"
		if RunCLI(args, cliDB) {
			return
		}
		if args[0] == "serve" {
			args = args[1:]
		}
	}

	addr := flag.String("addr", ":8443", "HTTPS/WebSocket listen address")
	apiAddr := flag.String("api-addr", ":8080", "ambient REST API listen address (empty to disable)")
	auditDB := flag.String("audit-db", "", "SQLite path for the audit log sink (empty disables persistence)")
	idleTimeout := flag.Duration("idle-timeout", 30*time.Second, "HTTP idle timeout")
	certValidity := flag.Duration("cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	flag.CommandLine.Parse(args)

	stdLogger := NewStdLogger("engine")
	var lg Logger = stdLogger

	var auditStore *store.Store
	if *auditDB != "" {
		var err error
		auditStore, err = store.New(*auditDB)
		if err != nil {
			log.Fatalf("[store] %v", err)
		}
		defer auditStore.Close()
		lg = NewSQLiteAuditLogger(auditStore, stdLogger)
	}

	tlsHostname := ""
	if host, _, err := net.SplitHostPort(*addr); err == nil && host != "" {
		tlsHostname = host
	}

	tlsConfig, fingerprint, err := generateTLSConfig(*certValidity, tlsHostname)
	if err != nil {
		log.Fatalf("[server] %v", err)
	}
	log.Printf("[server] TLS certificate fingerprint: %s", fingerprint)

	registry := NewRegistry()
	history := NewHistoryStore()
	counters := &Counters{}
	notifier := NewNotifier(lg)
	sessions := NewSessionManager(registry, history, notifier, lg, counters)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[server] shutting down...")
		sessions.Shutdown()
		cancel()
	}()

	go RunMetrics(ctx, registry, counters, 5*time.Second)

	if auditStore != nil {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := auditStore.Optimize(); err != nil {
						log.Printf("[store] optimize: %v", err)
					}
				}
			}
		}()
	}

	if *apiAddr != "" {
		api := NewAPIServer(registry, history, counters, sessions)
		go api.Run(ctx, *apiAddr)
		log.Printf("[api] listening on %s", *apiAddr)
	}

	srv := NewServer(*addr, tlsConfig, sessions, *idleTimeout)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("[server] %v", err)
	}
}
