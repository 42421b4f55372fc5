package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/xtsebas/chatterbox/store"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was
// handled, so main can fall through to flag-based "serve" startup
// otherwise.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("chatterbox %s\n", Version)
		return true
	case "audit":
		return cliAudit(args[1:], dbPath)
	case "backup":
		return cliBackup(args[1:], dbPath)
	case "serve":
		return false
	default:
		return false
	}
}

func cliAudit(args []string, dbPath string) bool {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	limit := 20
	if len(args) >= 2 && args[0] == "tail" {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := st.GetAuditLog("", limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries found.")
		return true
	}
	for _, e := range entries {
		fmt.Printf("[%d] %s %s %s\n", e.CreatedAt, e.Username, e.Event, e.Detail)
	}
	return true
}

func cliBackup(args []string, dbPath string) bool {
	st, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	outPath := "chatterbox-backup.db"
	if len(args) > 0 {
		outPath = args[0]
	}

	if err := st.Backup(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Backed up to %s\n", outPath)
	return true
}
