package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"whatsbot/internal/constants"
	"whatsbot/internal/database"
	"whatsbot/internal/migrations"
	"whatsbot/internal/privacy"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := flag.String("db", constants.DefaultDatabasePath, "Path to the database file")
	status := flag.Bool("status", false, "Show migration status without applying anything")
	sessions := flag.Bool("sessions", false, "List stored sessions after migrating")
	flag.Parse()

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("Database file not found: %s", *dbPath)
	}

	ctx := context.Background()

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *status {
		if err := printStatus(ctx, os.Stdout, db); err != nil {
			log.Fatalf("Failed to read migration status: %v", err)
		}
		return
	}

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	if len(applied) == 0 {
		fmt.Println("Schema is up to date, nothing to apply")
	}
	for _, version := range applied {
		fmt.Printf("Applied migration %d\n", version)
	}

	if *sessions {
		store, err := database.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open auth state store: %v", err)
		}
		defer store.Close()

		if err := printSessions(ctx, os.Stdout, store); err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
	}
}

func printStatus(ctx context.Context, w io.Writer, db *sql.DB) error {
	statuses, err := migrations.Pending(ctx, db)
	if err != nil {
		return err
	}
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%03d %-30s %s\n", s.Version, s.Name, state)
	}
	return nil
}

func printSessions(ctx context.Context, w io.Writer, store *database.Database) error {
	summaries, err := store.ListAuthStates(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No stored sessions")
		return nil
	}
	for _, s := range summaries {
		paired := privacy.MaskJID(s.PairedJID)
		if paired == "" {
			paired = "(unpaired)"
		}
		fmt.Fprintf(w, "%-20s %-36s updated %s\n", s.SessionName, paired, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
