package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// Quick schema check for an existing database file. Usage:
//
//	go run scripts/verify_schema.go [path/to/dividend.db]
func main() {
	dbPath := "./data/dividend.db"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	fmt.Printf("Verifying database at: %s\n", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	tables := []string{"trades", "positions", "account_cash", "batch_states", "alerts", "nav_history"}
	missing := 0
	for _, tbl := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", tbl).Scan(&name)
		switch {
		case err == sql.ErrNoRows:
			fmt.Printf("❌ %s table MISSING\n", tbl)
			missing++
		case err != nil:
			log.Fatalf("Query failed: %v", err)
		default:
			fmt.Printf("✓ %s table exists\n", tbl)
		}
	}

	// Columns added by later migrations on older DB files.
	checks := []struct{ table, column string }{
		{"positions", "available"},
		{"alerts", "payload"},
	}
	for _, c := range checks {
		var sqlSchema string
		err := db.QueryRow("SELECT sql FROM sqlite_master WHERE type='table' AND name=?", c.table).Scan(&sqlSchema)
		if err != nil {
			continue
		}
		if strings.Contains(sqlSchema, c.column) {
			fmt.Printf("✓ %s.%s column exists\n", c.table, c.column)
		} else {
			fmt.Printf("❌ %s.%s column MISSING\n", c.table, c.column)
			missing++
		}
	}

	if missing > 0 {
		os.Exit(1)
	}
}
