// Command migrate-snapshot rewrites the config_fingerprint column of an
// existing engine_snapshots table so that snapshots taken under an old
// Engine.Config hash are recognized by Reconcile after a parameter change.
//
// Usage:
//
//	go run ./tools/migrate-snapshot -db meanrevert.db -old-fp <hash> -new-fp <hash>
//
// Grounded on the teacher's tools/migrate_state.go: a standalone,
// go-run-able maintenance script that backs up the file it's about to
// mutate before touching it.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := flag.String("db", "", "path to the Store's sqlite file")
	oldFP := flag.String("old-fp", "", "config fingerprint to rewrite from")
	newFP := flag.String("new-fp", "", "config fingerprint to rewrite to")
	flag.Parse()

	if *dbPath == "" || *oldFP == "" || *newFP == "" {
		exitf("usage: migrate-snapshot -db <path> -old-fp <hash> -new-fp <hash>")
	}
	if *oldFP == *newFP {
		exitf("-old-fp and -new-fp are identical, nothing to do")
	}

	backup := *dbPath + ".bak"
	if err := copyFile(*dbPath, backup); err != nil {
		exitf("create backup: %v", err)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		exitf("open db: %v", err)
	}
	defer db.Close()

	res, err := db.Exec(`UPDATE engine_snapshots SET config_fingerprint = ? WHERE config_fingerprint = ?`, *newFP, *oldFP)
	if err != nil {
		exitf("rewrite fingerprint: %v", err)
	}
	n, _ := res.RowsAffected()
	fmt.Printf("migrate-snapshot: rewrote %d snapshot(s) from %q to %q (backup: %s)\n", n, *oldFP, *newFP, backup)
}

func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0644)
}

func exitf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "migrate-snapshot: "+format+"\n", a...)
	os.Exit(1)
}
