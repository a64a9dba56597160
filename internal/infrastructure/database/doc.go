// Package database provides SQLite connectivity for the TV bridge.
//
// It opens the database with WAL mode and a busy timeout, exposes a health
// check, and applies embedded forward-only migrations.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
