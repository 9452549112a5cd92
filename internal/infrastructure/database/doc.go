// Package database provides SQLite connectivity for Seestar Core's command
// audit trail.
//
// This package manages:
//   - The connection, with WAL mode so API reads do not block the recorder
//   - Schema migrations embedded in the binary (see the migrations package)
//   - Transaction helpers
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT, and
// every .up.sql has a matching .down.sql.
package database
