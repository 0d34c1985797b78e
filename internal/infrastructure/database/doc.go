// Package database provides SQLite connectivity for ACS Auto.
//
// This package manages:
//   - Database connection with WAL mode so API reads do not block run recording
//   - Schema migrations from an explicit Source (see the migrations package)
//   - Connection lifecycle and a small transaction helper
//
// The store holds the macro library (when macros.backend is sqlite) and the
// run history.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are additive: new columns must be
// NULLABLE or carry a DEFAULT.
package database
