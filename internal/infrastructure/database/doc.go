// Package database provides SQLite connection management and an embedded
// schema migration engine for the brewhouse service.
//
// The database runs in WAL mode with a single writer connection, which suits
// the appliance workload: frequent small telemetry appends, occasional
// session state transitions, and read-mostly management queries.
//
// Migrations live in the top-level migrations/ directory and are embedded
// into the binary at build time. Each migration is a pair of SQL files named
// YYYYMMDD_HHMMSS_description.up.sql and .down.sql, applied in version order
// inside individual transactions.
package database
