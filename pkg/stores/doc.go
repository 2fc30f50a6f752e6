// Package stores persists run history and the fact cache. The SQLite
// backing runs in WAL mode with embedded schema migrations, keeping every
// past run, its per-action records, and the most recent probe results
// queryable after the process exits.
package stores
