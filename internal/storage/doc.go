// Package storage persists per-site monitoring state.
//
// Drivers:
//   - "file":   a single JSON object keyed by site id (whole-file rewrite)
//   - "sqlite": a sites table in an SQLite database (modernc.org/sqlite)
//   - "redis":  one hash field per site under <key_prefix>:sites
package storage
