// Package database stores crawl history so that runs can be compared.
//
// CrawlDB keeps one row per crawl run with the full report as JSON, plus
// the broken links and fetched pages of every run in their own tables for
// querying. SQLite (modernc.org/sqlite, CGO-free) is the default backend
// and lives in a single file under the XDG data directory; PostgreSQL
// (lib/pq) is used when a DSN is configured, so a team can share history.
//
// Timestamps are stored as fixed-width UTC text so that both backends
// order them the same way.
package database
