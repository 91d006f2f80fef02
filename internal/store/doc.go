// Package store provides SQLite-backed storage for league results.
//
// Tables:
//   - players: registered members, keyed by username
//   - checkins: one per player per round date, carrying division, handicap and tag
//   - events: round definitions keyed by date
//   - scorecards: joined score records, keyed by entry id
//   - ingest_runs: one summary per ingestion session
//
// Score writes are idempotent: writing the same entry id twice keeps the
// first record. This makes the store safe to use directly as the
// submission target of live ingestion.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Reads return empty slices, never nil, and order deterministically.
package store
