// Package schema provides the row types shared by the local store and the
// remote client.
//
// The same shapes exist in three places: the embedded SQLite database, the
// hosted Postgres backend, and the wire format between them. This package is
// the single definition; the store and remote packages map to and from it.
//
// Conflict resolution is last-write-wins on updated_at at row granularity.
// Each row carries created_at/updated_at timestamps for that purpose, and
// GameState additionally carries a local-only Synced flag that is never sent
// to the backend.
package schema
