// Package db embeds the Postgres schema applied at startup.
package db

import _ "embed"

// Schema creates the marche, exploration, snapshot, species, calendar, CRM
// and API key tables. Statements are idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
