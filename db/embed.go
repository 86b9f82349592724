// Package db provides embedded database schema files.
package db

import _ "embed"

// Schema contains the PostgreSQL DDL for all order tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SQLiteSchema contains the same tables in the SQLite dialect.
//
//go:embed migrations/sqlite/001_schema.sql
var SQLiteSchema string
