package postgres

import _ "embed"

// Schema creates the delivery_records table and its indexes. Safe to apply
// repeatedly; every statement is IF NOT EXISTS.
//
//go:embed schema.sql
var Schema string
