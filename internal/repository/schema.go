package repository

import _ "embed"

// Schema is the idempotent DDL for the booking store
//
//go:embed schema.sql
var Schema string
