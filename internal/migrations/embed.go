// Package migrations provides embedded SQL migration files.
package migrations

import (
	_ "embed"
)

//go:embed sql/001_events.sql
var EventsSQL string

// All lists the migrations in the order they must be applied.
var All = []string{EventsSQL}
