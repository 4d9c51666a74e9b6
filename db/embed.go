// Package db carries the SQL migrations, embedded into the binaries.
package db

import "embed"

// Migrations holds migrations/*.sql in goose format.
//
//go:embed migrations/*.sql
var Migrations embed.FS
