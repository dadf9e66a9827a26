package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the full schema history. Each migration file adds itself
// in init(), so importing the package is enough to get the complete set.
var Migrations = migrate.NewMigrations()
