// Package migrations embeds the SQL migrations for the command audit store.
//
// Importing this package (usually as a blank import from main) registers the
// files with the database package, so Migrate works without the .sql files
// on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/seestar-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
