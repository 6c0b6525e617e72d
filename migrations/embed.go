// Package migrations embeds the SQL schema migration files and registers
// them with the database package.
package migrations

import (
	"embed"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
