// Package migrations embebe las migraciones SQL de postgres. Las aplica
// golang-migrate (ver internal/store/adapters/pg.Migrator).
package migrations

import "embed"

// FS contiene los archivos NNNN_name.{up,down}.sql.
//
//go:embed sql/*.sql
var FS embed.FS

// Dir es el directorio dentro de FS.
const Dir = "sql"
