// Package migrations holds the ordered schema migrations applied by the migrate command.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

//go:embed sql/*.sql
var scripts embed.FS

// script returns a migration func that runs the named embedded script.
func script(name string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		raw, err := scripts.ReadFile("sql/" + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		return nil
	}
}
