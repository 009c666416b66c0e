package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"quiz-platform/internal/app"
	"quiz-platform/internal/config"
	"quiz-platform/internal/infra/postgres"
	pgmigrations "quiz-platform/internal/infra/postgres/migrations"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, flush, err := loadForCommand(*configPath)
			if err != nil {
				return err
			}
			defer flush()
			return runMigrationsWithConfig(cmd.Context(), cfg, log)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the last migration group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, flush, err := loadForCommand(*configPath)
			if err != nil {
				return err
			}
			defer flush()
			return withMigrator(cmd.Context(), cfg, func(ctx context.Context, m *migrate.Migrator) error {
				group, err := m.Rollback(ctx)
				if err != nil {
					return err
				}
				if group.IsZero() {
					log.Info("nothing to roll back")
					return nil
				}
				log.Info("rolled back", "group", group.String())
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, flush, err := loadForCommand(*configPath)
			if err != nil {
				return err
			}
			defer flush()
			return withMigrator(cmd.Context(), cfg, func(ctx context.Context, m *migrate.Migrator) error {
				ms, err := m.MigrationsWithStatus(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "applied: %s\n", ms.Applied())
				fmt.Fprintf(out, "pending: %s\n", ms.Unapplied())
				return nil
			})
		},
	})
	return cmd
}

func loadForCommand(configPath string) (config.Config, logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, nil, err
	}
	log, flush := newLogger(cfg)
	return cfg, log, flush, nil
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log app.Logger) error {
	return withMigrator(ctx, cfg, func(ctx context.Context, m *migrate.Migrator) error {
		group, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		if group.IsZero() {
			log.Info("database is up to date")
			return nil
		}
		log.Info("migrations applied", "group", group.String())
		return nil
	})
}

func withMigrator(ctx context.Context, cfg config.Config, fn func(context.Context, *migrate.Migrator) error) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.Open(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	return fn(ctx, migrator)
}
