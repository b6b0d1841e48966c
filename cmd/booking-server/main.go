package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/apollo/booking/internal/config"
	"github.com/apollo/booking/internal/platform/db"
	"github.com/apollo/booking/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "booking-server",
		Short: "Appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(dbCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				fmt.Printf("Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("get status: %w", err)
				}
				printStatus(schema, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(migrateDownCmd())

	return cmd
}

var errDownUnsupported = errors.New("migrate down is not supported by the built-in runner; use `booking-server db reset` to drop and recreate the schema")

// migrateDownCmd exists so scripts calling `migrate down` fail loudly
// instead of assuming a rollback happened.
func migrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Rollback the last migration (unsupported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return errDownUnsupported
		},
	}
}

// dbCmd exposes the init/clean/reset maintenance operations.
func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Initialize, clean or reset the database",
	}

	var schema string
	cmd.PersistentFlags().StringVar(&schema, "schema", "public", "Target schema")

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the appointments table and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), "", func(ctx context.Context, m *db.Migrator) error {
				return initDB(ctx, m, schema)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Drop every table in the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), "", func(ctx context.Context, m *db.Migrator) error {
				return cleanDB(ctx, m, schema)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clean and then initialize the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), "", func(ctx context.Context, m *db.Migrator) error {
				if err := cleanDB(ctx, m, schema); err != nil {
					return err
				}
				if err := initDB(ctx, m, schema); err != nil {
					return err
				}
				fmt.Println("Database reset completed.")
				return nil
			})
		},
	})

	return cmd
}

func initDB(ctx context.Context, m *db.Migrator, schema string) error {
	count, err := m.Up(ctx, schema)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	fmt.Printf("Database initialized (%d migration(s) applied).\n", count)
	return nil
}

func cleanDB(ctx context.Context, m *db.Migrator, schema string) error {
	dropped, err := m.Clean(ctx, schema)
	if err != nil {
		return fmt.Errorf("clean database: %w", err)
	}
	for _, table := range dropped {
		fmt.Printf("Dropped %s.%s\n", schema, table)
	}
	fmt.Println("Database cleaned.")
	return nil
}

// withMigrator opens a short-lived pool for a CLI command. An empty dir uses
// the migrations compiled into the binary.
func withMigrator(ctx context.Context, dir string, fn func(context.Context, *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2, MinConns: 1})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, newMigrator(pool, dir))
}

func newMigrator(pool *pgxpool.Pool, dir string) *db.Migrator {
	if dir != "" {
		return db.NewMigrator(pool, dir)
	}
	return db.NewMigratorFS(pool, migrations.FS)
}

func printStatus(schema string, statuses []db.MigrationStatus) {
	fmt.Printf("Migration status for schema: %s\n", schema)
	fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Println("---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
