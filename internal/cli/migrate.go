package cli

import (
	"errors"
	"fmt"
	"os"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/toko-apparel/internal/db"
)

func newMigrateCommand(logger func() zerolog.Logger) *cobra.Command {
	var databaseURL string
	open := func() (*migrate.Migrate, error) {
		url := databaseURL
		if url == "" {
			url = os.Getenv("DATABASE_URL")
		}
		if url == "" {
			return nil, errors.New("--database-url or DATABASE_URL is required")
		}
		return db.NewMigrator(url)
	}
	closeM := func(m *migrate.Migrate) { closeMigrator(m, logger()) }

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the audit log schema",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "postgres URL (default $DATABASE_URL)")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer closeM(m)
			if err := db.Up(m); err != nil {
				return err
			}
			return reportVersion(cmd, m, logger())
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer closeM(m)
			if err := db.Down(m, steps); err != nil {
				return err
			}
			return reportVersion(cmd, m, logger())
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back (0 for all)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer closeM(m)
			return reportVersion(cmd, m, logger())
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

type migratorCloser interface {
	Close() (source error, database error)
}

func closeMigrator(m migratorCloser, logger zerolog.Logger) {
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		logger.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("close migrator")
	}
}

func reportVersion(cmd *cobra.Command, m *migrate.Migrate, logger zerolog.Logger) error {
	v, dirty, err := db.Version(m)
	if err != nil {
		return err
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema version")
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
	return err
}
