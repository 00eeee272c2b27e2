package pgrepo

import (
	"errors"
	"fmt"

	pg "github.com/edgeflare/pgrepo/pkg/pgx"
	"github.com/edgeflare/pgrepo/pkg/store/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify entity declarations against the database",
	Long:  `Checks that every declared table, fillable column, foreign key column and pivot table exists`,
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringP("rest.pg.connString", "c", "", "PostgreSQL connection string")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg, _, err := cfg.Registry()
	if err != nil {
		return err
	}
	if cfg.REST.PG.ConnString == "" {
		return errors.New("PostgreSQL connection string required (rest.pg.connString)")
	}

	pool, err := pg.Connect(cmd.Context(), cfg.REST.PG.ConnString, pg.ConnectOptions{Logger: logger})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.New(pool, postgres.WithLogger(logger)).Verify(cmd.Context(), reg); err != nil {
		return fmt.Errorf("entity declarations do not match the database:\n%w", err)
	}
	logger.Info("entity declarations match the database", zap.Strings("entities", reg.Names()))
	fmt.Fprintf(cmd.OutOrStdout(), "%d entities ok\n", len(reg.Names()))
	return nil
}
