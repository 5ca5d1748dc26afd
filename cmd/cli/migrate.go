package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/report"
)

var migrateForce bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `Applies, inspects or resets netsweep's schema. "serve" and "scan" apply
pending migrations on their own; use this command to prepare a database
ahead of time or to check its state.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		database, err := db.Connect(cmd.Context(), &appConfig.Database)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		if err := db.NewMigrator(database.DB).Up(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date.")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations are applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		database, err := db.Connect(cmd.Context(), &appConfig.Database)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		statuses, err := db.NewMigrator(database.DB).Status(cmd.Context())
		if err != nil {
			return err
		}
		return writeMigrationStatus(cmd, statuses)
	},
}

var migrateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every netsweep table and re-apply migrations",
	Long:  "Drops devices, history and scans. All recorded data is lost.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !migrateForce {
			return fmt.Errorf("reset deletes all recorded devices and history; rerun with --force")
		}
		database, err := db.Connect(cmd.Context(), &appConfig.Database)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		if err := db.NewMigrator(database.DB).Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database reset.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd, migrateResetCmd)

	migrateResetCmd.Flags().BoolVar(&migrateForce, "force", false, "confirm dropping all data")
}

func writeMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) error {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		state, appliedAt := "pending", "-"
		if st.Applied {
			state = "applied"
			appliedAt = st.AppliedAt.Local().Format(report.TimeFormat)
		}
		if st.Modified {
			state = "modified"
		}
		rows = append(rows, []string{st.Name, state, appliedAt})
	}
	return writeTable(cmd.OutOrStdout(), []string{"Migration", "State", "Applied At"}, rows)
}
