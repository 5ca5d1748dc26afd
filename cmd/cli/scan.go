package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/netsweep/internal/daemon"
	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
	"github.com/anstrom/netsweep/internal/orchestrator"
)

var scanFormat string

var scanCmd = &cobra.Command{
	Use:   "scan [range]",
	Short: "Run one sweep and print the devices found",
	Long: `Sweeps an IPv4 range (CIDR or single address) the same way the API does,
records the result in the database and prints the devices seen.
Without an argument scanning.default_range is used.`,
	Example: `  netsweep scan
  netsweep scan 192.168.1.0/24
  netsweep scan 10.0.0.5 --format json`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return validateFormat(scanFormat)
	},
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", formatTable, "output format: table, csv or json")
}

func runScan(cmd *cobra.Command, args []string) error {
	ipRange := appConfig.Scanning.DefaultRange
	if len(args) == 1 {
		ipRange = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.ConnectAndMigrate(ctx, &appConfig.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	store := db.NewStore(database)
	defer func() { _ = store.Close() }()

	stack, err := daemon.BuildStack(appConfig, store, metrics.GetGlobalMetrics(), nil)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), appConfig.Daemon.ShutdownTimeout)
		defer cancel()
		if err := stack.Close(closeCtx); err != nil {
			logging.Warn("Sweep pipeline did not stop cleanly", "error", err)
		}
	}()

	logging.InfoScan("Starting sweep", ipRange, "method", appConfig.Scanning.ProbeMethod)
	result, err := stack.Orchestrator.Run(ctx, orchestrator.Request{
		IPRange: ipRange,
		Trigger: orchestrator.TriggerCLI,
	})
	if err != nil {
		return fmt.Errorf("sweep of %s failed: %w", ipRange, err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Swept %s: %d addresses probed, %d devices up in %s\n",
		result.Range, result.Probed, len(result.Devices), result.Duration.Round(time.Millisecond))
	return writeDevices(cmd.OutOrStdout(), scanFormat, result.Devices)
}
