package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/anstrom/netsweep/internal/api/handlers"
	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/report"
)

var (
	devicesActive  bool
	devicesNetwork string
	devicesFormat  string

	historyFormat string

	scansLimit int
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List known devices",
	Example: `  netsweep devices
  netsweep devices --active --network 192.168.1.0/24
  netsweep devices --format csv > devices.csv`,
	Args: cobra.NoArgs,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return validateFormat(devicesFormat)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store *db.Store) error {
			devices, err := store.ListDevices(ctx, db.DeviceFilter{
				ActiveOnly: devicesActive,
				Network:    devicesNetwork,
			})
			if err != nil {
				return err
			}
			return writeDevices(cmd.OutOrStdout(), devicesFormat, devices)
		})
	},
}

var historyCmd = &cobra.Command{
	Use:     "history <device-id>",
	Short:   "Show the sweep history of one device",
	Example: `  netsweep history 12`,
	Args:    cobra.ExactArgs(1),
	PreRunE: func(_ *cobra.Command, args []string) error {
		if _, err := parseDeviceID(args[0]); err != nil {
			return err
		}
		return validateFormat(historyFormat)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := parseDeviceID(args[0])
		return withStore(cmd.Context(), func(ctx context.Context, store *db.Store) error {
			entries, err := store.DeviceHistory(ctx, id)
			if err != nil {
				return err
			}
			return writeHistory(cmd, entries)
		})
	},
}

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "List recent sweeps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if scansLimit <= 0 {
			return fmt.Errorf("limit must be positive")
		}
		return withStore(cmd.Context(), func(ctx context.Context, store *db.Store) error {
			scans, err := store.ListScans(ctx, scansLimit)
			if err != nil {
				return err
			}
			return writeScans(cmd, scans)
		})
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd, historyCmd, scansCmd)

	devicesCmd.Flags().BoolVar(&devicesActive, "active", false, "only devices seen in their network's latest sweep")
	devicesCmd.Flags().StringVar(&devicesNetwork, "network", "", "only devices inside this CIDR")
	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", formatTable, "output format: table, csv or json")

	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", formatTable, "output format: table, csv or json")

	scansCmd.Flags().IntVarP(&scansLimit, "limit", "n", 20, "number of sweeps to show")
}

// withStore connects without migrating; read commands never alter the schema.
func withStore(ctx context.Context, fn func(ctx context.Context, store *db.Store) error) error {
	database, err := db.Connect(ctx, &appConfig.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	store := db.NewStore(database)
	defer func() { _ = store.Close() }()
	return fn(ctx, store)
}

func parseDeviceID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid device id %q", arg)
	}
	return id, nil
}

func writeHistory(cmd *cobra.Command, entries []*db.HistoryEntry) error {
	out := cmd.OutOrStdout()
	views := handlers.NewHistoryViews(entries)
	if historyFormat == formatJSON {
		return writeJSON(out, map[string]interface{}{"history": views})
	}

	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []string{views[i].Time, views[i].Status, report.FormatPorts(e.OpenPorts)})
	}
	if historyFormat == formatCSV {
		return writeCSVRows(out, []string{"Time", "Status", "Ports"}, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "No history recorded for this device.")
		return err
	}
	return writeTable(out, []string{"Time", "Status", "Ports"}, rows)
}

func writeScans(cmd *cobra.Command, scans []*db.Scan) error {
	rows := make([][]string, 0, len(scans))
	for _, s := range scans {
		finished := "-"
		if s.CompletedAt != nil {
			finished = s.CompletedAt.Local().Format(report.TimeFormat)
		}
		errMsg := ""
		if s.Error != nil {
			errMsg = *s.Error
		}
		rows = append(rows, []string{
			s.ID.String(),
			s.IPRange.String(),
			s.Trigger,
			s.Status,
			fmt.Sprintf("%d/%d", s.HostsAlive, s.HostsTotal),
			s.StartedAt.Local().Format(report.TimeFormat),
			finished,
			orDash(errMsg),
		})
	}
	return writeTable(cmd.OutOrStdout(),
		[]string{"ID", "Range", "Trigger", "Status", "Alive", "Started", "Finished", "Error"}, rows)
}
