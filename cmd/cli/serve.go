package cli

import (
	"github.com/spf13/cobra"

	"github.com/anstrom/netsweep/internal/daemon"
	"github.com/anstrom/netsweep/internal/logging"
)

var (
	serveHost    string
	servePort    int
	servePIDFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API server",
	Long: `Connects to PostgreSQL, applies pending migrations and serves the
dashboard API. Scheduled sweeps run when schedule.enabled is set.
Stops on SIGINT or SIGTERM; SIGUSR1 logs a status summary.`,
	Example: `  netsweep serve
  netsweep serve --port 9000
  NETSWEEP_DATABASE_PASSWORD=secret netsweep serve --config /etc/netsweep/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen address (overrides api.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides api.port)")
	serveCmd.Flags().StringVar(&servePIDFile, "pid-file", "", "PID file path (overrides daemon.pid_file)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := *appConfig
	if cmd.Flags().Changed("host") {
		cfg.API.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.API.Port = servePort
	}
	if cmd.Flags().Changed("pid-file") {
		cfg.Daemon.PIDFile = servePIDFile
	}

	return daemon.New(&cfg, logging.Default()).Run(cmd.Context())
}
