// Package cli provides the netsweep command line: the serve command that
// runs the dashboard backend, plus one-shot sweeps, device and history
// listings, migrations, configuration and API key helpers.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anstrom/netsweep/internal/api/handlers"
	"github.com/anstrom/netsweep/internal/config"
	"github.com/anstrom/netsweep/internal/logging"
)

var (
	cfgFile string
	verbose bool

	// appConfig is loaded before every command runs.
	appConfig *config.Config
)

// Build information, set through SetVersion.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "netsweep",
	Short: "Local network discovery",
	Long: `netsweep sweeps an IPv4 range for live hosts, checks a fixed set of
common TCP ports on each one, and keeps every device it has seen together
with its per-sweep history. "netsweep serve" runs the dashboard API.`,
	Version:           getVersion(),
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yaml or /etc/netsweep/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// skipConfigAnnotation marks commands that must run without a loadable config.
const skipConfigAnnotation = "netsweep/skip-config"

// loadConfig reads file and NETSWEEP_* environment values, validates them
// and sets up logging.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if _, skip := cmd.Annotations[skipConfigAnnotation]; skip {
		return nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = logging.LevelDebug
	}
	appConfig = cfg

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)
	return nil
}

func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
	handlers.SetBuildInfo(v, c, bt)
}
