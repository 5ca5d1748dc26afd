package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/netsweep/internal/config"
)

const redacted = "********"

var (
	configShowFormat string
	configInitForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration files",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after defaults, the config file and NETSWEEP_*
environment variables are merged. Secrets are redacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := redactConfig(appConfig)
		out := cmd.OutOrStdout()
		switch configShowFormat {
		case "yaml", "yml":
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		case formatJSON:
			return writeJSON(out, cfg)
		default:
			return fmt.Errorf("unsupported format %q (use yaml or json)", configShowFormat)
		}
	},
}

var configInitCmd = &cobra.Command{
	Use:         "init [path]",
	Short:       "Write a default configuration file",
	Example:     `  netsweep config init /etc/netsweep/config.yaml`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists; use --force to overwrite", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:         "validate",
	Short:       "Check the configuration and report the first problem",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := config.Load(cfgFile); err != nil {
			return fmt.Errorf("configuration is invalid: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, configValidateCmd)

	configShowCmd.Flags().StringVarP(&configShowFormat, "format", "f", "yaml", "output format: yaml or json")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
}

// redactConfig returns a copy safe to print.
func redactConfig(cfg *config.Config) *config.Config {
	out := *cfg
	if out.Database.Password != "" {
		out.Database.Password = redacted
	}
	if len(out.API.APIKeyHashes) > 0 {
		hashes := make([]string, len(out.API.APIKeyHashes))
		for i := range hashes {
			hashes[i] = redacted
		}
		out.API.APIKeyHashes = hashes
	}
	return &out
}
