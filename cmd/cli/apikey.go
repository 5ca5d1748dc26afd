package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/netsweep/internal/auth"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Create keys for protected API endpoints",
	Long: `Starting sweeps and editing schedules can require an X-API-Key header.
Keys are checked against the bcrypt hashes listed in api.api_key_hashes;
with no hashes configured those endpoints are open.`,
}

var apikeyGenerateCmd = &cobra.Command{
	Use:         "generate",
	Short:       "Generate a new key and its hash",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "API key:  %s\n", key.Key)
		fmt.Fprintf(out, "Hash:     %s\n\n", key.Hash)
		fmt.Fprintln(out, "The key is shown only once. Add the hash to your configuration:")
		fmt.Fprintf(out, "\napi:\n  api_key_hashes:\n    - %q\n", key.Hash)
		return nil
	},
}

var apikeyHashCmd = &cobra.Command{
	Use:         "hash <key>",
	Short:       "Print the bcrypt hash of an existing key",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !auth.IsValidAPIKeyFormat(args[0]) {
			return fmt.Errorf("not a netsweep API key (expected %s_ followed by letters and digits)", auth.APIKeyPrefix)
		}
		hash, err := auth.HashAPIKey(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyGenerateCmd, apikeyHashCmd)
}
