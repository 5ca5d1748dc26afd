package cli

import (
	"fmt"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/anstrom/netsweep/internal/api/handlers"
	"github.com/anstrom/netsweep/internal/logging"
)

const qrPNGSize = 256

var qrPNG string

var qrCmd = &cobra.Command{
	Use:   "qr",
	Short: "Show a QR code for opening the dashboard on a phone",
	Long: `Prints a QR code of the dashboard URL to the terminal. The URL is
api.public_url when set, otherwise http://<lan-address>:<api.port>.`,
	Example: `  netsweep qr
  netsweep qr --png dashboard.png`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		url := handlers.NewQRHandler(appConfig.API.PublicURL, appConfig.API.Port, logging.Default()).DashboardURL()
		out := cmd.OutOrStdout()

		if qrPNG != "" {
			if err := qrcode.WriteFile(url, qrcode.Medium, qrPNGSize, qrPNG); err != nil {
				return fmt.Errorf("failed to write QR code: %w", err)
			}
			fmt.Fprintf(out, "Wrote QR code for %s to %s\n", url, qrPNG)
			return nil
		}

		code, err := qrcode.New(url, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("failed to encode QR code: %w", err)
		}
		fmt.Fprint(out, code.ToSmallString(false))
		fmt.Fprintln(out, url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(qrCmd)

	qrCmd.Flags().StringVar(&qrPNG, "png", "", "write a PNG to this file instead of printing")
}
