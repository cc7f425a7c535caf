// Command receiptctl renders receipts offline: the PDF the customer receives
// and the HTML body of the email it is attached to. It uses the same renderer
// and composer as the API, so operators can check a layout change or replay a
// failed order without sending mail.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nyashahama/checkout-receipts-backend/internal/email"
	"github.com/nyashahama/checkout-receipts-backend/internal/receipt"
)

var Version = "dev"

type brandFlags struct {
	name         string
	logoPath     string
	logoURL      string
	supportURL   string
	supportEmail string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var brand brandFlags

	rootCmd := &cobra.Command{
		Use:           "receiptctl",
		Short:         "Render purchase receipts without sending them",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&brand.name, "brand", envOr("BRAND_NAME", "StephensCode"), "Brand name printed on the receipt")
	pf.StringVar(&brand.logoPath, "logo", os.Getenv("LOGO_PATH"), "Local image drawn in the PDF header")
	pf.StringVar(&brand.logoURL, "logo-url", os.Getenv("LOGO_URL"), "Logo URL used in the email body")
	pf.StringVar(&brand.supportURL, "support-url", os.Getenv("SUPPORT_URL"), "Support page linked in the footer")
	pf.StringVar(&brand.supportEmail, "support-email", os.Getenv("SUPPORT_EMAIL"), "Support address linked in the footer")

	rootCmd.AddCommand(renderCmd(&brand))
	rootCmd.AddCommand(previewCmd(&brand))

	return rootCmd
}

func renderCmd(brand *brandFlags) *cobra.Command {
	var orderPath, outPath string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render an order JSON file to a PDF receipt",
		Long: `Render reads an order in the /send-receipt request format and writes
the PDF receipt to --out. The output file must not already exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := readOrder(cmd, orderPath)
			if err != nil {
				return err
			}

			r := receipt.NewRenderer(receipt.RendererConfig{
				BrandName:    brand.name,
				LogoPath:     brand.logoPath,
				SupportURL:   brand.supportURL,
				SupportEmail: brand.supportEmail,
			})
			if err := r.RenderFile(outPath, o); err != nil {
				// Leave a pre-existing file alone; anything else is our partial output.
				if !errors.Is(err, fs.ErrExist) {
					_ = os.Remove(outPath)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d items)\n", outPath, len(o.Items))
			return nil
		},
	}

	cmd.Flags().StringVarP(&orderPath, "order", "o", "-", "Order JSON file, - for stdin")
	cmd.Flags().StringVar(&outPath, "out", "receipt.pdf", "PDF output path")

	return cmd
}

func previewCmd(brand *brandFlags) *cobra.Command {
	var orderPath string
	var subjectOnly bool

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the receipt email HTML for an order JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := readOrder(cmd, orderPath)
			if err != nil {
				return err
			}

			c := email.ReceiptComposer{
				BrandName:    brand.name,
				LogoURL:      brand.logoURL,
				SupportURL:   brand.supportURL,
				SupportEmail: brand.supportEmail,
			}
			content, err := c.Compose(o)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Subject: %s\n", content.Subject)
			if !subjectOnly {
				fmt.Fprintln(out)
				fmt.Fprintln(out, content.HTML)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&orderPath, "order", "o", "-", "Order JSON file, - for stdin")
	cmd.Flags().BoolVar(&subjectOnly, "subject", false, "Print only the subject line")

	return cmd
}

func readOrder(cmd *cobra.Command, path string) (receipt.Order, error) {
	var rd io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return receipt.Order{}, fmt.Errorf("open order: %w", err)
		}
		defer f.Close()
		rd = f
	}
	return receipt.ParseOrder(rd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
