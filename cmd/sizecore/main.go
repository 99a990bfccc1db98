package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/miqyas/sizecore-go/internal/application/startup"
	"github.com/miqyas/sizecore-go/internal/domain/detect"
	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sizecore",
	Short: "Size recommendation widget engine",
	Long:  "Headless engine for the storefront size recommendation widget: product detection, session coordination, and result persistence.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the widget engine HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return startup.Initialize()
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect <html-file>",
	Short: "Run product page detection against an HTML snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read snapshot: %w", err)
		}
		doc, err := page.ParseDocumentString(string(raw))
		if err != nil {
			return fmt.Errorf("failed to parse snapshot: %w", err)
		}

		pageURL, _ := cmd.Flags().GetString("url")
		var u *url.URL
		if pageURL != "" {
			u, err = url.Parse(pageURL)
			if err != nil {
				return fmt.Errorf("invalid --url: %w", err)
			}
		}

		out := map[string]any{
			"productPage": detect.IsProductPage(doc),
			"productId":   detect.ResolveProductID(doc, u),
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	detectCmd.Flags().String("url", "", "page URL for URL-based detection signals")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(detectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("sizecore: %v", err)
	}
}
