package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zanmi-app/zanmi-go/internal/interfaces/di"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// NewRootCommand builds the zanmi root command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zanmi",
		Short: "Zanmi CLI - group savings pools from the terminal",
		Long: `Zanmi CLI talks to the Zanmi API through the same resilient client
the mobile app uses: automatic token refresh, response caching,
rate-limit backoff, and local-first reads that stay usable offline.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\n", BuildTime))

	rootCmd.PersistentFlags().String("api-url", defaultAPIURL(), "Zanmi API base URL")
	rootCmd.PersistentFlags().String("profile", "", "Active business profile id (default: personal)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("routes", "", "Route policy YAML override file")
	rootCmd.PersistentFlags().String("data-dir", "~/.zanmi", "Directory for tokens and local mirrors")

	rootCmd.AddCommand(NewLoginCommand())
	rootCmd.AddCommand(NewLogoutCommand())
	rootCmd.AddCommand(NewWhoamiCommand())
	rootCmd.AddCommand(NewPoolsCommand())
	rootCmd.AddCommand(NewStatusCommand())

	return rootCmd
}

func defaultAPIURL() string {
	if url := os.Getenv("ZANMI_API_URL"); url != "" {
		return url
	}
	return "https://api.zanmi.app/api/v1"
}

// buildContainer wires the SDK from the resolved persistent flags.
func buildContainer(cmd *cobra.Command) (*di.Container, error) {
	apiURL, _ := cmd.Flags().GetString("api-url")
	profile, _ := cmd.Flags().GetString("profile")
	debug, _ := cmd.Flags().GetBool("debug")
	routesFile, _ := cmd.Flags().GetString("routes")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	return di.NewContainer(di.Options{
		APIURL:     apiURL,
		Profile:    profile,
		Debug:      debug,
		RoutesFile: routesFile,
		DataDir:    dataDir,
	})
}

// Execute runs the CLI.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
