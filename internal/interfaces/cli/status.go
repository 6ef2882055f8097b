package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCommand builds `zanmi status`: a peek at the client's
// internal state for debugging stuck screens and rate limits.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show client pipeline, rate-limit, and call diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			cmd.Println(headerStyle.Render("Endpoint"))
			cmd.Println("  " + container.Client.BaseURL())

			cmd.Println(headerStyle.Render("Pipeline stages"))
			cmd.Println("  " + strings.Join(container.Client.StageNames(), " → "))

			cmd.Println(headerStyle.Render("Rate-limit ledger"))
			pending := container.Client.Ledger().Snapshot()
			if len(pending) == 0 {
				cmd.Println(dimStyle.Render("  no paths under backoff"))
			}
			for path, at := range pending {
				cmd.Println(fmt.Sprintf("  %s retry in %s", path, time.Until(at).Round(time.Second)))
			}

			cmd.Println(headerStyle.Render("Recent calls"))
			records := container.Client.Diagnostics().Snapshot()
			if len(records) == 0 {
				cmd.Println(dimStyle.Render("  none this session"))
			}
			for _, r := range records {
				cmd.Println(fmt.Sprintf("  %s %-6s %s", r.At.Format("15:04:05"), r.Method, r.Path))
			}
			return nil
		},
	}
}
