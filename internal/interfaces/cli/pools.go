package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// NewPoolsCommand builds `zanmi pools` and its subcommands.
func NewPoolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "Group savings pools",
	}
	cmd.AddCommand(newPoolsListCommand())
	cmd.AddCommand(newPoolsPayCommand())
	cmd.AddCommand(newPoolsWatchCommand())
	return cmd
}

func newPoolsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your pools (served local-first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			pools, err := container.Pools.ReadPools(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println(renderPoolTable(pools))
			return nil
		},
	}
}

func newPoolsPayCommand() *cobra.Command {
	var poolID, enrollmentID string
	var amount int64

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Submit a contribution payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			result := container.Payments.Pay(cmd.Context(), poolID, enrollmentID, amount)
			if result.Status == domain.MutationRolledBack {
				cmd.Println(errorStyle.Render("Payment failed; your balance was not changed."))
				return result.Err
			}
			cmd.Println(successStyle.Render(fmt.Sprintf("Payment of %s submitted.", formatMinor(amount))))
			return nil
		},
	}

	cmd.Flags().StringVar(&poolID, "pool", "", "Pool id")
	cmd.Flags().StringVar(&enrollmentID, "enrollment", "", "Enrollment id")
	cmd.Flags().Int64Var(&amount, "amount", 0, "Amount in minor units (cents)")
	_ = cmd.MarkFlagRequired("enrollment")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func renderPoolTable(pools []domain.Pool) string {
	if len(pools) == 0 {
		return dimStyle.Render("No pools yet.")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(padRow("NAME", "ROUND", "MEMBERS", "CONTRIBUTION", "POT")))
	b.WriteByte('\n')
	for _, p := range pools {
		b.WriteString(cellStyle.Render(padRow(
			p.Name,
			fmt.Sprintf("%d", p.Round),
			fmt.Sprintf("%d", p.MemberCount),
			formatMinor(p.ContributionAmount)+" "+p.Currency,
			formatMinor(p.TotalPot)+" "+p.Currency,
		)))
		b.WriteByte('\n')
	}
	return b.String()
}

func padRow(cols ...string) string {
	widths := []int{24, 6, 8, 14, 14}
	var b strings.Builder
	for i, col := range cols {
		w := 12
		if i < len(widths) {
			w = widths[i]
		}
		if len(col) > w {
			col = col[:w-1] + "…"
		}
		b.WriteString(fmt.Sprintf("%-*s", w, col))
	}
	return b.String()
}

// formatMinor renders a minor-unit amount as a decimal string.
func formatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
