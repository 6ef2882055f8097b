package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zanmi-app/zanmi-go/internal/infrastructure/auth"
)

var successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))

// NewLoginCommand builds `zanmi login`.
func NewLoginCommand() *cobra.Command {
	var identifier, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			if identifier == "" {
				identifier, err = promptLine(cmd, "Phone or email: ")
				if err != nil {
					return err
				}
			}
			if password == "" {
				password, err = promptLine(cmd, "Password: ")
				if err != nil {
					return err
				}
			}

			pair, err := container.Refresher.Login(cmd.Context(), auth.Credentials{
				Identifier: identifier,
				Password:   password,
			})
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			ctx := cmd.Context()
			if err := container.TokenStore.SaveAccessToken(ctx, pair.AccessToken); err != nil {
				return err
			}
			if err := container.TokenStore.SaveRefreshToken(ctx, pair.RefreshToken); err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Logged in."))
			return nil
		},
	}

	cmd.Flags().StringVar(&identifier, "identifier", "", "Phone number or email")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

// NewLogoutCommand builds `zanmi logout`.
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			if err := container.Coordinator.Logout(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Logged out.")
			return nil
		},
	}
}

// NewWhoamiCommand builds `zanmi whoami`.
func NewWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated member",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			var me map[string]any
			if err := container.Client.GetJSON(cmd.Context(), "/auth/me", nil, &me); err != nil {
				return err
			}

			out, err := json.MarshalIndent(me, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}
}

func promptLine(cmd *cobra.Command, prompt string) (string, error) {
	cmd.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
