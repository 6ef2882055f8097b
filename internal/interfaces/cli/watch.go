package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zanmi-app/zanmi-go/internal/application/localfirst"
	"github.com/zanmi-app/zanmi-go/internal/core/domain"
	"github.com/zanmi-app/zanmi-go/internal/interfaces/di"
)

func newPoolsWatchCommand() *cobra.Command {
	var refresh time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live pool view that follows background reconciliation",
		Long: `Shows your pools and keeps the table current: every read serves the
local mirror instantly while a deferred background fetch reconciles
with the server, and each reconcile pushes an update into the view.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			model := newWatchModel(container, refresh)
			defer model.unsubscribe()

			program := tea.NewProgram(model, tea.WithAltScreen())
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("watch failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&refresh, "refresh", 10*time.Second, "How often to re-read the pool list")
	return cmd
}

type watchTickMsg time.Time

type poolsLoadedMsg []domain.Pool

type cacheChangedMsg struct{}

type watchErrMsg struct{ err error }

// watchModel is the Bubble Tea state for `pools watch`.
type watchModel struct {
	container   *di.Container
	refresh     time.Duration
	updates     <-chan struct{}
	unsubscribe func()

	pools      []domain.Pool
	lastUpdate time.Time
	err        error
}

func newWatchModel(container *di.Container, refresh time.Duration) watchModel {
	updates, unsubscribe := container.Queries.Subscribe(localfirst.PoolsQueryKey)
	return watchModel{
		container:   container,
		refresh:     refresh,
		updates:     updates,
		unsubscribe: unsubscribe,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.waitCmd(), m.tickCmd())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.loadCmd()
		}

	case watchTickMsg:
		return m, tea.Batch(m.loadCmd(), m.tickCmd())

	case cacheChangedMsg:
		// A background reconcile or a settled mutation touched the
		// pool query; re-render from it and re-arm the wait.
		return m, tea.Batch(m.loadCmd(), m.waitCmd())

	case poolsLoadedMsg:
		m.pools = msg
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case watchErrMsg:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m watchModel) View() string {
	title := headerStyle.Render("Zanmi pools")
	status := dimStyle.Render(fmt.Sprintf("updated %s · r to refresh · q to quit",
		m.lastUpdate.Format("15:04:05")))
	body := renderPoolTable(m.pools)
	if m.err != nil {
		body = errorStyle.Render(fmt.Sprintf("error: %v", m.err)) + "\n" + body
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, body, status)
}

func (m watchModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pools, err := m.container.Pools.ReadPools(ctx)
		if err != nil {
			return watchErrMsg{err: err}
		}
		return poolsLoadedMsg(pools)
	}
}

func (m watchModel) waitCmd() tea.Cmd {
	return func() tea.Msg {
		<-m.updates
		return cacheChangedMsg{}
	}
}

func (m watchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}
