package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/sealtrack/internal/accounts"
	"github.com/sadopc/sealtrack/internal/logger"
	"github.com/sadopc/sealtrack/internal/session"
	"github.com/sadopc/sealtrack/internal/tui"
)

// runTUI owns the terminal, so logs go to the configured log file.
func runTUI(cmd *cobra.Command, opts *RootOptions) error {
	cfg := opts.cfg

	f, err := logger.OpenFile(cfg.LogFile)
	if err != nil {
		return err
	}
	defer f.Close()

	log, err := logger.New(cfg.AppName, logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: f})
	if err != nil {
		return err
	}

	reg, err := accounts.Open(cfg.AccountsPath())
	if err != nil {
		return err
	}

	n := tui.NewNotifier()
	m := session.NewManager(sessionOptions(cfg), reg,
		session.WithLogger(log),
		session.WithDataStoreOptions(n.DataStoreOptions()...),
	)
	m.OnLock(n.OnLock)
	defer m.Lock()

	log.Info().Str("data_dir", cfg.DataDir).Dur("lock_after", cfg.LockAfter).Msg("starting")

	p := tea.NewProgram(tui.NewApp(m, n), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
