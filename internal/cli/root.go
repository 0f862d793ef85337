// Package cli wires configuration, logging and the session into the
// sealtrack commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/sadopc/sealtrack/internal/config"
	"github.com/sadopc/sealtrack/internal/session"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DataDir  string
	LogLevel string

	cfg *config.Config
}

// NewRootCommand creates the root command. Without a subcommand it starts
// the terminal UI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sealtrack",
		Short: "Encrypted activity tracker",
		Long: `Track activities in a terminal UI. Everything is encrypted with your
passphrase before it is written to disk or sent to a sync server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory for accounts and databases (env SEALTRACK_DATA_DIR)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (env SEALTRACK_LOG_LEVEL)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAccountsCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	cfg, err := config.Load(func(c *config.Config) {
		if o.DataDir != "" {
			c.DataDir = o.DataDir
		}
		if o.LogLevel != "" {
			c.LogLevel = o.LogLevel
		}
	})
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		DataDir:       cfg.DataDir,
		AppName:       cfg.AppName,
		LockAfter:     cfg.LockAfter,
		SyncInterval:  cfg.SyncInterval,
		RemoteTimeout: cfg.RemoteTimeout,
	}
}
