package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sadopc/sealtrack/internal/accounts"
	"github.com/sadopc/sealtrack/internal/session"
)

// NewAccountsCommand creates the account management commands.
func NewAccountsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "accounts", Short: "Manage local accounts"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := accounts.Open(rootOpts.cfg.AccountsPath())
			if err != nil {
				return err
			}
			names := reg.List()
			if len(names) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no accounts")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "USERNAME\tDEVICE\tCREATED")
			for _, name := range names {
				acct, _ := reg.Get(name)
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", name, acct.DeviceID, acct.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(listCmd)

	var purge bool
	removeCmd := &cobra.Command{
		Use:   "remove USERNAME",
		Short: "Forget an account on this device",
		Long: `Forget an account on this device. With --purge its local database is
deleted too; data already synced to a server is not touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			reg, err := accounts.Open(cfg.AccountsPath())
			if err != nil {
				return err
			}
			username := args[0]
			acct, ok := reg.Get(username)
			if err := reg.Remove(username); err != nil {
				return err
			}
			if purge && ok {
				m := session.NewManager(sessionOptions(cfg), reg)
				if err := removeDatabase(m.DBPath(username, acct.DeviceID)); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", username)
			return nil
		},
	}
	removeCmd.Flags().BoolVar(&purge, "purge", false, "also delete the local database")
	cmd.AddCommand(removeCmd)

	return cmd
}

// removeDatabase deletes a SQLite database with its WAL side files.
func removeDatabase(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}
