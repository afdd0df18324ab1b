package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"azubi-engine/internal/secrets"

	"github.com/spf13/cobra"
)

func newSecretCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage mail passwords in the OS keychain",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:       "set <smtp|imap>",
			Short:     "Store a password read from stdin",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{string(secrets.KindSMTP), string(secrets.KindIMAP)},
			RunE: func(cmd *cobra.Command, args []string) error {
				account, err := secretAccount(f, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "password for %s: ", account)
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				pw := strings.TrimRight(line, "\r\n")
				if pw == "" {
					return errors.New("empty password")
				}
				if err := secrets.Set(account, pw); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "saved")
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <smtp|imap>",
			Short: "Remove a stored password",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				account, err := secretAccount(f, args[0])
				if err != nil {
					return err
				}
				return secrets.Delete(account)
			},
		},
	)
	return cmd
}

// secretAccount derives the keychain account from the configured username
// and host.
func secretAccount(f *rootFlags, kind string) (string, error) {
	a, err := bootstrap(f)
	if err != nil {
		return "", err
	}
	defer a.Close()
	return secrets.AccountFor(secrets.Kind(strings.ToLower(kind)), a.cfg)
}
