package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/altafino/attachment-fetcher/internal/credential"
	"github.com/altafino/attachment-fetcher/internal/email"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CreateCredentialsCommand manages account passwords in the keyring
func CreateCredentialsCommand() *cobra.Command {
	credsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Keyring password management",
	}

	var fromEnv string
	setCmd := &cobra.Command{
		Use:   "set [config-id]",
		Short: "Store the account password of a configuration",
		Long:  `Read the password from --from-env or the first line of stdin and store it in the keyring.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := newApp(nil)
			if err != nil {
				return err
			}
			cfg, err := a.Store().Get(args[0])
			if err != nil {
				return err
			}
			creds, err := credential.Open(viper.GetString("config-dir"))
			if err != nil {
				return err
			}

			var password string
			if fromEnv != "" {
				password = os.Getenv(fromEnv)
			} else {
				if p, err := email.LookupProvider(cfg.Account.Provider); err == nil && p.HelpText != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), p.HelpText)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", cfg.Account.Username)
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("empty password")
			}

			key := credential.PasswordKey(cfg)
			if err := creds.Set(key, password); err != nil {
				return err
			}
			log.Info("stored password", "config_id", cfg.Meta.ID, "key", key)
			return nil
		},
	}
	setCmd.Flags().StringVar(&fromEnv, "from-env", "", "environment variable holding the password")

	deleteCmd := &cobra.Command{
		Use:   "delete [config-id]",
		Short: "Remove the stored password of a configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := newApp(nil)
			if err != nil {
				return err
			}
			cfg, err := a.Store().Get(args[0])
			if err != nil {
				return err
			}
			creds, err := credential.Open(viper.GetString("config-dir"))
			if err != nil {
				return err
			}
			if err := creds.Delete(credential.PasswordKey(cfg)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password deleted for %s\n", cfg.Meta.ID)
			return nil
		},
	}

	credsCmd.AddCommand(setCmd, deleteCmd)
	return credsCmd
}
