package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/usermgmt/internal/config"
	"github.com/BradenHooton/usermgmt/internal/models"
)

// cliActor is recorded as the actor of changes made from the command line.
const cliActor = "cli"

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Administer accounts directly against storage",
}

var accountUnlockCmd = &cobra.Command{
	Use:   "unlock <email>",
	Short: "Unlock an account and clear its failed login counter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.Storage.Driver == config.DriverMemory {
			return errors.New("account commands need persistent storage")
		}
		logger := newLogger(cfg.Server.LogLevel)

		a, err := newApp(cmd.Context(), cfg, false, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.users.GetUserByEmail(cmd.Context(), args[0])
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("no account with email %q", args[0])
		}
		if err != nil {
			return err
		}

		if _, err := a.users.UnlockAccount(cmd.Context(), user.ID, cliActor); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", user.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountUnlockCmd)
}
