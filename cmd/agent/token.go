package main

import (
	"errors"
	"fmt"

	"github.com/johnwmail/clipsync/config"
	"github.com/johnwmail/clipsync/internal/identity"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	tokenCommand.Flags().Duration("expiry", config.DefaultConfig().JWTExpiry, "token lifetime")
	Command.AddCommand(tokenCommand)
}

var tokenCommand = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue an identity token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := viper.GetString("jwt-secret")
		if len(secret) < 16 {
			return errors.New("--jwt-secret of at least 16 characters is required")
		}
		token, err := identity.IssueToken(args[0], secret, viper.GetDuration("expiry"))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
