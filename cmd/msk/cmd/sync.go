package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wintermelt/minecraft_session_keeper/internal/config"
	"github.com/wintermelt/minecraft_session_keeper/internal/profiles"
	"github.com/wintermelt/minecraft_session_keeper/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync <user@host[:port]>",
	Short: "Push profiles and config to another machine",
	Long: `Push the profile database and config file to another machine over
SSH, so stored refresh tokens work there without logging in again.

Authentication uses the SSH agent, or a private key via --identity.
The remote host must already be in ~/.ssh/known_hosts.

Example:
  msk sync alex@desktop.local`,
	Args: cobra.ExactArgs(1),
	RunE: runSyncPush,
}

func init() {
	syncCmd.Flags().StringP("identity", "i", "", "private key file for SSH auth")
	rootCmd.AddCommand(syncCmd)
}

func runSyncPush(cmd *cobra.Command, args []string) error {
	identity, _ := cmd.Flags().GetString("identity")

	dest, err := syncer.ParseDest(args[0])
	if err != nil {
		return err
	}

	s := syncer.New(dest, identity, slog.Default())
	return s.Push(cmd.Context(), []string{
		profiles.DefaultPath(),
		config.Path(),
	})
}
