package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wintermelt/minecraft_session_keeper/internal/session"
	"github.com/wintermelt/minecraft_session_keeper/internal/yggdrasil"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored session",
	Long: `Discard the stored session. Legacy sessions are also invalidated on
the account server so the token cannot be replayed.`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	sess, err := session.LoadFile(sessionPath())
	if err != nil {
		return err
	}
	if sess.Username == "" {
		fmt.Println("No session stored.")
		return nil
	}

	if sess.Type == session.AccountLegacy && sess.AccessToken != "" && sess.AccessToken != "invalid" {
		ygg := yggdrasil.NewClient(slog.Default())
		if err := ygg.Invalidate(cmd.Context(), sess.AccessToken, sess.ClientID); err != nil {
			// The local session is discarded regardless.
			slog.Default().Error("failed to invalidate server-side", "error", err)
		}
	}

	if err := os.Remove(sessionPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}

	fmt.Printf("Logged out %s\n", sess.Username)
	return nil
}
