package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wintermelt/minecraft_session_keeper/internal/config"
	"github.com/wintermelt/minecraft_session_keeper/internal/session"
)

var offlineCmd = &cobra.Command{
	Use:   "offline <name>",
	Short: "Store an offline session for the given name",
	Long: `Store an offline session. No account servers are contacted; the
UUID is derived from the name the same way offline-mode servers derive
it, so skins and bans line up with what the server sees.`,
	Args: cobra.ExactArgs(1),
	RunE: runOffline,
}

func init() {
	rootCmd.AddCommand(offlineCmd)
}

func runOffline(cmd *cobra.Command, args []string) error {
	name := args[0]
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}

	sess := session.Offline(name)
	if err := session.SaveFile(sessionPath(), sess); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	// Offline selections clear any stored online credentials.
	if err := config.Open().SetCredentials(name, "", ""); err != nil {
		slog.Default().Error("failed to update config", "error", err)
	}

	fmt.Printf("Offline session stored for %s (uuid %s)\n", sess.Username, sess.UUID)
	return nil
}
