// Package cmd implements the msk command line interface.
package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "msk",
	Short: "Keep a Minecraft session alive without restarting the game",
	Long: `msk logs in to Minecraft accounts and keeps the resulting session
on disk, so game launchers and tools can swap accounts without
re-running a full login.

Supported logins:
  msk login                     browser sign-in (authorization code)
  msk login --device            code entry on a second device
  msk login --profile NAME      silent re-login from a stored profile
  msk login --password          legacy username/password servers
  msk offline NAME              offline session, no account needed`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// mskHome is the state directory (session file, profile database),
// honoring MSK_HOME. The config lives separately under XDG config.
func mskHome() string {
	if home := os.Getenv("MSK_HOME"); home != "" {
		return home
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".msk"
	}
	return filepath.Join(homeDir, ".msk")
}

func sessionPath() string {
	return filepath.Join(mskHome(), "session.json")
}
