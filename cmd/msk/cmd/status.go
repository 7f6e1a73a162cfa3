package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wintermelt/minecraft_session_keeper/internal/config"
	"github.com/wintermelt/minecraft_session_keeper/internal/msa"
	"github.com/wintermelt/minecraft_session_keeper/internal/session"
	"github.com/wintermelt/minecraft_session_keeper/internal/validator"
	"github.com/wintermelt/minecraft_session_keeper/internal/watcher"
	"github.com/wintermelt/minecraft_session_keeper/internal/yggdrasil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the stored session is still valid",
	Long: `Show the stored session and ask the account servers whether its
access token is still accepted.

The verdict is cached for five minutes; --force re-checks immediately.
--watch keeps running and re-prints the status when the config file
changes or the cache expires.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("force", false, "bypass the cached verdict")
	statusCmd.Flags().Bool("watch", false, "keep running and report changes")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	watch, _ := cmd.Flags().GetBool("watch")

	sess, err := session.LoadFile(sessionPath())
	if err != nil {
		return err
	}
	if sess.Username == "" {
		fmt.Println("No session stored. Run msk login first.")
		return nil
	}

	store := session.NewStore(sess)
	v := newValidator(store)

	if !watch {
		printStatus(sess, settle(cmd.Context(), v, force))
		return nil
	}

	return watchStatus(cmd.Context(), store, v)
}

// newValidator wires the per-account-type token checks.
func newValidator(store *session.Store) *validator.Validator {
	logger := slog.Default()
	msaClient := msa.NewClient("", logger)
	ygg := yggdrasil.NewClient(logger)

	return validator.New(store, map[session.AccountType]validator.TokenChecker{
		session.AccountMicrosoft: msaClient,
		session.AccountLegacy: validator.CheckerFunc(func(ctx context.Context, token string) (bool, error) {
			return ygg.Validate(ctx, token, store.Current().ClientID)
		}),
	}, logger)
}

// settle waits for the validator's background check to land, bounded so
// an unreachable provider cannot hang the command.
func settle(ctx context.Context, v *validator.Validator, force bool) validator.Status {
	status := v.Status(force)
	deadline := time.After(35 * time.Second)
	for status == validator.StatusRefreshing {
		select {
		case <-v.Settled():
			status = v.Status(false)
		case <-ctx.Done():
			return status
		case <-deadline:
			return status
		}
	}
	return status
}

func printStatus(sess session.Session, status validator.Status) {
	fmt.Printf("%s (%s account, uuid %s): session %s\n",
		sess.Username, sess.Type, sess.UUID, status)
}

// watchStatus re-prints on config edits and cache expiry until
// interrupted.
func watchStatus(ctx context.Context, store *session.Store, v *validator.Validator) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(config.Path())
	if err != nil {
		return err
	}
	defer w.Close()

	ticker := time.NewTicker(validator.CacheTTL)
	defer ticker.Stop()

	printStatus(store.Current(), settle(ctx, v, false))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Events():
			// External credential edits may also mean a new session file.
			if sess, err := session.LoadFile(sessionPath()); err == nil && sess.Username != "" {
				store.Replace(sess)
			}
			v.Reset()
			printStatus(store.Current(), settle(ctx, v, false))
		case err, ok := <-w.Errors():
			if ok {
				return err
			}
		case <-ticker.C:
			printStatus(store.Current(), settle(ctx, v, false))
		}
	}
}
