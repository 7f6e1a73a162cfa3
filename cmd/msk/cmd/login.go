package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wintermelt/minecraft_session_keeper/internal/config"
	"github.com/wintermelt/minecraft_session_keeper/internal/flow"
	"github.com/wintermelt/minecraft_session_keeper/internal/msa"
	"github.com/wintermelt/minecraft_session_keeper/internal/profiles"
	"github.com/wintermelt/minecraft_session_keeper/internal/session"
	"github.com/wintermelt/minecraft_session_keeper/internal/tui"
	"github.com/wintermelt/minecraft_session_keeper/internal/yggdrasil"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Log in to a Minecraft account and store the resulting session.

By default the browser-based Microsoft sign-in is used. The session is
written to the state directory; for Microsoft accounts the refresh
token is stored as a named profile for silent re-login later.

Examples:
  msk login
  msk login --device
  msk login --profile Player
  msk login --password --save-password`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().Bool("device", false, "use the device-code flow (no local browser needed)")
	loginCmd.Flags().Bool("password", false, "legacy username/password login")
	loginCmd.Flags().String("profile", "", "silent re-login from a stored profile")
	loginCmd.Flags().Bool("save-password", false, "store the password in the config (plaintext)")
	loginCmd.Flags().Bool("no-tui", false, "plain text progress output")
	loginCmd.Flags().Int("port", 0, "local callback port override")
	loginCmd.Flags().String("client-id", "", "OAuth client id override")
	rootCmd.AddCommand(loginCmd)
}

// startable is what every login flow variant exposes to the command.
type startable interface {
	flow.Flow
	Start()
}

func runLogin(cmd *cobra.Command, args []string) error {
	device, _ := cmd.Flags().GetBool("device")
	password, _ := cmd.Flags().GetBool("password")
	profileName, _ := cmd.Flags().GetString("profile")
	savePassword, _ := cmd.Flags().GetBool("save-password")
	noTUI, _ := cmd.Flags().GetBool("no-tui")
	port, _ := cmd.Flags().GetInt("port")
	clientID, _ := cmd.Flags().GetString("client-id")

	if password && (device || profileName != "") {
		return fmt.Errorf("--password cannot be combined with --device or --profile")
	}
	if device && profileName != "" {
		return fmt.Errorf("--device cannot be combined with --profile")
	}

	cfgFile := config.Open()
	cfg, err := cfgFile.Load()
	if err != nil {
		return err
	}
	if clientID == "" {
		clientID = cfg.ClientID
	}
	if port == 0 {
		port = cfg.CallbackPort
	}

	logger := slog.Default()
	events := make(chan tea.Msg, 32)
	cb := flow.CallbackFunc(func(s flow.Stage) {
		events <- tui.StageMsg{Stage: s}
	})

	var fl startable
	var title string

	switch {
	case password:
		fl, err = buildPasswordFlow(cfg, cfgFile, savePassword, cb, logger)
		if err != nil {
			return err
		}
		title = "Legacy login"

	case profileName != "":
		store, err := profiles.Open()
		if err != nil {
			return err
		}
		prof, err := store.GetByName(profileName)
		store.Close()
		if err != nil {
			return fmt.Errorf("profile %q: %w", profileName, err)
		}
		fl = flow.NewRefreshFlow(msa.NewClient(clientID, logger), prof, cb, logger)
		title = "Re-login as " + prof.Name

	case device:
		f := flow.NewDeviceCodeFlow(msa.NewClient(clientID, logger), cb, logger)
		go forwardLink(events, f.LoginURL().Await, f.UserCode().Await)
		fl = f
		title = "Microsoft login (device code)"

	default:
		f := flow.NewAuthorizationCodeFlow(msa.NewClient(clientID, logger), port, cb, logger)
		go forwardLink(events, f.LoginURL().Await, nil)
		fl = f
		title = "Microsoft login"
	}

	fl.Start()

	go func() {
		sess, err := fl.Session().Await(context.Background())
		events <- tui.DoneMsg{Username: sess.Username, Err: err}
	}()

	if noTUI {
		err = runPlain(events, fl.Cancel)
	} else {
		err = tui.Run(title, events, fl.Cancel)
	}
	if err != nil {
		return err
	}

	return persistLogin(fl, cfgFile, logger)
}

// forwardLink awaits the flow's URL (and optionally user code) futures
// and pushes one LinkMsg. Failures surface through the session future,
// not here.
func forwardLink(events chan<- tea.Msg, urlF, codeF func(context.Context) (string, error)) {
	url, err := urlF(context.Background())
	if err != nil {
		return
	}
	link := tui.LinkMsg{URL: url}
	if codeF != nil {
		code, err := codeF(context.Background())
		if err != nil {
			return
		}
		link.UserCode = code
	}
	events <- link
}

// runPlain consumes flow events without the TUI, for scripts and dumb
// terminals.
func runPlain(events <-chan tea.Msg, cancel func()) error {
	for msg := range events {
		switch msg := msg.(type) {
		case tui.StageMsg:
			if !msg.Stage.Terminal() {
				fmt.Println(tui.StageLabel(msg.Stage) + "...")
			}
		case tui.LinkMsg:
			fmt.Println("Open " + msg.URL + " to continue")
			if msg.UserCode != "" {
				fmt.Println("and enter the code " + msg.UserCode)
			}
		case tui.DoneMsg:
			if msg.Err != nil {
				return msg.Err
			}
			fmt.Println("Logged in as " + msg.Username)
			return nil
		}
	}
	return nil
}

// persistLogin writes the session file, stores the profile when the
// flow produced one, and records the username in the config. Profile
// and config writes are best-effort.
func persistLogin(fl startable, cfgFile *config.File, logger *slog.Logger) error {
	sess, err := fl.Session().Await(context.Background())
	if err != nil {
		return err
	}

	if err := session.SaveFile(sessionPath(), sess); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	if profF, ok := fl.Profile(); ok {
		if prof, err := profF.Await(context.Background()); err == nil {
			store, err := profiles.Open()
			if err != nil {
				logger.Error("failed to open profile store", "error", err)
			} else {
				if err := store.Upsert(prof); err != nil {
					logger.Error("failed to store profile", "error", err)
				}
				store.Close()
			}
		}
	}

	if cfg, err := cfgFile.Load(); err == nil && cfg.Username != sess.Username {
		cfg.Username = sess.Username
		if err := cfgFile.Save(cfg); err != nil {
			logger.Error("failed to update config", "error", err)
		}
	}

	return nil
}

func buildPasswordFlow(cfg config.Config, cfgFile *config.File, savePassword bool, cb flow.Callback, logger *slog.Logger) (startable, error) {
	identifier := cfg.Identifier
	if identifier == "" {
		fmt.Print("Login name (email): ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read login name: %w", err)
		}
		identifier = strings.TrimSpace(line)
	}

	pw := cfg.Password
	if pw == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		pw = string(raw)
	}

	client := yggdrasil.NewClient(logger)
	return flow.NewPasswordFlow(client, identifier, pw, savePassword, cfgFile, cb, logger), nil
}
