package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wintermelt/minecraft_session_keeper/internal/profiles"
	"github.com/wintermelt/minecraft_session_keeper/internal/session"
	"github.com/wintermelt/minecraft_session_keeper/internal/yggdrasil"
)

// CredentialSaver persists login credentials after a successful login.
// The password is only stored when the user opted in.
type CredentialSaver interface {
	SetCredentials(username, identifier, password string) error
}

// PasswordFlow is the legacy credential login: a single authenticate
// call against the yggdrasil server. It produces no reusable profile.
type PasswordFlow struct {
	*runner

	client *yggdrasil.Client
	creds  CredentialSaver

	username     string
	password     string
	savePassword bool

	clientToken string
	result      *yggdrasil.AuthResult
}

// NewPasswordFlow prepares a legacy login. creds may be nil to skip
// credential persistence entirely.
func NewPasswordFlow(client *yggdrasil.Client, username, password string, savePassword bool, creds CredentialSaver, cb Callback, logger *slog.Logger) *PasswordFlow {
	return &PasswordFlow{
		runner:       newRunner("password", cb, logger, false),
		client:       client,
		creds:        creds,
		username:     username,
		password:     password,
		savePassword: savePassword,
		clientToken:  uuid.NewString(),
	}
}

// Start begins the flow; it returns immediately.
func (f *PasswordFlow) Start() {
	// The transient credentials are cleared whatever the outcome.
	f.onExit(func() { f.password = "" })

	steps := []step{
		{StageInitial, f.initialStep},
		{StagePasswordAuth, f.authenticateStep},
	}

	f.start(steps, func() (session.Session, profiles.Profile) {
		sess := session.Session{
			Username:    f.result.Name,
			UUID:        f.result.ID,
			AccessToken: f.result.AccessToken,
			ClientID:    f.result.ClientToken,
			Type:        session.AccountLegacy,
		}

		// Credential persistence is best-effort; a failed write must not
		// undo a successful login.
		if f.creds != nil {
			stored := ""
			if f.savePassword {
				stored = f.password
			}
			if err := f.creds.SetCredentials(sess.Username, f.username, stored); err != nil {
				f.logger.Error("failed to persist credentials", "error", err)
			}
		}

		return sess, profiles.Profile{}
	})
}

func (f *PasswordFlow) initialStep(ctx context.Context) error {
	if f.username == "" || f.password == "" {
		return &ConfigError{Reason: "username and password are required"}
	}
	return nil
}

func (f *PasswordFlow) authenticateStep(ctx context.Context) error {
	result, err := f.client.Authenticate(ctx, f.username, f.password, f.clientToken)
	if err != nil {
		if errors.Is(err, yggdrasil.ErrBadCredentials) {
			// Structured provider error, surfaced verbatim to the caller.
			return err
		}
		var ye *yggdrasil.Error
		if errors.As(err, &ye) {
			// Unexpected provider error: log the detail, surface a
			// generic failure.
			f.logger.Error("authenticate returned unexpected provider error", "kind", ye.Kind, "message", ye.Message)
			return fmt.Errorf("login failed unexpectedly")
		}
		return err
	}

	f.result = result
	return nil
}
