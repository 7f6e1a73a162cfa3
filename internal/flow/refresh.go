package flow

import (
	"context"
	"log/slog"

	"github.com/wintermelt/minecraft_session_keeper/internal/msa"
	"github.com/wintermelt/minecraft_session_keeper/internal/profiles"
	"github.com/wintermelt/minecraft_session_keeper/internal/session"
)

// RefreshFlow logs in silently using the refresh token of a stored
// profile. No user interaction is needed unless the token has been
// revoked, in which case the flow fails and the user falls back to an
// interactive variant.
type RefreshFlow struct {
	*runner
	chain msaChain

	profile profiles.Profile
}

// NewRefreshFlow prepares a silent login from a stored profile.
func NewRefreshFlow(client *msa.Client, profile profiles.Profile, cb Callback, logger *slog.Logger) *RefreshFlow {
	return &RefreshFlow{
		runner:  newRunner("refresh", cb, logger, true),
		chain:   msaChain{client: client},
		profile: profile,
	}
}

// Start begins the flow; it returns immediately.
func (f *RefreshFlow) Start() {
	steps := append([]step{
		{StageInitial, f.initialStep},
		{StageRefreshToken, f.refreshStep},
	}, f.chain.chainSteps()...)

	f.start(steps, func() (session.Session, profiles.Profile) {
		sess, prof := f.chain.finish(f.chain.client.ClientID)
		// Some providers do not rotate the refresh token; keep the old
		// one rather than storing an empty profile.
		if prof.RefreshToken == "" {
			prof.RefreshToken = f.profile.RefreshToken
		}
		return sess, prof
	})
}

func (f *RefreshFlow) initialStep(ctx context.Context) error {
	if f.profile.RefreshToken == "" {
		return &ConfigError{Reason: "stored profile carries no refresh token"}
	}
	return nil
}

func (f *RefreshFlow) refreshStep(ctx context.Context) error {
	tokens, err := f.chain.client.Refresh(ctx, f.profile.RefreshToken)
	if err != nil {
		return err
	}
	f.chain.tokens = tokens
	return nil
}
