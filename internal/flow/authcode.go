package flow

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/wintermelt/minecraft_session_keeper/internal/callback"
	"github.com/wintermelt/minecraft_session_keeper/internal/future"
	"github.com/wintermelt/minecraft_session_keeper/internal/msa"
	"github.com/wintermelt/minecraft_session_keeper/internal/profiles"
	"github.com/wintermelt/minecraft_session_keeper/internal/session"
)

// AuthorizationCodeFlow logs in by sending the user's browser to the
// provider and receiving the authorization code on a local callback
// listener via form_post.
type AuthorizationCodeFlow struct {
	*runner
	chain msaChain

	port     int
	loginURL *future.Future[string]
	receiver *callback.Receiver
}

// NewAuthorizationCodeFlow prepares the flow. port is the local callback
// port; it must match the redirect URI in the provider app registration.
func NewAuthorizationCodeFlow(client *msa.Client, port int, cb Callback, logger *slog.Logger) *AuthorizationCodeFlow {
	if port <= 0 {
		port = callback.DefaultPort
	}
	f := &AuthorizationCodeFlow{
		runner:   newRunner("authorization_code", cb, logger, true),
		chain:    msaChain{client: client},
		port:     port,
		loginURL: future.New[string](),
	}
	return f
}

// LoginURL resolves once the flow has constructed the browser URL.
func (f *AuthorizationCodeFlow) LoginURL() *future.Future[string] {
	return f.loginURL
}

// Start begins the flow; it returns immediately.
func (f *AuthorizationCodeFlow) Start() {
	steps := append([]step{
		{StageInitial, f.initialStep},
		{StageAwaitAuthCode, f.awaitCodeStep},
	}, f.chain.chainSteps()...)

	f.start(steps, func() (session.Session, profiles.Profile) {
		return f.chain.finish(f.chain.client.ClientID)
	})
}

func (f *AuthorizationCodeFlow) initialStep(ctx context.Context) error {
	recv, err := callback.Listen(f.port, f.logger)
	if err != nil {
		err = &ConfigError{Reason: "callback listener", Err: err}
		f.loginURL.Fail(err)
		return err
	}
	f.receiver = recv
	f.onExit(func() { _ = recv.Close() })

	state := uuid.NewString()
	loginURL, err := f.chain.client.LoginURL(recv.RedirectURI(), state)
	if err != nil {
		err = &ConfigError{Reason: "construct login url", Err: err}
		f.loginURL.Fail(err)
		return err
	}
	if _, err := url.Parse(loginURL); err != nil {
		err = &ConfigError{Reason: "malformed login url", Err: err}
		f.loginURL.Fail(err)
		return err
	}

	f.loginURL.Complete(loginURL)
	return nil
}

func (f *AuthorizationCodeFlow) awaitCodeStep(ctx context.Context) error {
	code, err := f.receiver.Code().Await(ctx)
	if err != nil {
		return err
	}

	tokens, err := f.chain.client.ExchangeCode(ctx, code, f.receiver.RedirectURI())
	if err != nil {
		return err
	}
	f.chain.tokens = tokens
	return nil
}
