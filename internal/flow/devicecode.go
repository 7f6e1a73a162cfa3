package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wintermelt/minecraft_session_keeper/internal/future"
	"github.com/wintermelt/minecraft_session_keeper/internal/msa"
	"github.com/wintermelt/minecraft_session_keeper/internal/profiles"
	"github.com/wintermelt/minecraft_session_keeper/internal/session"
)

// DeviceCodeFlow logs in by showing the user a short code to enter on a
// second device. The provider is polled on its advertised interval until
// approval, denial, cancellation, or expiry of the code's validity
// window.
type DeviceCodeFlow struct {
	*runner
	chain msaChain

	loginURL *future.Future[string]
	userCode *future.Future[string]

	deviceCode *msa.DeviceCode

	// now is swapped out by tests to simulate the expiry clock.
	now func() time.Time
}

// NewDeviceCodeFlow prepares the flow.
func NewDeviceCodeFlow(client *msa.Client, cb Callback, logger *slog.Logger) *DeviceCodeFlow {
	return &DeviceCodeFlow{
		runner:   newRunner("device_code", cb, logger, true),
		chain:    msaChain{client: client},
		loginURL: future.New[string](),
		userCode: future.New[string](),
		now:      time.Now,
	}
}

// LoginURL resolves with the verification URL the user must visit.
func (f *DeviceCodeFlow) LoginURL() *future.Future[string] { return f.loginURL }

// UserCode resolves with the code the user must enter there.
func (f *DeviceCodeFlow) UserCode() *future.Future[string] { return f.userCode }

// Start begins the flow; it returns immediately.
func (f *DeviceCodeFlow) Start() {
	steps := append([]step{
		{StageInitial, f.initialStep},
		{StagePollDeviceCode, f.pollStep},
	}, f.chain.chainSteps()...)

	f.start(steps, func() (session.Session, profiles.Profile) {
		return f.chain.finish(f.chain.client.ClientID)
	})
}

func (f *DeviceCodeFlow) initialStep(ctx context.Context) error {
	dc, err := f.chain.client.RequestDeviceCode(ctx)
	if err != nil {
		f.loginURL.Fail(err)
		f.userCode.Fail(err)
		return err
	}

	f.deviceCode = dc
	f.loginURL.Complete(dc.VerificationURI)
	f.userCode.Complete(dc.UserCode)
	return nil
}

func (f *DeviceCodeFlow) pollStep(ctx context.Context) error {
	interval := time.Duration(f.deviceCode.Interval) * time.Second
	deadline := f.now().Add(time.Duration(f.deviceCode.ExpiresIn) * time.Second)

	for {
		tokens, err := f.chain.client.PollDeviceCode(ctx, f.deviceCode.DeviceCode)
		if err == nil {
			f.chain.tokens = tokens
			return nil
		}

		switch {
		case errors.Is(err, msa.ErrSlowDown):
			interval += 5 * time.Second
		case errors.Is(err, msa.ErrAuthorizationPending):
			// keep polling
		default:
			// Declined, provider-side expiry, or a transport failure.
			return err
		}

		if f.now().After(deadline) {
			return msa.ErrCodeExpired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
