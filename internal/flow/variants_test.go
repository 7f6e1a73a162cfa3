package flow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wintermelt/minecraft_session_keeper/internal/msa"
	"github.com/wintermelt/minecraft_session_keeper/internal/profiles"
	"github.com/wintermelt/minecraft_session_keeper/internal/session"
	"github.com/wintermelt/minecraft_session_keeper/internal/yggdrasil"
)

// fakeProvider simulates the whole Microsoft login chain behind one mux.
type fakeProvider struct {
	server *httptest.Server

	// devicePolls counts token-endpoint polls for the device flow; the
	// first approveAfter-1 polls answer authorization_pending.
	devicePolls  atomic.Int32
	approveAfter int32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{approveAfter: 1}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "GOOD-CODE" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
		case "refresh_token":
			if r.Form.Get("refresh_token") != "stored-refresh" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
		}
		json.NewEncoder(w).Encode(msa.TokenResponse{
			AccessToken:  "ms-access",
			RefreshToken: "rotated-refresh",
			ExpiresIn:    3600,
		})
	})
	mux.HandleFunc("POST /devicecode", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(msa.DeviceCode{
			DeviceCode:      "dev-code",
			UserCode:        "ABCD-1234",
			VerificationURI: "https://example.com/link",
			ExpiresIn:       900,
			Interval:        1,
		})
	})
	mux.HandleFunc("POST /devicetoken", func(w http.ResponseWriter, r *http.Request) {
		n := p.devicePolls.Add(1)
		if n < p.approveAfter {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
			return
		}
		json.NewEncoder(w).Encode(msa.TokenResponse{
			AccessToken:  "ms-access",
			RefreshToken: "rotated-refresh",
		})
	})
	mux.HandleFunc("POST /xbl", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Token":"xbl-token","DisplayClaims":{"xui":[{"uhs":"user-hash"}]}}`))
	})
	mux.HandleFunc("POST /xsts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Token":"xsts-token","DisplayClaims":{"xui":[{"uhs":"user-hash"}]}}`))
	})
	mux.HandleFunc("POST /mclogin", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(msa.MCSession{AccessToken: "mc-token", ExpiresIn: 86400})
	})
	mux.HandleFunc("GET /profile", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(msa.MCProfile{ID: "abcdef0123456789", Name: "Player"})
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) client() *msa.Client {
	c := msa.NewClient("test-client", nil)
	c.TokenURL = p.server.URL + "/token"
	c.DeviceCodeURL = p.server.URL + "/devicecode"
	c.DeviceAuthURL = p.server.URL + "/devicetoken"
	c.XBLAuthURL = p.server.URL + "/xbl"
	c.XSTSAuthURL = p.server.URL + "/xsts"
	c.MCLoginURL = p.server.URL + "/mclogin"
	c.MCProfileURL = p.server.URL + "/profile"
	return c
}

// awaitDone waits for the flow goroutine to exit. State touched by
// cleanups (listener teardown, credential zeroing) is only safe to
// inspect after this returns.
func awaitDone(t *testing.T, f Flow) {
	t.Helper()
	select {
	case <-f.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("flow goroutine did not exit")
	}
}

func awaitSession(t *testing.T, f Flow) session.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := f.Session().Await(ctx)
	if err != nil {
		t.Fatalf("session future: %v", err)
	}
	return sess
}

func TestAuthorizationCodeFlowEndToEnd(t *testing.T) {
	provider := newFakeProvider(t)
	rec := newStageRecorder()

	f := NewAuthorizationCodeFlow(provider.client(), 0, rec, nil)
	f.Start()

	// The login URL resolves once the callback listener is up.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	loginURL, err := f.LoginURL().Await(ctx)
	if err != nil {
		t.Fatalf("login url: %v", err)
	}
	if !strings.Contains(loginURL, "response_mode=form_post") {
		t.Errorf("login url = %q", loginURL)
	}

	// Simulate the provider's form_post redirect.
	resp, err := http.Post(f.receiver.RedirectURI(),
		"application/x-www-form-urlencoded", strings.NewReader("code=GOOD-CODE"))
	if err != nil {
		t.Fatalf("post callback: %v", err)
	}
	resp.Body.Close()

	sess := awaitSession(t, f)
	if sess.Username != "Player" || sess.Type != session.AccountMicrosoft {
		t.Errorf("session = %+v", sess)
	}
	if sess.AccessToken != "mc-token" {
		t.Errorf("access token = %q", sess.AccessToken)
	}

	profF, ok := f.Profile()
	if !ok {
		t.Fatal("authorization code flow should produce a profile")
	}
	prof, err := profF.Await(ctx)
	if err != nil {
		t.Fatalf("profile future: %v", err)
	}
	if prof.RefreshToken != "rotated-refresh" {
		t.Errorf("profile refresh token = %q", prof.RefreshToken)
	}

	if rec.awaitTerminal(t) != StageFinished {
		t.Errorf("terminal = %v", rec.recorded())
	}
	assertMonotonic(t, rec.recorded())

	stages := rec.recorded()
	want := []Stage{StageInitial, StageAwaitAuthCode, StageXboxAuth, StageXSTSAuth, StageMinecraftAuth, StageFinished}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
}

func TestAuthorizationCodeFlowProviderDenial(t *testing.T) {
	provider := newFakeProvider(t)
	rec := newStageRecorder()

	f := NewAuthorizationCodeFlow(provider.client(), 0, rec, nil)
	f.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.LoginURL().Await(ctx); err != nil {
		t.Fatalf("login url: %v", err)
	}

	resp, err := http.Post(f.receiver.RedirectURI(),
		"application/x-www-form-urlencoded", strings.NewReader("error=access_denied"))
	if err != nil {
		t.Fatalf("post callback: %v", err)
	}
	resp.Body.Close()

	if got := rec.awaitTerminal(t); got != StageFailed {
		t.Errorf("terminal = %s, want failed", got)
	}

	_, err = f.Session().Await(ctx)
	if err == nil {
		t.Fatal("session future should reject")
	}
	if !strings.Contains(err.Error(), "access_denied") {
		t.Errorf("error should preserve the provider reason, got %v", err)
	}
}

func TestAuthorizationCodeFlowCancelWhileWaiting(t *testing.T) {
	provider := newFakeProvider(t)
	rec := newStageRecorder()

	f := NewAuthorizationCodeFlow(provider.client(), 0, rec, nil)
	f.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.LoginURL().Await(ctx); err != nil {
		t.Fatalf("login url: %v", err)
	}

	f.Cancel()

	if got := rec.awaitTerminal(t); got != StageCancelled {
		t.Errorf("terminal = %s, want cancelled", got)
	}
	_, err := f.Session().Await(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("session err = %v, want ErrCancelled", err)
	}
	for _, s := range rec.recorded() {
		if s == StageXboxAuth {
			t.Errorf("no stage after cancellation expected, got %v", rec.recorded())
		}
	}
}

func TestDeviceCodeFlowEndToEnd(t *testing.T) {
	provider := newFakeProvider(t)
	provider.approveAfter = 2 // first poll pending, second approved
	rec := newStageRecorder()

	f := NewDeviceCodeFlow(provider.client(), rec, nil)
	f.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url, err := f.LoginURL().Await(ctx)
	if err != nil {
		t.Fatalf("login url: %v", err)
	}
	code, err := f.UserCode().Await(ctx)
	if err != nil {
		t.Fatalf("user code: %v", err)
	}
	if url != "https://example.com/link" || code != "ABCD-1234" {
		t.Errorf("display values = %q %q", url, code)
	}

	sess := awaitSession(t, f)
	if sess.Username != "Player" {
		t.Errorf("session = %+v", sess)
	}
	if rec.awaitTerminal(t) != StageFinished {
		t.Errorf("stages = %v", rec.recorded())
	}
	assertMonotonic(t, rec.recorded())

	if provider.devicePolls.Load() < 2 {
		t.Errorf("expected at least two polls, got %d", provider.devicePolls.Load())
	}
}

func TestDeviceCodeFlowExpires(t *testing.T) {
	provider := newFakeProvider(t)
	provider.approveAfter = 1000 // never approve
	rec := newStageRecorder()

	f := NewDeviceCodeFlow(provider.client(), rec, nil)

	// Simulated clock: the first reading anchors the validity window,
	// every later reading is already past it.
	start := time.Now()
	var reads atomic.Int32
	f.now = func() time.Time {
		if reads.Add(1) == 1 {
			return start
		}
		return start.Add(time.Hour)
	}

	f.Start()

	if got := rec.awaitTerminal(t); got != StageFailed {
		t.Errorf("terminal = %s, want failed", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.Session().Await(ctx)
	if !errors.Is(err, msa.ErrCodeExpired) {
		t.Errorf("session err = %v, want ErrCodeExpired", err)
	}
}

func TestDeviceCodeFlowCancelStopsPolling(t *testing.T) {
	provider := newFakeProvider(t)
	provider.approveAfter = 1000
	rec := newStageRecorder()

	f := NewDeviceCodeFlow(provider.client(), rec, nil)
	f.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.UserCode().Await(ctx); err != nil {
		t.Fatalf("user code: %v", err)
	}

	f.Cancel()
	if got := rec.awaitTerminal(t); got != StageCancelled {
		t.Errorf("terminal = %s, want cancelled", got)
	}

	// Once the flow goroutine has exited no new polls can be issued; at
	// most the one request in flight when Cancel fired may still reach
	// the server, and its result is discarded.
	awaitDone(t, f)
	polls := provider.devicePolls.Load()
	time.Sleep(150 * time.Millisecond)
	if extra := provider.devicePolls.Load() - polls; extra > 1 {
		t.Errorf("%d polls issued after cancellation", extra)
	}
}

func TestRefreshFlowEndToEnd(t *testing.T) {
	provider := newFakeProvider(t)
	rec := newStageRecorder()

	stored := testProfile("stored-refresh")
	f := NewRefreshFlow(provider.client(), stored, rec, nil)
	f.Start()

	sess := awaitSession(t, f)
	if sess.Username != "Player" {
		t.Errorf("session = %+v", sess)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	profF, _ := f.Profile()
	prof, err := profF.Await(ctx)
	if err != nil {
		t.Fatalf("profile future: %v", err)
	}
	if prof.RefreshToken != "rotated-refresh" {
		t.Errorf("refresh token = %q, want rotated-refresh", prof.RefreshToken)
	}

	if rec.awaitTerminal(t) != StageFinished {
		t.Errorf("stages = %v", rec.recorded())
	}
	assertMonotonic(t, rec.recorded())
}

func TestRefreshFlowWithoutToken(t *testing.T) {
	provider := newFakeProvider(t)
	rec := newStageRecorder()

	f := NewRefreshFlow(provider.client(), testProfile(""), rec, nil)
	f.Start()

	if got := rec.awaitTerminal(t); got != StageFailed {
		t.Errorf("terminal = %s, want failed", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.Session().Await(ctx)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want ConfigError", err)
	}
}

type credentialSink struct {
	username, identifier, password string
	calls                          int
}

func (c *credentialSink) SetCredentials(username, identifier, password string) error {
	c.username, c.identifier, c.password = username, identifier, password
	c.calls++
	return nil
}

func newFakeYggdrasil(t *testing.T) *yggdrasil.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /authenticate", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["password"] != "hunter2" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"ForbiddenOperationException","errorMessage":"Invalid credentials. Invalid username or password."}`))
			return
		}
		w.Write([]byte(`{
			"accessToken": "legacy-token",
			"clientToken": "client-token",
			"selectedProfile": {"id": "0011", "name": "LegacyPlayer"}
		}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := yggdrasil.NewClient(nil)
	c.BaseURL = server.URL
	return c
}

func TestPasswordFlowSuccess(t *testing.T) {
	client := newFakeYggdrasil(t)
	rec := newStageRecorder()
	sink := &credentialSink{}

	f := NewPasswordFlow(client, "user@example.com", "hunter2", true, sink, rec, nil)
	f.Start()

	sess := awaitSession(t, f)
	if sess.Username != "LegacyPlayer" || sess.Type != session.AccountLegacy {
		t.Errorf("session = %+v", sess)
	}

	if _, ok := f.Profile(); ok {
		t.Error("password flow should not produce a profile")
	}

	if rec.awaitTerminal(t) != StageFinished {
		t.Errorf("stages = %v", rec.recorded())
	}
	assertMonotonic(t, rec.recorded())

	if sink.calls != 1 || sink.username != "LegacyPlayer" || sink.identifier != "user@example.com" {
		t.Errorf("credentials = %+v", sink)
	}
	if sink.password != "hunter2" {
		t.Errorf("opted-in password should be persisted, got %q", sink.password)
	}

	// The transient password is cleared after the flow ends.
	awaitDone(t, f)
	if f.password != "" {
		t.Error("transient password not cleared")
	}
}

func TestPasswordFlowOptOutSkipsPassword(t *testing.T) {
	client := newFakeYggdrasil(t)
	rec := newStageRecorder()
	sink := &credentialSink{}

	f := NewPasswordFlow(client, "user@example.com", "hunter2", false, sink, rec, nil)
	f.Start()

	awaitSession(t, f)
	rec.awaitTerminal(t)

	if sink.password != "" {
		t.Errorf("password persisted without opt-in: %q", sink.password)
	}
}

func TestPasswordFlowBadCredentials(t *testing.T) {
	client := newFakeYggdrasil(t)
	rec := newStageRecorder()

	f := NewPasswordFlow(client, "user@example.com", "wrong", false, nil, rec, nil)
	f.Start()

	if got := rec.awaitTerminal(t); got != StageFailed {
		t.Errorf("terminal = %s, want failed", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.Session().Await(ctx)
	if !errors.Is(err, yggdrasil.ErrBadCredentials) {
		t.Errorf("err = %v, want ErrBadCredentials", err)
	}

	awaitDone(t, f)
	if f.password != "" {
		t.Error("transient password not cleared on failure")
	}
}

func testProfile(refreshToken string) profiles.Profile {
	return profiles.Profile{
		Name:         "Player",
		UUID:         "abcdef0123456789",
		Type:         "msa",
		RefreshToken: refreshToken,
	}
}
