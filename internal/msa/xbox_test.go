package msa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeXbox stands in for the Xbox Live, XSTS and Minecraft services
// endpoints of a full login chain.
func fakeXbox(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /xbl", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		props := req["Properties"].(map[string]any)
		if ticket := props["RpsTicket"].(string); !strings.HasPrefix(ticket, "d=") {
			t.Errorf("RpsTicket = %q, want d= prefix", ticket)
		}
		w.Write([]byte(`{"Token":"xbl-token","DisplayClaims":{"xui":[{"uhs":"user-hash"}]}}`))
	})
	mux.HandleFunc("POST /xsts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Token":"xsts-token","DisplayClaims":{"xui":[{"uhs":"user-hash"}]}}`))
	})
	mux.HandleFunc("POST /mclogin", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["identityToken"] != "XBL3.0 x=user-hash;xsts-token" {
			t.Errorf("identityToken = %q", req["identityToken"])
		}
		json.NewEncoder(w).Encode(MCSession{AccessToken: "mc-token", ExpiresIn: 86400})
	})
	mux.HandleFunc("GET /profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(MCProfile{ID: "abcdef", Name: "Player"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := NewClient("test-client", nil)
	c.XBLAuthURL = server.URL + "/xbl"
	c.XSTSAuthURL = server.URL + "/xsts"
	c.MCLoginURL = server.URL + "/mclogin"
	c.MCProfileURL = server.URL + "/profile"
	return c, server
}

func TestXboxChain(t *testing.T) {
	c, _ := fakeXbox(t)
	ctx := context.Background()

	xbl, err := c.XboxAuth(ctx, "ms-access-token")
	if err != nil {
		t.Fatalf("XboxAuth: %v", err)
	}
	if xbl.UserHash != "user-hash" {
		t.Errorf("UserHash = %q", xbl.UserHash)
	}

	xsts, err := c.XSTSAuth(ctx, xbl)
	if err != nil {
		t.Fatalf("XSTSAuth: %v", err)
	}
	if xsts != "xsts-token" {
		t.Errorf("xsts = %q", xsts)
	}

	mc, err := c.LoginWithXbox(ctx, xbl.UserHash, xsts)
	if err != nil {
		t.Fatalf("LoginWithXbox: %v", err)
	}
	if mc.AccessToken != "mc-token" {
		t.Errorf("AccessToken = %q", mc.AccessToken)
	}

	profile, err := c.Profile(ctx, mc.AccessToken)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if profile.Name != "Player" || profile.ID != "abcdef" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestXSTSDenialMapsXErr(t *testing.T) {
	tests := []struct {
		xerr int64
		want string
	}{
		{2148916233, "no Xbox profile"},
		{2148916238, "minor"},
		{999, "XErr 999"},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(XSTSError{XErr: tt.xerr, Message: "denied"})
		}))

		c := NewClient("", nil)
		c.XSTSAuthURL = server.URL
		_, err := c.XSTSAuth(context.Background(), &XBLToken{Token: "xbl"})
		server.Close()

		var denial *XSTSError
		if !errors.As(err, &denial) {
			t.Fatalf("expected XSTSError, got %T: %v", err, err)
		}
		if !strings.Contains(denial.Error(), tt.want) {
			t.Errorf("XErr %d message = %q, want substring %q", tt.xerr, denial.Error(), tt.want)
		}
	}
}

func TestCheckToken(t *testing.T) {
	c, _ := fakeXbox(t)
	ctx := context.Background()

	valid, err := c.CheckToken(ctx, "mc-token")
	if err != nil {
		t.Fatalf("CheckToken: %v", err)
	}
	if !valid {
		t.Error("expected valid token")
	}

	valid, err = c.CheckToken(ctx, "stale-token")
	if err != nil {
		t.Fatalf("CheckToken: %v", err)
	}
	if valid {
		t.Error("expected invalid token")
	}
}
