// Package session holds the live game session and the rules for replacing it.
//
// A Session is an immutable value: flows produce candidate sessions, the
// Store swaps the current one wholesale. Nothing ever mutates a Session
// in place.
package session

import (
	"crypto/md5"
	"fmt"

	"github.com/google/uuid"
)

// AccountType distinguishes legacy (Mojang/offline) accounts from
// Microsoft accounts.
type AccountType string

const (
	AccountLegacy    AccountType = "legacy"
	AccountMicrosoft AccountType = "msa"
)

func (t AccountType) String() string {
	return string(t)
}

// Session is the active authenticated identity used by the host.
type Session struct {
	Username    string      `json:"username"`
	UUID        string      `json:"uuid"`
	AccessToken string      `json:"access_token"`
	ClientID    string      `json:"client_id,omitempty"`
	Type        AccountType `json:"type"`
}

// Valid reports whether the session carries the minimum fields the host
// needs to join a server.
func (s Session) Valid() bool {
	return s.Username != "" && s.UUID != "" && s.AccessToken != ""
}

func (s Session) String() string {
	return fmt.Sprintf("%s (%s, %s)", s.Username, s.UUID, s.Type)
}

// Offline derives a session for the given username without talking to any
// provider. The UUID is the name-based (version 3) UUID of
// "OfflinePlayer:<name>", matching what vanilla servers derive for offline
// players, so the same username always yields the same identifier.
func Offline(username string) Session {
	sum := md5.Sum([]byte("OfflinePlayer:" + username))
	var id uuid.UUID = sum
	id[6] = (id[6] & 0x0f) | 0x30 // version 3
	id[8] = (id[8] & 0x3f) | 0x80 // RFC 4122 variant

	return Session{
		Username:    username,
		UUID:        id.String(),
		AccessToken: "invalid",
		Type:        AccountLegacy,
	}
}
