// Package profiles stores completed-flow identities for reuse. A profile
// is what a successful Microsoft login leaves behind: the account's name,
// UUID and the refresh token that lets a later run log in again without
// user interaction. Persistence is best-effort; a lost profile only costs
// the user one interactive login.
package profiles

import "time"

// Profile is a durable record of a successfully completed flow, keyed by
// account UUID.
type Profile struct {
	Name         string
	UUID         string
	Type         string
	RefreshToken string
	UpdatedAt    time.Time
}
