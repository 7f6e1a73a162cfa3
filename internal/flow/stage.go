package flow

import "fmt"

// Stage is a named checkpoint within a flow's progress. Stage identity is
// a pure state machine label; display text is looked up externally (see
// the tui package).
//
// Transitions are monotonic: forward in ordinal order, or to one of the
// terminal stages. A flow never revisits a stage.
type Stage int

const (
	StageInitial Stage = iota
	StageAwaitAuthCode
	StagePollDeviceCode
	StageRefreshToken
	StagePasswordAuth
	StageXboxAuth
	StageXSTSAuth
	StageMinecraftAuth
	StageFinished
	StageFailed
	StageCancelled
)

func (s Stage) String() string {
	switch s {
	case StageInitial:
		return "initial"
	case StageAwaitAuthCode:
		return "await_auth_code"
	case StagePollDeviceCode:
		return "poll_device_code"
	case StageRefreshToken:
		return "refresh_token"
	case StagePasswordAuth:
		return "password_auth"
	case StageXboxAuth:
		return "xbox_auth"
	case StageXSTSAuth:
		return "xsts_auth"
	case StageMinecraftAuth:
		return "minecraft_auth"
	case StageFinished:
		return "finished"
	case StageFailed:
		return "failed"
	case StageCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the stage ends a flow.
func (s Stage) Terminal() bool {
	return s == StageFinished || s == StageFailed || s == StageCancelled
}
