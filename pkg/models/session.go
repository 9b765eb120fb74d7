package models

import "time"

// ControllerType classifies who holds a session claim.
type ControllerType string

const (
	ControllerHuman      ControllerType = "human"
	ControllerAgent      ControllerType = "agent"
	ControllerAutomation ControllerType = "automation"
)

// ValidControllerType reports whether t is a member of the closed set.
func ValidControllerType(t ControllerType) bool {
	switch t {
	case ControllerHuman, ControllerAgent, ControllerAutomation:
		return true
	}
	return false
}

// Controller is the exclusive claim on a session. At most one is active per
// session; a takeover atomically replaces it.
type Controller struct {
	ControllerID    string         `json:"controllerId"`
	ControllerType  ControllerType `json:"controllerType"`
	ControllerLabel string         `json:"controllerLabel,omitempty"`
	ClaimedAt       time.Time      `json:"claimedAt"`
}

// ExitStatus records how a process ended. Exactly one of Code and Signal is
// non-nil: Code when the process exited, Signal (symbolic name, e.g.
// "SIGTERM") when it was killed.
type ExitStatus struct {
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

// SessionInfo is the read-only view returned by session.list and
// session.status.
type SessionInfo struct {
	SessionID     string        `json:"sessionId"`
	Live          bool          `json:"live"`
	RuntimeStatus RuntimeStatus `json:"runtimeStatus"`
	Status        *StatusModel  `json:"status,omitempty"`
	Controller    *Controller   `json:"controller,omitempty"`
	LatestCursor  int64         `json:"latestCursor"`
	LastExit      *ExitStatus   `json:"lastExit,omitempty"`
	StartedAt     time.Time     `json:"startedAt"`
}

// LaunchSpec is everything the supervisor needs to spawn a session process.
// It is derived by a LaunchPlanner collaborator from the conversation's agent
// type and adapter state; the supervisor itself knows nothing about agent
// flags.
type LaunchSpec struct {
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	InitialCols int               `json:"initialCols"`
	InitialRows int               `json:"initialRows"`
	TerminalFg  string            `json:"terminalFg,omitempty"`
	TerminalBg  string            `json:"terminalBg,omitempty"`
}
