package models

import "time"

// RuntimeStatus is the coarse lifecycle state of a conversation's session.
type RuntimeStatus string

const (
	RuntimeSpawning   RuntimeStatus = "spawning"
	RuntimeRunning    RuntimeStatus = "running"
	RuntimeNeedsInput RuntimeStatus = "needs-input"
	RuntimeWorking    RuntimeStatus = "working"
	RuntimeIdle       RuntimeStatus = "idle"
	RuntimeCompleted  RuntimeStatus = "completed"
	RuntimeExited     RuntimeStatus = "exited"
)

// Conversation is the persistent record that owns a session's metadata
// across restarts. When a PTY is live the session id equals the
// conversation id.
type Conversation struct {
	ID           string         `json:"conversationId"`
	Scope        Scope          `json:"scope"`
	DirectoryID  string         `json:"directoryId"`
	Title        string         `json:"title"`
	AgentType    string         `json:"agentType"`
	AdapterState map[string]any `json:"adapterState,omitempty"`

	RuntimeStatus      RuntimeStatus `json:"runtimeStatus"`
	RuntimeStatusModel *StatusModel  `json:"runtimeStatusModel,omitempty"`
	RuntimeLive        bool          `json:"runtimeLive"`
	RuntimeLastExit    *ExitStatus   `json:"runtimeLastExit,omitempty"`
	LastEventAt        *time.Time    `json:"lastEventAt,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
}

// StatusModel is the rendered session status produced by the status reducer
// collaborator from agent telemetry. The server stores the latest model on
// the conversation and forwards it verbatim in session-status events.
type StatusModel struct {
	RuntimeStatus   RuntimeStatus `json:"runtimeStatus"`
	Phase           string        `json:"phase,omitempty"`
	Glyph           string        `json:"glyph,omitempty"`
	Badge           string        `json:"badge,omitempty"`
	DetailText      string        `json:"detailText,omitempty"`
	AttentionReason string        `json:"attentionReason,omitempty"`
	LastKnownWork   string        `json:"lastKnownWork,omitempty"`
	LastKnownWorkAt *time.Time    `json:"lastKnownWorkAt,omitempty"`
	PhaseHint       string        `json:"phaseHint,omitempty"`
	ObservedAt      time.Time     `json:"observedAt"`
}
