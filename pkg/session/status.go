package session

import (
	"github.com/devharness/harnessd/pkg/models"
)

// PayloadReducer is the default status reducer: it lifts well-known keys out
// of the telemetry payload into a status model. Payloads without a
// recognizable status field produce no update.
type PayloadReducer struct{}

var runtimeStatuses = map[string]models.RuntimeStatus{
	string(models.RuntimeSpawning):   models.RuntimeSpawning,
	string(models.RuntimeRunning):    models.RuntimeRunning,
	string(models.RuntimeNeedsInput): models.RuntimeNeedsInput,
	string(models.RuntimeWorking):    models.RuntimeWorking,
	string(models.RuntimeIdle):       models.RuntimeIdle,
	string(models.RuntimeCompleted):  models.RuntimeCompleted,
	string(models.RuntimeExited):     models.RuntimeExited,
}

func (PayloadReducer) Project(input TelemetryInput) *models.StatusModel {
	raw, _ := input.Payload["status"].(string)
	status, ok := runtimeStatuses[raw]
	if !ok {
		return nil
	}

	model := models.StatusModel{
		RuntimeStatus:   status,
		Phase:           str(input.Payload, "phase"),
		Glyph:           str(input.Payload, "glyph"),
		Badge:           str(input.Payload, "badge"),
		DetailText:      str(input.Payload, "detailText"),
		AttentionReason: str(input.Payload, "attentionReason"),
		LastKnownWork:   str(input.Payload, "lastKnownWork"),
		PhaseHint:       str(input.Payload, "phaseHint"),
		ObservedAt:      input.ObservedAt,
	}
	if model.LastKnownWork != "" {
		at := input.ObservedAt
		model.LastKnownWorkAt = &at
	}
	if status == models.RuntimeNeedsInput && model.AttentionReason == "" {
		model.AttentionReason = "needs-input"
	}
	return &model
}

func str(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
