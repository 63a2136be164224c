package core

import "encoding/json"

// Event payloads. Each event kind carries one of these structures,
// serialized as JSON in Event.Payload.

// StatusChangePayload records one state-machine transition. Completion
// is set on the transition into completed when the Agent reported a
// summary alongside it.
type StatusChangePayload struct {
	Entity     string             `json:"entity"`
	From       string             `json:"from"`
	To         string             `json:"to"`
	Reason     string             `json:"reason,omitempty"`
	Completion *CompletionPayload `json:"completion,omitempty"`
}

// ProgressPayload is an Agent progress report.
type ProgressPayload struct {
	Percent *int   `json:"percent,omitempty"`
	Note    string `json:"note"`
}

// ErrorPayload describes a task or engine failure.
type ErrorPayload struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// CompletionPayload summarizes a finished coding task.
type CompletionPayload struct {
	Summary      string   `json:"summary"`
	FilesChanged []string `json:"files_changed,omitempty"`
}

// ReviewVerdictPayload is the outcome of a review task.
type ReviewVerdictPayload struct {
	Verdict    ReviewVerdict `json:"verdict"`
	Findings   []string      `json:"findings,omitempty"`
	ReviewedID string        `json:"reviewed_id,omitempty"`
	FollowUpID string        `json:"follow_up_id,omitempty"`
}

// HumanInputRequestPayload asks the operator a question.
type HumanInputRequestPayload struct {
	RequestID string   `json:"request_id"`
	Question  string   `json:"question"`
	Choices   []string `json:"choices,omitempty"`
}

// HumanInputResponsePayload answers a prior request.
type HumanInputResponsePayload struct {
	RequestID string `json:"request_id"`
	Response  string `json:"response"`
}

// TickPayload is the engine heartbeat.
type TickPayload struct {
	Decision string `json:"decision"`
	Running  int    `json:"running"`
	Reason   string `json:"reason,omitempty"`
}

// OverflowPayload reports bus-side event loss to a subscriber.
type OverflowPayload struct {
	Dropped int `json:"dropped"`
}

// MarshalPayload serializes a payload for Event.Payload. It returns an
// empty string when v cannot be marshaled.
func MarshalPayload(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
