package dashboard

import (
	"encoding/json"
	"time"

	"github.com/randalmurphal/tc/internal/core"
)

// watchFrame mirrors the /watch server's event frame. Frames of other
// types (subscribed, pong, error) carry no event and are skipped.
type watchFrame struct {
	Type    string          `json:"type"`
	ID      int64           `json:"id"`
	Kind    string          `json:"kind"`
	Subject string          `json:"subject"`
	Payload json.RawMessage `json:"payload"`
	Time    time.Time       `json:"time"`
}

func (f watchFrame) event() core.Event {
	payload := string(f.Payload)
	if payload == "null" {
		payload = ""
	}
	return core.Event{
		ID:        f.ID,
		Kind:      core.EventKind(f.Kind),
		Subject:   f.Subject,
		Payload:   payload,
		CreatedAt: f.Time,
	}
}
