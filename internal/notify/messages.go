package notify

import (
	"encoding/json"
	"time"
)

const errorTruncateLimit = 800

// Run lifecycle statuses as they appear on the wire.
const (
	StatusStarted = "started"
	StatusLoaded  = "loaded"
	StatusFailed  = "failed"
)

// RunStatusMessage tells downstream consumers where an import run stands.
// Consumers key on RunID; Error is truncated so a deeply wrapped failure
// cannot blow up queue payloads.
type RunStatusMessage struct {
	RunID       string    `json:"run_id"`
	Job         string    `json:"job"`
	Tenant      string    `json:"tenant_id,omitempty"`
	Marketplace string    `json:"marketplace"`
	Period      string    `json:"period"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRunStatusMessage builds a message stamped with the current time.
func NewRunStatusMessage(runID, job, tenant, marketplace, period, status, note string, runErr error) *RunStatusMessage {
	msg := &RunStatusMessage{
		RunID:       runID,
		Job:         job,
		Tenant:      tenant,
		Marketplace: marketplace,
		Period:      period,
		Status:      status,
		Note:        note,
		Timestamp:   time.Now(),
	}
	if runErr != nil {
		s := runErr.Error()
		if len(s) > errorTruncateLimit {
			s = s[:errorTruncateLimit]
		}
		msg.Error = s
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *RunStatusMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RunStatusMessageFromJSON creates a message from JSON bytes
func RunStatusMessageFromJSON(data []byte) (*RunStatusMessage, error) {
	var msg RunStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
