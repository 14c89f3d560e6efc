package audit

import "time"

// Actions emitted by the anchoring core.
const (
	ActionAnchored     = "receipt.anchored"
	ActionAnchorFailed = "receipt.anchor_failed"
	ActionVerified     = "receipt.verified"
)

// Event is emitted from domain logic to capture key anchoring actions. Keep
// it transport-agnostic so sinks can fan out.
type Event struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	RecordID    string    `json:"recordId"`
	ContentHash string    `json:"contentHash,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
