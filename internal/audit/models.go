package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names a mapping change.
type Action string

const (
	ActionMappingUpserted Action = "mapping_upserted"
	ActionMappingDeleted  Action = "mapping_deleted"
)

// Event records one committed mapping change. Keep it transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Action    Action    `json:"action"`
	DID       string    `json:"did"`
	Persona   string    `json:"persona,omitempty"`
	CNAM      string    `json:"cnam,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Client    Client    `json:"client"`
	Timestamp time.Time `json:"timestamp"`
}
