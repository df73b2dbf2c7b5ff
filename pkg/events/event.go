package events

import "time"

// Event is anything that can be published on the in-process bus or NATS.
type Event interface {
	// EventType is the dotted type code, e.g. "document.changed".
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

// Envelope is the shape an event takes after crossing a bus: only the type
// and the JSON payload survive. Decode it with a typed constructor such as
// DocumentChangedFrom.
type Envelope struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (e Envelope) EventType() string               { return e.Type }
func (e Envelope) Payload() map[string]interface{} { return e.Data }
func (e Envelope) Timestamp() time.Time            { return e.OccurredAt }
