package orchestrator

import "time"

// EventType enumerates the progress stream vocabulary. Consumers can
// switch on the exact strings; they are part of the output contract.
type EventType string

const (
	EventAuditStart    EventType = "audit:start"
	EventAuditComplete EventType = "audit:complete"
	EventAuditError    EventType = "audit:error"

	EventLayer1Start     EventType = "layer1:start"
	EventLayer1Collector EventType = "layer1:collector"
	EventLayer1Complete  EventType = "layer1:complete"

	EventLayer2Start    EventType = "layer2:start"
	EventLayer2Complete EventType = "layer2:complete"

	EventLayer3Start    EventType = "layer3:start"
	EventLayer3Audit    EventType = "layer3:audit"
	EventLayer3Finding  EventType = "layer3:finding"
	EventLayer3Complete EventType = "layer3:complete"

	EventLayer4Start    EventType = "layer4:start"
	EventLayer4Complete EventType = "layer4:complete"
)

// Event is one entry in the progress stream. Timestamp is RFC 3339 with
// millisecond precision, UTC.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp string    `json:"timestamp"`
	Subject   string    `json:"subject,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
}

func newEvent(t EventType, subject, status, message string) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Subject:   subject,
		Status:    status,
		Message:   message,
	}
}

// State is the run lifecycle. Transitions are strictly forward;
// StateError absorbs from any active state.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateCollecting State = "collecting"
	StateExtracting State = "extracting"
	StateAuditing   State = "auditing"
	StateReporting  State = "reporting"
	StateComplete   State = "complete"
	StateError      State = "error"
)
