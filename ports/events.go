package ports

import (
	"time"

	"pivotdesk/domain/core"
)

// Session event types
const (
	EventConfigurationChanged = "configuration_changed"
	EventDataSourceChanged    = "data_source_changed"
	EventResultReady          = "result_ready"
	EventSessionClosed        = "session_closed"
)

// SessionEvent reports a change to one pivot session
type SessionEvent struct {
	SessionID  core.SessionID     `json:"session_id"`
	EventType  string             `json:"event_type"`
	DataSource string             `json:"data_source,omitempty"`
	Signature  core.SignatureHash `json:"signature,omitempty"`
	Data       map[string]any     `json:"data,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// EventPublisher fans session events out to listeners. Publish must not block.
type EventPublisher interface {
	Publish(event SessionEvent)
}
