package domain

import "time"

// SessionState models the voice session lifecycle.
type SessionState string

const (
	SessionStateInactive  SessionState = "inactive"
	SessionStateGreeting  SessionState = "greeting"
	SessionStateListening SessionState = "listening"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonGreetingStarted  SessionStateReason = "greeting_started"
	SessionReasonGreetingFinished SessionStateReason = "greeting_finished"
	SessionReasonConnecting       SessionStateReason = "connecting"
	SessionReasonListening        SessionStateReason = "listening"
	SessionReasonUserStopped      SessionStateReason = "user_stopped"
	SessionReasonRemoteClosed     SessionStateReason = "remote_closed"
	SessionReasonTransportFailed  SessionStateReason = "transport_failed"
	SessionReasonGreetingFailed   SessionStateReason = "greeting_failed"
	SessionReasonMicUnavailable   SessionStateReason = "mic_unavailable"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup          ErrorCode = "startup"
	ErrorCodePermissionDenied ErrorCode = "permission_denied"
	ErrorCodeTransport        ErrorCode = "transport"
	ErrorCodeAudioStream      ErrorCode = "audio_stream"
	ErrorCodePlayback         ErrorCode = "playback"
	ErrorCodeToolDispatch     ErrorCode = "tool_dispatch"
	ErrorCodeInventory        ErrorCode = "inventory"
)

// Speaker tags a transcript entry.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEntry is one accumulated line of conversation.
type TranscriptEntry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// ToolInvocation is the remote model's request to invoke a named capability.
type ToolInvocation struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the correlated textual outcome returned to the model.
// Exactly one result is produced per invocation.
type ToolResult struct {
	ID      string
	Name    string
	Success bool
	Message string
}

// ExpiryStatus tracks where an item sits in the expiry alert cycle.
type ExpiryStatus string

const (
	ExpiryStatusNone     ExpiryStatus = "none"
	ExpiryStatusUpcoming ExpiryStatus = "upcoming"
	ExpiryStatusExpired  ExpiryStatus = "expired"
)

// AlertRules configures expiry notifications for one item.
type AlertRules struct {
	NotifyBeforeDays  int  `json:"notifyBeforeDays"`
	NotifyWhenExpired bool `json:"notifyWhenExpired"`
}

// DefaultAlertRules apply whenever an expiry date is recorded.
func DefaultAlertRules() AlertRules {
	return AlertRules{NotifyBeforeDays: 7, NotifyWhenExpired: true}
}

// InventoryItem is one stocked item, scoped to a user. Name is the
// case-normalized natural key for merge operations.
type InventoryItem struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Quantity     int64        `json:"quantity"`
	Price        float64      `json:"price"`
	ExpiryDate   string       `json:"expiryDate,omitempty"` // DD-MM-YYYY
	ExpiryAt     *time.Time   `json:"expiryAt,omitempty"`   // end of day
	ExpiryStatus ExpiryStatus `json:"expiryStatus"`
	AlertRules   AlertRules   `json:"alertRules"`
	LastAlerted  *time.Time   `json:"lastAlertedAt,omitempty"`
}

// Status summarizes the current session status for callers.
type Status struct {
	State   SessionState `json:"state"`
	Active  bool         `json:"active"`
	Message string       `json:"message,omitempty"`
}
