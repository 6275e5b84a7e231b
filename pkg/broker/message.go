package broker

import "errors"

// Event types the agent reacts to. They mirror the five controller services.
const (
	ConfigBackup  = "config_backup"
	ConfigRestore = "config_restore"
	Restart       = "restart"
	RefreshState  = "refresh_state"
	TestButton    = "test_button"
)

// ErrUnknownEventType is raised when receiving unhandled event from broker.
var ErrUnknownEventType = errors.New("unknown event type")

// Message is the message event format.
type Message struct {
	EventType    string `json:"event_type"`
	ControllerID string `json:"controller_id"`
	CreatedAt    string `json:"created_at"`

	// For performing config backup/restore.
	Schedule  string `json:"schedule,omitempty"`
	Retention int    `json:"retention,omitempty"`
	Path      string `json:"path,omitempty"`
	File      string `json:"file,omitempty"`

	// For simulating a transmitter button event.
	Button    string `json:"button,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Event     string `json:"event,omitempty"`
}
