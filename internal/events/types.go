package events

// Event type constants for kelindar/event.
const (
	TypeCameraStateChanged uint32 = iota + 1
	TypeServiceCalled
	TypePlatformLoaded
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraStateChangedEvent is published when a poll changes a camera's state.
type CameraStateChangedEvent struct {
	EntityID   string         `json:"entity_id" example:"camera.porch" doc:"Entity id"`
	Serial     string         `json:"serial" example:"D12345678" doc:"Camera serial"`
	Available  bool           `json:"available" doc:"Last polled on/off status"`
	Attributes map[string]any `json:"attributes" doc:"Diagnostic attributes after the poll"`
	Timestamp  string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStateChangedEvent.
func (e CameraStateChangedEvent) Type() uint32 { return TypeCameraStateChanged }

// ServiceCalledEvent is published for every routed service call.
type ServiceCalledEvent struct {
	Domain    string         `json:"domain" example:"camera" doc:"Service domain"`
	Service   string         `json:"service" example:"ezviz_ptz" doc:"Service name"`
	Data      map[string]any `json:"data,omitempty" doc:"Normalised call payload"`
	Error     string         `json:"error,omitempty" doc:"Error returned by the handler"`
	Timestamp string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ServiceCalledEvent.
func (e ServiceCalledEvent) Type() uint32 { return TypeServiceCalled }

// PlatformLoadedEvent is published after the camera platform is (re)loaded.
type PlatformLoadedEvent struct {
	Cameras   int    `json:"cameras" example:"2" doc:"Number of camera entities"`
	Error     string `json:"error,omitempty" doc:"Why the platform loaded without entities"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PlatformLoadedEvent.
func (e PlatformLoadedEvent) Type() uint32 { return TypePlatformLoaded }

// LogEntryEvent carries one log record to SSE clients.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"INFO" doc:"Log level"`
	Module     string         `json:"module" example:"camera" doc:"Logging module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
