package model

// WebSocket message types
const (
	WSMessageTypeSnapshot     = "snapshot"
	WSMessageTypeStatusUpdate = "status-update"
	WSMessageTypeNotification = "new-notification"
	WSMessageTypePing         = "ping"
	WSMessageTypePong         = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSSnapshotMessage replays the full registry state to a new observer.
type WSSnapshotMessage struct {
	Type string                 `json:"type"`
	Jobs map[JobClass]JobStatus `json:"jobs"`
}

// WSStatusMessage announces one job class transition.
type WSStatusMessage struct {
	Type   string    `json:"type"`
	Job    JobClass  `json:"job"`
	Status JobStatus `json:"status"`
}

// WSNotificationMessage pushes a freshly created notification.
type WSNotificationMessage struct {
	Type         string       `json:"type"`
	Notification Notification `json:"notification"`
}
