package model

// LogKind classifies event log entries
type LogKind string

const (
	LogKindInfo  LogKind = "info"
	LogKindError LogKind = "error"
)

// LogEntry is one operational event from the shared log list.
// Origin is "{nodeId}.{component}".
type LogEntry struct {
	Origin  string  `json:"origin"`
	Kind    LogKind `json:"kind"`
	Message string  `json:"message"`
}
