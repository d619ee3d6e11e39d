package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// Worker stages reported in progress messages
const (
	StageFetching   = "fetching"
	StageSeparating = "separating"
	StagePublishing = "publishing"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
	Hash string `json:"hash,omitempty"`
}

// WSProgressMessage represents a progress update
type WSProgressMessage struct {
	Type   string    `json:"type"`
	Hash   string    `json:"hash"`
	Status JobStatus `json:"status"`
	Stage  string    `json:"stage,omitempty"`
	Part   string    `json:"part,omitempty"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type  string   `json:"type"`
	Hash  string   `json:"hash"`
	Parts []string `json:"parts"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	Hash  string  `json:"hash"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
