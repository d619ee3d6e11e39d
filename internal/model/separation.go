package model

import "encoding/json"

// Reason returned with every accepted submission
const ReasonEnqueued = "Song enqueued for separation"

// SeparateRequest represents the body of POST /apiv1/separate
type SeparateRequest struct {
	MP3      string          `json:"mp3" validate:"required"`
	Model    string          `json:"model,omitempty" validate:"omitempty,max=64"`
	Callback json.RawMessage `json:"callback,omitempty"`
}

// SeparateResponse is returned once the job is queued
type SeparateResponse struct {
	Hash   string `json:"hash"`
	Reason string `json:"reason"`
}

// QueueResponse lists the raw descriptors currently queued
type QueueResponse struct {
	Queue []string `json:"queue"`
}

// DeleteResponse confirms a removed output part
type DeleteResponse struct {
	Deleted string `json:"deleted"`
}

// LogsResponse wraps event log entries
type LogsResponse struct {
	Logs []LogEntry `json:"logs"`
}

// Job outcome reported to callbacks and websocket subscribers
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// CallbackPayload is POSTed to a submitter's callback URL
type CallbackPayload struct {
	Hash   string          `json:"hash"`
	Model  string          `json:"model"`
	Status JobStatus       `json:"status"`
	Parts  []string        `json:"parts,omitempty"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}
