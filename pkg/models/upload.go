package models

import "time"

// Legacy upload states mirrored for clients still polling the old progress record.
const (
	UploadStateRunning   = "RUNNING"
	UploadStateProcessed = "PROCESSED"
	UploadStateInvalid   = "INVALID"
)

// Upload is the legacy progress record shadowing an execution request.
type Upload struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"exec_id"`
	Name        string         `json:"name"`
	State       string         `json:"state"`
	User        string         `json:"user"`
	Complete    bool           `json:"complete"`
	Metadata    map[string]any `json:"metadata"`
	Created     time.Time      `json:"date"`
	Updated     time.Time      `json:"updated"`
}
