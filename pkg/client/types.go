package client

import "time"

// FileMetadata describes one file in the vault directory.
type FileMetadata struct {
	Name         string `json:"name"`
	SizeBytes    uint64 `json:"sizeBytes"`
	ModifiedAtMs uint64 `json:"modifiedAtMs"`
	Extension    string `json:"extension"`
}

// SidecarStatus is the supervisor snapshot served at /status on the
// diagnostics listener.
type SidecarStatus struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	PID        int       `json:"pid,omitempty"`
	Attempt    string    `json:"attempt,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	ReadyAt    time.Time `json:"ready_at"`
	LastExit   string    `json:"last_exit,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Restarts   int       `json:"restarts"`
	RSSBytes   uint64    `json:"rss_bytes,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
}

type dataDirResponse struct {
	Path string `json:"path"`
}

type filesResponse struct {
	Files []FileMetadata `json:"files"`
}

type pathsResponse struct {
	Paths []string `json:"paths"`
}

type errorResponse struct {
	Error string `json:"error"`
}
