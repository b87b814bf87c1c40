// Package models holds the request and response bodies of the HTTP API.
package models

import "time"

// Health check models
type HealthData struct {
	Status    string `json:"status" example:"ok" doc:"Service status"`
	Message   string `json:"message" example:"API is healthy" doc:"Status message"`
	Processes int    `json:"processes" example:"3" doc:"Number of supervised processes"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.4.0" doc:"Release version"`
	GitCommit string `json:"git_commit" example:"3f2c9e1" doc:"Source revision"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target OS and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// ConnectedEvent is the first message of every event stream.
type ConnectedEvent struct {
	Message   string `json:"message" example:"SSE connection established" doc:"Greeting"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Connection time"`
}

// Process models
type ProcessData struct {
	PID       int       `json:"pid" example:"4242" doc:"Process ID"`
	Name      string    `json:"name" example:"audio_mux" doc:"Logical name shared by a pipeline"`
	Group     string    `json:"group" doc:"Launch ID shared by every stage of one launch"`
	Stage     int       `json:"stage" example:"0" doc:"Pipeline stage index"`
	Command   string    `json:"command" example:"arecord -f cd" doc:"Command line"`
	StartedAt time.Time `json:"started_at" doc:"When the process was forked"`
}

type ProcessListData struct {
	Processes []ProcessData `json:"processes" doc:"Supervised processes ordered by PID"`
	Count     int           `json:"count" example:"2" doc:"Number of processes"`
}

type ProcessListResponse struct {
	Body ProcessListData
}

type ProcessGroupData struct {
	Name      string        `json:"name" example:"audio_mux" doc:"Logical name"`
	PID       int           `json:"pid" example:"4242" doc:"Lead PID"`
	PIDs      []int         `json:"pids" doc:"Stage PIDs in start order"`
	Processes []ProcessData `json:"processes" doc:"Stage details"`
}

type ProcessGroupResponse struct {
	Body ProcessGroupData
}

type StartProcessData struct {
	Name     string   `json:"name" minLength:"1" example:"audio_mux" doc:"Logical name"`
	Commands []string `json:"commands" minItems:"1" example:"[\"arecord -f cd\",\"lame - out.mp3\"]" doc:"Commands chained stdout to stdin"`
}

type StartProcessRequest struct {
	Body StartProcessData
}

type StartProcessResult struct {
	Name string `json:"name" example:"audio_mux" doc:"Logical name"`
	PID  int    `json:"pid" example:"4242" doc:"Lead PID"`
	PIDs []int  `json:"pids" doc:"Stage PIDs in start order"`
}

type StartProcessResponse struct {
	Body StartProcessResult
}
