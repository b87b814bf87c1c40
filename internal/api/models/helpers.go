package models

import "time"

type HelperData struct {
	Name      string    `json:"name" example:"audio_mux" doc:"Helper name"`
	Commands  []string  `json:"commands" doc:"Commands chained stdout to stdin"`
	Enabled   bool      `json:"enabled" doc:"Started automatically"`
	State     string    `json:"state" example:"running" enum:"idle,running,stopping,error" doc:"Runtime state"`
	PIDs      []int     `json:"pids" doc:"Live PIDs"`
	StartedAt time.Time `json:"started_at,omitzero" doc:"When the current run started"`
	LastExit  string    `json:"last_exit,omitempty" example:"exited with code 1" doc:"Most recent exit"`
	LastError string    `json:"last_error,omitempty" doc:"Most recent launch failure"`
}

type HelperListData struct {
	Helpers []HelperData `json:"helpers" doc:"Declared helpers sorted by name"`
	Count   int          `json:"count" example:"2" doc:"Number of helpers"`
}

type HelperListResponse struct {
	Body HelperListData
}

type HelperResponse struct {
	Body HelperData
}

type CreateHelperData struct {
	Name     string   `json:"name" minLength:"1" example:"audio_mux" doc:"Helper name: letters, digits, '_', '.', '-'"`
	Commands []string `json:"commands" minItems:"1" doc:"Commands chained stdout to stdin"`
	Enabled  *bool    `json:"enabled,omitempty" doc:"Start now and on every launch (default true)"`
}

// IsEnabled applies the default for an omitted enabled field.
func (d CreateHelperData) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

type CreateHelperRequest struct {
	Body CreateHelperData
}
