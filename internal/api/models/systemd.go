package models

// SystemdUnitStatus contains the status information for a systemd unit.
type SystemdUnitStatus struct {
	Unit        string `json:"unit" example:"mediamtx.service" doc:"Unit name"`
	ActiveState string `json:"active_state" example:"active" doc:"systemd ActiveState (active, inactive, failed, etc.)"`
	SubState    string `json:"sub_state" example:"running" doc:"systemd SubState"`
}

// SystemdUnitStatusResponse wraps SystemdUnitStatus for API responses.
type SystemdUnitStatusResponse struct {
	Body SystemdUnitStatus
}

// SystemdUnitList lists the units the API may control.
type SystemdUnitList struct {
	Units []SystemdUnitStatus `json:"units" doc:"Allowed units with their state"`
}

// SystemdUnitListResponse wraps SystemdUnitList for API responses.
type SystemdUnitListResponse struct {
	Body SystemdUnitList
}

// SystemdUnitAction contains the result of a systemd unit action.
type SystemdUnitAction struct {
	Unit    string `json:"unit" example:"mediamtx.service" doc:"Unit name"`
	Action  string `json:"action" example:"restart" doc:"Action performed (start, stop, restart)"`
	Success bool   `json:"success" example:"true" doc:"Whether the action succeeded"`
}

// SystemdUnitActionResponse wraps SystemdUnitAction for API responses.
type SystemdUnitActionResponse struct {
	Body SystemdUnitAction
}
