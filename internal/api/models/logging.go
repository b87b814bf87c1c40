package models

type LoggingLevelsData struct {
	Modules map[string]string `json:"modules" doc:"Effective level per module logger"`
}

type LoggingLevelsResponse struct {
	Body LoggingLevelsData
}

type SetLevelRequest struct {
	Module string `path:"module" example:"procs" doc:"Module logger name"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}
