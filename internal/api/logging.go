package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/streamproc/internal/api/models"
	"github.com/smazurov/streamproc/internal/logging"
)

// registerLoggingRoutes exposes runtime control of module log levels.
func (s *Server) registerLoggingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logging",
		Summary:     "Log Levels",
		Description: "Get the effective level of every module logger",
		Tags:        []string{"logging"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.LoggingLevelsResponse, error) {
		return &models.LoggingLevelsResponse{
			Body: models.LoggingLevelsData{Modules: logging.ModuleLevels()},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logging/{module}",
		Summary:     "Set Log Level",
		Description: "Change the level of one module logger until the next config reload",
		Tags:        []string{"logging"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SetLevelRequest) (*models.LoggingLevelsResponse, error) {
		if err := logging.SetModuleLevel(input.Module, input.Body.Level); err != nil {
			return nil, huma.Error400BadRequest(err.Error(), err)
		}
		return &models.LoggingLevelsResponse{
			Body: models.LoggingLevelsData{Modules: logging.ModuleLevels()},
		}, nil
	})
}
