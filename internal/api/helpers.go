package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/streamproc/internal/api/models"
	"github.com/smazurov/streamproc/internal/helpers"
)

type helperPath struct {
	Name string `path:"name" example:"audio_mux" doc:"Helper name"`
}

// registerHelperRoutes registers the declared helper endpoints.
func (s *Server) registerHelperRoutes() {
	if s.options.Helpers == nil {
		return
	}
	svc := s.options.Helpers

	huma.Register(s.api, huma.Operation{
		OperationID: "list-helpers",
		Method:      http.MethodGet,
		Path:        "/api/helpers",
		Summary:     "List Helpers",
		Description: "Get every declared helper with its runtime state",
		Tags:        []string{"helpers"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.HelperListResponse, error) {
		infos := svc.List()
		data := make([]models.HelperData, len(infos))
		for i, info := range infos {
			data[i] = helperToAPI(info)
		}
		return &models.HelperListResponse{
			Body: models.HelperListData{Helpers: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-helper",
		Method:      http.MethodGet,
		Path:        "/api/helpers/{name}",
		Summary:     "Get Helper",
		Tags:        []string{"helpers"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *helperPath) (*models.HelperResponse, error) {
		info, err := svc.Get(input.Name)
		if err != nil {
			return nil, mapHelperError(err)
		}
		return &models.HelperResponse{Body: helperToAPI(info)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-helper",
		Method:        http.MethodPost,
		Path:          "/api/helpers",
		Summary:       "Create Helper",
		Description:   "Declare a helper, persist it and start it when enabled",
		Tags:          []string{"helpers"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 409, 422, 500, 503},
		Security:      withAuth(),
	}, func(_ context.Context, input *models.CreateHelperRequest) (*models.HelperResponse, error) {
		info, err := svc.Create(input.Body.Name, helpers.Spec{
			Commands: input.Body.Commands,
			Enabled:  input.Body.IsEnabled(),
		})
		if err != nil {
			return nil, mapHelperError(err)
		}
		return &models.HelperResponse{Body: helperToAPI(info)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-helper",
		Method:      http.MethodDelete,
		Path:        "/api/helpers/{name}",
		Summary:     "Delete Helper",
		Description: "Stop a helper and remove it from the helpers file",
		Tags:        []string{"helpers"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *helperPath) (*struct{}, error) {
		if err := svc.Delete(input.Name); err != nil {
			return nil, mapHelperError(err)
		}
		return &struct{}{}, nil
	})

	actions := []struct {
		name string
		run  func(string) error
	}{
		{"start", svc.Start},
		{"stop", svc.Stop},
		{"restart", svc.Restart},
	}
	for _, action := range actions {
		huma.Register(s.api, huma.Operation{
			OperationID: action.name + "-helper",
			Method:      http.MethodPost,
			Path:        "/api/helpers/{name}/" + action.name,
			Summary:     "Helper " + action.name,
			Tags:        []string{"helpers"},
			Errors:      []int{401, 404, 422, 500, 503},
			Security:    withAuth(),
		}, func(_ context.Context, input *helperPath) (*models.HelperResponse, error) {
			if err := action.run(input.Name); err != nil {
				return nil, mapHelperError(err)
			}
			info, err := svc.Get(input.Name)
			if err != nil {
				return nil, mapHelperError(err)
			}
			return &models.HelperResponse{Body: helperToAPI(info)}, nil
		})
	}
}

func helperToAPI(info helpers.Info) models.HelperData {
	return models.HelperData{
		Name:      info.Name,
		Commands:  info.Spec.Commands,
		Enabled:   info.Spec.Enabled,
		State:     string(info.State),
		PIDs:      info.PIDs,
		StartedAt: info.StartedAt,
		LastExit:  info.LastExit,
		LastError: info.LastError,
	}
}
