package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/streamproc/internal/api/models"
	"github.com/smazurov/streamproc/internal/systemd"
)

type unitPath struct {
	Unit string `path:"unit" example:"mediamtx.service" doc:"systemd unit name"`
}

func (s *Server) registerSystemdRoutes() {
	if s.options.SystemdManager == nil {
		return
	}
	mgr := s.options.SystemdManager

	huma.Register(s.api, huma.Operation{
		OperationID: "list-units",
		Method:      http.MethodGet,
		Path:        "/api/systemd/units",
		Summary:     "Companion Units",
		Description: "Get the status of every systemd unit the API may control",
		Tags:        []string{"systemd"},
		Errors:      []int{401, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.SystemdUnitListResponse, error) {
		units := mgr.Units()
		list := models.SystemdUnitList{Units: make([]models.SystemdUnitStatus, 0, len(units))}
		for _, unit := range units {
			status, err := mgr.Status(ctx, unit)
			if err != nil {
				return nil, mapSystemdError(err)
			}
			list.Units = append(list.Units, unitToAPI(status))
		}
		return &models.SystemdUnitListResponse{Body: list}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-unit-status",
		Method:      http.MethodGet,
		Path:        "/api/systemd/units/{unit}",
		Summary:     "Unit Status",
		Description: "Get the status of a companion systemd unit",
		Tags:        []string{"systemd"},
		Errors:      []int{401, 404, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *unitPath) (*models.SystemdUnitStatusResponse, error) {
		status, err := mgr.Status(ctx, input.Unit)
		if err != nil {
			return nil, mapSystemdError(err)
		}
		return &models.SystemdUnitStatusResponse{Body: unitToAPI(status)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "act-on-unit",
		Method:      http.MethodPost,
		Path:        "/api/systemd/units/{unit}/{action}",
		Summary:     "Unit Action",
		Description: "Start, stop or restart a companion systemd unit",
		Tags:        []string{"systemd"},
		Errors:      []int{401, 404, 422, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		Unit   string `path:"unit" example:"mediamtx.service" doc:"systemd unit name"`
		Action string `path:"action" enum:"start,stop,restart" doc:"Action to run"`
	}) (*models.SystemdUnitActionResponse, error) {
		if err := mgr.Act(ctx, input.Unit, input.Action); err != nil {
			return nil, mapSystemdError(err)
		}
		return &models.SystemdUnitActionResponse{
			Body: models.SystemdUnitAction{
				Unit:    input.Unit,
				Action:  input.Action,
				Success: true,
			},
		}, nil
	})
}

func unitToAPI(status systemd.UnitStatus) models.SystemdUnitStatus {
	return models.SystemdUnitStatus{
		Unit:        status.Unit,
		ActiveState: status.ActiveState,
		SubState:    status.SubState,
	}
}
