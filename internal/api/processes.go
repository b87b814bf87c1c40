package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/streamproc/internal/api/models"
	"github.com/smazurov/streamproc/internal/events"
	"github.com/smazurov/streamproc/internal/procs"
)

// registerProcessRoutes registers the raw supervisor endpoints.
func (s *Server) registerProcessRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/api/processes",
		Summary:     "List Processes",
		Description: "Get every supervised process ordered by name and stage",
		Tags:        []string{"processes"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.ProcessListResponse, error) {
		records := s.options.Processes.Snapshot()
		data := make([]models.ProcessData, len(records))
		for i, rec := range records {
			data[i] = recordToAPI(rec)
		}
		return &models.ProcessListResponse{
			Body: models.ProcessListData{Processes: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-process",
		Method:      http.MethodGet,
		Path:        "/api/processes/{name}",
		Summary:     "Get Process",
		Description: "Get the processes registered under a name",
		Tags:        []string{"processes"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *struct {
		Name string `path:"name" example:"audio_mux" doc:"Logical process name"`
	}) (*models.ProcessGroupResponse, error) {
		group, ok := s.processGroup(input.Name)
		if !ok {
			return nil, huma.Error404NotFound("process " + input.Name + " not active")
		}
		return &models.ProcessGroupResponse{Body: group}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "start-process",
		Method:        http.MethodPost,
		Path:          "/api/processes",
		Summary:       "Start Process",
		Description:   "Start a command or pipeline under a name. An active name is left running and reported as is.",
		Tags:          []string{"processes"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 422, 500, 503},
		Security:      withAuth(),
	}, func(_ context.Context, input *models.StartProcessRequest) (*models.StartProcessResponse, error) {
		pid, err := s.options.Processes.StartPipeline(input.Body.Name, input.Body.Commands...)
		if err != nil {
			return nil, mapLaunchError(err)
		}
		return &models.StartProcessResponse{
			Body: models.StartProcessResult{
				Name: input.Body.Name,
				PID:  pid,
				PIDs: s.options.Processes.Group(input.Body.Name),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-process",
		Method:      http.MethodDelete,
		Path:        "/api/processes/{name}",
		Summary:     "Stop Process",
		Description: "Send SIGTERM to every process registered under a name",
		Tags:        []string{"processes"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *struct {
		Name string `path:"name" example:"audio_mux" doc:"Logical process name"`
	}) (*struct{}, error) {
		pids := s.options.Processes.Group(input.Name)
		if len(pids) == 0 {
			return nil, huma.Error404NotFound("process " + input.Name + " not active")
		}
		s.options.Processes.Stop(input.Name)
		s.publishStop(input.Name, pids)
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-pid",
		Method:      http.MethodDelete,
		Path:        "/api/pids/{pid}",
		Summary:     "Stop PID",
		Description: "Send SIGTERM to one supervised process",
		Tags:        []string{"processes"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *struct {
		PID int `path:"pid" minimum:"1" example:"4242" doc:"Process ID"`
	}) (*struct{}, error) {
		name := s.options.Processes.LookupName(input.PID)
		if name == "" {
			return nil, huma.Error404NotFound("pid is not supervised")
		}
		s.options.Processes.StopPID(input.PID)
		s.publishStop(name, []int{input.PID})
		return &struct{}{}, nil
	})
}

func (s *Server) processGroup(name string) (models.ProcessGroupData, bool) {
	pids := s.options.Processes.Group(name)
	if len(pids) == 0 {
		return models.ProcessGroupData{}, false
	}
	group := models.ProcessGroupData{Name: name, PID: pids[0], PIDs: pids}
	for _, rec := range s.options.Processes.Snapshot() {
		if rec.Name == name {
			group.Processes = append(group.Processes, recordToAPI(rec))
		}
	}
	return group, true
}

func (s *Server) publishStop(name string, pids []int) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(events.StopRequestedEvent{
		Name:      name,
		PIDs:      pids,
		Source:    "api",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func recordToAPI(rec procs.Record) models.ProcessData {
	return models.ProcessData{
		PID:       rec.PID,
		Name:      rec.Name,
		Group:     rec.Group,
		Stage:     rec.Stage,
		Command:   rec.Command,
		StartedAt: rec.StartedAt,
	}
}
