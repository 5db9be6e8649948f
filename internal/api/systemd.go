package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/ezvizbridge/internal/api/models"
)

func (s *Server) registerSystemdRoutes() {
	if s.options.SystemdManager == nil {
		return
	}
	unit := s.options.SystemdUnit

	huma.Register(s.api, huma.Operation{
		OperationID: "get-service-status",
		Method:      http.MethodGet,
		Path:        "/api/systemd/status",
		Summary:     "Service Status",
		Description: "Get the systemd ActiveState of the bridge unit",
		Tags:        []string{"systemd"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.SystemdServiceStatusResponse, error) {
		status, err := s.options.SystemdManager.UnitStatus(ctx, unit)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get service status", err)
		}
		return &models.SystemdServiceStatusResponse{
			Body: models.SystemdServiceStatus{Service: unit, Status: status},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-service",
		Method:      http.MethodPost,
		Path:        "/api/systemd/restart",
		Summary:     "Restart Service",
		Description: "Ask systemd to restart the bridge unit",
		Tags:        []string{"systemd"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.SystemdServiceActionResponse, error) {
		if err := s.options.SystemdManager.RestartUnit(ctx, unit); err != nil {
			return nil, huma.Error500InternalServerError("Failed to restart service", err)
		}
		return &models.SystemdServiceActionResponse{
			Body: models.SystemdServiceAction{Service: unit, Action: "restart", Success: true},
		}, nil
	})
}
