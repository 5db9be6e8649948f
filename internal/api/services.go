package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/ezvizbridge/internal/api/models"
	"github.com/smazurov/ezvizbridge/internal/camera"
	"github.com/smazurov/ezvizbridge/internal/host"
)

func (s *Server) registerServiceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-services",
		Method:      http.MethodGet,
		Path:        "/api/services",
		Summary:     "List Services",
		Description: "List registered services and their payload keys",
		Tags:        []string{"services"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.ServiceListResponse, error) {
		resp := &models.ServiceListResponse{}
		resp.Body.Services = []models.ServiceData{}
		for _, info := range s.options.Services.Services() {
			resp.Body.Services = append(resp.Body.Services, models.ServiceData{
				Domain:  info.Domain,
				Service: info.Service,
				Fields:  info.Fields,
			})
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "call-service",
		Method:      http.MethodPost,
		Path:        "/api/services/{domain}/{service}",
		Summary:     "Call Service",
		Description: "Invoke a registered service, e.g. camera/ezviz_ptz with {\"entity_id\": \"camera.porch\", \"direction\": \"up\"}",
		Tags:        []string{"services"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 502},
	}, func(ctx context.Context, input *models.ServiceCallInput) (*models.ServiceCallResponse, error) {
		err := s.options.Services.Call(ctx, host.ServiceCall{
			Domain:  input.Domain,
			Service: input.Service,
			Data:    input.Body,
		})
		if err != nil {
			return nil, serviceError(err)
		}
		return &models.ServiceCallResponse{
			Body: models.ServiceCallData{
				Domain:  input.Domain,
				Service: input.Service,
				Success: true,
			},
		}, nil
	})
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, host.ErrServiceNotFound):
		return huma.Error404NotFound("Service not found", err)
	case errors.Is(err, host.ErrInvalidPayload):
		return huma.Error400BadRequest("Invalid service payload", err)
	case errors.Is(err, camera.ErrEntityNotFound):
		return huma.Error404NotFound("Entity not found", err)
	default:
		return huma.Error502BadGateway("Service call failed", err)
	}
}
