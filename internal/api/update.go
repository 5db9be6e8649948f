package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/ezvizbridge/internal/api/models"
	"github.com/smazurov/ezvizbridge/internal/updater"
)

func (s *Server) registerUpdateRoutes() {
	svc := s.options.UpdateService
	if svc == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-update-status",
		Method:      http.MethodGet,
		Path:        "/api/update/status",
		Summary:     "Update Status",
		Description: "Current updater state, including why it is disabled",
		Tags:        []string{"update"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateStatusResponse, error) {
		st := svc.GetStatus(ctx)
		if !svc.IsEnabled() && st.Error == "" {
			st.Error = svc.DisabledReason()
		}
		return &models.UpdateStatusResponse{Body: *st}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "check-updates",
		Method:      http.MethodPost,
		Path:        "/api/update/check",
		Summary:     "Check for Updates",
		Description: "Look up the newest release without installing it",
		Tags:        []string{"update"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 502, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateCheckResponse, error) {
		info, err := svc.CheckForUpdate(ctx)
		if err != nil {
			return nil, updateError(err)
		}
		return &models.UpdateCheckResponse{
			Body: models.UpdateCheckData{
				CurrentVersion:  info.CurrentVersion,
				LatestVersion:   info.LatestVersion,
				ReleaseNotes:    info.ReleaseNotes,
				ReleaseURL:      info.ReleaseURL,
				PublishedAt:     info.PublishedAt,
				UpdateAvailable: info.UpdateAvailable,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-update",
		Method:      http.MethodPost,
		Path:        "/api/update/apply",
		Summary:     "Apply Update",
		Description: "Install the newest release and restart",
		Tags:        []string{"update"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 500, 502, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateActionResponse, error) {
		if err := svc.ApplyUpdate(ctx); err != nil {
			return nil, updateError(err)
		}
		resp := &models.UpdateActionResponse{}
		resp.Body.Message = "Update applied, restarting..."
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "rollback-update",
		Method:      http.MethodPost,
		Path:        "/api/update/rollback",
		Summary:     "Rollback Update",
		Description: "Restore the binary replaced by the last update and restart",
		Tags:        []string{"update"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateActionResponse, error) {
		if err := svc.Rollback(ctx); err != nil {
			return nil, updateError(err)
		}
		resp := &models.UpdateActionResponse{}
		resp.Body.Message = "Rollback complete, restarting..."
		return resp, nil
	})
}

func updateError(err error) error {
	var uerr *updater.Error
	if !errors.As(err, &uerr) {
		return huma.Error500InternalServerError("Update failed", err)
	}
	switch uerr.Code {
	case updater.ErrCodeDisabled:
		return huma.Error503ServiceUnavailable(uerr.Message)
	case updater.ErrCodeInvalidState, updater.ErrCodeNoUpdate:
		return huma.Error409Conflict(uerr.Message)
	case updater.ErrCodeNotFound, updater.ErrCodeNoBackup:
		return huma.Error404NotFound(uerr.Message)
	case updater.ErrCodeCheckFailed:
		return huma.Error502BadGateway(uerr.Message, uerr)
	default:
		return huma.Error500InternalServerError(uerr.Message, uerr)
	}
}
