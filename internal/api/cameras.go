package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/ezvizbridge/internal/api/models"
	"github.com/smazurov/ezvizbridge/internal/camera"
	"github.com/smazurov/ezvizbridge/internal/ffmpeg"
	"github.com/smazurov/ezvizbridge/internal/metrics"
)

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "List every loaded camera entity with its last polled state",
		Tags:        []string{"cameras"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.CameraListResponse, error) {
		entities := s.options.Cameras.All()
		cameras := make([]models.CameraData, 0, len(entities))
		for _, e := range entities {
			cameras = append(cameras, cameraData(e))
		}
		return &models.CameraListResponse{
			Body: models.CameraListData{Cameras: cameras, Count: len(cameras)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{entity_id}",
		Summary:     "Get Camera",
		Description: "Get one camera entity",
		Tags:        []string{"cameras"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *models.CameraPathInput) (*models.CameraResponse, error) {
		e, err := s.lookupCamera(input.EntityID)
		if err != nil {
			return nil, err
		}
		return &models.CameraResponse{Body: cameraData(e)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-stream",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{entity_id}/stream",
		Summary:     "Stream Source",
		Description: "Get the RTSP URL of a camera. Only cameras with configured credentials have one.",
		Tags:        []string{"cameras"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *models.CameraPathInput) (*models.StreamResponse, error) {
		e, err := s.lookupCamera(input.EntityID)
		if err != nil {
			return nil, err
		}
		url := e.StreamSource()
		if url == "" {
			return nil, huma.Error404NotFound("Camera has no stream configured")
		}
		return &models.StreamResponse{
			Body: models.StreamData{EntityID: e.EntityID(), URL: url},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{entity_id}/snapshot",
		Summary:     "Snapshot",
		Description: "Grab one JPEG frame from the camera's RTSP stream",
		Tags:        []string{"cameras"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 502, 504},
	}, func(ctx context.Context, input *models.CameraPathInput) (*models.SnapshotResponse, error) {
		e, err := s.lookupCamera(input.EntityID)
		if err != nil {
			return nil, err
		}
		image, err := e.CameraImage(ctx)
		if err != nil {
			return nil, snapshotError(err)
		}
		return &models.SnapshotResponse{
			ContentType:  "image/jpeg",
			CacheControl: "no-store",
			Body:         image,
		}, nil
	})
}

func (s *Server) lookupCamera(id string) (*camera.Entity, error) {
	e, ok := s.options.Cameras.Get(id)
	if !ok {
		return nil, huma.Error404NotFound("Camera not found: " + id)
	}
	return e, nil
}

func snapshotError(err error) error {
	switch {
	case errors.Is(err, ffmpeg.ErrNoInput):
		return huma.Error404NotFound("Camera has no stream configured")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return huma.Error504GatewayTimeout("Snapshot timed out", err)
	default:
		return huma.Error502BadGateway("Failed to grab snapshot", err)
	}
}

func cameraData(e *camera.Entity) models.CameraData {
	return models.CameraData{
		EntityID:          e.EntityID(),
		Serial:            e.Serial(),
		Name:              e.Name(),
		Brand:             e.Brand(),
		Model:             e.Model(),
		Available:         e.Available(),
		SupportedFeatures: e.SupportedFeatures(),
		Attributes:        e.Attributes(),
		Poll:              metrics.GetPollStats(e.EntityID()),
	}
}
