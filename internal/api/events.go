package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/ezvizbridge/internal/events"
)

func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Event Stream",
		Description: "Camera state changes, service calls and platform reloads via Server-Sent Events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"camera-state-changed": events.CameraStateChangedEvent{},
		"service-called":       events.ServiceCalledEvent{},
		"platform-loaded":      events.PlatformLoadedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubState := events.SubscribeToChannel[events.CameraStateChangedEvent](s.eventBus, eventCh)
		defer unsubState()
		unsubService := events.SubscribeToChannel[events.ServiceCalledEvent](s.eventBus, eventCh)
		defer unsubService()
		unsubLoaded := events.SubscribeToChannel[events.PlatformLoadedEvent](s.eventBus, eventCh)
		defer unsubLoaded()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
