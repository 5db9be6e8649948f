package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/ezvizbridge/internal/api/models"
	"github.com/smazurov/ezvizbridge/internal/camera"
	"github.com/smazurov/ezvizbridge/internal/events"
	"github.com/smazurov/ezvizbridge/internal/host"
	"github.com/smazurov/ezvizbridge/internal/logging"
	"github.com/smazurov/ezvizbridge/internal/updater"
	"github.com/smazurov/ezvizbridge/internal/version"
)

const authRealm = `Basic realm="Ezviz Bridge API"`

// CameraSource exposes the loaded camera entities.
type CameraSource interface {
	All() []*camera.Entity
	Get(id string) (*camera.Entity, bool)
	Len() int
}

// ServiceCaller routes service calls to their handlers.
type ServiceCaller interface {
	Services() []host.ServiceInfo
	Call(ctx context.Context, call host.ServiceCall) error
}

// UnitController inspects and restarts a systemd unit.
type UnitController interface {
	UnitStatus(ctx context.Context, unit string) (string, error)
	RestartUnit(ctx context.Context, unit string) error
}

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	Cameras  CameraSource
	Services ServiceCaller
	EventBus *events.Bus

	// PrometheusHandler is mounted at /metrics when set.
	PrometheusHandler http.Handler

	SystemdManager UnitController
	SystemdUnit    string

	UpdateService updater.Service
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer creates the API server and registers every route.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Ezviz Bridge API", "1.0.0")
	config.Info.Description = "Ezviz cloud cameras exposed as entities, snapshots and services"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// basicAuthMiddleware enforces HTTP basic auth on operations that declare security.
// SSE clients that cannot set headers pass base64 credentials in the auth query parameter.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	deny := func(ctx huma.Context, msg string, errs ...error) {
		ctx.SetHeader("WWW-Authenticate", authRealm)
		_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		var encoded string
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				deny(ctx, "Invalid authentication type")
				return
			}
			encoded = header[len(prefix):]
		} else {
			encoded = ctx.Query("auth")
		}
		if encoded == "" {
			deny(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			deny(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			deny(ctx, "Invalid credentials format")
			return
		}
		if user != username || pass != password {
			deny(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves HTTP on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting Ezviz Bridge API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the HTTP server immediately. Open SSE streams are dropped.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		count := 0
		if s.options.Cameras != nil {
			count = s.options.Cameras.Len()
		}
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
				Cameras: count,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerCameraRoutes()
	s.registerServiceRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
	s.registerSystemdRoutes()
	s.registerUpdateRoutes()
}

// withAuth returns the basic auth security requirement.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
