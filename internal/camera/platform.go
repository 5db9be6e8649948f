// Package camera adapts Ezviz cloud cameras into host entities and registers
// the PTZ and feature toggle services that drive them.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/smazurov/ezvizbridge/internal/config"
	"github.com/smazurov/ezvizbridge/internal/executor"
	"github.com/smazurov/ezvizbridge/internal/ezviz"
	"github.com/smazurov/ezvizbridge/internal/host"
	"github.com/smazurov/ezvizbridge/internal/metrics"
)

// ServiceDomain is the domain services are registered under.
const ServiceDomain = "camera"

// DefaultRTSPPort is used when the cloud reports port 0.
const DefaultRTSPPort = "554"

// PTZ service.
const (
	ServicePTZ     = "ezviz_ptz"
	AttrDirection  = "direction"
	AttrSpeed      = "speed"
	DefaultSpeed   = 5
	DirectionUp    = "up"
	DirectionDown  = "down"
	DirectionLeft  = "left"
	DirectionRight = "right"
)

// ErrEntityNotFound is returned when a toggle targets an unknown entity.
var ErrEntityNotFound = errors.New("entity not found")

type toggleService struct {
	name    string
	feature string
	enable  bool
}

// No ir toggle service is registered. Entity.SwitchIROn/Off exist but
// are not exposed.
var toggleServices = []toggleService{
	{"ezviz_switch_audio_on", FeatureAudio, true},
	{"ezviz_switch_audio_off", FeatureAudio, false},
	{"ezviz_switch_privacy_on", FeaturePrivacy, true},
	{"ezviz_switch_privacy_off", FeaturePrivacy, false},
	{"ezviz_switch_state_on", FeatureState, true},
	{"ezviz_switch_state_off", FeatureState, false},
	{"ezviz_switch_follow_move_on", FeatureFollowMove, true},
	{"ezviz_switch_follow_move_off", FeatureFollowMove, false},
}

var ptzSchema = host.Schema{Fields: []host.Field{
	{Key: host.AttrEntityID, Validate: host.EntityIDs()},
	{Key: AttrDirection, Required: true, Validate: host.OneOf(DirectionUp, DirectionDown, DirectionLeft, DirectionRight)},
	{Key: AttrSpeed, Default: DefaultSpeed, Validate: host.PositiveInt()},
}}

var cameraServiceSchema = host.Schema{Fields: []host.Field{
	{Key: host.AttrEntityID, Required: true, Validate: host.EntityIDs()},
}}

// Client is the account-level vendor API used during setup.
type Client interface {
	Login(ctx context.Context) error
	LoadCameras(ctx context.Context) ([]ezviz.CameraInfo, error)
}

// ServiceRegistry is where services get registered.
type ServiceRegistry interface {
	RegisterService(domain, service string, schema host.Schema, handler host.Handler)
	RemoveService(domain, service string)
}

// Deps are the collaborators Setup wires together.
type Deps struct {
	Client    Client
	NewDevice func(serial string) Device
	Grabber   ImageGrabber
	Pool      *executor.Pool
	Services  ServiceRegistry
	Registry  *Registry
	// AddEntities is called once with the new entities, if set.
	AddEntities func([]*Entity)
	Logger      *slog.Logger
}

// ServiceNames lists every service Setup registers.
func ServiceNames() []string {
	names := []string{ServicePTZ}
	for _, t := range toggleServices {
		names = append(names, t.name)
	}
	return names
}

// Setup registers the services, logs in, discovers cameras and adds one
// entity per camera to the registry. Login or discovery failures are logged
// and leave the platform with no entities.
func Setup(ctx context.Context, cfg config.Ezviz, deps Deps) []*Entity {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registerServices(deps.Services, deps.Registry, logger)

	if err := deps.Client.Login(ctx); err != nil {
		logger.Error("Ezviz login failed", "error", err)
		return nil
	}
	cameras, err := deps.Client.LoadCameras(ctx)
	if err != nil {
		logger.Error("Ezviz camera discovery failed", "error", err)
		return nil
	}

	entities := make([]*Entity, 0, len(cameras))
	for _, cam := range cameras {
		entities = append(entities, buildEntity(cam, cfg, deps, logger))
	}

	deps.Registry.Add(entities...)
	if deps.AddEntities != nil {
		deps.AddEntities(entities)
	}
	logger.Info("Ezviz platform loaded", "cameras", len(entities))
	return entities
}

func buildEntity(cam ezviz.CameraInfo, cfg config.Ezviz, deps Deps, logger *slog.Logger) *Entity {
	ec := EntityConfig{
		Info:     cam,
		Username: config.DefaultCameraUsername,
		Device:   deps.NewDevice(cam.Serial),
		Grabber:  deps.Grabber,
		Pool:     deps.Pool,
		Logger:   logger,
	}

	if override, ok := cfg.Override(cam.Serial); ok {
		ec.Configured = true
		ec.Username = override.Username
		if ec.Username == "" {
			ec.Username = config.DefaultCameraUsername
		}
		ec.Password = override.Password
		ec.RTSPStream = RTSPURL(ec.Username, ec.Password, cam.LocalIP, cam.LocalRTSPPort)
	} else {
		logger.Info("Found a camera that is not configured, add it under [ezviz.cameras] to get its stream",
			"serial", cam.Serial, "configured", configuredSerials(cfg))
	}
	return NewEntity(ec)
}

func configuredSerials(cfg config.Ezviz) []string {
	out := make([]string, 0, len(cfg.Cameras))
	for serial := range cfg.Cameras {
		out = append(out, serial)
	}
	return out
}

func registerServices(services ServiceRegistry, registry *Registry, logger *slog.Logger) {
	services.RegisterService(ServiceDomain, ServicePTZ, ptzSchema, ptzHandler(registry))
	for _, t := range toggleServices {
		services.RegisterService(ServiceDomain, t.name, cameraServiceSchema, toggleHandler(registry, t, logger))
	}
}

func ptzHandler(registry *Registry) host.Handler {
	return func(ctx context.Context, call host.ServiceCall) error {
		direction, _ := call.Data[AttrDirection].(string)
		speed, ok := call.Data[AttrSpeed].(int)
		if !ok {
			speed = DefaultSpeed
		}

		for _, e := range registry.Resolve(host.IDs(call.Data)) {
			if err := e.PerformPTZ(ctx, direction, speed); err != nil {
				return fmt.Errorf("ptz %s: %w", e.EntityID(), err)
			}
		}
		return nil
	}
}

// toggleHandler honours only the first target id.
func toggleHandler(registry *Registry, t toggleService, logger *slog.Logger) host.Handler {
	return func(ctx context.Context, call host.ServiceCall) error {
		ids := host.IDs(call.Data)
		if len(ids) == 0 {
			return fmt.Errorf("%w: %s needs one entity_id", host.ErrInvalidPayload, t.name)
		}
		if len(ids) > 1 {
			logger.Debug("Toggle called with several targets, using the first", "service", t.name, "entity_ids", ids)
		}

		e, ok := registry.Get(ids[0])
		if !ok {
			return fmt.Errorf("%w: %s", ErrEntityNotFound, ids[0])
		}
		_, err := e.Switch(ctx, t.feature, t.enable)
		if err != nil {
			return fmt.Errorf("%s_%s: %w", t.name, e.EntityID(), err)
		}
		return nil
	}
}

// Unload removes the services and clears the registry.
func Unload(services ServiceRegistry, registry *Registry) {
	for _, name := range ServiceNames() {
		services.RemoveService(ServiceDomain, name)
	}
	for _, e := range registry.Clear() {
		metrics.DeleteCamera(e.EntityID())
	}
}
