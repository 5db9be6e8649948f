package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/ezvizbridge/internal/executor"
	"github.com/smazurov/ezvizbridge/internal/ezviz"
	"github.com/smazurov/ezvizbridge/internal/ffmpeg"
	"github.com/smazurov/ezvizbridge/internal/metrics"
)

// Brand is reported for every entity.
const Brand = "Ezviz"

// SupportStream is set in SupportedFeatures when an RTSP URL is known.
const SupportStream = 2

// Toggle feature names accepted by Entity.Switch.
const (
	FeatureAudio      = "audio"
	FeatureIR         = "ir"
	FeaturePrivacy    = "privacy"
	FeatureState      = "state"
	FeatureFollowMove = "follow_move"
)

// Device is the per-camera vendor handle.
type Device interface {
	Status(ctx context.Context) (ezviz.CameraInfo, error)
	Move(ctx context.Context, direction string, speed int) error
	SwitchDeviceAudio(ctx context.Context, enable bool) error
	SwitchDeviceIRLed(ctx context.Context, enable bool) error
	SwitchDeviceStateLed(ctx context.Context, enable bool) error
	SwitchPrivacyMode(ctx context.Context, enable bool) error
	SwitchFollowMove(ctx context.Context, enable bool) error
}

// ImageGrabber extracts one still frame from a stream URL.
type ImageGrabber interface {
	GetImage(ctx context.Context, input, format string) ([]byte, error)
}

// EntityConfig is everything needed to build an Entity.
type EntityConfig struct {
	Info ezviz.CameraInfo
	// Configured is true when override credentials exist for the serial.
	Configured bool
	Username   string
	Password   string
	RTSPStream string

	Device  Device
	Grabber ImageGrabber
	Pool    *executor.Pool
	Logger  *slog.Logger
}

// Entity wraps one camera. Attribute reads and poll writes are guarded by an
// RWMutex so a poll replaces the whole record at once.
type Entity struct {
	serial     string
	username   string
	password   string
	configured bool

	device  Device
	grabber ImageGrabber
	pool    *executor.Pool
	logger  *slog.Logger

	mu         sync.RWMutex
	entityID   string
	info       ezviz.CameraInfo
	rtspStream string
}

// NewEntity builds an entity from a discovered record.
func NewEntity(cfg EntityConfig) *Entity {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Entity{
		serial:     cfg.Info.Serial,
		username:   cfg.Username,
		password:   cfg.Password,
		configured: cfg.Configured,
		device:     cfg.Device,
		grabber:    cfg.Grabber,
		pool:       cfg.Pool,
		logger:     logger.With("serial", cfg.Info.Serial),
		info:       cfg.Info,
		rtspStream: cfg.RTSPStream,
	}
}

// Update fetches a fresh status record. On error the cached record stays.
// It blocks on the vendor call; the poller runs it on the executor.
func (e *Entity) Update(ctx context.Context) error {
	info, err := e.device.Status(ctx)
	if err != nil {
		return err
	}
	info.Serial = e.serial

	e.mu.Lock()
	e.info = info
	e.mu.Unlock()
	return nil
}

// PerformPTZ moves the camera in direction.
func (e *Entity) PerformPTZ(ctx context.Context, direction string, speed int) error {
	e.logger.Debug("PTZ", "direction", direction, "speed", speed)
	return executor.Do(ctx, e.pool, func(ctx context.Context) error {
		return e.device.Move(ctx, direction, speed)
	})
}

func (e *Entity) SwitchAudioOn(ctx context.Context) error  { return e.toggle(ctx, FeatureAudio, true) }
func (e *Entity) SwitchAudioOff(ctx context.Context) error { return e.toggle(ctx, FeatureAudio, false) }
func (e *Entity) SwitchIROn(ctx context.Context) error     { return e.toggle(ctx, FeatureIR, true) }
func (e *Entity) SwitchIROff(ctx context.Context) error    { return e.toggle(ctx, FeatureIR, false) }
func (e *Entity) SwitchPrivacyOn(ctx context.Context) error {
	return e.toggle(ctx, FeaturePrivacy, true)
}
func (e *Entity) SwitchPrivacyOff(ctx context.Context) error {
	return e.toggle(ctx, FeaturePrivacy, false)
}
func (e *Entity) SwitchStateOn(ctx context.Context) error  { return e.toggle(ctx, FeatureState, true) }
func (e *Entity) SwitchStateOff(ctx context.Context) error { return e.toggle(ctx, FeatureState, false) }
func (e *Entity) SwitchFollowMoveOn(ctx context.Context) error {
	return e.toggle(ctx, FeatureFollowMove, true)
}
func (e *Entity) SwitchFollowMoveOff(ctx context.Context) error {
	return e.toggle(ctx, FeatureFollowMove, false)
}

func (e *Entity) toggle(ctx context.Context, feature string, enable bool) error {
	_, err := e.Switch(ctx, feature, enable)
	return err
}

// Switch sets a device feature. It reports false without calling the vendor
// when feature is unknown.
func (e *Entity) Switch(ctx context.Context, feature string, enable bool) (bool, error) {
	var call func(context.Context, bool) error
	switch feature {
	case FeatureIR:
		call = e.device.SwitchDeviceIRLed
	case FeatureState:
		call = e.device.SwitchDeviceStateLed
	case FeatureAudio:
		call = e.device.SwitchDeviceAudio
	case FeaturePrivacy:
		call = e.device.SwitchPrivacyMode
	case FeatureFollowMove:
		call = e.device.SwitchFollowMove
	default:
		return false, nil
	}

	e.logger.Debug("Switching camera feature", "name", e.Name(), "switch", feature, "enable", enable)
	err := executor.Do(ctx, e.pool, func(ctx context.Context) error {
		return call(ctx, enable)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// CameraImage grabs one JPEG from the RTSP stream at the last polled address.
func (e *Entity) CameraImage(ctx context.Context) ([]byte, error) {
	stream := e.StreamSource()

	start := time.Now()
	img, err := e.grabber.GetImage(ctx, stream, ffmpeg.ImageJPEG)
	metrics.ObserveSnapshot(time.Since(start), err)
	return img, err
}

// StreamSource rebuilds the RTSP URL from the last polled address. It is
// empty when no override credentials were configured.
func (e *Entity) StreamSource() string {
	if !e.configured {
		return ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.info.LocalIP == "" {
		return e.rtspStream
	}
	e.rtspStream = RTSPURL(e.username, e.password, e.info.LocalIP, e.info.LocalRTSPPort)
	e.logger.Debug("Camera source stream", "stream", redact(e.rtspStream))
	return e.rtspStream
}

// RTSPURL formats rtsp://user:password@ip:port, using 554 for port 0.
func RTSPURL(username, password, ip string, port int) string {
	p := DefaultRTSPPort
	if port != 0 {
		p = fmt.Sprint(port)
	}
	return fmt.Sprintf("rtsp://%s:%s@%s:%s", username, password, ip, p)
}

func redact(url string) string {
	const scheme = "rtsp://"
	for i := len(scheme); i < len(url); i++ {
		if url[i] == '@' {
			return scheme + "***@" + url[i+1:]
		}
	}
	return url
}

// EntityID returns the id assigned by the registry.
func (e *Entity) EntityID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.entityID
}

func (e *Entity) setEntityID(id string) {
	e.mu.Lock()
	e.entityID = id
	e.mu.Unlock()
}

func (e *Entity) Serial() string   { return e.serial }
func (e *Entity) Brand() string    { return Brand }
func (e *Entity) ShouldPoll() bool { return true }

func (e *Entity) Name() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info.Name
}

// Available mirrors the last polled status.
func (e *Entity) Available() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info.Status
}

func (e *Entity) IsOn() bool { return e.Available() }

func (e *Entity) Model() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info.DeviceSubCategory
}

func (e *Entity) SupportedFeatures() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.rtspStream != "" {
		return SupportStream
	}
	return 0
}

// Info returns a copy of the cached record.
func (e *Entity) Info() ezviz.CameraInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info
}

// Attributes returns the diagnostic attribute map.
func (e *Entity) Attributes() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := e.info
	return map[string]any{
		"serial":                e.serial,
		"name":                  i.Name,
		"status":                i.Status,
		"device_sub_category":   i.DeviceSubCategory,
		"privacy":               i.Privacy,
		"audio":                 i.Audio,
		"ir_led":                i.IRLed,
		"state_led":             i.StateLed,
		"follow_move":           i.FollowMove,
		"alarm_notify":          i.AlarmNotify,
		"alarm_sound_mod":       i.AlarmSoundMode,
		"encrypted":             i.Encrypted,
		"local_ip":              i.LocalIP,
		"detection_sensibility": i.DetectionSensibility,
	}
}
