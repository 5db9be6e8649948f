package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Defaults applied to the platform section.
const (
	DefaultAPIDomain      = "apiieu"
	DefaultCameraUsername = "admin"
)

// ErrPlatformMissing is returned when the config file has no [ezviz] table.
var ErrPlatformMissing = errors.New("ezviz platform section missing")

// CameraOverride holds per-serial credentials used to build the RTSP URL.
type CameraOverride struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Serial   string `toml:"serial"`
}

// Ezviz is the typed [ezviz] section of the config file.
type Ezviz struct {
	Username  string                    `toml:"username"`
	Password  string                    `toml:"password"`
	APIDomain string                    `toml:"api_domain"`
	Cameras   map[string]CameraOverride `toml:"cameras"`
}

type platformFile struct {
	Ezviz *Ezviz `toml:"ezviz"`
}

// ValidationError lists every problem found in the platform section.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid ezviz config: " + strings.Join(e.Problems, "; ")
}

// LoadPlatform reads the [ezviz] section from path. Account credentials may be
// supplied through EZVIZBRIDGE_EZVIZ_USERNAME and EZVIZBRIDGE_EZVIZ_PASSWORD.
func LoadPlatform(path string) (Ezviz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Ezviz{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParsePlatform(data)
}

// ParsePlatform decodes, defaults and validates a platform section.
func ParsePlatform(data []byte) (Ezviz, error) {
	var file platformFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return Ezviz{}, fmt.Errorf("parse config: %w", err)
	}
	if file.Ezviz == nil {
		return Ezviz{}, ErrPlatformMissing
	}

	cfg := *file.Ezviz
	if v := os.Getenv(EnvPrefix + "EZVIZ_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(EnvPrefix + "EZVIZ_PASSWORD"); v != "" {
		cfg.Password = v
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Ezviz{}, err
	}
	return cfg, nil
}

func (e *Ezviz) applyDefaults() {
	if e.APIDomain == "" {
		e.APIDomain = DefaultAPIDomain
	}
	for key, cam := range e.Cameras {
		if cam.Username == "" {
			cam.Username = DefaultCameraUsername
		}
		if cam.Serial == "" {
			cam.Serial = key
		}
		e.Cameras[key] = cam
	}
}

// Validate checks required fields and override consistency.
func (e Ezviz) Validate() error {
	var problems []string
	if e.Username == "" {
		problems = append(problems, "username is required")
	}
	if e.Password == "" {
		problems = append(problems, "password is required")
	}
	if strings.ContainsAny(e.APIDomain, "/: ") {
		problems = append(problems, fmt.Sprintf("api_domain %q must be a bare host prefix", e.APIDomain))
	}

	keys := make([]string, 0, len(e.Cameras))
	for key := range e.Cameras {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cam := e.Cameras[key]
		if cam.Serial != "" && cam.Serial != key {
			problems = append(problems, fmt.Sprintf("cameras.%s: serial %q does not match key", key, cam.Serial))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Override returns the credentials configured for serial, if any.
func (e Ezviz) Override(serial string) (CameraOverride, bool) {
	cam, ok := e.Cameras[serial]
	return cam, ok
}
