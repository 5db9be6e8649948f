package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/ezvizbridge/cmd"
	"github.com/smazurov/ezvizbridge/internal/api"
	"github.com/smazurov/ezvizbridge/internal/camera"
	"github.com/smazurov/ezvizbridge/internal/config"
	"github.com/smazurov/ezvizbridge/internal/events"
	"github.com/smazurov/ezvizbridge/internal/executor"
	"github.com/smazurov/ezvizbridge/internal/ezviz"
	"github.com/smazurov/ezvizbridge/internal/ffmpeg"
	"github.com/smazurov/ezvizbridge/internal/host"
	"github.com/smazurov/ezvizbridge/internal/logging"
	"github.com/smazurov/ezvizbridge/internal/metrics"
	"github.com/smazurov/ezvizbridge/internal/systemd"
	"github.com/smazurov/ezvizbridge/internal/updater"
	"github.com/smazurov/ezvizbridge/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8095" toml:"server.port" env:"SERVER_PORT"`

	// Platform settings
	ScanInterval  string `help:"Camera poll interval" default:"30s" toml:"platform.scan_interval" env:"PLATFORM_SCAN_INTERVAL"`
	Workers       int    `help:"Workers for blocking vendor calls" default:"4" toml:"platform.workers" env:"PLATFORM_WORKERS"`
	VendorTimeout string `help:"HTTP timeout for Ezviz cloud calls" default:"15s" toml:"platform.vendor_timeout" env:"PLATFORM_VENDOR_TIMEOUT"`

	// FFmpeg settings
	FfmpegBinary  string `help:"ffmpeg executable used for snapshots" default:"ffmpeg" toml:"ffmpeg.binary" env:"FFMPEG_BINARY"`
	FfmpegTimeout string `help:"Timeout for one snapshot grab" default:"10s" toml:"ffmpeg.timeout" env:"FFMPEG_TIMEOUT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	MetricsEnabled bool   `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`
	ConfigWatch    bool   `help:"Reload the [ezviz] section when the config file changes" default:"true" toml:"config.watch" env:"CONFIG_WATCH"`
	SystemdUnit    string `help:"systemd unit exposed by the API, empty to disable" default:"" toml:"systemd.unit" env:"SYSTEMD_UNIT"`

	// Update settings
	UpdateEnabled    bool   `help:"Expose self-update routes" default:"true" toml:"update.enabled" env:"UPDATE_ENABLED"`
	UpdateRepository string `help:"GitHub repository publishing releases" default:"smazurov/ezvizbridge" toml:"update.repository" env:"UPDATE_REPOSITORY"`
	UpdatePrerelease bool   `help:"Consider prereleases" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera string `help:"Camera platform logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingEzviz  string `help:"Ezviz client logging level" default:"info" toml:"logging.ezviz" env:"LOGGING_EZVIZ"`
	LoggingHost   string `help:"Router and poller logging level" default:"info" toml:"logging.host" env:"LOGGING_HOST"`
	LoggingAPI    string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// platform owns one loaded instance of the camera platform and swaps it on reload.
type platform struct {
	mu       sync.Mutex
	opts     *Options
	deps     camera.Deps
	eventBus *events.Bus
	logger   *slog.Logger
}

func (p *platform) load(ctx context.Context, cfg config.Ezviz) {
	p.mu.Lock()
	defer p.mu.Unlock()

	client := ezviz.New(ezviz.Config{
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIDomain: cfg.APIDomain,
		Timeout:   parseDuration(p.opts.VendorTimeout, 15*time.Second),
	}, logging.GetLogger("ezviz"))

	deps := p.deps
	deps.Client = client
	deps.NewDevice = func(serial string) camera.Device { return ezviz.NewCamera(client, serial) }

	entities := camera.Setup(ctx, cfg, deps)
	ev := events.PlatformLoadedEvent{
		Cameras:   len(entities),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if len(entities) == 0 {
		ev.Error = "no cameras loaded, see logs"
	}
	p.eventBus.Publish(ev)
}

func (p *platform) reload(ctx context.Context, cfg config.Ezviz) {
	p.logger.Info("Reloading Ezviz platform")
	p.mu.Lock()
	camera.Unload(p.deps.Services, p.deps.Registry)
	p.mu.Unlock()
	p.load(ctx, cfg)
}

// parseDuration falls back to def for empty or malformed values.
func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"camera": opts.LoggingCamera,
				"ezviz":  opts.LoggingEzviz,
				"host":   opts.LoggingHost,
				"api":    opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		pool := executor.NewPool(opts.Workers, logging.GetLogger("executor"))
		hostLogger := logging.GetLogger("host")
		router := host.NewRouter(eventBus, hostLogger)
		registry := camera.NewRegistry()
		grabber := ffmpeg.NewImageFrame(opts.FfmpegBinary,
			ffmpeg.WithTimeout(parseDuration(opts.FfmpegTimeout, 10*time.Second)),
			ffmpeg.WithLogger(logging.GetLogger("ffmpeg")))
		poller := host.NewPoller(registry.Pollables, pool, eventBus, parseDuration(opts.ScanInterval, host.DefaultScanInterval), hostLogger)
		notifier := systemd.NewNotifier(logger)

		plat := &platform{
			opts:     opts,
			eventBus: eventBus,
			logger:   logger,
			deps: camera.Deps{
				Grabber:  grabber,
				Pool:     pool,
				Services: router,
				Registry: registry,
				Logger:   logging.GetLogger("camera"),
			},
		}

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Cameras:      registry,
			Services:     router,
			EventBus:     eventBus,
			SystemdUnit:  opts.SystemdUnit,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = metrics.Handler()
		}

		ctx, cancel := context.WithCancel(context.Background())

		var unitManager *systemd.Manager
		if opts.SystemdUnit != "" {
			m, err := systemd.NewManager(ctx)
			if err != nil {
				logger.Warn("systemd unavailable, unit routes disabled", "error", err)
			} else {
				unitManager = m
				apiOpts.SystemdManager = m
			}
		}
		if opts.UpdateEnabled {
			updateOpts := updater.Options{
				Repository: opts.UpdateRepository,
				Prerelease: opts.UpdatePrerelease,
			}
			if unitManager != nil {
				updateOpts.Restart = func() {
					if err := unitManager.RestartUnit(context.Background(), opts.SystemdUnit); err != nil {
						logger.Error("Restart after update failed", "error", err)
					}
				}
			}
			svc, err := updater.NewService(updateOpts, logging.GetLogger("updater"))
			if err != nil {
				logger.Warn("Update service unavailable", "error", err)
			} else {
				apiOpts.UpdateService = svc
			}
		}
		server := api.NewServer(apiOpts)

		var watcher *config.Watcher[config.Ezviz]
		if opts.ConfigWatch {
			watcher = config.NewConfigWatcher(opts.Config, config.LoadPlatform, logging.GetLogger("config"),
				config.WithErrorHandler[config.Ezviz](func(err error) {
					notifier.Status("config reload rejected: " + err.Error())
				}))
			watcher.OnReload(func(cfg config.Ezviz) {
				notifier.Reloading()
				plat.reload(ctx, cfg)
				notifier.Ready()
			})
		}

		hooks.OnStart(func() {
			pool.Start()

			cfg, err := config.LoadPlatform(opts.Config)
			var verr *config.ValidationError
			switch {
			case errors.As(err, &verr):
				logger.Error("Invalid Ezviz configuration, platform not loaded", "problems", verr.Problems)
			case err != nil:
				logger.Error("Failed to load Ezviz configuration, platform not loaded", "error", err)
			default:
				plat.load(ctx, cfg)
			}
			poller.Start(ctx)

			if watcher != nil {
				if err := watcher.Start(); err != nil {
					logger.Warn("Config watcher not started", "error", err)
				}
			}

			go notifier.RunWatchdog(ctx)
			notifier.Status("serving " + opts.Port)
			notifier.Ready()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			if watcher != nil {
				_ = watcher.Stop()
			}
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			cancel()
			poller.Stop()
			pool.Stop()
			if unitManager != nil {
				unitManager.Close()
			}
		})
	})

	cli.Root().Use = "ezvizbridge"
	cli.Root().Short = "Ezviz cloud cameras as entities, snapshots and services over HTTP"
	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateCamerasCmd())
	cli.Root().AddCommand(cmd.CreateSnapshotCmd())
	cli.Root().AddCommand(cmd.CreateUpdateCmd())

	cli.Run()
}
