package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// LogCallback receives every entry written to the ring buffer.
type LogCallback func(entry LogEntry)

// Config is the logging section of the service configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mutex           sync.RWMutex
	globalConfig    Config
	isInitialized   bool
	globalLevelVar  = &slog.LevelVar{}
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	logBuffer       *RingBuffer
	logCallback     LogCallback
)

// Initialize configures levels and outputs. It may be called again, for
// example after a config reload; existing module loggers pick up the new
// levels and handlers.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	if logBuffer == nil {
		logBuffer = NewRingBuffer(defaultBufferSize)
	}

	globalLevelVar.Set(parseLevel(config.Level, slog.LevelInfo))

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module))
		moduleLoggers[module] = slog.New(createHandler(config.Format, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// GetLogger returns the logger for a module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	logger, ok := moduleLoggers[module]
	mutex.RUnlock()
	if ok {
		return logger
	}

	mutex.Lock()
	defer mutex.Unlock()

	if logger, ok := moduleLoggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	format := "text"
	if isInitialized {
		levelVar.Set(moduleLevel(module))
		format = globalConfig.Format
	}

	logger = slog.New(createHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// SetModuleLevel changes a module's level at runtime.
func SetModuleLevel(module, level string) {
	GetLogger(module)

	mutex.Lock()
	defer mutex.Unlock()
	if globalConfig.Modules == nil {
		globalConfig.Modules = make(map[string]string)
	}
	globalConfig.Modules[module] = level
	moduleLevelVars[module].Set(moduleLevel(module))
}

// GetBuffer returns the log ring buffer, nil before Initialize.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback registers a callback invoked for every buffered entry.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// moduleLevel resolves a module's level (must hold lock).
func moduleLevel(module string) slog.Level {
	level := parseLevel(globalConfig.Level, slog.LevelInfo)
	if s, ok := globalConfig.Modules[module]; ok {
		level = parseLevel(s, level)
	}
	return level
}

// createHandler builds the output handler: stdout when attached, journal when
// reachable, ring buffer always.
func createHandler(format string, level slog.Leveler) slog.Handler {
	var stdout slog.Handler
	if isStdoutAvailable() {
		opts := &slog.HandlerOptions{Level: level}
		if format == "json" {
			stdout = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			stdout = slog.NewTextHandler(os.Stdout, opts)
		}
	}
	return newOutputHandler(level, stdout, journalAvailable())
}

// isStdoutAvailable reports whether stdout is a terminal, pipe, socket or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func parseLevel(level string, fallback slog.Level) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
