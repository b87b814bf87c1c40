package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// module is a cached logger whose level can change after creation.
type module struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var (
	mutex       sync.RWMutex
	modules     = make(map[string]*module)
	current     Config
	initialized bool
	globalLevel = &slog.LevelVar{}

	// stdout is the console sink; replaced in tests.
	stdout io.Writer = os.Stdout
)

// Initialize applies config to the default logger and to every module logger,
// including loggers handed out before the first call. It may be called again
// to reconfigure levels at runtime.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	current = config
	initialized = true

	globalLevel.Set(levelOr(config.Level, slog.LevelInfo))

	// Loggers already handed out keep their handler and follow level
	// changes through the shared LevelVar.
	for name, m := range modules {
		m.level.Set(moduleLevel(config, name))
		m.logger = newModuleLogger(config.Format, name, m.level)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevel)))
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(name string) *slog.Logger {
	mutex.RLock()
	if m, exists := modules[name]; exists {
		mutex.RUnlock()
		return m.logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	if m, exists := modules[name]; exists {
		return m.logger
	}

	level := &slog.LevelVar{}
	format := "text"
	if initialized {
		level.Set(moduleLevel(current, name))
		format = current.Format
	}

	m := &module{level: level, logger: newModuleLogger(format, name, level)}
	modules[name] = m
	return m.logger
}

// SetModuleLevel changes the level of one module logger at runtime.
func SetModuleLevel(name, level string) error {
	parsed, ok := ParseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	GetLogger(name)

	mutex.Lock()
	defer mutex.Unlock()
	modules[name].level.Set(parsed)
	if current.Modules == nil {
		current.Modules = make(map[string]string)
	}
	current.Modules[name] = level
	return nil
}

// ModuleLevels reports the effective level of every module logger created so far.
func ModuleLevels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()

	levels := make(map[string]string, len(modules))
	for name, m := range modules {
		levels[name] = strings.ToLower(m.level.Level().String())
	}
	return levels
}

func newModuleLogger(format, name string, level slog.Leveler) *slog.Logger {
	return slog.New(createHandler(format, level)).With("module", name)
}

// moduleLevel resolves the level for a module: its override, else the global
// level, else info.
func moduleLevel(config Config, name string) slog.Level {
	level := levelOr(config.Level, slog.LevelInfo)
	if override, exists := config.Modules[name]; exists {
		level = levelOr(override, level)
	}
	return level
}

// createHandler creates a slog handler with the specified format and level.
// Logs to stdout and to the journal when each is available.
// Level can be slog.Level or *slog.LevelVar for dynamic level changes.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}

	switch len(handlers) {
	case 0:
		return stdoutHandler
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	f, ok := stdout.(*os.File)
	if !ok {
		return stdout != nil
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

func levelOr(level string, fallback slog.Level) slog.Level {
	if parsed, ok := ParseLevel(level); ok {
		return parsed
	}
	return fallback
}
