package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// resetState clears cached loggers and routes console output to w.
func resetState(t *testing.T, w io.Writer) {
	t.Helper()
	mutex.Lock()
	modules = make(map[string]*module)
	current = Config{}
	initialized = false
	prev := stdout
	stdout = w
	mutex.Unlock()

	t.Cleanup(func() {
		mutex.Lock()
		stdout = prev
		mutex.Unlock()
	})
}

func TestModuleLevelOverride(t *testing.T) {
	resetState(t, io.Discard)

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"procs": "debug",
			"api":   "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"procs", true, true, true},
		{"api", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := handler.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, got, tt.wantDebug)
			}
			if got := handler.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, got, tt.wantInfo)
			}
			if got := handler.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, got, tt.wantWarn)
			}
		})
	}
}

func TestModuleLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	resetState(t, &buf)

	Initialize(Config{Level: "debug", Format: "text"})
	GetLogger("procs").Debug("Process reaped", "pid", 42)

	output := buf.String()
	if !strings.Contains(output, "level=DEBUG") || !strings.Contains(output, "Process reaped") {
		t.Errorf("debug record not written. Output: %s", output)
	}
	if !strings.Contains(output, "module=procs") || !strings.Contains(output, "pid=42") {
		t.Errorf("attributes missing. Output: %s", output)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	resetState(t, &buf)

	Initialize(Config{Level: "info", Format: "json"})
	GetLogger("helpers").Info("Helper started", "name", "cam")

	output := buf.String()
	if !strings.Contains(output, `"msg":"Helper started"`) || !strings.Contains(output, `"module":"helpers"`) {
		t.Errorf("expected JSON record. Output: %s", output)
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState(t, io.Discard)

	before := GetLogger("procs")
	handler := before.Handler()
	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should not have debug enabled")
	}

	Initialize(Config{
		Level:   "info",
		Modules: map[string]string{"procs": "debug"},
	})

	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger handed out before Initialize should follow the configured level")
	}
}

func TestReinitializeChangesLevel(t *testing.T) {
	resetState(t, io.Discard)

	Initialize(Config{Level: "debug"})
	handler := GetLogger("api").Handler()
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug enabled")
	}

	Initialize(Config{Level: "error"})
	if handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected warn disabled after reinitializing at error level")
	}
}

func TestSetModuleLevel(t *testing.T) {
	resetState(t, io.Discard)
	Initialize(Config{Level: "info"})

	handler := GetLogger("procs").Handler()
	if err := SetModuleLevel("procs", "debug"); err != nil {
		t.Fatalf("SetModuleLevel failed: %v", err)
	}
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug enabled after SetModuleLevel")
	}
	if got := ModuleLevels()["procs"]; got != "debug" {
		t.Errorf("ModuleLevels()[procs] = %q, want debug", got)
	}

	if err := SetModuleLevel("procs", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(debugHandler, infoHandler)).With("module", "test")
	logger.Debug("debug only message")

	if count := strings.Count(buf.String(), "debug only message"); count != 1 {
		t.Errorf("Expected 1 debug message, got %d. Output: %s", count, buf.String())
	}

	logger.WithGroup("proc").Info("both", "pid", 7)
	if count := strings.Count(buf.String(), "proc.pid=7"); count != 2 {
		t.Errorf("Expected grouped attribute from both handlers, got %d. Output: %s", count, buf.String())
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"invalid", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestJournalFields(t *testing.T) {
	r := slog.NewRecord(time.Now(), slog.LevelWarn, "Process reaped", 0)
	r.AddAttrs(
		slog.Int("pid", 12),
		slog.Bool("signaled", true),
		slog.Group("status", slog.Int("code", 3)),
	)

	fields := journalFields(r, []slog.Attr{slog.String("module", "procs")}, nil)

	want := map[string]string{
		"SYSLOG_IDENTIFIER": "streamproc",
		"MODULE":            "procs",
		"PID":               "12",
		"SIGNALED":          "true",
		"STATUS_CODE":       "3",
	}
	for key, value := range want {
		if fields[key] != value {
			t.Errorf("fields[%s] = %q, want %q", key, fields[key], value)
		}
	}
}

func TestJournalHandlerLevel(t *testing.T) {
	level := &slog.LevelVar{}
	level.Set(slog.LevelWarn)
	h := NewJournalHandler(level)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	level.Set(slog.LevelDebug)
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("handler should follow LevelVar changes")
	}

	if got := mapLevelToPriority(slog.LevelError); got != journal.PriErr {
		t.Errorf("mapLevelToPriority(error) = %v, want %v", got, journal.PriErr)
	}
}
