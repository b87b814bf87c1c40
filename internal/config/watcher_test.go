package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[testConfig]) *Watcher[testConfig] {
	t.Helper()
	opts = append([]WatcherOption[testConfig]{WithDebounce[testConfig](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), opts...)
	return w
}

func run(t *testing.T, w *Watcher[testConfig]) {
	t.Helper()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	// Let the watch loop settle.
	time.Sleep(50 * time.Millisecond)
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	path := writeConfig(t, "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 1)
	w := startWatcher(t, path)
	w.OnReload(func(cfg testConfig) { received <- cfg })
	run(t, w)

	if err := os.WriteFile(path, []byte("name = \"updated\"\nvalue = 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated, value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_AtomicReplace(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	received := make(chan testConfig, 1)
	w := startWatcher(t, path)
	w.OnReload(func(cfg testConfig) { received <- cfg })
	run(t, w)

	tmp := filepath.Join(filepath.Dir(path), ".config.toml.tmp")
	if err := os.WriteFile(tmp, []byte("value = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Value != 7 {
			t.Errorf("got value %d, want 7", cfg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestConfigWatcher_IgnoresSiblings(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	var loads atomic.Int32
	w := NewConfigWatcher(path, func(p string) (testConfig, error) {
		loads.Add(1)
		return loadTestConfig(p)
	}, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	run(t, w)

	sibling := filepath.Join(filepath.Dir(path), "other.toml")
	if err := os.WriteFile(sibling, []byte("value = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if got := loads.Load(); got != 0 {
		t.Errorf("sibling change triggered %d loads", got)
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	var first, second atomic.Int32
	done := make(chan struct{}, 1)
	w := startWatcher(t, path)
	unsubscribe := w.OnReload(func(testConfig) { first.Add(1) })
	w.OnReload(func(testConfig) {
		second.Add(1)
		done <- struct{}{}
	})
	unsubscribe()
	run(t, w)

	if err := os.WriteFile(path, []byte("value = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
	if first.Load() != 0 {
		t.Error("unsubscribed handler was called")
	}
	if second.Load() != 1 {
		t.Errorf("remaining handler called %d times, want 1", second.Load())
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	errs := make(chan error, 1)
	var reloads atomic.Int32
	w := startWatcher(t, path, WithErrorHandler[testConfig](func(err error) { errs <- err }))
	w.OnReload(func(testConfig) { reloads.Add(1) })
	run(t, w)

	if err := os.WriteFile(path, []byte("value = [broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errs:
		var decodeErr *toml.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("expected toml decode error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
	if reloads.Load() != 0 {
		t.Error("handlers must not run when loading fails")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := writeConfig(t, "value = 0\n")

	var loads atomic.Int32
	received := make(chan testConfig, 10)
	w := NewConfigWatcher(path, func(p string) (testConfig, error) {
		loads.Add(1)
		return loadTestConfig(p)
	}, newTestLogger(), WithDebounce[testConfig](200*time.Millisecond))
	w.OnReload(func(cfg testConfig) { received <- cfg })
	run(t, w)

	for i := 1; i <= 5; i++ {
		if err := os.WriteFile(path, []byte("value = "+string(rune('0'+i))+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case cfg := <-received:
		if cfg.Value != 5 {
			t.Errorf("got value %d, want last write 5", cfg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for debounced reload")
	}

	time.Sleep(300 * time.Millisecond)
	if got := loads.Load(); got != 1 {
		t.Errorf("burst of writes caused %d loads, want 1", got)
	}
}

func TestConfigWatcher_Stop(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	var reloads atomic.Int32
	w := startWatcher(t, path)
	w.OnReload(func(testConfig) { reloads.Add(1) })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("value = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if reloads.Load() != 0 {
		t.Error("stopped watcher must not reload")
	}
}
