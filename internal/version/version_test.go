package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if !strings.Contains(info.Platform, runtime.GOOS) {
		t.Errorf("Platform = %q, want it to name %s", info.Platform, runtime.GOOS)
	}
}

func TestString(t *testing.T) {
	prevVersion, prevCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = prevVersion, prevCommit })

	Version, GitCommit = "1.2.3", "unknown"
	if got := String(); got != "streamproc 1.2.3" {
		t.Errorf("String() = %q", got)
	}

	GitCommit = "abc123"
	if got := String(); got != "streamproc 1.2.3 (abc123)" {
		t.Errorf("String() = %q", got)
	}
}
