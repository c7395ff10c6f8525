package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := v.GetString("database.path"); got != "./data/opsconductor.db" {
		t.Errorf("database.path = %q, want default", got)
	}
	if got := v.GetDuration("probe.timeouts.ssh"); got != 30*time.Second {
		t.Errorf("probe.timeouts.ssh = %v, want 30s", got)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oc.yaml")
	content := "database:\n  path: /tmp/oc.db\nprobe:\n  rate_limit: 2\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OC_CREDENTIALS_SECRET", "from-env")

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := v.GetString("database.path"); got != "/tmp/oc.db" {
		t.Errorf("database.path = %q, want %q", got, "/tmp/oc.db")
	}
	if got := v.GetFloat64("probe.rate_limit"); got != 2 {
		t.Errorf("probe.rate_limit = %v, want 2", got)
	}
	if got := v.GetString("credentials.secret"); got != "from-env" {
		t.Errorf("credentials.secret = %q, want %q", got, "from-env")
	}
}

func TestSub_MissingSection(t *testing.T) {
	c := New(nil)
	sub := c.Sub("nope")
	if sub == nil {
		t.Fatal("Sub() returned nil")
	}
	if sub.IsSet("anything") {
		t.Error("empty sub config reports keys as set")
	}
}
