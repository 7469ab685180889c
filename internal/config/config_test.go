package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSimConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[command]
secret = "test-secret"
`)
	cfg, err := LoadSimConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Frame.Rows != 1024 || cfg.Frame.Cols != 1024 {
		t.Fatalf("frame defaults not applied: %+v", cfg.Frame)
	}
	if cfg.Ring.Depth != 4 {
		t.Fatalf("ring default not applied: %d", cfg.Ring.Depth)
	}
	if cfg.Fragment.MaxPayload != 1400 || cfg.Fragment.Timeout() != 2*time.Second {
		t.Fatalf("fragment defaults not applied: %+v", cfg.Fragment)
	}
	if cfg.Command.MaxPeers != 32 {
		t.Fatalf("command default not applied: %d", cfg.Command.MaxPeers)
	}
}

func TestLoadSimConfigFullDocument(t *testing.T) {
	path := writeConfig(t, `
[frame]
rows = 512
cols = 256
count = 10
virtual_channel = 2

[impairment]
loss_rate = 0.05
reorder_rate = 0.1
corruption_rate = 0.01
min_delay_ms = 1
max_delay_ms = 5
seed = 42

[command]
secret = "test-secret"
`)
	cfg, err := LoadSimConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Frame.Rows != 512 || cfg.Frame.VirtualChannel != 2 {
		t.Fatalf("frame section: %+v", cfg.Frame)
	}
	if cfg.Impairment.LossRate != 0.05 || cfg.Impairment.Seed != 42 {
		t.Fatalf("impairment section: %+v", cfg.Impairment)
	}
	if cfg.Impairment.MinDelay() != time.Millisecond || cfg.Impairment.MaxDelay() != 5*time.Millisecond {
		t.Fatalf("delay conversion: %v %v", cfg.Impairment.MinDelay(), cfg.Impairment.MaxDelay())
	}
}

func TestValidateRejectsBadRates(t *testing.T) {
	path := writeConfig(t, `
[impairment]
loss_rate = 1.5

[command]
secret = "s"
`)
	if _, err := LoadSimConfig(path); err == nil || !strings.Contains(err.Error(), "loss_rate") {
		t.Fatalf("expected loss_rate error, got %v", err)
	}
}

func TestValidateRequiresSecret(t *testing.T) {
	path := writeConfig(t, `
[frame]
rows = 64
cols = 64
`)
	if _, err := LoadSimConfig(path); err == nil || !strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected secret error, got %v", err)
	}
}

func TestValidateRejectsBadVirtualChannel(t *testing.T) {
	path := writeConfig(t, `
[frame]
virtual_channel = 7

[command]
secret = "s"
`)
	if _, err := LoadSimConfig(path); err == nil || !strings.Contains(err.Error(), "virtual_channel") {
		t.Fatalf("expected virtual_channel error, got %v", err)
	}
}

func TestTemplateIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("overwrite without force succeeded")
	}
	if _, err := LoadSimConfig(path); err != nil {
		t.Fatalf("template does not validate: %v", err)
	}
}
