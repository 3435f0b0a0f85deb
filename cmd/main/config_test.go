package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			config, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if config.Generation.MaxAttempts != DefaultGenerationConfig().MaxAttempts {
				t.Errorf("expected default max attempts, got %d", config.Generation.MaxAttempts)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("default config was not written: %v", err)
			}
			isJSON := strings.HasPrefix(strings.TrimSpace(string(data)), "{")
			if isJSON != (name == "config.json") {
				t.Errorf("config written in the wrong format:\n%s", data)
			}

			again, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("reloading the default config failed: %v", err)
			}
			if *again.Server != *config.Server || *again.Generation != *config.Generation {
				t.Errorf("reloaded config differs: %+v vs %+v", again.Generation, config.Generation)
			}
		})
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
generation_config:
  max_attempts: 8
  max_steps: 16
  default_metric: syllable
  default_length: 5
  max_lines: 4
  key_mode: word_reading
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Generation.MaxAttempts != 8 || config.Generation.DefaultMetric != "syllable" || config.Generation.KeyMode != "word_reading" {
		t.Errorf("YAML values not applied: %+v", config.Generation)
	}
	// Sections missing from the file keep their defaults.
	if config.Server.ApiAddr != DefaultServerConfig().ApiAddr {
		t.Errorf("expected default api address, got %q", config.Server.ApiAddr)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	testCases := map[string]string{
		"bad metric":   `{"generation_config": {"max_attempts": 1, "max_steps": 1, "max_lines": 1, "default_metric": "beats"}}`,
		"zero budget":  `{"generation_config": {"max_attempts": 0, "max_steps": 1, "max_lines": 1, "default_metric": "mora"}}`,
		"length cap":   `{"generation_config": {"max_attempts": 1, "max_steps": 1, "max_lines": 1, "default_metric": "mora", "default_length": 9, "max_length": 8}}`,
		"bad key mode": `{"generation_config": {"max_attempts": 1, "max_steps": 1, "max_lines": 1, "default_metric": "mora", "key_mode": "surface"}}`,
		"malformed":    `{"generation_config": `,
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected LoadConfig to fail")
			}
		})
	}
}

func TestConfigManagerUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cm, err := NewConfigManager(path)
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}

	config := cm.Get()
	config.Generation.MaxLines = 3
	// Get returns a copy, so the manager is unchanged until Update.
	if cm.Get().Generation.MaxLines == 3 {
		t.Fatal("modifying the copy changed the managed config")
	}
	if err = cm.Update(config); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if reloaded.Generation.MaxLines != 3 {
		t.Errorf("update was not persisted, max_lines = %d", reloaded.Generation.MaxLines)
	}

	// The caller's structs are not shared with the manager after Update.
	config.Generation.MaxLines = 5
	if cm.Get().Generation.MaxLines != 3 {
		t.Errorf("changing the updated config leaked into the manager, max_lines = %d", cm.Get().Generation.MaxLines)
	}

	config.Generation.MaxSteps = 0
	if err = cm.Update(config); err == nil {
		t.Error("expected an invalid update to be rejected")
	}
	if cm.Get().Generation.MaxSteps == 0 {
		t.Error("rejected update was applied")
	}
}
