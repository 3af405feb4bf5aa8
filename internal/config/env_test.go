package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "test_value")
	defer os.Unsetenv("TEST_VAR")

	input := []byte("value: ${TEST_VAR}")
	expected := []byte("value: test_value")

	result := substituteEnvVars(input)
	if string(result) != string(expected) {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestSubstituteEnvVarsFallback(t *testing.T) {
	os.Unsetenv("FOODIA_UNSET")

	tests := []struct {
		input    string
		expected string
	}{
		{"dir: ${FOODIA_UNSET:-models}", "dir: models"},
		{"dir: ${FOODIA_UNSET:-}", "dir: "},
		{"dir: ${FOODIA_UNSET}", "dir: ${FOODIA_UNSET}"},
		{"dir: plain", "dir: plain"},
	}

	for _, tt := range tests {
		result := substituteEnvVars([]byte(tt.input))
		if string(result) != tt.expected {
			t.Errorf("input %q: expected %q, got %q", tt.input, tt.expected, result)
		}
	}
}

func TestSubstituteEnvVarsEmptyValueUsesFallback(t *testing.T) {
	os.Setenv("FOODIA_EMPTY", "")
	defer os.Unsetenv("FOODIA_EMPTY")

	if got := string(substituteEnvVars([]byte("${FOODIA_EMPTY:-x}"))); got != "x" {
		t.Errorf("expected fallback x, got %q", got)
	}
	if got := string(substituteEnvVars([]byte("${FOODIA_EMPTY}"))); got != "" {
		t.Errorf("expected empty value, got %q", got)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_DATASET", "/srv/food")
	defer os.Unsetenv("TEST_DATASET")

	content := `
dataset:
  base_path: "${TEST_DATASET}"
artifacts:
  dir: "${TEST_ARTIFACTS_UNSET:-out/models}"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Dataset.BasePath != "/srv/food" {
		t.Errorf("expected base path /srv/food, got %s", cfg.Dataset.BasePath)
	}
	if cfg.Artifacts.Dir != "out/models" {
		t.Errorf("expected artifacts dir out/models, got %s", cfg.Artifacts.Dir)
	}
}
