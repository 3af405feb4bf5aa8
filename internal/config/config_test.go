package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8501 {
		t.Errorf("expected default port 8501, got %d", cfg.Server.Port)
	}
	if cfg.Training.ImageSize != 224 {
		t.Errorf("expected default image size 224, got %d", cfg.Training.ImageSize)
	}
	if cfg.Dataset.MinImagesPerClass != 5 {
		t.Errorf("expected min images per class 5, got %d", cfg.Dataset.MinImagesPerClass)
	}
	if cfg.Artifacts.Dir != "models" {
		t.Errorf("expected artifacts dir models, got %s", cfg.Artifacts.Dir)
	}
	if cfg.Inference.TopK != 3 {
		t.Errorf("expected top_k 3, got %d", cfg.Inference.TopK)
	}
}

func TestLoad(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
training:
  image_size: 128
  epochs: 3
logging:
  level: "debug"
  format: "json"
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

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Training.ImageSize != 128 {
		t.Errorf("expected image size 128, got %d", cfg.Training.ImageSize)
	}
	if cfg.Training.Epochs != 3 {
		t.Errorf("expected 3 epochs, got %d", cfg.Training.Epochs)
	}

	// Unspecified values keep their defaults
	if cfg.Training.BatchSize != 32 {
		t.Errorf("expected default batch size 32, got %d", cfg.Training.BatchSize)
	}
	if len(cfg.Model.HeadUnits) != 2 {
		t.Errorf("expected default head units, got %v", cfg.Model.HeadUnits)
	}
}

func TestLoadInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("training:\n  epochs: 0\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected validation error for zero epochs")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8501 {
		t.Errorf("expected default port 8501, got %d", cfg.Server.Port)
	}

	cfg, err = LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got %v", err)
	}
	if cfg.Server.Port != 8501 {
		t.Errorf("expected default port 8501, got %d", cfg.Server.Port)
	}
}

func TestLoadOrDefault_InvalidFileReported(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: loud\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := LoadOrDefault(configPath); err == nil {
		t.Error("expected invalid config to be reported")
	}
}

func TestLoadDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, "test.env")
	if err := os.WriteFile(envPath, []byte("FOODIA_DOTENV_TEST=from-file\n"), 0644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	os.Unsetenv("FOODIA_DOTENV_TEST")
	defer os.Unsetenv("FOODIA_DOTENV_TEST")

	if err := LoadDotEnv(envPath, filepath.Join(tmpDir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv error: %v", err)
	}
	if got := os.Getenv("FOODIA_DOTENV_TEST"); got != "from-file" {
		t.Errorf("expected from-file, got %q", got)
	}
}
