package config

import (
	"errors"
	"fmt"
)

func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Dataset.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dataset: %w", err))
	}
	if err := c.Training.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("training: %w", err))
	}
	if err := c.Model.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("model: %w", err))
	}
	if err := c.Artifacts.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("artifacts: %w", err))
	}
	if c.Inference.TopK < 1 {
		errs = append(errs, fmt.Errorf("inference: top_k must be at least 1, got %d", c.Inference.TopK))
	}

	return errors.Join(errs...)
}

func (s *ServerConfig) Validate() error {
	var errs []error
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", s.Port))
	}
	if s.MaxBodyBytes < 1024 {
		errs = append(errs, fmt.Errorf("max_body_bytes must be at least 1024, got %d", s.MaxBodyBytes))
	}
	if s.RateLimit.Enabled && (s.RateLimit.RequestsPerSecond <= 0 || s.RateLimit.Burst < 1) {
		errs = append(errs, fmt.Errorf("rate_limit needs positive requests_per_second and burst"))
	}
	return errors.Join(errs...)
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[l.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", l.Format)
	}
	return nil
}

func (d *DatasetConfig) Validate() error {
	var errs []error
	if d.MinImagesPerClass < 1 {
		errs = append(errs, fmt.Errorf("min_images_per_class must be at least 1"))
	}
	if d.SampleCap < 0 && (d.MemoryFraction <= 0 || d.MemoryFraction > 1) {
		errs = append(errs, fmt.Errorf("memory_fraction must be in (0, 1] when sample_cap is automatic"))
	}
	return errors.Join(errs...)
}

func (t *TrainingConfig) Validate() error {
	var errs []error
	if t.ImageSize < 8 {
		errs = append(errs, fmt.Errorf("image_size must be at least 8, got %d", t.ImageSize))
	}
	if t.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be at least 1"))
	}
	if t.Epochs < 1 {
		errs = append(errs, fmt.Errorf("epochs must be at least 1"))
	}
	if t.TestSplit <= 0 || t.TestSplit >= 1 {
		errs = append(errs, fmt.Errorf("test_split must be in (0, 1)"))
	}
	if t.ValidationSplit <= 0 || t.ValidationSplit >= 1 {
		errs = append(errs, fmt.Errorf("validation_split must be in (0, 1)"))
	}
	if t.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning_rate must be positive"))
	}
	if t.ReduceLRFactor <= 0 || t.ReduceLRFactor >= 1 {
		errs = append(errs, fmt.Errorf("reduce_lr_factor must be in (0, 1)"))
	}
	if t.MinLearningRate < 0 || t.MinLearningRate > t.LearningRate {
		errs = append(errs, fmt.Errorf("min_learning_rate must be in [0, learning_rate]"))
	}
	if t.EarlyStoppingPatience < 1 || t.ReduceLRPatience < 1 {
		errs = append(errs, fmt.Errorf("patience values must be at least 1"))
	}
	return errors.Join(errs...)
}

func (m *ModelConfig) Validate() error {
	var errs []error
	if len(m.BackboneChannels) == 0 {
		errs = append(errs, fmt.Errorf("backbone_channels cannot be empty"))
	}
	for _, c := range m.BackboneChannels {
		if c < 1 {
			errs = append(errs, fmt.Errorf("backbone channel width must be positive, got %d", c))
		}
	}
	if len(m.HeadUnits) != len(m.HeadDropout) {
		errs = append(errs, fmt.Errorf("head_units and head_dropout must have the same length"))
	}
	for _, p := range m.HeadDropout {
		if p < 0 || p >= 1 {
			errs = append(errs, fmt.Errorf("dropout rate must be in [0, 1), got %v", p))
		}
	}
	return errors.Join(errs...)
}

func (a *ArtifactsConfig) Validate() error {
	if a.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}
	if a.NutritionDB == "" {
		return fmt.Errorf("nutrition_db cannot be empty")
	}
	return nil
}
