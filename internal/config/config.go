package config

import "time"

type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Dataset   DatasetConfig   `yaml:"dataset" json:"dataset"`
	Training  TrainingConfig  `yaml:"training" json:"training"`
	Model     ModelConfig     `yaml:"model" json:"model"`
	Artifacts ArtifactsConfig `yaml:"artifacts" json:"artifacts"`
	Inference InferenceConfig `yaml:"inference" json:"inference"`
}

type ServerConfig struct {
	Host            string          `yaml:"host" json:"host"`
	Port            int             `yaml:"port" json:"port"`
	MaxBodyBytes    int64           `yaml:"max_body_bytes" json:"max_body_bytes"`
	ShutdownTimeout int             `yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
	// PerIP switches from one global bucket to a bucket per client address.
	PerIP bool `yaml:"per_ip" json:"per_ip"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// DatasetConfig describes where the labelled photos live.
type DatasetConfig struct {
	// BasePath holds one CSV file and an image folder; both are auto-detected.
	BasePath          string `yaml:"base_path" json:"base_path"`
	MinImagesPerClass int    `yaml:"min_images_per_class" json:"min_images_per_class"`
	// SampleCap bounds the number of images loaded into memory.
	// 0 disables sampling, a negative value derives the cap from free memory.
	SampleCap      int     `yaml:"sample_cap" json:"sample_cap"`
	MemoryFraction float64 `yaml:"memory_fraction" json:"memory_fraction"`
}

type TrainingConfig struct {
	ImageSize       int     `yaml:"image_size" json:"image_size"`
	BatchSize       int     `yaml:"batch_size" json:"batch_size"`
	Epochs          int     `yaml:"epochs" json:"epochs"`
	ValidationSplit float64 `yaml:"validation_split" json:"validation_split"`
	TestSplit       float64 `yaml:"test_split" json:"test_split"`
	Seed            int64   `yaml:"seed" json:"seed"`
	LearningRate    float64 `yaml:"learning_rate" json:"learning_rate"`

	EarlyStoppingPatience int     `yaml:"early_stopping_patience" json:"early_stopping_patience"`
	ReduceLRPatience      int     `yaml:"reduce_lr_patience" json:"reduce_lr_patience"`
	ReduceLRFactor        float64 `yaml:"reduce_lr_factor" json:"reduce_lr_factor"`
	MinLearningRate       float64 `yaml:"min_learning_rate" json:"min_learning_rate"`

	Augmentation AugmentationConfig `yaml:"augmentation" json:"augmentation"`
}

type AugmentationConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	RotationDeg    float64 `yaml:"rotation_deg" json:"rotation_deg"`
	WidthShift     float64 `yaml:"width_shift" json:"width_shift"`
	HeightShift    float64 `yaml:"height_shift" json:"height_shift"`
	Zoom           float64 `yaml:"zoom" json:"zoom"`
	HorizontalFlip bool    `yaml:"horizontal_flip" json:"horizontal_flip"`
}

// ModelConfig shapes the frozen backbone and the trainable head.
type ModelConfig struct {
	BackboneChannels []int `yaml:"backbone_channels" json:"backbone_channels"`
	// BackboneWeights points at pretrained backbone weights. When empty the
	// backbone is generated from BackboneSeed.
	BackboneWeights string    `yaml:"backbone_weights" json:"backbone_weights"`
	BackboneSeed    int64     `yaml:"backbone_seed" json:"backbone_seed"`
	HeadUnits       []int     `yaml:"head_units" json:"head_units"`
	HeadDropout     []float64 `yaml:"head_dropout" json:"head_dropout"`
}

type ArtifactsConfig struct {
	Dir         string `yaml:"dir" json:"dir"`
	NutritionDB string `yaml:"nutrition_db" json:"nutrition_db"`
}

type InferenceConfig struct {
	TopK int `yaml:"top_k" json:"top_k"`
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}
