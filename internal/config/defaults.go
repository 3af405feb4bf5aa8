package config

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8501,
			MaxBodyBytes:    10 << 20,
			ShutdownTimeout: 30,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 20,
				Burst:             40,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Dataset: DatasetConfig{
			BasePath:          "data",
			MinImagesPerClass: 5,
			SampleCap:         5000,
			MemoryFraction:    0.5,
		},
		Training: TrainingConfig{
			ImageSize:             224,
			BatchSize:             32,
			Epochs:                15,
			ValidationSplit:       0.2,
			TestSplit:             0.1,
			Seed:                  42,
			LearningRate:          0.001,
			EarlyStoppingPatience: 3,
			ReduceLRPatience:      2,
			ReduceLRFactor:        0.5,
			MinLearningRate:       1e-7,
			Augmentation: AugmentationConfig{
				Enabled:        true,
				RotationDeg:    20,
				WidthShift:     0.2,
				HeightShift:    0.2,
				Zoom:           0.2,
				HorizontalFlip: true,
			},
		},
		Model: ModelConfig{
			BackboneChannels: []int{16, 32, 64, 128},
			BackboneSeed:     1,
			HeadUnits:        []int{256, 128},
			HeadDropout:      []float64{0.5, 0.3},
		},
		Artifacts: ArtifactsConfig{
			Dir:         "models",
			NutritionDB: "models/nutrition.db",
		},
		Inference: InferenceConfig{
			TopK: 3,
		},
	}
}
