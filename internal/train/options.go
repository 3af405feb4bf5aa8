package train

import (
	"github.com/haskel/foodia/internal/config"
	"github.com/haskel/foodia/internal/nn"
)

// Options is the resolved training configuration.
type Options struct {
	ImageSize       int
	BatchSize       int
	Epochs          int
	ValidationSplit float64
	TestSplit       float64
	Seed            uint64

	MinImagesPerClass int
	SampleCap         int
	MemoryFraction    float64

	Augment      bool
	Augmentation AugmentOptions

	BackboneChannels []int
	BackboneWeights  string
	BackboneSeed     uint64
	Head             nn.HeadConfig

	EarlyStoppingPatience int
	ReduceLRPatience      int
	ReduceLRFactor        float64
	MinLearningRate       float64

	// NutritionDB receives the dish calorie table after the artifact is
	// committed. Empty skips it.
	NutritionDB string
}

func OptionsFromConfig(cfg *config.Config) Options {
	t := cfg.Training
	aug := t.Augmentation
	return Options{
		ImageSize:       t.ImageSize,
		BatchSize:       t.BatchSize,
		Epochs:          t.Epochs,
		ValidationSplit: t.ValidationSplit,
		TestSplit:       t.TestSplit,
		Seed:            uint64(t.Seed),

		MinImagesPerClass: cfg.Dataset.MinImagesPerClass,
		SampleCap:         cfg.Dataset.SampleCap,
		MemoryFraction:    cfg.Dataset.MemoryFraction,

		Augment: aug.Enabled,
		Augmentation: AugmentOptions{
			RotationDeg:    aug.RotationDeg,
			WidthShift:     aug.WidthShift,
			HeightShift:    aug.HeightShift,
			Zoom:           aug.Zoom,
			HorizontalFlip: aug.HorizontalFlip,
		},

		BackboneChannels: cfg.Model.BackboneChannels,
		BackboneWeights:  cfg.Model.BackboneWeights,
		BackboneSeed:     uint64(cfg.Model.BackboneSeed),
		Head: nn.HeadConfig{
			Units:   cfg.Model.HeadUnits,
			Dropout: cfg.Model.HeadDropout,
			Adam: nn.AdamConfig{
				LearningRate: t.LearningRate,
				Beta1:        0.9,
				Beta2:        0.999,
				Epsilon:      1e-7,
			},
		},

		EarlyStoppingPatience: t.EarlyStoppingPatience,
		ReduceLRPatience:      t.ReduceLRPatience,
		ReduceLRFactor:        t.ReduceLRFactor,
		MinLearningRate:       t.MinLearningRate,

		NutritionDB: cfg.Artifacts.NutritionDB,
	}
}
