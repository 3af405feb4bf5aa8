// Package recognizer wraps a trained artifact for single-image inference.
package recognizer

import (
	"image"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/haskel/foodia/internal/artifact"
	"github.com/haskel/foodia/internal/imageio"
	"github.com/haskel/foodia/internal/logger"
	"github.com/haskel/foodia/internal/nutrition"
)

const DefaultTopK = 3

// ArtifactLoader is satisfied by *artifact.Store.
type ArtifactLoader interface {
	Load() (*artifact.Artifact, error)
}

// Prediction is one ranked class with its confidence in percent.
type Prediction struct {
	Meal       string  `json:"meal"`
	Confidence float64 `json:"confidence"`
}

// Result is built once per call and not modified afterwards. Confidence
// values are percentages.
type Result struct {
	Meal           string       `json:"meal"`
	Confidence     float64      `json:"confidence"`
	TopPredictions []Prediction `json:"top_predictions"`
	Calories       float64      `json:"calories"`
	Success        bool         `json:"success"`
	Error          string       `json:"error,omitempty"`
}

func failed(err error) Result {
	return Result{TopPredictions: []Prediction{}, Error: err.Error()}
}

// Recognizer is constructed once per process and shared. The artifact is
// loaded on first use and never reloaded; a missing artifact makes every
// prediction return Success=false.
type Recognizer struct {
	loader    ArtifactLoader
	nutrition *nutrition.Table
	logger    *slog.Logger

	once sync.Once
	art  *artifact.Artifact
	err  error
}

// New takes the nutrition table used for calorie lookups; nil means
// keyword estimates only.
func New(loader ArtifactLoader, table *nutrition.Table, log *slog.Logger) *Recognizer {
	if log == nil {
		log = logger.Discard()
	}
	return &Recognizer{
		loader:    loader,
		nutrition: table,
		logger:    log,
	}
}

func (r *Recognizer) load() (*artifact.Artifact, error) {
	r.once.Do(func() {
		r.art, r.err = r.loader.Load()
		if r.err != nil {
			r.logger.Warn("model artifact unavailable, predictions disabled", "error", r.err)
			return
		}
		r.logger.Info("recognizer ready",
			"run_id", r.art.Manifest.RunID,
			"classes", r.art.Codec.Len(),
			"image_size", r.art.Manifest.ImageSize,
		)
	})
	return r.art, r.err
}

// Ready loads the artifact if needed and reports whether it is usable.
func (r *Recognizer) Ready() bool {
	_, err := r.load()
	return err == nil
}

// Err returns the load error, if any.
func (r *Recognizer) Err() error {
	_, err := r.load()
	return err
}

// Artifact returns the loaded artifact. Callers must not modify it.
func (r *Recognizer) Artifact() (*artifact.Artifact, error) {
	return r.load()
}

// ImageSize is the side length the loaded model was trained on.
func (r *Recognizer) ImageSize() int {
	if art, err := r.load(); err == nil && art.Manifest.ImageSize > 0 {
		return art.Manifest.ImageSize
	}
	return imageio.TrainingSize
}

// PredictFile classifies the image at path.
func (r *Recognizer) PredictFile(path string, topK int) Result {
	if _, err := r.load(); err != nil {
		return failed(err)
	}
	img, err := imageio.DecodeFile(path)
	if err != nil {
		return failed(err)
	}
	return r.PredictImage(img, topK)
}

func (r *Recognizer) PredictBytes(data []byte, topK int) Result {
	if _, err := r.load(); err != nil {
		return failed(err)
	}
	img, err := imageio.DecodeBytes(data)
	if err != nil {
		return failed(err)
	}
	return r.PredictImage(img, topK)
}

func (r *Recognizer) PredictReader(rd io.Reader, topK int) Result {
	if _, err := r.load(); err != nil {
		return failed(err)
	}
	img, err := imageio.Decode(rd)
	if err != nil {
		return failed(err)
	}
	return r.PredictImage(img, topK)
}

// PredictImage ranks classes for img. topK <= 0 means DefaultTopK.
func (r *Recognizer) PredictImage(img image.Image, topK int) Result {
	art, err := r.load()
	if err != nil {
		return failed(err)
	}

	tensor, err := imageio.Preprocess(img, r.ImageSize())
	if err != nil {
		return failed(err)
	}

	probs := art.Model.Predict(tensor)
	top := Rank(probs, art.Codec.Labels(), topK)
	if len(top) == 0 {
		return Result{TopPredictions: []Prediction{}, Error: "model produced no classes"}
	}

	return Result{
		Meal:           top[0].Meal,
		Confidence:     top[0].Confidence,
		TopPredictions: top,
		Calories:       r.MealCalories(top[0].Meal),
		Success:        true,
	}
}

// Rank sorts classes by descending probability, ties by lower index, and
// returns the first min(topK, len(labels)) as percentages.
func Rank(probs []float64, labels []string, topK int) []Prediction {
	if topK <= 0 {
		topK = DefaultTopK
	}
	n := min(len(probs), len(labels))

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	k := min(topK, n)
	out := make([]Prediction, k)
	for i := 0; i < k; i++ {
		out[i] = Prediction{
			Meal:       labels[idx[i]],
			Confidence: probs[idx[i]] * 100,
		}
	}
	return out
}

// MealCalories never fails: exact table entries win, anything else gets the
// keyword estimate.
func (r *Recognizer) MealCalories(meal string) float64 {
	return nutrition.MealCalories(meal, r.nutrition)
}

// LookupCalories is MealCalories that also reports whether the value came
// from the nutrition table rather than the keyword estimate.
func (r *Recognizer) LookupCalories(meal string) (calories float64, exact bool) {
	if cal, ok := r.nutrition.Lookup(meal); ok {
		return cal, true
	}
	return nutrition.Estimate(meal), false
}
