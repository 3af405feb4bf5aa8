// Package train runs the food classifier training pipeline: dataset
// discovery, image loading, splitting, head training with augmentation and
// callbacks, evaluation and artifact persistence.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/haskel/foodia/internal/artifact"
	"github.com/haskel/foodia/internal/codec"
	"github.com/haskel/foodia/internal/dataset"
	"github.com/haskel/foodia/internal/imageio"
	"github.com/haskel/foodia/internal/logger"
	"github.com/haskel/foodia/internal/monitor"
	"github.com/haskel/foodia/internal/nn"
	"github.com/haskel/foodia/internal/nutrition"
)

var ErrTrainingFailed = errors.New("training failed")

type State int

const (
	StateIdle State = iota
	StateDataLoaded
	StateSplit
	StateTraining
	StateEvaluated
	StatePersisted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDataLoaded:
		return "data_loaded"
	case StateSplit:
		return "split"
	case StateTraining:
		return "training"
	case StateEvaluated:
		return "evaluated"
	case StatePersisted:
		return "persisted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type EpochStats struct {
	Epoch        int           `json:"epoch"`
	Loss         float64       `json:"loss"`
	Accuracy     float64       `json:"accuracy"`
	ValLoss      float64       `json:"val_loss"`
	ValAccuracy  float64       `json:"val_accuracy"`
	LearningRate float64       `json:"learning_rate"`
	Duration     time.Duration `json:"duration"`
}

type SplitSizes struct {
	Train      int  `json:"train"`
	Validation int  `json:"validation"`
	Test       int  `json:"test"`
	Stratified bool `json:"stratified"`
}

// Report describes a finished or failed Run.
type Report struct {
	State        State              `json:"state"`
	Paths        *dataset.Paths     `json:"paths,omitempty"`
	Records      dataset.Summary    `json:"records"`
	Images       imageio.LoadReport `json:"images"`
	Classes      []string           `json:"classes"`
	Split        SplitSizes         `json:"split"`
	Params       nn.ParamCount      `json:"params"`
	History      []EpochStats       `json:"history"`
	BestEpoch    int                `json:"best_epoch"`
	StoppedEarly bool               `json:"stopped_early"`
	TestLoss     float64            `json:"test_loss"`
	TestAccuracy float64            `json:"test_accuracy"`
	Manifest     *artifact.Manifest `json:"manifest,omitempty"`
	Duration     time.Duration      `json:"duration"`
}

// Pipeline is single-use per Run and not safe for concurrent use.
type Pipeline struct {
	opts     Options
	store    *artifact.Store
	monitors []monitor.Monitor
	probe    imageio.MemoryProbe
	logger   *slog.Logger

	state State
}

// NewPipeline fills unset image size, batch size and epoch count with
// defaults. A nil logger discards output.
func NewPipeline(opts Options, store *artifact.Store, log *slog.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	if opts.ImageSize <= 0 {
		opts.ImageSize = imageio.TrainingSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 15
	}
	return &Pipeline{
		opts:     opts,
		store:    store,
		monitors: monitor.Default(store.Dir()),
		probe:    monitor.AvailableMemory,
		logger:   log,
	}
}

func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) transition(to State) {
	p.logger.Info("pipeline state", "from", p.state, "to", to)
	p.state = to
}

func (p *Pipeline) logResources(stage string) {
	snap := monitor.Collect(p.monitors, p.logger)
	p.logger.Debug("resources", append([]any{"stage", stage}, snap.LogAttrs()...)...)
}

// prepared is the in-memory working set after DataLoaded.
type prepared struct {
	samples []imageio.Sample
	labels  []int
	codec   *codec.Codec
	table   *nutrition.Table
}

// Run executes every stage for the dataset under basePath. Dataset problems
// are returned before any training starts. Failures during training are
// reported as ErrTrainingFailed and leave the previous artifact untouched.
func (p *Pipeline) Run(ctx context.Context, basePath string) (*Report, error) {
	start := time.Now()
	report := &Report{BestEpoch: -1}

	data, err := p.prepare(ctx, basePath, report)
	if err != nil {
		p.state = StateFailed
		return report, err
	}
	p.transition(StateDataLoaded)

	split := StratifiedSplit(data.labels, p.opts.ValidationSplit, p.opts.TestSplit, p.opts.Seed)
	if !split.Stratified {
		p.logger.Warn("a class has fewer than 3 images; using a non-stratified split")
	}
	report.Split = SplitSizes{
		Train:      len(split.Train),
		Validation: len(split.Validation),
		Test:       len(split.Test),
		Stratified: split.Stratified,
	}
	p.logger.Info("split dataset",
		"train", report.Split.Train,
		"validation", report.Split.Validation,
		"test", report.Split.Test,
		"stratified", split.Stratified,
	)
	p.transition(StateSplit)

	p.transition(StateTraining)
	p.logResources("training")
	model, err := p.train(ctx, data, split, report)
	if err != nil {
		p.state = StateFailed
		p.logger.Error("training failed", "error", err)
		return report, err
	}

	report.TestLoss, report.TestAccuracy = evaluate(model, data, split.Test)
	p.logger.Info("evaluated on test partition",
		"loss", report.TestLoss,
		"accuracy", report.TestAccuracy,
		"samples", len(split.Test),
	)
	p.transition(StateEvaluated)

	if err := ctx.Err(); err != nil {
		p.state = StateFailed
		return report, fmt.Errorf("training interrupted: %w", err)
	}

	manifest, err := p.store.Save(ctx, &artifact.Artifact{
		Manifest: artifact.Manifest{
			ImageSize:    p.opts.ImageSize,
			TestLoss:     report.TestLoss,
			TestAccuracy: report.TestAccuracy,
		},
		Model:   model,
		Codec:   data.codec,
		Classes: data.codec.Labels(),
	})
	if err != nil {
		p.state = StateFailed
		return report, fmt.Errorf("failed to persist artifact: %w", err)
	}
	report.Manifest = manifest
	p.saveNutrition(ctx, data.table)
	p.transition(StatePersisted)

	report.State = p.state
	report.Duration = time.Since(start)
	return report, nil
}

func (p *Pipeline) prepare(ctx context.Context, basePath string, report *Report) (*prepared, error) {
	paths, err := dataset.Locate(basePath)
	if err != nil {
		return nil, err
	}
	report.Paths = paths
	if len(paths.IgnoredTables) > 0 {
		p.logger.Warn("several CSV files found, using the first",
			"table", paths.TableFile,
			"ignored", paths.IgnoredTables,
		)
	}
	p.logger.Info("located dataset",
		"table", paths.TableFile,
		"images", paths.ImagesDir,
		"strategy", paths.ImagesStrategy,
	)

	table, err := dataset.ReadTableFile(paths.TableFile)
	if err != nil {
		return nil, err
	}
	cols, err := dataset.ResolveColumns(table.Header)
	if err != nil {
		return nil, err
	}

	set, err := dataset.BuildRecords(table, cols, paths.ImagesDir, p.opts.MinImagesPerClass)
	if set != nil {
		report.Records = set.Summary
	}
	if err != nil {
		return nil, err
	}
	p.logger.Info("built records",
		"rows", set.Summary.Rows,
		"valid", set.Summary.Valid,
		"missing", set.Summary.Missing,
		"duplicates", set.Summary.Duplicates,
		"classes_before", set.Summary.ClassesBefore,
		"classes_after", set.Summary.ClassesAfter,
	)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("training interrupted: %w", err)
	}

	p.logResources("loading")
	loader := imageio.NewLoader(imageio.LoaderOptions{
		Size:           p.opts.ImageSize,
		SampleCap:      p.opts.SampleCap,
		MemoryFraction: p.opts.MemoryFraction,
		MemoryProbe:    p.probe,
		Seed:           p.opts.Seed,
	}, p.logger)
	samples, loadReport := loader.Load(set.Records)
	report.Images = loadReport
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: none of %d images could be decoded", dataset.ErrNoValidData, loadReport.Sampled)
	}

	names := make([]string, len(samples))
	for i, s := range samples {
		names[i] = s.Label
	}
	cod, err := codec.FitSorted(names)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(samples))
	for i, n := range names {
		// every name was seen by FitSorted
		labels[i], _ = cod.Encode(n)
	}
	report.Classes = cod.Labels()

	p.logger.Info("loaded images",
		"loaded", loadReport.Loaded,
		"failed", loadReport.Failed,
		"classes", cod.Len(),
		"size", p.opts.ImageSize,
	)

	return &prepared{
		samples: samples,
		labels:  labels,
		codec:   cod,
		table:   set.Nutrition,
	}, nil
}

func (p *Pipeline) buildModel(numClasses int) (*nn.Classifier, error) {
	var backbone *nn.ConvBackbone
	var err error
	if p.opts.BackboneWeights != "" {
		backbone, err = nn.LoadConvBackbone(p.opts.BackboneWeights)
	} else {
		backbone, err = nn.NewConvBackbone(p.opts.BackboneChannels, p.opts.BackboneSeed)
	}
	if err != nil {
		return nil, err
	}
	return nn.Build(numClasses, backbone, p.opts.Head, p.opts.Seed)
}

// train runs the Training state. Panics are converted to ErrTrainingFailed.
func (p *Pipeline) train(ctx context.Context, data *prepared, split Split, report *Report) (model *nn.Classifier, err error) {
	defer func() {
		if r := recover(); r != nil {
			model = nil
			err = fmt.Errorf("%w: panic: %v", ErrTrainingFailed, r)
		}
	}()

	model, err = p.buildModel(data.codec.Len())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrainingFailed, err)
	}
	report.Params = model.ParamCount()
	for _, l := range model.Summary() {
		p.logger.Debug("layer", "name", l.Name, "output", l.Output, "params", l.Params, "trainable", l.Trainable)
	}
	p.logger.Info("built model",
		"classes", model.NumClasses(),
		"trainable_params", report.Params.Trainable,
		"frozen_params", report.Params.Frozen,
	)

	valX, valY := features(model, data, split.Validation)
	var trainX [][]float64
	if !p.opts.Augment {
		trainX, _ = features(model, data, split.Train)
	}

	augmenter := NewAugmenter(p.opts.Augmentation, p.opts.Seed)
	rng := rand.New(rand.NewPCG(p.opts.Seed, p.opts.Seed+2))
	stopper := &EarlyStopping{Patience: p.opts.EarlyStoppingPatience}
	plateau := &ReduceLROnPlateau{
		Factor:   p.opts.ReduceLRFactor,
		Patience: p.opts.ReduceLRPatience,
		MinLR:    p.opts.MinLearningRate,
	}
	best := model.Snapshot()

	order := make([]int, len(split.Train))
	for epoch := 0; epoch < p.opts.Epochs; epoch++ {
		epochStart := time.Now()
		for i := range order {
			order[i] = i
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum, accSum float64
		for b := 0; b < len(order); b += p.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("training interrupted: %w", err)
			}

			batch := order[b:min(b+p.opts.BatchSize, len(order))]
			x := make([][]float64, len(batch))
			y := make([]int, len(batch))
			for i, k := range batch {
				idx := split.Train[k]
				y[i] = data.labels[idx]
				if trainX != nil {
					x[i] = trainX[k]
				} else {
					x[i] = model.Features(augmenter.Apply(data.samples[idx].Image))
				}
			}

			loss, acc, err := model.TrainBatch(x, y)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTrainingFailed, err)
			}
			lossSum += loss * float64(len(batch))
			accSum += acc * float64(len(batch))
		}

		stats := EpochStats{
			Epoch:        epoch + 1,
			LearningRate: model.LearningRate(),
		}
		if n := float64(len(order)); n > 0 {
			stats.Loss, stats.Accuracy = lossSum/n, accSum/n
		}

		monitored := stats.Loss
		if len(valX) > 0 {
			stats.ValLoss, stats.ValAccuracy = model.Evaluate(valX, valY)
			monitored = stats.ValLoss
		}
		stats.Duration = time.Since(epochStart)
		report.History = append(report.History, stats)

		p.logger.Info("epoch finished",
			"epoch", stats.Epoch,
			"loss", stats.Loss,
			"accuracy", stats.Accuracy,
			"val_loss", stats.ValLoss,
			"val_accuracy", stats.ValAccuracy,
			"lr", stats.LearningRate,
			"duration", stats.Duration,
		)

		improved, stop := stopper.Observe(epoch, monitored)
		if improved {
			best = model.Snapshot()
		}
		if stop {
			report.StoppedEarly = true
			p.logger.Info("early stopping", "epoch", stats.Epoch, "patience", stopper.Patience)
			break
		}

		if lr := plateau.Observe(monitored, model.LearningRate()); lr != model.LearningRate() {
			p.logger.Info("reducing learning rate", "from", model.LearningRate(), "to", lr)
			model.SetLearningRate(lr)
		}
	}

	bestEpoch, bestLoss := stopper.Best()
	report.BestEpoch = bestEpoch + 1
	model.Restore(best)
	p.logger.Info("restored best weights", "epoch", report.BestEpoch, "monitored_loss", bestLoss)
	return model, nil
}

func features(model *nn.Classifier, data *prepared, idx []int) ([][]float64, []int) {
	x := make([][]float64, len(idx))
	y := make([]int, len(idx))
	for i, k := range idx {
		x[i] = model.Features(data.samples[k].Image)
		y[i] = data.labels[k]
	}
	return x, y
}

func evaluate(model *nn.Classifier, data *prepared, idx []int) (loss, acc float64) {
	x, y := features(model, data, idx)
	return model.Evaluate(x, y)
}

func (p *Pipeline) saveNutrition(ctx context.Context, table *nutrition.Table) {
	if p.opts.NutritionDB == "" || table == nil {
		return
	}
	store, err := nutrition.OpenStore(p.opts.NutritionDB)
	if err != nil {
		p.logger.Warn("failed to open nutrition database", "path", p.opts.NutritionDB, "error", err)
		return
	}
	defer store.Close()

	if err := store.Replace(ctx, table); err != nil {
		p.logger.Warn("failed to save nutrition table", "path", p.opts.NutritionDB, "error", err)
		return
	}
	p.logger.Info("saved nutrition table", "path", p.opts.NutritionDB, "dishes", table.Len())
}
