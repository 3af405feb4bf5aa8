package imageio

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/haskel/foodia/internal/dataset"
	"github.com/haskel/foodia/internal/logger"
)

// Sample is a decoded, preprocessed record.
type Sample struct {
	Image *Tensor
	Label string
}

// LoadReport counts what happened to the records passed to Load.
type LoadReport struct {
	Requested int      `json:"requested"`
	Sampled   int      `json:"sampled"`
	Loaded    int      `json:"loaded"`
	Failed    int      `json:"failed"`
	Cap       int      `json:"cap"`
	Failures  []string `json:"failures,omitempty"`
}

// maxReportedFailures bounds LoadReport.Failures.
const maxReportedFailures = 20

// MemoryProbe returns the bytes available for the working set.
type MemoryProbe func() (uint64, error)

type LoaderOptions struct {
	Size int
	// SampleCap limits how many records are decoded. 0 loads everything and a
	// negative value derives the cap from MemoryProbe and MemoryFraction.
	SampleCap      int
	MemoryFraction float64
	MemoryProbe    MemoryProbe
	Seed           uint64
}

// Loader decodes records sequentially. Decode failures are counted and
// skipped.
type Loader struct {
	opts   LoaderOptions
	logger *slog.Logger
}

// NewLoader returns a loader that resizes to opts.Size, or TrainingSize
// when unset. A nil logger discards output.
func NewLoader(opts LoaderOptions, log *slog.Logger) *Loader {
	if opts.Size <= 0 {
		opts.Size = TrainingSize
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Loader{opts: opts, logger: log}
}

func (l *Loader) Size() int {
	return l.opts.Size
}

// Load subsamples records to the resolved cap and decodes and resizes each
// selected image. Images that fail to decode are skipped and counted in the
// report.
func (l *Loader) Load(records []dataset.Record) ([]Sample, LoadReport) {
	report := LoadReport{Requested: len(records)}

	limit := l.resolveCap()
	report.Cap = limit
	selected := Subsample(records, limit, l.opts.Seed)
	report.Sampled = len(selected)
	if len(selected) < len(records) {
		l.logger.Info("sampling records",
			"requested", len(records),
			"cap", limit,
			"seed", l.opts.Seed,
		)
	}

	samples := make([]Sample, 0, len(selected))
	for _, r := range selected {
		t, err := l.loadOne(r.ImagePath)
		if err != nil {
			report.Failed++
			if len(report.Failures) < maxReportedFailures {
				report.Failures = append(report.Failures, r.ImagePath)
			}
			l.logger.Debug("skipping image", "path", r.ImagePath, "error", err)
			continue
		}
		samples = append(samples, Sample{Image: t, Label: r.Label})
	}
	report.Loaded = len(samples)

	if report.Failed > 0 {
		l.logger.Warn("some images could not be decoded",
			"failed", report.Failed,
			"loaded", report.Loaded,
		)
	}
	return samples, report
}

func (l *Loader) loadOne(path string) (*Tensor, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Preprocess(img, l.opts.Size)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Path = path
		}
		return nil, err
	}
	return t, nil
}

// resolveCap turns the configured cap into a record count. 0 means no cap.
func (l *Loader) resolveCap() int {
	if l.opts.SampleCap >= 0 {
		return l.opts.SampleCap
	}
	if l.opts.MemoryProbe == nil {
		return 0
	}

	avail, err := l.opts.MemoryProbe()
	if err != nil {
		l.logger.Warn("memory probe failed, loading without a cap", "error", err)
		return 0
	}

	fraction := l.opts.MemoryFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 0.5
	}
	limit := MemoryCap(avail, fraction, l.opts.Size)
	l.logger.Info("derived sample cap from available memory",
		"available_mb", avail>>20,
		"fraction", fraction,
		"cap", limit,
	)
	return limit
}

// MemoryCap is the number of size x size RGB float32 tensors that fit in
// fraction of avail bytes. It is at least 1.
func MemoryCap(avail uint64, fraction float64, size int) int {
	per := uint64(size) * uint64(size) * Channels * 4
	if per == 0 {
		return 1
	}
	n := int(float64(avail) * fraction / float64(per))
	if n < 1 {
		n = 1
	}
	return n
}

// Subsample picks limit records with a PCG permutation seeded by seed and
// returns them in their original order. limit <= 0 or limit >= len(records)
// returns records unchanged.
func Subsample[T any](records []T, limit int, seed uint64) []T {
	if limit <= 0 || limit >= len(records) {
		return records
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	idx := rng.Perm(len(records))[:limit]
	sort.Ints(idx)

	out := make([]T, limit)
	for i, j := range idx {
		out[i] = records[j]
	}
	return out
}
