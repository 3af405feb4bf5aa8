package nn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/haskel/foodia/internal/imageio"
)

const formatVersion = 1

var ErrShapeMismatch = errors.New("shape mismatch")

// HeadConfig shapes the trainable part of the classifier. Units and Dropout
// describe the hidden Dense+Dropout blocks in order.
type HeadConfig struct {
	Units   []int
	Dropout []float64
	Adam    AdamConfig
}

func DefaultHeadConfig() HeadConfig {
	return HeadConfig{
		Units:   []int{256, 128},
		Dropout: []float64{0.5, 0.3},
		Adam:    DefaultAdamConfig(),
	}
}

// Classifier is a frozen backbone feeding a dense softmax head. Predict and
// Evaluate are safe for concurrent use; TrainBatch is not.
type Classifier struct {
	backbone   Backbone
	layers     []*Dense
	dropout    []float64
	numClasses int

	opt *adam
	rng *rand.Rand
}

// Build assembles a classifier with numClasses outputs on top of backbone.
func Build(numClasses int, backbone Backbone, cfg HeadConfig, seed uint64) (*Classifier, error) {
	if numClasses < 1 {
		return nil, fmt.Errorf("invalid class count %d", numClasses)
	}
	if backbone == nil {
		return nil, fmt.Errorf("backbone is required")
	}
	if len(cfg.Units) != len(cfg.Dropout) {
		return nil, fmt.Errorf("%w: %d hidden layers but %d dropout rates", ErrShapeMismatch, len(cfg.Units), len(cfg.Dropout))
	}
	if cfg.Adam.LearningRate <= 0 {
		cfg.Adam = DefaultAdamConfig()
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x5bd1e995))
	c := &Classifier{
		backbone:   backbone,
		dropout:    append([]float64(nil), cfg.Dropout...),
		numClasses: numClasses,
		rng:        rng,
	}

	in := backbone.OutputDim()
	for _, units := range cfg.Units {
		c.layers = append(c.layers, NewDense(in, units, ActivationReLU, rng))
		in = units
	}
	c.layers = append(c.layers, NewDense(in, numClasses, ActivationSoftmax, rng))
	c.resetOptimizer(cfg.Adam)
	return c, nil
}

func (c *Classifier) resetOptimizer(cfg AdamConfig) {
	var sizes []int
	for _, l := range c.layers {
		sizes = append(sizes, len(l.W), len(l.B))
	}
	c.opt = newAdam(cfg, sizes)
}

func (c *Classifier) NumClasses() int {
	return c.numClasses
}

func (c *Classifier) Backbone() Backbone {
	return c.backbone
}

func (c *Classifier) LearningRate() float64 {
	return c.opt.cfg.LearningRate
}

func (c *Classifier) SetLearningRate(lr float64) {
	c.opt.cfg.LearningRate = lr
}

// Features runs the frozen backbone.
func (c *Classifier) Features(img *imageio.Tensor) []float64 {
	return c.backbone.Features(img)
}

// Predict returns class probabilities for one preprocessed image.
func (c *Classifier) Predict(img *imageio.Tensor) []float64 {
	return c.PredictFeatures(c.Features(img))
}

// PredictFeatures runs the head without dropout.
func (c *Classifier) PredictFeatures(f []float64) []float64 {
	h := f
	for _, l := range c.layers {
		h = l.forward(h)
	}
	return h
}

// TrainBatch performs one Adam step on the mean cross-entropy of the batch
// and returns the batch loss and accuracy measured during the step.
func (c *Classifier) TrainBatch(features [][]float64, labels []int) (loss, acc float64, err error) {
	if len(features) != len(labels) || len(features) == 0 {
		return 0, 0, fmt.Errorf("%w: %d samples, %d labels", ErrShapeMismatch, len(features), len(labels))
	}

	n := len(c.layers)
	var params, grads [][]float64
	gw := make([][]float64, n)
	gb := make([][]float64, n)
	for i, l := range c.layers {
		gw[i] = make([]float64, len(l.W))
		gb[i] = make([]float64, len(l.B))
		params = append(params, l.W, l.B)
		grads = append(grads, gw[i], gb[i])
	}

	scale := 1 / float64(len(features))
	var correct int
	inputs := make([][]float64, n)
	acts := make([][]float64, n-1)
	masks := make([][]float64, n-1)

	for s, x := range features {
		y := labels[s]
		if y < 0 || y >= c.numClasses {
			return 0, 0, fmt.Errorf("%w: label %d outside [0, %d)", ErrShapeMismatch, y, c.numClasses)
		}
		if len(x) != c.layers[0].In {
			return 0, 0, fmt.Errorf("%w: feature width %d, want %d", ErrShapeMismatch, len(x), c.layers[0].In)
		}

		h := x
		var probs []float64
		for i, l := range c.layers {
			inputs[i] = h
			a := l.forward(h)
			if i == n-1 {
				probs = a
				break
			}
			acts[i] = a
			masks[i] = c.dropoutMask(len(a), c.dropout[i])
			h = make([]float64, len(a))
			for j := range a {
				h[j] = a[j] * masks[i][j]
			}
		}

		loss += crossEntropy(probs, y)
		if argmax(probs) == y {
			correct++
		}

		g := make([]float64, len(probs))
		for j, p := range probs {
			g[j] = p * scale
		}
		g[y] -= scale

		for i := n - 1; i >= 0; i-- {
			gx := c.layers[i].backward(inputs[i], g, gw[i], gb[i])
			if i == 0 {
				break
			}
			for j := range gx {
				if acts[i-1][j] <= 0 {
					gx[j] = 0
				} else {
					gx[j] *= masks[i-1][j]
				}
			}
			g = gx
		}
	}

	c.opt.step(params, grads)
	return loss * scale, float64(correct) * scale, nil
}

// dropoutMask returns inverted-dropout multipliers: 0 or 1/(1-rate).
func (c *Classifier) dropoutMask(size int, rate float64) []float64 {
	m := make([]float64, size)
	keep := 1 / (1 - rate)
	for i := range m {
		if rate == 0 || c.rng.Float64() >= rate {
			m[i] = keep
		}
	}
	return m
}

// Evaluate returns mean cross-entropy and accuracy without dropout.
func (c *Classifier) Evaluate(features [][]float64, labels []int) (loss, acc float64) {
	if len(features) == 0 {
		return 0, 0
	}
	var correct int
	for i, f := range features {
		p := c.PredictFeatures(f)
		loss += crossEntropy(p, labels[i])
		if argmax(p) == labels[i] {
			correct++
		}
	}
	n := float64(len(features))
	return loss / n, float64(correct) / n
}

// HeadWeights is a copy of the trainable parameters.
type HeadWeights struct {
	layers []*Dense
}

func (c *Classifier) Snapshot() HeadWeights {
	hw := HeadWeights{layers: make([]*Dense, len(c.layers))}
	for i, l := range c.layers {
		hw.layers[i] = l.clone()
	}
	return hw
}

func (c *Classifier) Restore(hw HeadWeights) {
	if len(hw.layers) != len(c.layers) {
		return
	}
	for i, l := range hw.layers {
		c.layers[i] = l.clone()
	}
	// optimizer moments index the old slices
	c.resetOptimizer(c.opt.cfg)
}

type ParamCount struct {
	Total     int `json:"total"`
	Trainable int `json:"trainable"`
	Frozen    int `json:"frozen"`
}

func (c *Classifier) ParamCount() ParamCount {
	var pc ParamCount
	for _, l := range c.layers {
		pc.Trainable += len(l.W) + len(l.B)
	}
	pc.Frozen = c.backbone.ParamCount()
	pc.Total = pc.Trainable + pc.Frozen
	return pc
}

// LayerSummary describes one layer for logs and the /model endpoint.
type LayerSummary struct {
	Name      string `json:"name"`
	Output    int    `json:"output"`
	Params    int    `json:"params"`
	Trainable bool   `json:"trainable"`
}

func (c *Classifier) Summary() []LayerSummary {
	out := []LayerSummary{{
		Name:   c.backbone.Name() + "+global_avg_pool",
		Output: c.backbone.OutputDim(),
		Params: c.backbone.ParamCount(),
	}}
	for i, l := range c.layers {
		name := fmt.Sprintf("dense_%d(%s)", i, l.Activation)
		if i < len(c.dropout) {
			name += fmt.Sprintf("+dropout(%.2f)", c.dropout[i])
		}
		out = append(out, LayerSummary{
			Name:      name,
			Output:    l.Out,
			Params:    len(l.W) + len(l.B),
			Trainable: true,
		})
	}
	return out
}

type classifierState struct {
	Version    int             `json:"version"`
	NumClasses int             `json:"num_classes"`
	Backbone   json.RawMessage `json:"backbone"`
	Layers     []*Dense        `json:"layers"`
	Dropout    []float64       `json:"dropout"`
	Adam       AdamConfig      `json:"adam"`
}

func (c *Classifier) Save(w io.Writer) error {
	var bb bytes.Buffer
	if err := c.backbone.Save(&bb); err != nil {
		return fmt.Errorf("failed to encode backbone: %w", err)
	}

	state := classifierState{
		Version:    formatVersion,
		NumClasses: c.numClasses,
		Backbone:   bytes.TrimSpace(bb.Bytes()),
		Layers:     c.layers,
		Dropout:    c.dropout,
		Adam:       c.opt.cfg,
	}
	return json.NewEncoder(w).Encode(state)
}

// Load replaces the classifier with the state written by Save.
func (c *Classifier) Load(r io.Reader) error {
	var state classifierState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return err
	}
	if state.Version != formatVersion {
		return fmt.Errorf("unsupported classifier version %d", state.Version)
	}

	var head backboneState
	if err := json.Unmarshal(state.Backbone, &head); err != nil {
		return fmt.Errorf("failed to decode backbone: %w", err)
	}
	var backbone Backbone
	switch head.Name {
	case (&ConvBackbone{}).Name():
		cb := &ConvBackbone{}
		if err := cb.setState(head); err != nil {
			return err
		}
		backbone = cb
	default:
		return fmt.Errorf("unknown backbone %q", head.Name)
	}

	if err := validateHead(state, backbone.OutputDim()); err != nil {
		return err
	}

	c.backbone = backbone
	c.layers = state.Layers
	c.dropout = state.Dropout
	c.numClasses = state.NumClasses
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(0, 0x5bd1e995))
	}
	c.resetOptimizer(state.Adam)
	return nil
}

func validateHead(s classifierState, in int) error {
	if len(s.Layers) == 0 || len(s.Dropout) != len(s.Layers)-1 {
		return fmt.Errorf("%w: %d layers with %d dropout rates", ErrShapeMismatch, len(s.Layers), len(s.Dropout))
	}
	for i, l := range s.Layers {
		if l == nil || l.In != in || len(l.W) != l.In*l.Out || len(l.B) != l.Out {
			return fmt.Errorf("%w: layer %d", ErrShapeMismatch, i)
		}
		in = l.Out
	}
	if in != s.NumClasses {
		return fmt.Errorf("%w: output width %d, %d classes", ErrShapeMismatch, in, s.NumClasses)
	}
	return nil
}
