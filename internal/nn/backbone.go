// Package nn holds the image classifier: a frozen convolutional feature
// extractor followed by a small dense head trained with Adam.
package nn

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"

	"github.com/haskel/foodia/internal/imageio"
)

// Backbone extracts a pooled feature vector from a preprocessed image. Its
// weights never change after construction.
type Backbone interface {
	Name() string
	OutputDim() int
	ParamCount() int
	Features(img *imageio.Tensor) []float64
	Save(w io.Writer) error
}

type convLayer struct {
	InC    int       `json:"in_channels"`
	OutC   int       `json:"out_channels"`
	Kernel []float32 `json:"kernel"` // [ky][kx][in][out]
	Bias   []float32 `json:"bias"`
}

const (
	kernelSize = 3
	stride     = 2
	relu6Cap   = 6
)

// ConvBackbone is a stack of 3x3 stride-2 convolutions with same padding and
// ReLU6, followed by global average pooling.
type ConvBackbone struct {
	layers []convLayer
}

type backboneState struct {
	Name   string      `json:"name"`
	Layers []convLayer `json:"layers"`
}

// NewConvBackbone builds a backbone with He-normal kernels drawn from seed.
func NewConvBackbone(channels []int, seed uint64) (*ConvBackbone, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("backbone needs at least one layer")
	}

	rng := rand.New(rand.NewPCG(seed, seed+1))
	b := &ConvBackbone{}
	in := imageio.Channels
	for i, out := range channels {
		if out <= 0 {
			return nil, fmt.Errorf("layer %d: invalid channel count %d", i, out)
		}
		fanIn := float64(kernelSize * kernelSize * in)
		std := math.Sqrt(2 / fanIn)

		l := convLayer{
			InC:    in,
			OutC:   out,
			Kernel: make([]float32, kernelSize*kernelSize*in*out),
			Bias:   make([]float32, out),
		}
		for k := range l.Kernel {
			l.Kernel[k] = float32(rng.NormFloat64() * std)
		}
		b.layers = append(b.layers, l)
		in = out
	}
	return b, nil
}

// LoadConvBackbone reads pretrained weights written by Save.
func LoadConvBackbone(path string) (*ConvBackbone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backbone weights: %w", err)
	}
	defer f.Close()

	b := &ConvBackbone{}
	if err := b.Load(f); err != nil {
		return nil, fmt.Errorf("failed to load backbone weights %s: %w", path, err)
	}
	return b, nil
}

func (b *ConvBackbone) Name() string {
	return "conv_backbone"
}

func (b *ConvBackbone) OutputDim() int {
	if len(b.layers) == 0 {
		return 0
	}
	return b.layers[len(b.layers)-1].OutC
}

func (b *ConvBackbone) ParamCount() int {
	n := 0
	for _, l := range b.layers {
		n += len(l.Kernel) + len(l.Bias)
	}
	return n
}

// Channels returns the output width of every layer.
func (b *ConvBackbone) Channels() []int {
	out := make([]int, len(b.layers))
	for i, l := range b.layers {
		out[i] = l.OutC
	}
	return out
}

// Features runs the convolutions and averages the last feature map over
// its spatial positions.
func (b *ConvBackbone) Features(img *imageio.Tensor) []float64 {
	h, w := img.Height, img.Width
	x := img.Data
	for _, l := range b.layers {
		x, h, w = l.forward(x, h, w)
	}

	c := b.OutputDim()
	pooled := make([]float64, c)
	n := h * w
	if n == 0 {
		return pooled
	}
	for p := 0; p < n; p++ {
		row := x[p*c : (p+1)*c]
		for ch, v := range row {
			pooled[ch] += float64(v)
		}
	}
	for ch := range pooled {
		pooled[ch] /= float64(n)
	}
	return pooled
}

// samePadding mirrors the usual "same" convention: output is ceil(in/stride)
// and the extra padding goes to the bottom/right.
func samePadding(in int) (out, before int) {
	out = (in + stride - 1) / stride
	total := (out-1)*stride + kernelSize - in
	if total < 0 {
		total = 0
	}
	return out, total / 2
}

func (l *convLayer) forward(x []float32, h, w int) ([]float32, int, int) {
	oh, padT := samePadding(h)
	ow, padL := samePadding(w)
	out := make([]float32, oh*ow*l.OutC)
	acc := make([]float32, l.OutC)

	for oy := 0; oy < oh; oy++ {
		for ox := 0; ox < ow; ox++ {
			copy(acc, l.Bias)
			for ky := 0; ky < kernelSize; ky++ {
				iy := oy*stride + ky - padT
				if iy < 0 || iy >= h {
					continue
				}
				for kx := 0; kx < kernelSize; kx++ {
					ix := ox*stride + kx - padL
					if ix < 0 || ix >= w {
						continue
					}
					in := x[(iy*w+ix)*l.InC : (iy*w+ix+1)*l.InC]
					base := (ky*kernelSize + kx) * l.InC * l.OutC
					for ci, v := range in {
						if v == 0 {
							continue
						}
						k := l.Kernel[base+ci*l.OutC : base+(ci+1)*l.OutC]
						for co := range acc {
							acc[co] += v * k[co]
						}
					}
				}
			}
			dst := out[(oy*ow+ox)*l.OutC : (oy*ow+ox+1)*l.OutC]
			for co, v := range acc {
				switch {
				case v < 0:
					v = 0
				case v > relu6Cap:
					v = relu6Cap
				}
				dst[co] = v
			}
		}
	}
	return out, oh, ow
}

func (b *ConvBackbone) state() backboneState {
	return backboneState{Name: b.Name(), Layers: b.layers}
}

func (b *ConvBackbone) setState(s backboneState) error {
	if len(s.Layers) == 0 {
		return fmt.Errorf("backbone has no layers")
	}
	in := imageio.Channels
	for i, l := range s.Layers {
		if l.InC != in || l.OutC <= 0 {
			return fmt.Errorf("layer %d: channels %d->%d do not chain from %d", i, l.InC, l.OutC, in)
		}
		if len(l.Kernel) != kernelSize*kernelSize*l.InC*l.OutC || len(l.Bias) != l.OutC {
			return fmt.Errorf("layer %d: weight shape mismatch", i)
		}
		in = l.OutC
	}
	b.layers = s.Layers
	return nil
}

func (b *ConvBackbone) Save(w io.Writer) error {
	return json.NewEncoder(w).Encode(b.state())
}

func (b *ConvBackbone) Load(r io.Reader) error {
	var s backboneState
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return err
	}
	return b.setState(s)
}
