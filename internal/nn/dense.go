package nn

import (
	"math"
	"math/rand/v2"
)

type Activation string

const (
	ActivationReLU    Activation = "relu"
	ActivationSoftmax Activation = "softmax"
)

// Dense is a fully connected layer. W is stored row-major as [in][out].
type Dense struct {
	In         int        `json:"in"`
	Out        int        `json:"out"`
	W          []float64  `json:"w"`
	B          []float64  `json:"b"`
	Activation Activation `json:"activation"`
}

// NewDense uses Glorot-uniform kernels and zero biases.
func NewDense(in, out int, act Activation, rng *rand.Rand) *Dense {
	d := &Dense{
		In:         in,
		Out:        out,
		W:          make([]float64, in*out),
		B:          make([]float64, out),
		Activation: act,
	}
	limit := math.Sqrt(6 / float64(in+out))
	for i := range d.W {
		d.W[i] = (rng.Float64()*2 - 1) * limit
	}
	return d
}

// forward computes the activated output of one sample.
func (d *Dense) forward(x []float64) []float64 {
	z := make([]float64, d.Out)
	copy(z, d.B)
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		row := d.W[i*d.Out : (i+1)*d.Out]
		for j, w := range row {
			z[j] += xi * w
		}
	}

	switch d.Activation {
	case ActivationReLU:
		for j, v := range z {
			if v < 0 {
				z[j] = 0
			}
		}
	case ActivationSoftmax:
		softmax(z)
	}
	return z
}

// backward accumulates parameter gradients for one sample and returns the
// gradient with respect to x. gz is the gradient at the pre-activation.
func (d *Dense) backward(x, gz []float64, gw, gb []float64) []float64 {
	gx := make([]float64, d.In)
	for j, g := range gz {
		gb[j] += g
	}
	for i, xi := range x {
		row := d.W[i*d.Out : (i+1)*d.Out]
		grow := gw[i*d.Out : (i+1)*d.Out]
		var s float64
		for j, g := range gz {
			grow[j] += xi * g
			s += row[j] * g
		}
		gx[i] = s
	}
	return gx
}

func (d *Dense) clone() *Dense {
	c := *d
	c.W = append([]float64(nil), d.W...)
	c.B = append([]float64(nil), d.B...)
	return &c
}

func softmax(z []float64) {
	maxV := math.Inf(-1)
	for _, v := range z {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range z {
		z[i] = math.Exp(v - maxV)
		sum += z[i]
	}
	for i := range z {
		z[i] /= sum
	}
}

// crossEntropy is -log p[label], clipped away from log(0).
func crossEntropy(p []float64, label int) float64 {
	const eps = 1e-7
	v := p[label]
	if v < eps {
		v = eps
	}
	return -math.Log(v)
}

func argmax(p []float64) int {
	best := 0
	for i, v := range p {
		if v > p[best] {
			best = i
		}
	}
	return best
}
