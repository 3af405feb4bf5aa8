package nn

import "math"

// AdamConfig holds the optimizer hyperparameters.
type AdamConfig struct {
	LearningRate float64 `json:"learning_rate"`
	Beta1        float64 `json:"beta1"`
	Beta2        float64 `json:"beta2"`
	Epsilon      float64 `json:"epsilon"`
}

func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
	}
}

// adam keeps first and second moment estimates for a list of parameter
// slices, indexed in the order they were registered.
type adam struct {
	cfg AdamConfig
	m   [][]float64
	v   [][]float64
	t   int
}

func newAdam(cfg AdamConfig, sizes []int) *adam {
	a := &adam{cfg: cfg}
	for _, n := range sizes {
		a.m = append(a.m, make([]float64, n))
		a.v = append(a.v, make([]float64, n))
	}
	return a
}

// step applies one update. params[i] and grads[i] must match the size
// registered for slot i.
func (a *adam) step(params, grads [][]float64) {
	a.t++
	b1, b2 := a.cfg.Beta1, a.cfg.Beta2
	lr := a.cfg.LearningRate * math.Sqrt(1-math.Pow(b2, float64(a.t))) / (1 - math.Pow(b1, float64(a.t)))

	for s := range params {
		p, g, m, v := params[s], grads[s], a.m[s], a.v[s]
		for i := range p {
			m[i] = b1*m[i] + (1-b1)*g[i]
			v[i] = b2*v[i] + (1-b2)*g[i]*g[i]
			p[i] -= lr * m[i] / (math.Sqrt(v[i]) + a.cfg.Epsilon)
		}
	}
}
