package train

import "math"

// plateauMinDelta is the smallest loss drop ReduceLROnPlateau counts as an
// improvement.
const plateauMinDelta = 1e-4

// EarlyStopping tracks validation loss and asks to stop after Patience epochs
// without an improvement. Any drop counts unless MinDelta is set, in which
// case the loss has to fall by more than MinDelta.
type EarlyStopping struct {
	Patience int
	MinDelta float64

	best      float64
	bestEpoch int
	wait      int
	started   bool
}

// Observe returns improved when loss is the new best and stop when training
// should end.
func (e *EarlyStopping) Observe(epoch int, loss float64) (improved, stop bool) {
	if !e.started || loss < e.best-e.MinDelta {
		e.started = true
		e.best = loss
		e.bestEpoch = epoch
		e.wait = 0
		return true, false
	}
	e.wait++
	return false, e.wait >= e.Patience
}

func (e *EarlyStopping) Best() (epoch int, loss float64) {
	if !e.started {
		return -1, math.Inf(1)
	}
	return e.bestEpoch, e.best
}

// ReduceLROnPlateau multiplies the learning rate by Factor after Patience
// epochs without improvement, never going below MinLR.
type ReduceLROnPlateau struct {
	Factor   float64
	Patience int
	MinLR    float64

	best    float64
	wait    int
	started bool
}

// Observe returns the learning rate to use for the next epoch.
func (r *ReduceLROnPlateau) Observe(loss, lr float64) float64 {
	if !r.started || loss < r.best-plateauMinDelta {
		r.started = true
		r.best = loss
		r.wait = 0
		return lr
	}

	r.wait++
	if r.wait < r.Patience || lr <= r.MinLR {
		return lr
	}
	r.wait = 0
	return math.Max(lr*r.Factor, r.MinLR)
}
