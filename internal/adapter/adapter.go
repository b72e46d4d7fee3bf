// Package adapter implements a low-rank residual transform over the student
// model's hidden state, with a Fisher-diagonal importance estimate that damps
// updates to dimensions the adapter has historically relied on.
package adapter

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync"
)

// #region config

// Config sizes and tunes one adapter.
type Config struct {
	Hidden      int
	Rank        int
	Alpha       float64 // residual scale numerator; delta is scaled by Alpha/Rank
	EWCLambda   float64 // damping floor added to fisher before dividing gradients
	StepSize    float64 // fixed step for gradient distribution
	FisherDecay float64 // exponential smoothing decay for fisher updates
}

// DefaultConfig returns standard low-rank settings for the given hidden size.
func DefaultConfig(hidden int) Config {
	return Config{
		Hidden:      hidden,
		Rank:        8,
		Alpha:       16,
		EWCLambda:   0.1,
		StepSize:    0.01,
		FisherDecay: 0.9,
	}
}

// #endregion config

// #region adapter

// Adapter holds the two low-rank matrices and the per-dimension importance
// vector. All operations on one instance are serialized.
type Adapter struct {
	mu     sync.Mutex
	name   string
	config Config
	down   []float64 // hidden×rank, row-major by hidden dim
	up     []float64 // rank×hidden, row-major by rank
	fisher []float64 // hidden
}

// New creates a named adapter. The down projection is seeded with small
// deterministic values and the up projection starts at zero, so the initial
// residual is exactly zero.
func New(name string, config Config) *Adapter {
	a := &Adapter{
		name:   name,
		config: config,
		down:   make([]float64, config.Hidden*config.Rank),
		up:     make([]float64, config.Rank*config.Hidden),
		fisher: make([]float64, config.Hidden),
	}
	for i := range a.down {
		a.down[i] = seedValue(name, i) * 0.02
	}
	return a
}

// Name returns the adapter's registry name.
func (a *Adapter) Name() string { return a.name }

// #endregion adapter

// #region project

// Project down-projects the hidden vector to rank dimensions, up-projects
// back, and scales by Alpha/Rank.
func (a *Adapter) Project(activations []float64) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(activations) != a.config.Hidden {
		return nil, fmt.Errorf("activation size %d, adapter hidden %d", len(activations), a.config.Hidden)
	}

	low := make([]float64, a.config.Rank)
	for d := 0; d < a.config.Hidden; d++ {
		av := activations[d]
		for r := 0; r < a.config.Rank; r++ {
			low[r] += av * a.down[d*a.config.Rank+r]
		}
	}

	scale := a.config.Alpha / float64(a.config.Rank)
	delta := make([]float64, a.config.Hidden)
	for r := 0; r < a.config.Rank; r++ {
		lv := low[r]
		for d := 0; d < a.config.Hidden; d++ {
			delta[d] += lv * a.up[r*a.config.Hidden+d]
		}
	}
	for d := range delta {
		delta[d] *= scale
	}
	return delta, nil
}

// #endregion project

// #region gradient

// ApplyGradient divides each hidden dimension's gradient by
// (fisher[dim] + lambda) and distributes it across both matrices at the fixed
// step size. A dimension the adapter leans on heavily receives a smaller
// update.
func (a *Adapter) ApplyGradient(gradient []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(gradient) != a.config.Hidden {
		return fmt.Errorf("gradient size %d, adapter hidden %d", len(gradient), a.config.Hidden)
	}

	for d := 0; d < a.config.Hidden; d++ {
		damped := gradient[d] / (a.fisher[d] + a.config.EWCLambda)
		step := a.config.StepSize * damped
		for r := 0; r < a.config.Rank; r++ {
			a.down[d*a.config.Rank+r] -= step
			a.up[r*a.config.Hidden+d] -= step
		}
	}
	return nil
}

// UpdateStatistics exponentially smooths fisher toward the squared activation
// magnitude per dimension.
func (a *Adapter) UpdateStatistics(activations []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(activations) != a.config.Hidden {
		return fmt.Errorf("activation size %d, adapter hidden %d", len(activations), a.config.Hidden)
	}
	decay := a.config.FisherDecay
	for d := 0; d < a.config.Hidden; d++ {
		a.fisher[d] = decay*a.fisher[d] + (1-decay)*activations[d]*activations[d]
	}
	return nil
}

// #endregion gradient

// #region norm

// Norm reports the combined L2 norm of both matrices, used as a drift signal.
func (a *Adapter) Norm() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var sum float64
	for _, v := range a.down {
		sum += v * v
	}
	for _, v := range a.up {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// #endregion norm

// #region seed

// seedValue derives a deterministic value in [-0.5, 0.5) from the adapter
// name and element index.
func seedValue(name string, i int) float64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	var buf [8]byte
	for b := 0; b < 8; b++ {
		buf[b] = byte(i >> (8 * b))
	}
	h.Write(buf[:])
	bits := h.Sum64() >> 11
	return float64(bits)/float64(1<<53) - 0.5
}

// #endregion seed
