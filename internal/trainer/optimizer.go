package trainer

import "math"

// #region adamw

// AdamW is a decoupled-weight-decay Adam optimizer over a flat parameter
// vector. Moment buffers are reset when the parameter count changes, which
// happens when the vocabulary grows.
type AdamW struct {
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	m []float64
	v []float64
	t int
}

// NewAdamW returns an optimizer with standard hyperparameters.
func NewAdamW() *AdamW {
	return &AdamW{
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: 0.01,
	}
}

// Step computes the parameter update for one gradient at the given learning
// rate. The returned slice is the signed delta to add to the weights.
func (o *AdamW) Step(weights, grad []float64, lr float64) []float64 {
	if len(o.m) != len(grad) {
		o.m = make([]float64, len(grad))
		o.v = make([]float64, len(grad))
		o.t = 0
	}
	o.t++

	c1 := 1 - math.Pow(o.Beta1, float64(o.t))
	c2 := 1 - math.Pow(o.Beta2, float64(o.t))

	update := make([]float64, len(grad))
	for i, g := range grad {
		o.m[i] = o.Beta1*o.m[i] + (1-o.Beta1)*g
		o.v[i] = o.Beta2*o.v[i] + (1-o.Beta2)*g*g
		mhat := o.m[i] / c1
		vhat := o.v[i] / c2
		update[i] = -lr * (mhat/(math.Sqrt(vhat)+o.Eps) + o.WeightDecay*weights[i])
	}
	return update
}

// #endregion adamw

// #region clip

// clipL2 scales vec in place so its L2 norm does not exceed maxNorm.
func clipL2(vec []float64, maxNorm float64) {
	if maxNorm <= 0 {
		return
	}
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm <= maxNorm {
		return
	}
	scale := maxNorm / norm
	for i := range vec {
		vec[i] *= scale
	}
}

// #endregion clip
