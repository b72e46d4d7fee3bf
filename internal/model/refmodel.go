package model

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// #region ref-model

// RefModel is the reference student: frozen deterministic embeddings mean-
// pooled into a hidden state, an optional adapter residual, and a trainable
// hidden×vocab output projection. It exists so the loop runs end to end
// without an external inference service; a real backend satisfies the same
// Model interface.
type RefModel struct {
	mu        sync.Mutex
	hidden    int
	vocab     int
	proj      [][]float64 // hidden rows, vocab columns
	adapterFn func(pre []float64) []float64
}

// NewRefModel creates a model with the given hidden size and initial vocab.
func NewRefModel(hidden, vocab int) *RefModel {
	m := &RefModel{hidden: hidden}
	m.growVocab(vocab)
	return m
}

// SetAdapterFn installs the active-adapter residual hook. A nil fn clears it.
func (m *RefModel) SetAdapterFn(fn func(pre []float64) []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapterFn = fn
}

// #endregion ref-model

// #region forward-pass

// Forward mean-pools token embeddings into a hidden state, applies the
// adapter residual if installed, and projects to vocab logits.
func (m *RefModel) Forward(tokens []int) (ForwardResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pre := make([]float64, m.hidden)
	count := 0
	for _, id := range tokens {
		if id == TokenPad {
			continue
		}
		if id >= m.vocab {
			m.growVocab(id + 1)
		}
		for d := 0; d < m.hidden; d++ {
			pre[d] += embeddingValue(id, d)
		}
		count++
	}
	if count > 0 {
		for d := range pre {
			pre[d] /= float64(count)
		}
	}

	h := pre
	if m.adapterFn != nil {
		delta := m.adapterFn(pre)
		h = make([]float64, m.hidden)
		for d := range h {
			h[d] = pre[d] + delta[d]
		}
	}

	logits := make([]float64, m.vocab)
	for d := 0; d < m.hidden; d++ {
		row := m.proj[d]
		hv := h[d]
		for v := range row {
			logits[v] += hv * row[v]
		}
	}

	return ForwardResult{Logits: logits, Hidden: h, PreAdapterHidden: pre}, nil
}

// #endregion forward-pass

// #region projection

// ProjectionShape implements Model.
func (m *RefModel) ProjectionShape() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden, m.vocab
}

// ProjectionWeights returns a flat row-major copy of the projection.
func (m *RefModel) ProjectionWeights() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	flat := make([]float64, m.hidden*m.vocab)
	for d := 0; d < m.hidden; d++ {
		copy(flat[d*m.vocab:(d+1)*m.vocab], m.proj[d])
	}
	return flat
}

// ApplyProjectionUpdate adds a flat row-major update to the projection.
func (m *RefModel) ApplyProjectionUpdate(update []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(update) != m.hidden*m.vocab {
		return fmt.Errorf("projection update size %d, want %d×%d", len(update), m.hidden, m.vocab)
	}
	for d := 0; d < m.hidden; d++ {
		row := m.proj[d]
		for v := range row {
			row[v] += update[d*m.vocab+v]
		}
	}
	return nil
}

// EnsureVocab grows the projection's vocab dimension to at least v.
func (m *RefModel) EnsureVocab(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v > m.vocab {
		m.growVocab(v)
	}
}

// growVocab extends every projection row with zero columns. Caller holds mu.
func (m *RefModel) growVocab(v int) {
	if m.proj == nil {
		m.proj = make([][]float64, m.hidden)
	}
	for d := 0; d < m.hidden; d++ {
		row := make([]float64, v)
		copy(row, m.proj[d])
		m.proj[d] = row
	}
	m.vocab = v
}

// #endregion projection

// #region snapshot

// Snapshot implements Model.
func (m *RefModel) Snapshot() Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	flat := make([]float64, m.hidden*m.vocab)
	for d := 0; d < m.hidden; d++ {
		copy(flat[d*m.vocab:(d+1)*m.vocab], m.proj[d])
	}
	return Checkpoint{
		Config: map[string]any{
			"hidden": m.hidden,
			"vocab":  m.vocab,
		},
		Tensors: []Tensor{
			{Name: "output_projection", Shape: []int{m.hidden, m.vocab}, Data: flat},
		},
	}
}

// #endregion snapshot

// #region embeddings

// embeddingValue derives a frozen pseudo-random embedding component in
// [-0.5, 0.5) from the (token, dimension) pair.
func embeddingValue(token, dim int) float64 {
	h := fnv.New64a()
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(token >> (8 * i))
		buf[8+i] = byte(dim >> (8 * i))
	}
	h.Write(buf[:])
	bits := h.Sum64() >> 11 // 53 usable bits
	return float64(bits)/float64(1<<53) - 0.5
}

// #endregion embeddings
