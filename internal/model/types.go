// Package model defines the external-collaborator boundary of the learning
// loop: the student model, the tokenizer, the remote teacher, and the policy
// governor. The trainer and autopilot program against these interfaces only.
package model

import "context"

// #region forward

// ForwardResult is the output of one model forward pass.
type ForwardResult struct {
	Logits           []float64 // vocab-sized next-token scores
	Hidden           []float64 // hidden state after adapter residual
	PreAdapterHidden []float64 // hidden state before adapter residual
}

// #endregion forward

// #region model-interface

// Model is the student sequence model. The trainer only ever updates the
// output-projection weights; everything else behind Forward is opaque.
type Model interface {
	// Forward runs the model over a token sequence.
	Forward(tokens []int) (ForwardResult, error)

	// ProjectionShape returns the (hidden, vocab) dimensions of the
	// output projection. Vocab is resizable between calls.
	ProjectionShape() (hidden, vocab int)

	// ProjectionWeights returns a row-major copy of the hidden×vocab
	// projection matrix.
	ProjectionWeights() []float64

	// ApplyProjectionUpdate adds a row-major hidden×vocab update in place.
	ApplyProjectionUpdate(update []float64) error

	// EnsureVocab grows the vocab dimension to at least v.
	EnsureVocab(v int)

	// Snapshot captures config and per-tensor shape/data for checkpointing.
	Snapshot() Checkpoint
}

// #endregion model-interface

// #region tokenizer-interface

// Tokenizer converts between text and token ids. Implementations reserve
// fixed ids for pad, end, and unknown.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	VocabSize() int
	PadID() int
	EndID() int
	UnknownID() int
}

// #endregion tokenizer-interface

// #region teacher-interface

// TeacherClient returns an optional response for a prompt. Absence of data
// (unreachable teacher, empty response) is reported as ok=false, never as an
// error.
type TeacherClient interface {
	Complete(ctx context.Context, prompt string) (response string, ok bool)
}

// TeacherFunc adapts a plain function to TeacherClient.
type TeacherFunc func(ctx context.Context, prompt string) (string, bool)

// Complete implements TeacherClient.
func (f TeacherFunc) Complete(ctx context.Context, prompt string) (string, bool) {
	return f(ctx, prompt)
}

// #endregion teacher-interface

// #region governor-interface

// Verdict is the outcome of a policy-governor validation.
type Verdict struct {
	Allowed    bool
	Violations []string
}

// PolicyGovernor validates candidate text against an optional schema.
type PolicyGovernor interface {
	Validate(text, schema string) Verdict
}

// #endregion governor-interface

// #region checkpoint

// Tensor is one named weight tensor in a checkpoint.
type Tensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Checkpoint is a structured snapshot of model config and weights.
type Checkpoint struct {
	Config  map[string]any `json:"config"`
	Tensors []Tensor       `json:"tensors"`
}

// #endregion checkpoint
