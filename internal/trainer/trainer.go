// Package trainer turns batches of curated examples into projection-weight
// updates under a warmup-cosine schedule that retunes itself from observed
// loss and throughput trends.
package trainer

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/danielpatrickdp/student-loop/internal/adapter"
	"github.com/danielpatrickdp/student-loop/internal/curator"
	"github.com/danielpatrickdp/student-loop/internal/model"
)

// #region trainer

// Trainer drives training steps against the student model's output
// projection. One instance serializes all of its operations.
type Trainer struct {
	mu       sync.Mutex
	model    model.Model
	tok      model.Tokenizer
	adapters *adapter.Manager
	opt      *AdamW
	sched    *Scheduler
	config   Config

	lr   float64
	step int

	lossWindow       []float64
	throughputWindow []float64
	lastRetuneStep   int

	hitRateHistory     []float64
	adapterNormHistory []float64
}

// New creates a trainer. The adapter manager may be nil when no adapters are
// in play.
func New(m model.Model, tok model.Tokenizer, adapters *adapter.Manager, config Config) *Trainer {
	return &Trainer{
		model:          m,
		tok:            tok,
		adapters:       adapters,
		opt:            NewAdamW(),
		sched:          NewScheduler(),
		config:         config,
		lr:             config.LearningRate,
		lastRetuneStep: -config.RetuneCooldown,
	}
}

// Step returns the global step counter.
func (t *Trainer) Step() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.step
}

// LearningRate returns the current (retuned) base learning rate.
func (t *Trainer) LearningRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lr
}

// Scheduler returns a snapshot of the schedule settings. A copy, so callers
// never observe the retune loop's in-place mutations.
func (t *Trainer) Scheduler() Scheduler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.sched
}

// #endregion trainer

// #region train-on-batch

// TrainOnBatch runs forward/backward over every unmasked target position in
// the batch, applies one clipped AdamW step to the projection weights plus a
// damped low-rank step to the active adapter, and feeds the retuning loop.
func (t *Trainer) TrainOnBatch(batch []curator.TrainingExample) (BatchReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(batch) == 0 {
		return BatchReport{}, fmt.Errorf("empty batch")
	}

	started := time.Now()
	inputs, targets, masks := t.buildBatch(batch)

	hidden, _ := t.model.ProjectionShape()
	t.model.EnsureVocab(t.tok.VocabSize())
	_, vocab := t.model.ProjectionShape()

	var active *adapter.Adapter
	if t.adapters != nil {
		active = t.adapters.Active()
	}

	projGrad := make([]float64, hidden*vocab)
	var hiddenGrad []float64
	var weights []float64
	if active != nil {
		hiddenGrad = make([]float64, hidden)
		weights = t.model.ProjectionWeights()
	}
	var totalLoss float64
	tokens := 0

	for i := range inputs {
		for pos := range targets[i] {
			if !masks[i][pos] {
				continue
			}
			context := make([]int, 0, len(inputs[i])+pos)
			context = append(context, inputs[i]...)
			context = append(context, targets[i][:pos]...)
			context = truncateContext(context, t.config.ContextLen)
			result, err := t.model.Forward(context)
			if err != nil {
				return BatchReport{}, fmt.Errorf("forward: %w", err)
			}

			if active != nil {
				if err := active.UpdateStatistics(result.PreAdapterHidden); err != nil {
					return BatchReport{}, fmt.Errorf("adapter statistics: %w", err)
				}
			}

			target := targets[i][pos]
			grad, loss := crossEntropyGrad(result.Logits, target, t.config.LabelSmoothing)
			clipL2(grad, t.config.MaxGradNorm)

			for d := 0; d < hidden; d++ {
				hv := result.Hidden[d]
				if hv == 0 {
					continue
				}
				row := projGrad[d*vocab : (d+1)*vocab]
				for v, g := range grad {
					row[v] += hv * g
				}
			}

			// Backprop through the projection into the hidden state for the
			// active adapter: dL/dh = W · dL/dlogits.
			if active != nil {
				for d := 0; d < hidden; d++ {
					row := weights[d*vocab : (d+1)*vocab]
					var sum float64
					for v, g := range grad {
						sum += row[v] * g
					}
					hiddenGrad[d] += sum
				}
			}

			totalLoss += loss
			tokens++
		}
	}

	if tokens == 0 {
		return BatchReport{}, fmt.Errorf("batch has no target tokens")
	}

	inv := 1 / float64(tokens)
	for i := range projGrad {
		projGrad[i] *= inv
	}
	clipL2(projGrad, t.config.MaxGradNorm)

	lr := t.lr * t.sched.Scale(t.step)
	update := t.opt.Step(t.model.ProjectionWeights(), projGrad, lr)
	if err := t.model.ApplyProjectionUpdate(update); err != nil {
		return BatchReport{}, fmt.Errorf("apply update: %w", err)
	}

	if active != nil {
		for d := range hiddenGrad {
			hiddenGrad[d] *= inv
		}
		clipL2(hiddenGrad, t.config.MaxGradNorm)
		if err := active.ApplyGradient(hiddenGrad); err != nil {
			return BatchReport{}, fmt.Errorf("adapter gradient: %w", err)
		}
	}

	t.step++
	meanLoss := totalLoss / float64(tokens)

	saved := false
	if t.config.SaveEvery > 0 && t.step%t.config.SaveEvery == 0 {
		saved = t.saveCheckpoint()
	}

	elapsed := time.Since(started).Seconds()
	throughput := float64(tokens)
	if elapsed > 0 {
		throughput = float64(tokens) / elapsed
	}
	t.maybeRetuneScheduler(throughput, meanLoss)

	return BatchReport{
		Step:            t.step,
		Tokens:          tokens,
		MeanLoss:        meanLoss,
		Perplexity:      math.Exp(meanLoss),
		LearningRate:    lr,
		CheckpointSaved: saved,
	}, nil
}

// buildBatch encodes prompts and targets, appending exactly one end marker to
// each target and pad-filling to the batch's max target length. The mask
// marks non-pad target positions.
func (t *Trainer) buildBatch(batch []curator.TrainingExample) (inputs, targets [][]int, masks [][]bool) {
	inputs = make([][]int, len(batch))
	targets = make([][]int, len(batch))
	masks = make([][]bool, len(batch))

	maxTarget := 0
	for i, ex := range batch {
		inputs[i] = t.tok.Encode(ex.Prompt)
		targets[i] = append(t.tok.Encode(ex.TeacherOutput), t.tok.EndID())
		if len(targets[i]) > maxTarget {
			maxTarget = len(targets[i])
		}
	}
	for i := range targets {
		mask := make([]bool, maxTarget)
		for p := range targets[i] {
			mask[p] = true
		}
		for len(targets[i]) < maxTarget {
			targets[i] = append(targets[i], t.tok.PadID())
		}
		masks[i] = mask
	}
	return inputs, targets, masks
}

// truncateContext keeps the last limit tokens.
func truncateContext(tokens []int, limit int) []int {
	if limit > 0 && len(tokens) > limit {
		return tokens[len(tokens)-limit:]
	}
	return tokens
}

// crossEntropyGrad computes the softmax cross-entropy gradient against a
// label-smoothed one-hot target, plus the plain negative log-likelihood loss
// of the target class.
func crossEntropyGrad(logits []float64, target int, smoothing float64) ([]float64, float64) {
	probs := softmax(logits)

	onValue := 1 - smoothing
	offValue := 0.0
	if len(logits) > 1 {
		offValue = smoothing / float64(len(logits)-1)
	}

	grad := make([]float64, len(logits))
	for i, p := range probs {
		expected := offValue
		if i == target {
			expected = onValue
		}
		grad[i] = p - expected
	}

	loss := -math.Log(math.Max(probs[target], 1e-12))
	return grad, loss
}

// softmax is numerically stabilized by max subtraction.
func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// #endregion train-on-batch

// #region retune

// maybeRetuneScheduler inspects sliding windows of per-batch loss and token
// throughput. A loss plateau lowers the learning rate and deepens the decay;
// a throughput regression instead speeds adaptation up. At most one branch
// fires per call, and a cooldown must elapse between retunes. Caller holds mu.
func (t *Trainer) maybeRetuneScheduler(throughput, loss float64) {
	window := t.config.RetuneWindow
	if window <= 0 {
		return
	}

	t.lossWindow = appendBounded(t.lossWindow, loss, window)
	t.throughputWindow = appendBounded(t.throughputWindow, throughput, window)

	if t.step-t.lastRetuneStep < t.config.RetuneCooldown {
		return
	}
	if len(t.lossWindow) < window || len(t.throughputWindow) < window {
		return
	}

	first := t.lossWindow[0]
	last := t.lossWindow[len(t.lossWindow)-1]
	improvement := 0.0
	if first != 0 {
		improvement = (first - last) / math.Abs(first)
	}

	if improvement < 0.01 {
		// Plateau escape: damp the rate and extend the schedule.
		t.lr *= 0.9
		t.sched.MinRatio = math.Max(t.sched.MinRatio*0.8, 1e-4)
		if t.sched.TotalSteps < t.step+1000 {
			t.sched.TotalSteps = t.step + 1000
		}
		log.Printf("[trainer] retune: loss plateau at step %d, lr=%.6f", t.step, t.lr)
		t.resetRetuneWindows()
		return
	}

	half := window / 2
	early := mean(t.throughputWindow[:half])
	late := mean(t.throughputWindow[half:])
	if early > 0 && late < 0.75*early {
		// Throughput regression: the model likely needs faster adaptation.
		t.lr *= 1.05
		if t.sched.WarmupSteps > 1 {
			t.sched.WarmupSteps /= 2
		}
		if t.sched.TotalSteps < t.step+2000 {
			t.sched.TotalSteps = t.step + 2000
		}
		log.Printf("[trainer] retune: throughput regression at step %d, lr=%.6f", t.step, t.lr)
		t.resetRetuneWindows()
	}
}

// resetRetuneWindows clears both windows and arms the cooldown.
func (t *Trainer) resetRetuneWindows() {
	t.lossWindow = t.lossWindow[:0]
	t.throughputWindow = t.throughputWindow[:0]
	t.lastRetuneStep = t.step
}

// appendBounded appends and keeps the last capacity entries.
func appendBounded(window []float64, v float64, capacity int) []float64 {
	window = append(window, v)
	if len(window) > capacity {
		window = window[len(window)-capacity:]
	}
	return window
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// #endregion retune

// #region checkpoint

// saveCheckpoint persists the model snapshot plus a step-numbered copy.
// Persistence is best-effort relative to in-memory state: failures log and
// return false rather than aborting training. Caller holds mu.
func (t *Trainer) saveCheckpoint() bool {
	if t.config.CheckpointDir == "" {
		return false
	}
	if err := t.writeCheckpoint(filepath.Join(t.config.CheckpointDir, "checkpoint.json")); err != nil {
		log.Printf("[trainer] checkpoint save failed: %v", err)
		return false
	}
	stepped := filepath.Join(t.config.CheckpointDir, fmt.Sprintf("checkpoint-%06d.json", t.step))
	if err := t.writeCheckpoint(stepped); err != nil {
		log.Printf("[trainer] step checkpoint save failed: %v", err)
	}
	return true
}

// SaveBest persists the current snapshot to a named best-checkpoint path and
// returns it. Used by promotion.
func (t *Trainer) SaveBest() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.CheckpointDir == "" {
		return "", fmt.Errorf("no checkpoint dir configured")
	}
	path := filepath.Join(t.config.CheckpointDir, "checkpoint-best.json")
	if err := t.writeCheckpoint(path); err != nil {
		return "", err
	}
	return path, nil
}

// writeCheckpoint marshals the model snapshot to path. Caller holds mu.
func (t *Trainer) writeCheckpoint(path string) error {
	snap := t.model.Snapshot()
	if snap.Config == nil {
		snap.Config = map[string]any{}
	}
	snap.Config["step"] = t.step
	snap.Config["learning_rate"] = t.lr

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("checkpoint dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// #endregion checkpoint
