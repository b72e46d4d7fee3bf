package trainer

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/student-loop/internal/curator"
	"github.com/danielpatrickdp/student-loop/internal/retrieval"
)

// #region evaluate

// Evaluate runs a forward-only loss pass over a held-out set, grouping
// token-weighted loss by example tag, recomputing the prompt self-overlap
// proxy for retrieval hit rate, and recording bounded drift histories.
func (t *Trainer) Evaluate(dataset []curator.TrainingExample) (EvalReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(dataset) == 0 {
		return EvalReport{}, fmt.Errorf("empty evaluation set")
	}

	inputs, targets, masks := t.buildBatch(dataset)
	t.model.EnsureVocab(t.tok.VocabSize())

	var totalLoss float64
	tokens := 0
	tagLoss := make(map[string]float64)
	tagTokens := make(map[string]int)

	for i := range inputs {
		tags := exampleTags(dataset[i])
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
				return EvalReport{}, fmt.Errorf("forward: %w", err)
			}

			probs := softmax(result.Logits)
			loss := -math.Log(math.Max(probs[targets[i][pos]], 1e-12))
			totalLoss += loss
			tokens++
			for _, tag := range tags {
				tagLoss[tag] += loss
				tagTokens[tag]++
			}
		}
	}

	if tokens == 0 {
		return EvalReport{}, fmt.Errorf("evaluation set has no target tokens")
	}

	meanLoss := totalLoss / float64(tokens)
	tagPerplexity := make(map[string]float64, len(tagLoss))
	for tag, loss := range tagLoss {
		tagPerplexity[tag] = math.Exp(loss / float64(tagTokens[tag]))
	}

	hitRate := promptSelfOverlap(dataset)
	adapterNorm := 0.0
	if t.adapters != nil {
		if active := t.adapters.Active(); active != nil {
			adapterNorm = active.Norm()
		}
	}

	t.hitRateHistory = appendBounded(t.hitRateHistory, hitRate, t.config.HistoryWindow)
	t.adapterNormHistory = appendBounded(t.adapterNormHistory, adapterNorm, t.config.HistoryWindow)

	return EvalReport{
		Step:          t.step,
		Tokens:        tokens,
		MeanLoss:      meanLoss,
		Perplexity:    math.Exp(meanLoss),
		TagPerplexity: tagPerplexity,
		TagTokens:     tagTokens,
		HitRate:       hitRate,
		AdapterNorm:   adapterNorm,
	}, nil
}

// DriftHistory returns copies of the bounded hit-rate and adapter-norm
// histories recorded by evaluation passes.
func (t *Trainer) DriftHistory() (hitRates, adapterNorms []float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.hitRateHistory...),
		append([]float64(nil), t.adapterNormHistory...)
}

// #endregion evaluate

// #region tags

// exampleTags derives curriculum tags for an example: explicit provenance
// tags first, then source::<value>, then the prompt hash, and finally the
// general bucket when nothing else is available.
func exampleTags(ex curator.TrainingExample) []string {
	if len(ex.Provenance.Tags) > 0 {
		return ex.Provenance.Tags
	}
	if ex.Provenance.Source != "" {
		return []string{"source::" + ex.Provenance.Source}
	}
	if ex.Provenance.PromptHash != "" {
		return []string{ex.Provenance.PromptHash}
	}
	return []string{"curriculum::general"}
}

// #endregion tags

// #region self-overlap

// promptSelfOverlap counts the fraction of prompts whose best Jaccard
// similarity against any other prompt reaches 0.5. Quadratic in dataset
// size; the dedicated refresh routine computes a cheaper variant, both are
// kept intentionally.
func promptSelfOverlap(dataset []curator.TrainingExample) float64 {
	if len(dataset) < 2 {
		return 0
	}
	sets := make([]map[string]struct{}, len(dataset))
	for i, ex := range dataset {
		sets[i] = retrieval.TokenSet(ex.Prompt)
	}
	hits := 0
	for i := range sets {
		for j := range sets {
			if i == j {
				continue
			}
			if retrieval.Jaccard(sets[i], sets[j]) >= 0.5 {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(dataset))
}

// #endregion self-overlap
