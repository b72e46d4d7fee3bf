// Package autopilot drives the continuous-learning loop: it gates candidate
// examples for safety, novelty, and quality, accumulates accepted samples
// behind a backpressure threshold, triggers training batches and periodic
// evaluation, promotes checkpoints on improvement, and adapts the quality
// floor and per-tag curriculum from evaluation results.
package autopilot

// #region imports
import (
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielpatrickdp/student-loop/internal/curator"
	"github.com/danielpatrickdp/student-loop/internal/ledger"
	"github.com/danielpatrickdp/student-loop/internal/model"
	"github.com/danielpatrickdp/student-loop/internal/retrieval"
	"github.com/danielpatrickdp/student-loop/internal/runstore"
	"github.com/danielpatrickdp/student-loop/internal/texthash"
	"github.com/danielpatrickdp/student-loop/internal/trainer"
)

// #endregion

// #region autopilot-struct

// Autopilot is the top-level coordinator. A single logical control thread is
// expected to drive it; the mutex exists so auxiliary callers (harvest
// timers, inspection) cannot interleave partial updates.
type Autopilot struct {
	mu      sync.Mutex
	config  Config
	curator *curator.Curator
	trainer *trainer.Trainer
	tok     model.Tokenizer

	// optional collaborators, nil when not wired
	governor model.PolicyGovernor
	teacher  model.TeacherClient
	ledger   *ledger.Ledger
	trainLog *ledger.TrainingLog
	pairs    *ledger.PairsLog
	store    *runstore.Store
	index    *retrieval.Index
	sink     func(curator.TrainingExample)

	// acceptance-policy snapshot, replaced wholesale after evaluation
	curriculum atomic.Pointer[Curriculum]

	recent       []map[string]struct{} // novelty window, FIFO
	buffer       []curator.TrainingExample
	evalSet      []curator.TrainingExample
	pending      int
	lastEvalStep int
	best         float64
	hasBest      bool
	incidents    Incidents
}

// #endregion autopilot-struct

// #region constructor

// New creates an autopilot wired to the curation gate and trainer. Optional
// collaborators are attached with the Set* methods before the loop starts.
func New(config Config, cur *curator.Curator, tr *trainer.Trainer, tok model.Tokenizer) *Autopilot {
	a := &Autopilot{
		config:  config,
		curator: cur,
		trainer: tr,
		tok:     tok,
	}
	a.curriculum.Store(&Curriculum{QualityFloor: config.QualityFloor})
	return a
}

// SetGovernor attaches an external policy governor.
func (a *Autopilot) SetGovernor(g model.PolicyGovernor) { a.governor = g }

// SetTeacher attaches the teacher used by harvest cycles.
func (a *Autopilot) SetTeacher(t model.TeacherClient) { a.teacher = t }

// SetLedger attaches the mutation ledger.
func (a *Autopilot) SetLedger(l *ledger.Ledger) { a.ledger = l }

// SetTrainingLog attaches the persistent training log.
func (a *Autopilot) SetTrainingLog(tl *ledger.TrainingLog) { a.trainLog = tl }

// SetPairsLog attaches the preference-pair log.
func (a *Autopilot) SetPairsLog(p *ledger.PairsLog) { a.pairs = p }

// SetStore attaches the run store for promotion/eval/curriculum records.
func (a *Autopilot) SetStore(s *runstore.Store) { a.store = s }

// SetRetrievalIndex attaches the index refreshed on each acceptance.
func (a *Autopilot) SetRetrievalIndex(x *retrieval.Index) { a.index = x }

// SetSink attaches a continuous-learning sink notified on each acceptance.
func (a *Autopilot) SetSink(fn func(curator.TrainingExample)) { a.sink = fn }

// SetCurriculum installs an acceptance-policy snapshot, e.g. one restored
// from the run store on restart.
func (a *Autopilot) SetCurriculum(c Curriculum) {
	a.curriculum.Store(&Curriculum{
		QualityFloor: c.QualityFloor,
		PriorityTags: append([]string(nil), c.PriorityTags...),
	})
}

// SetEvalSet installs the held-out set used by periodic evaluation.
func (a *Autopilot) SetEvalSet(ds []curator.TrainingExample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evalSet = append([]curator.TrainingExample(nil), ds...)
}

// #endregion constructor

// #region accessors

// Curriculum returns a copy of the current acceptance-policy snapshot.
func (a *Autopilot) Curriculum() Curriculum {
	c := a.curriculum.Load()
	return Curriculum{
		QualityFloor: c.QualityFloor,
		PriorityTags: append([]string(nil), c.PriorityTags...),
	}
}

// Pending returns the accepted-since-last-batch counter.
func (a *Autopilot) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Best returns the best evaluation perplexity seen, with ok=false before the
// first promotion.
func (a *Autopilot) Best() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.best, a.hasBest
}

// Incidents returns the policy-violation counters.
func (a *Autopilot) Incidents() Incidents {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.incidents
}

// #endregion accessors

// #region ingest

// IngestCandidate curates a raw prompt/response pair and, if it survives
// curation, gates it. Curation rejections are ledgered with the same record
// shape as gate rejections.
func (a *Autopilot) IngestCandidate(prompt, teacherOutput string, constraints map[string]any, source string) GateDecision {
	ex, reason := a.curator.Curate(prompt, teacherOutput, constraints, "", source)
	if reason != "" {
		d := GateDecision{Reasons: []string{reason}}
		if strings.Contains(reason, "PII") {
			d.ContainsPII = true
		}
		if strings.Contains(reason, "forbidden") {
			d.RegexViolation = true
		}
		a.mu.Lock()
		if d.ContainsPII {
			a.incidents.PII++
		}
		if d.RegexViolation {
			a.incidents.Regex++
		}
		a.appendLedgerLocked(d, texthash.HashHex(prompt), nil, source)
		a.mu.Unlock()
		return d
	}
	return a.GateSample(*ex)
}

// RecordStudentResponse screens a student output with the curation checks and
// persists the resulting preference pair. Returns the rejection reason when
// the student output fails screening.
func (a *Autopilot) RecordStudentResponse(prompt, teacherOutput, studentOutput string) (*curator.PreferencePair, string) {
	pair, reason := a.curator.RecordStudentResponse(prompt, teacherOutput, studentOutput)
	if reason != "" {
		return nil, reason
	}
	if a.pairs != nil {
		a.pairs.Append(*pair)
	}
	return pair, ""
}

// GateSample gates one curated example and, on acceptance, feeds it into the
// training buffer, possibly triggering a batch and an evaluation pass. Every
// call appends a ledger record, accepted or not.
func (a *Autopilot) GateSample(ex curator.TrainingExample) GateDecision {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.gateLocked(ex)
	a.appendLedgerLocked(d, ex.Provenance.PromptHash, ex.Provenance.Tags, ex.Provenance.Source)

	if d.Accepted {
		a.acceptLocked(ex)
		a.maybeTrainLocked()
	}
	return d
}

// gateLocked runs the check pipeline in order: governor, forbidden phrases,
// PII, minimum token count, novelty, quality floor. Caller holds mu.
func (a *Autopilot) gateLocked(ex curator.TrainingExample) GateDecision {
	cur := a.curriculum.Load()
	text := ex.TeacherOutput
	var d GateDecision

	if a.governor != nil {
		if v := a.governor.Validate(text, a.config.GovernorSchema); !v.Allowed {
			d.GovernorViolations = v.Violations
			d.Reasons = append(d.Reasons, "governor rejected")
			a.incidents.Governor++
		}
	}
	if curator.ViolatesForbidden(text) || curator.ViolatesForbidden(ex.Prompt) {
		d.RegexViolation = true
		d.Reasons = append(d.Reasons, "matches forbidden phrase")
		a.incidents.Regex++
	}
	if curator.ContainsPII(text) || curator.ContainsPII(ex.Prompt) {
		d.ContainsPII = true
		d.Reasons = append(d.Reasons, "matches PII or secret pattern")
		a.incidents.PII++
	}
	violated := d.ContainsPII || d.RegexViolation || len(d.GovernorViolations) > 0

	d.FilteredTokens = a.countFilteredTokens(text)
	if d.FilteredTokens < a.config.MinAcceptedTokens {
		d.Reasons = append(d.Reasons, "too few accepted tokens")
	}

	set := retrieval.TokenSet(text)
	d.Similarity = a.maxRecentSimilarityLocked(set)
	threshold := a.config.NoveltyThreshold
	if cur.HasPriorityTag(ex.Provenance.Tags) {
		threshold = a.config.RelaxedNovelty
	}
	if d.Similarity > threshold {
		d.Reasons = append(d.Reasons, "near duplicate of recent output")
	}

	tokenScore := float64(d.FilteredTokens) / float64(a.config.TokenSaturation)
	if tokenScore > 1 {
		tokenScore = 1
	}
	d.QualityScore = tokenScore * (1 - d.Similarity)
	if violated {
		d.QualityScore = 0
	}
	if d.QualityScore < cur.QualityFloor {
		d.Reasons = append(d.Reasons, "below quality floor")
	}

	d.Accepted = len(d.Reasons) == 0
	return d
}

// acceptLocked records an accepted example: persistent log, novelty window,
// retrieval refresh, sink notification, pending counter. Caller holds mu.
func (a *Autopilot) acceptLocked(ex curator.TrainingExample) {
	if a.trainLog != nil {
		a.trainLog.Append(ex)
	}
	a.pushRecentLocked(retrieval.TokenSet(ex.TeacherOutput))
	if a.index != nil {
		a.index.IngestDocument(ex.Provenance.SampleHash, ex.Prompt+" "+ex.TeacherOutput, ex.Provenance.Tags)
	}
	if a.sink != nil {
		a.sink(ex)
	}
	a.buffer = append(a.buffer, ex)
	a.pending++
}

// countFilteredTokens counts encoded tokens after stripping pad/end markers.
func (a *Autopilot) countFilteredTokens(text string) int {
	n := 0
	for _, id := range a.tok.Encode(text) {
		if id == a.tok.PadID() || id == a.tok.EndID() {
			continue
		}
		n++
	}
	return n
}

// maxRecentSimilarityLocked scans the novelty window. Caller holds mu.
func (a *Autopilot) maxRecentSimilarityLocked(set map[string]struct{}) float64 {
	max := 0.0
	for _, prev := range a.recent {
		if s := retrieval.Jaccard(set, prev); s > max {
			max = s
		}
	}
	return max
}

// pushRecentLocked appends to the FIFO novelty window. Caller holds mu.
func (a *Autopilot) pushRecentLocked(set map[string]struct{}) {
	if len(a.recent) >= a.config.RecentWindowSize {
		a.recent = a.recent[1:]
	}
	a.recent = append(a.recent, set)
}

// #endregion ingest

// #region backpressure

// maybeTrainLocked fires one training batch once enough samples have
// accumulated, then decrements the counter by the full threshold so batch
// frequency stays decoupled from ingestion burstiness. Caller holds mu.
func (a *Autopilot) maybeTrainLocked() {
	if a.pending < a.config.BackpressureThreshold {
		return
	}
	batch := a.drawBatchLocked()
	if len(batch) == 0 {
		return
	}

	report, err := a.trainer.TrainOnBatch(batch)
	if err != nil {
		log.Printf("[autopilot] training batch failed: %v", err)
	} else {
		log.Printf("[autopilot] batch step=%d loss=%.4f ppl=%.2f lr=%.6f",
			report.Step, report.MeanLoss, report.Perplexity, report.LearningRate)
	}

	a.pending -= a.config.BackpressureThreshold
	if a.pending < 0 {
		a.pending = 0
	}

	a.maybeEvaluateLocked()
}

// drawBatchLocked removes up to BatchSize examples from the buffer,
// preferring those carrying a currently-prioritized tag. Caller holds mu.
func (a *Autopilot) drawBatchLocked() []curator.TrainingExample {
	cur := a.curriculum.Load()
	size := a.config.BatchSize
	if size <= 0 || size > len(a.buffer) {
		size = len(a.buffer)
	}

	picked := make([]int, 0, size)
	if len(cur.PriorityTags) > 0 {
		for i, ex := range a.buffer {
			if len(picked) == size {
				break
			}
			if cur.HasPriorityTag(ex.Provenance.Tags) {
				picked = append(picked, i)
			}
		}
	}
	for i := range a.buffer {
		if len(picked) == size {
			break
		}
		taken := false
		for _, p := range picked {
			if p == i {
				taken = true
				break
			}
		}
		if !taken {
			picked = append(picked, i)
		}
	}

	batch := make([]curator.TrainingExample, 0, len(picked))
	taken := make(map[int]struct{}, len(picked))
	for _, i := range picked {
		batch = append(batch, a.buffer[i])
		taken[i] = struct{}{}
	}
	rest := a.buffer[:0]
	for i, ex := range a.buffer {
		if _, ok := taken[i]; !ok {
			rest = append(rest, ex)
		}
	}
	a.buffer = rest
	return batch
}

// #endregion backpressure

// #region evaluation

// maybeEvaluateLocked runs an evaluation pass when the step cadence allows
// and a held-out set is configured. Caller holds mu.
func (a *Autopilot) maybeEvaluateLocked() {
	if len(a.evalSet) == 0 {
		return
	}
	step := a.trainer.Step()
	if step-a.lastEvalStep < a.config.EvalEverySteps {
		return
	}
	a.lastEvalStep = step

	report, err := a.trainer.Evaluate(a.evalSet)
	if err != nil {
		log.Printf("[autopilot] evaluation failed: %v", err)
		return
	}
	a.applyEvaluationLocked(report)
}

// ApplyEvaluation folds an evaluation report into curriculum and promotion
// state. Exposed for callers that run evaluation on their own cadence.
func (a *Autopilot) ApplyEvaluation(report trainer.EvalReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyEvaluationLocked(report)
}

// applyEvaluationLocked updates the curriculum snapshot against the prior
// best, then considers promotion. Ordering matters: the floor comparison must
// see the best value the report was measured against. Caller holds mu.
func (a *Autopilot) applyEvaluationLocked(report trainer.EvalReport) {
	next := nextCurriculum(*a.curriculum.Load(), report, a.best, a.hasBest)
	a.curriculum.Store(&next)
	log.Printf("[autopilot] eval step=%d ppl=%.3f floor=%.2f priority=%v",
		report.Step, report.Perplexity, next.QualityFloor, next.PriorityTags)

	if a.store != nil {
		if err := a.store.RecordEval(runstore.EvalRecord{
			Step:          report.Step,
			Perplexity:    report.Perplexity,
			HitRate:       report.HitRate,
			AdapterNorm:   report.AdapterNorm,
			TagPerplexity: report.TagPerplexity,
		}); err != nil {
			log.Printf("[autopilot] eval record failed: %v", err)
		}
		if err := a.store.RecordCurriculum(next.QualityFloor, next.PriorityTags); err != nil {
			log.Printf("[autopilot] curriculum record failed: %v", err)
		}
	}

	a.maybePromoteLocked(report)
}

// maybePromoteLocked promotes the current checkpoint when perplexity is
// finite and clears the hysteresis band below best. The in-memory best moves
// even if the save fails; persistence is best-effort. Caller holds mu.
func (a *Autopilot) maybePromoteLocked(report trainer.EvalReport) {
	ppl := report.Perplexity
	if math.IsNaN(ppl) || math.IsInf(ppl, 0) {
		return
	}
	if a.hasBest && ppl > a.config.PromotionRatio*a.best {
		return
	}

	path, err := a.trainer.SaveBest()
	if err != nil {
		log.Printf("[autopilot] best checkpoint save failed: %v", err)
	}
	a.best = ppl
	a.hasBest = true
	log.Printf("[autopilot] promoted checkpoint step=%d ppl=%.3f path=%s", report.Step, ppl, path)

	if a.store != nil && err == nil {
		if _, err := a.store.RecordPromotion(report.Step, ppl, path); err != nil {
			log.Printf("[autopilot] promotion record failed: %v", err)
		}
	}
}

// #endregion evaluation

// #region ledger

// appendLedgerLocked writes the decision record. Nil slices are coerced so
// the JSON always carries arrays. Caller holds mu.
func (a *Autopilot) appendLedgerLocked(d GateDecision, promptHash string, tags []string, source string) {
	if a.ledger == nil {
		return
	}
	if tags == nil {
		tags = []string{}
	}
	reasons := d.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	violations := d.GovernorViolations
	if violations == nil {
		violations = []string{}
	}
	a.ledger.Append(ledger.Entry{
		Timestamp:          time.Now().UTC().Format(time.RFC3339Nano),
		Accepted:           d.Accepted,
		QualityScore:       d.QualityScore,
		Similarity:         d.Similarity,
		FilteredTokens:     d.FilteredTokens,
		PIIDetected:        d.ContainsPII,
		RegexViolation:     d.RegexViolation,
		PromptHash:         promptHash,
		Tags:               tags,
		TeacherSource:      source,
		Reasons:            reasons,
		GovernorViolations: violations,
	})
}

// #endregion ledger
