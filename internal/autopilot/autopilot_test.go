package autopilot

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/student-loop/internal/adapter"
	"github.com/danielpatrickdp/student-loop/internal/curator"
	"github.com/danielpatrickdp/student-loop/internal/ledger"
	"github.com/danielpatrickdp/student-loop/internal/model"
	"github.com/danielpatrickdp/student-loop/internal/retrieval"
	"github.com/danielpatrickdp/student-loop/internal/runstore"
	"github.com/danielpatrickdp/student-loop/internal/trainer"
)

func makeAutopilot(t *testing.T, config Config) *Autopilot {
	t.Helper()
	tok := model.NewWordTokenizer()
	m := model.NewRefModel(8, 16)
	tcfg := trainer.DefaultConfig()
	tcfg.CheckpointDir = t.TempDir()
	tcfg.SaveEvery = 0
	tr := trainer.New(m, tok, adapter.NewManager(), tcfg)
	return New(config, curator.New(curator.DefaultConfig()), tr, tok)
}

// uniqueWord maps n to a distinct three-letter word so generated candidates
// share no vocabulary and score zero similarity against each other.
func uniqueWord(n int) string {
	b := make([]byte, 3)
	for i := 2; i >= 0; i-- {
		b[i] = byte('a' + n%26)
		n /= 26
	}
	return string(b)
}

// makeSafeCandidate builds a distinct, safe prompt/output pair whose output
// carries 30 tokens, comfortably above the acceptance minimum.
func makeSafeCandidate(i int) (prompt, output string) {
	words := make([]string, 0, 30)
	for j := 0; j < 30; j++ {
		words = append(words, uniqueWord(i*30+j))
	}
	prompt = fmt.Sprintf("please describe the topic %s", uniqueWord(i*30))
	output = strings.Join(words, " ") + "."
	return prompt, output
}

func TestSafeCandidateAccepted(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())
	p, o := makeSafeCandidate(0)
	d := a.IngestCandidate(p, o, nil, "test")
	if !d.Accepted {
		t.Fatalf("expected accept, got %+v", d)
	}
	if d.FilteredTokens != 30 {
		t.Fatalf("filtered tokens = %d, want 30", d.FilteredTokens)
	}
	if d.Similarity != 0 {
		t.Fatalf("first sample similarity = %f", d.Similarity)
	}
	want := 30.0 / 48.0
	if math.Abs(d.QualityScore-want) > 1e-9 {
		t.Fatalf("quality = %f, want %f", d.QualityScore, want)
	}
}

func TestBackpressureExactness(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())

	for i := 0; i < 63; i++ {
		p, o := makeSafeCandidate(i)
		if d := a.IngestCandidate(p, o, nil, "test"); !d.Accepted {
			t.Fatalf("sample %d rejected: %v", i, d.Reasons)
		}
	}
	if a.trainer.Step() != 0 {
		t.Fatalf("63 samples fired %d batches, want 0", a.trainer.Step())
	}

	p, o := makeSafeCandidate(63)
	if d := a.IngestCandidate(p, o, nil, "test"); !d.Accepted {
		t.Fatalf("64th sample rejected: %v", d.Reasons)
	}
	if a.trainer.Step() != 1 {
		t.Fatalf("64th sample fired %d batches, want exactly 1", a.trainer.Step())
	}
}

func TestEndToEndSeventyExamples(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())

	for i := 0; i < 70; i++ {
		p, o := makeSafeCandidate(i)
		if d := a.IngestCandidate(p, o, nil, "test"); !d.Accepted {
			t.Fatalf("sample %d rejected: %v", i, d.Reasons)
		}
	}
	if a.trainer.Step() != 1 {
		t.Fatalf("fired %d batches, want 1", a.trainer.Step())
	}
	if a.Pending() != 6 {
		t.Fatalf("pending = %d, want 6", a.Pending())
	}
	if len(a.buffer) != 70-a.config.BatchSize {
		t.Fatalf("buffer holds %d, want %d", len(a.buffer), 70-a.config.BatchSize)
	}
}

func TestQualityFloorTable(t *testing.T) {
	cases := []struct {
		name    string
		floor   float64
		ppl     float64
		hasBest bool
		want    float64
	}{
		{"regression raises", 0.35, 103, true, 0.40},
		{"exact upper boundary unchanged", 0.35, 102, true, 0.35},
		{"improvement lowers", 0.35, 97, true, 0.33},
		{"exact lower boundary unchanged", 0.35, 98, true, 0.35},
		{"in-band unchanged", 0.35, 100, true, 0.35},
		{"raise capped", 0.58, 103, true, 0.6},
		{"lower floored", 0.21, 97, true, 0.2},
		{"no prior best unchanged", 0.35, 103, false, 0.35},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cur := Curriculum{QualityFloor: tc.floor}
			next := nextCurriculum(cur, trainer.EvalReport{Perplexity: tc.ppl}, 100, tc.hasBest)
			if math.Abs(next.QualityFloor-tc.want) > 1e-9 {
				t.Fatalf("floor = %f, want %f", next.QualityFloor, tc.want)
			}
		})
	}
}

func TestPriorityTagsRebuiltWholesale(t *testing.T) {
	cur := Curriculum{QualityFloor: 0.35, PriorityTags: []string{"stale"}}
	report := trainer.EvalReport{
		Perplexity: 10,
		TagPerplexity: map[string]float64{
			"hot-a": 12.0, // ratio 1.20
			"hot-b": 11.0, // ratio 1.10
			"cold":  10.4, // ratio 1.04, below threshold
			"thin":  20.0, // too few tokens
		},
		TagTokens: map[string]int{"hot-a": 10, "hot-b": 10, "cold": 10, "thin": 3},
	}

	next := nextCurriculum(cur, report, 100, false)
	if len(next.PriorityTags) != 2 || next.PriorityTags[0] != "hot-a" || next.PriorityTags[1] != "hot-b" {
		t.Fatalf("priority = %v, want [hot-a hot-b]", next.PriorityTags)
	}
}

func TestPriorityTagsCappedAtEight(t *testing.T) {
	report := trainer.EvalReport{
		Perplexity:    10,
		TagPerplexity: map[string]float64{},
		TagTokens:     map[string]int{},
	}
	for i := 0; i < 12; i++ {
		tag := fmt.Sprintf("tag-%02d", i)
		report.TagPerplexity[tag] = 11 + float64(i)*0.1
		report.TagTokens[tag] = 10
	}

	next := nextCurriculum(Curriculum{}, report, 100, false)
	if len(next.PriorityTags) != 8 {
		t.Fatalf("priority list length = %d, want 8", len(next.PriorityTags))
	}
	if next.PriorityTags[0] != "tag-11" {
		t.Fatalf("hottest tag first, got %v", next.PriorityTags)
	}
}

func TestPromotionHysteresis(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())

	a.ApplyEvaluation(trainer.EvalReport{Step: 200, Perplexity: 100})
	if best, ok := a.Best(); !ok || best != 100 {
		t.Fatalf("first eval should promote, best=%f ok=%v", best, ok)
	}

	a.ApplyEvaluation(trainer.EvalReport{Step: 400, Perplexity: 98.1})
	if best, _ := a.Best(); best != 100 {
		t.Fatalf("0.981x best must not promote, best=%f", best)
	}

	a.ApplyEvaluation(trainer.EvalReport{Step: 600, Perplexity: 97.9})
	if best, _ := a.Best(); best != 97.9 {
		t.Fatalf("0.979x best must promote, best=%f", best)
	}
}

func TestPromotionRejectsNonFinite(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())
	a.ApplyEvaluation(trainer.EvalReport{Perplexity: math.Inf(1)})
	if _, ok := a.Best(); ok {
		t.Fatal("infinite perplexity must not promote")
	}
	a.ApplyEvaluation(trainer.EvalReport{Perplexity: math.NaN()})
	if _, ok := a.Best(); ok {
		t.Fatal("NaN perplexity must not promote")
	}
}

func TestGateForcesZeroQualityOnPII(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())

	words := make([]string, 0, 30)
	for j := 0; j < 30; j++ {
		words = append(words, uniqueWord(5000+j))
	}
	ex := curator.TrainingExample{
		Prompt:        "please describe the topic",
		TeacherOutput: "contact me at bob@example.com " + strings.Join(words, " ") + ".",
		Provenance:    curator.Provenance{Source: "test", PromptHash: "aa"},
	}

	d := a.GateSample(ex)
	if d.Accepted {
		t.Fatal("PII sample must not be accepted")
	}
	if !d.ContainsPII {
		t.Fatalf("PII flag not set: %+v", d)
	}
	if d.QualityScore != 0 {
		t.Fatalf("violation must force quality to 0, got %f", d.QualityScore)
	}
	if a.Incidents().PII != 1 {
		t.Fatalf("incidents = %+v", a.Incidents())
	}
}

func TestGateRejectsShortOutput(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())

	words := make([]string, 0, 12)
	for j := 0; j < 12; j++ {
		words = append(words, uniqueWord(6000+j))
	}
	ex := curator.TrainingExample{
		Prompt:        "please describe the topic",
		TeacherOutput: strings.Join(words, " "),
		Provenance:    curator.Provenance{Source: "test", PromptHash: "bb"},
	}

	d := a.GateSample(ex)
	if d.Accepted {
		t.Fatal("12-token output must not be accepted")
	}
	if d.FilteredTokens != 12 {
		t.Fatalf("filtered tokens = %d, want 12", d.FilteredTokens)
	}
	found := false
	for _, r := range d.Reasons {
		if r == "too few accepted tokens" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing token-count reason: %v", d.Reasons)
	}
}

func TestNoveltyRejectsNearDuplicate(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())

	p, o := makeSafeCandidate(200)
	if d := a.IngestCandidate(p, o, nil, "test"); !d.Accepted {
		t.Fatalf("seed rejected: %v", d.Reasons)
	}

	// Same vocabulary, different order: Jaccard 1.0 against the window.
	fields := strings.Fields(strings.TrimSuffix(o, "."))
	for i, j := 0, len(fields)-1; i < j; i, j = i+1, j-1 {
		fields[i], fields[j] = fields[j], fields[i]
	}
	d := a.IngestCandidate(p+" again", strings.Join(fields, " ")+".", nil, "test")
	if d.Accepted {
		t.Fatal("reordered duplicate must not be accepted")
	}
	if d.Similarity != 1 {
		t.Fatalf("similarity = %f, want 1", d.Similarity)
	}
}

func TestPriorityTagRelaxesNovelty(t *testing.T) {
	config := DefaultConfig()
	config.QualityFloor = 0.01
	a := makeAutopilot(t, config)

	seedWords := make([]string, 0, 50)
	for j := 0; j < 50; j++ {
		seedWords = append(seedWords, uniqueWord(7000+j))
	}
	seed := curator.TrainingExample{
		Prompt:        "seed prompt",
		TeacherOutput: strings.Join(seedWords, " ") + ".",
		Provenance:    curator.Provenance{Source: "test", PromptHash: "cc"},
	}
	if d := a.GateSample(seed); !d.Accepted {
		t.Fatalf("seed rejected: %v", d.Reasons)
	}

	a.curriculum.Store(&Curriculum{QualityFloor: 0.01, PriorityTags: []string{"focus"}})

	// 47 of the seed's 50 words: similarity 0.94, between the two thresholds.
	overlap := strings.Join(seedWords[:47], " ") + "."
	plain := curator.TrainingExample{
		Prompt:        "overlap prompt",
		TeacherOutput: overlap,
		Provenance:    curator.Provenance{Source: "test", PromptHash: "dd"},
	}
	if d := a.GateSample(plain); d.Accepted {
		t.Fatalf("0.94 similarity must fail the 0.92 threshold, got %+v", d)
	}

	tagged := plain
	tagged.Provenance.Tags = []string{"focus"}
	d := a.GateSample(tagged)
	if !d.Accepted {
		t.Fatalf("priority tag should relax threshold to 0.96: %+v", d)
	}
	if d.Similarity < 0.93 || d.Similarity > 0.95 {
		t.Fatalf("similarity = %f, want ~0.94", d.Similarity)
	}
}

func TestEveryGatedSampleIsLedgered(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	a.SetLedger(ledger.NewLedger(path))

	p, o := makeSafeCandidate(300)
	if d := a.IngestCandidate(p, o, nil, "test"); !d.Accepted {
		t.Fatalf("accept expected: %v", d.Reasons)
	}
	if d := a.IngestCandidate("hi", "no.", nil, "test"); d.Accepted {
		t.Fatal("curation should reject a two-token prompt")
	}

	entries, err := ledger.NewLedger(path).Tail(10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ledger holds %d entries, want 2", len(entries))
	}
	if !entries[0].Accepted || entries[1].Accepted {
		t.Fatalf("entries = %+v", entries)
	}
	if len(entries[1].Reasons) == 0 {
		t.Fatal("rejection must carry reasons")
	}
}

func TestEvalCadenceRecordsAndPromotes(t *testing.T) {
	config := DefaultConfig()
	config.BackpressureThreshold = 2
	config.BatchSize = 2
	config.EvalEverySteps = 1
	a := makeAutopilot(t, config)

	store, err := runstore.NewStore(filepath.Join(t.TempDir(), "run.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()
	a.SetStore(store)

	var evalSet []curator.TrainingExample
	for i := 400; i < 404; i++ {
		p, o := makeSafeCandidate(i)
		evalSet = append(evalSet, curator.TrainingExample{Prompt: p, TeacherOutput: o})
	}
	a.SetEvalSet(evalSet)

	for i := 500; i < 502; i++ {
		p, o := makeSafeCandidate(i)
		if d := a.IngestCandidate(p, o, nil, "test"); !d.Accepted {
			t.Fatalf("sample %d rejected: %v", i, d.Reasons)
		}
	}

	if a.trainer.Step() != 1 {
		t.Fatalf("step = %d, want 1", a.trainer.Step())
	}
	if _, ok := a.Best(); !ok {
		t.Fatal("first evaluation should promote")
	}
	evals, err := store.RecentEvals(10)
	if err != nil || len(evals) != 1 {
		t.Fatalf("evals = %v err = %v", evals, err)
	}
	checkpoints, err := store.ListCheckpoints(10)
	if err != nil || len(checkpoints) != 1 {
		t.Fatalf("checkpoints = %v err = %v", checkpoints, err)
	}
	if _, found, _ := store.LatestCurriculum(); !found {
		t.Fatal("curriculum snapshot should be recorded")
	}
}

func TestRecordStudentResponsePersistsPair(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())
	path := filepath.Join(t.TempDir(), "pairs.jsonl")
	a.SetPairsLog(ledger.NewPairsLog(path))

	_, o := makeSafeCandidate(80)
	pair, reason := a.RecordStudentResponse("please describe the topic", o, o+" indeed")
	if reason != "" || pair == nil {
		t.Fatalf("pair rejected: %q", reason)
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		t.Fatalf("pairs file empty: %v", err)
	}

	if _, reason := a.RecordStudentResponse("prompt", o, "short"); reason == "" {
		t.Fatal("short student output must be rejected")
	}
}

func TestHarvestOnce(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())

	n := 0
	a.SetTeacher(model.TeacherFunc(func(ctx context.Context, prompt string) (string, bool) {
		if prompt == "no data" {
			return "", false
		}
		n++
		_, o := makeSafeCandidate(40 + n)
		return o, true
	}))

	prompts := []string{"no data", "please explain the alpha topics", "please explain the gamma topics"}
	accepted := a.HarvestOnce(context.Background(), prompts, "teacher")
	if accepted != 2 {
		t.Fatalf("accepted = %d, want 2", accepted)
	}
	if a.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", a.Pending())
	}
}

func TestAcceptanceNotifiesSinkAndIndex(t *testing.T) {
	a := makeAutopilot(t, DefaultConfig())
	index := retrieval.NewIndex()
	a.SetRetrievalIndex(index)

	sinkCalls := 0
	a.SetSink(func(curator.TrainingExample) { sinkCalls++ })

	p, o := makeSafeCandidate(700)
	if d := a.IngestCandidate(p, o, nil, "test"); !d.Accepted {
		t.Fatalf("accept expected: %v", d.Reasons)
	}
	if sinkCalls != 1 {
		t.Fatalf("sink calls = %d, want 1", sinkCalls)
	}
	if index.DocumentCount() != 1 {
		t.Fatalf("index holds %d documents, want 1", index.DocumentCount())
	}
}
