package autopilot

// #region config

// Config tunes the gate, backpressure, and evaluation cadence.
type Config struct {
	QualityFloor          float64 // starting acceptance floor, curriculum-adjusted afterwards
	BatchSize             int     // examples drawn per training pass
	BackpressureThreshold int     // accepted samples required before a batch fires
	MinAcceptedTokens     int     // reject below this many non-marker tokens
	TokenSaturation       int     // token count at which token_score reaches 1.0
	NoveltyThreshold      float64 // max Jaccard similarity vs the recent window
	RelaxedNovelty        float64 // threshold for samples carrying a priority tag
	RecentWindowSize      int     // FIFO capacity of the novelty window
	EvalEverySteps        int     // min steps between evaluation passes
	PromotionRatio        float64 // new perplexity must be <= ratio * best to promote
	GovernorSchema        string  // schema handed to the policy governor, may be empty
}

// DefaultConfig returns the standard orchestrator settings.
func DefaultConfig() Config {
	return Config{
		QualityFloor:          0.35,
		BatchSize:             8,
		BackpressureThreshold: 64,
		MinAcceptedTokens:     24,
		TokenSaturation:       48,
		NoveltyThreshold:      0.92,
		RelaxedNovelty:        0.96,
		RecentWindowSize:      512,
		EvalEverySteps:        200,
		PromotionRatio:        0.98,
	}
}

// #endregion config

// #region gate-decision

// GateDecision records the outcome of gating one candidate example. It is
// ephemeral; the ledger holds the persistent record.
type GateDecision struct {
	Accepted           bool
	QualityScore       float64 // token_score x novelty_score, zeroed on violation
	Similarity         float64 // max Jaccard vs the recent-output window
	FilteredTokens     int     // tokens after stripping pad/end markers
	ContainsPII        bool
	RegexViolation     bool
	Reasons            []string // rejection reasons in check order, empty on accept
	GovernorViolations []string
}

// #endregion gate-decision

// #region incidents

// Incidents counts policy violations observed at the gate since startup.
type Incidents struct {
	PII      int
	Regex    int
	Governor int
}

// #endregion incidents
