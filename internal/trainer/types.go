package trainer

// #region config

// Config tunes the training step, checkpoint cadence, and the adaptive
// retuning loop.
type Config struct {
	BatchSize      int     // examples consumed per training pass
	ContextLen     int     // forward-pass context budget, truncated from the tail
	MaxGradNorm    float64 // L2 clip applied per token and again per batch
	LabelSmoothing float64 // smoothing mass spread over off-target classes
	LearningRate   float64 // initial learning rate; retuning adjusts it
	SaveEvery      int     // checkpoint every N steps, 0 disables
	CheckpointDir  string  // where checkpoints land; empty disables persistence
	HistoryWindow  int     // bounded history length for drift signals
	RetuneWindow   int     // sliding-window length for loss/throughput trends
	RetuneCooldown int     // steps that must elapse between retunes
}

// DefaultConfig returns the standard training settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:      8,
		ContextLen:     64,
		MaxGradNorm:    1.0,
		LabelSmoothing: 0.1,
		LearningRate:   1e-3,
		SaveEvery:      100,
		HistoryWindow:  64,
		RetuneWindow:   8,
		RetuneCooldown: 200,
	}
}

// #endregion config

// #region reports

// BatchReport summarizes one training pass.
type BatchReport struct {
	Step            int
	Tokens          int
	MeanLoss        float64
	Perplexity      float64
	LearningRate    float64
	CheckpointSaved bool
}

// EvalReport summarizes one held-out evaluation pass.
type EvalReport struct {
	Step          int
	Tokens        int
	MeanLoss      float64
	Perplexity    float64
	TagPerplexity map[string]float64 // token-weighted perplexity per tag
	TagTokens     map[string]int     // tokens observed per tag
	HitRate       float64            // prompt self-overlap proxy
	AdapterNorm   float64            // active adapter norm, 0 if none
}

// #endregion reports
