package runstore

import "time"

// #region records

// CheckpointRecord is one promoted checkpoint.
type CheckpointRecord struct {
	VersionID  string
	Step       int
	Perplexity float64
	Path       string
	CreatedAt  time.Time
}

// EvalRecord is one evaluation pass as persisted.
type EvalRecord struct {
	Step          int
	Perplexity    float64
	HitRate       float64
	AdapterNorm   float64
	TagPerplexity map[string]float64
	CreatedAt     time.Time
}

// CurriculumRecord is one persisted curriculum snapshot.
type CurriculumRecord struct {
	QualityFloor float64
	PriorityTags []string
	CreatedAt    time.Time
}

// #endregion records
