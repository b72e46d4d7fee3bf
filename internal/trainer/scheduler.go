package trainer

import "math"

// #region scheduler

// Scheduler computes the warmup-cosine learning-rate scale. Fields are
// mutated in place by the adaptive retuning loop.
type Scheduler struct {
	WarmupSteps int
	TotalSteps  int
	MinRatio    float64 // cosine floor; the scale never decays below this
}

// NewScheduler returns the default schedule.
func NewScheduler() *Scheduler {
	return &Scheduler{
		WarmupSteps: 50,
		TotalSteps:  5000,
		MinRatio:    0.1,
	}
}

// Scale returns the learning-rate multiplier at a global step: linear ramp
// through warmup, then cosine decay toward MinRatio.
func (s *Scheduler) Scale(step int) float64 {
	if s.WarmupSteps > 0 && step < s.WarmupSteps {
		return float64(step+1) / float64(s.WarmupSteps)
	}
	if step >= s.TotalSteps || s.TotalSteps <= s.WarmupSteps {
		return s.MinRatio
	}
	progress := float64(step-s.WarmupSteps) / float64(s.TotalSteps-s.WarmupSteps)
	cosine := 0.5 * (1 + math.Cos(math.Pi*progress))
	return s.MinRatio + (1-s.MinRatio)*cosine
}

// #endregion scheduler
