package autopilot

// #region imports
import (
	"math"
	"sort"

	"github.com/danielpatrickdp/student-loop/internal/trainer"
)

// #endregion

// #region curriculum

// Curriculum update tunables. The floor moves in small asymmetric steps so a
// regression tightens the gate faster than an improvement loosens it.
const (
	regressRatio      = 1.02
	improveRatio      = 0.98
	floorRaise        = 0.05
	floorLower        = 0.02
	maxQualityFloor   = 0.6
	minQualityFloor   = 0.2
	tagRatioThreshold = 1.05
	minTagTokens      = 4
	maxPriorityTags   = 8
)

// Curriculum is the immutable acceptance-policy snapshot consulted by the
// gate. It is replaced wholesale after each evaluation, never patched.
type Curriculum struct {
	QualityFloor float64
	PriorityTags []string
}

// HasPriorityTag reports whether any of tags is currently prioritized.
func (c Curriculum) HasPriorityTag(tags []string) bool {
	for _, t := range tags {
		for _, p := range c.PriorityTags {
			if t == p {
				return true
			}
		}
	}
	return false
}

// #endregion curriculum

// #region update

// nextCurriculum derives the post-evaluation snapshot. The floor shifts only
// when perplexity leaves the 2% hysteresis band around best; the priority
// list is rebuilt from scratch out of tags running hot against the global
// perplexity.
func nextCurriculum(cur Curriculum, report trainer.EvalReport, best float64, hasBest bool) Curriculum {
	next := Curriculum{QualityFloor: cur.QualityFloor}

	if hasBest {
		switch {
		case report.Perplexity > regressRatio*best:
			next.QualityFloor = math.Min(maxQualityFloor, cur.QualityFloor+floorRaise)
		case report.Perplexity < improveRatio*best:
			next.QualityFloor = math.Max(minQualityFloor, cur.QualityFloor-floorLower)
		}
	}

	if report.Perplexity > 0 {
		type tagRatio struct {
			tag   string
			ratio float64
		}
		var hot []tagRatio
		for tag, ppl := range report.TagPerplexity {
			if report.TagTokens[tag] < minTagTokens {
				continue
			}
			ratio := ppl / report.Perplexity
			if ratio > tagRatioThreshold {
				hot = append(hot, tagRatio{tag: tag, ratio: ratio})
			}
		}
		sort.Slice(hot, func(i, j int) bool {
			if hot[i].ratio != hot[j].ratio {
				return hot[i].ratio > hot[j].ratio
			}
			return hot[i].tag < hot[j].tag
		})
		for i, tr := range hot {
			if i == maxPriorityTags {
				break
			}
			next.PriorityTags = append(next.PriorityTags, tr.tag)
		}
	}

	return next
}

// #endregion update
