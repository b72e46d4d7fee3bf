package autopilot

// #region imports
import (
	"context"
	"log"
)

// #endregion

// #region harvest

// HarvestOnce asks the teacher for a response to each prompt and feeds the
// results through the gate. A missing teacher or an empty response means "no
// data available" and skips the prompt; it is never an error. Returns the
// number of accepted samples.
func (a *Autopilot) HarvestOnce(ctx context.Context, prompts []string, source string) int {
	if a.teacher == nil {
		return 0
	}

	accepted := 0
	for _, prompt := range prompts {
		if ctx.Err() != nil {
			return accepted
		}
		response, ok := a.teacher.Complete(ctx, prompt)
		if !ok || response == "" {
			continue
		}
		if d := a.IngestCandidate(prompt, response, nil, source); d.Accepted {
			accepted++
		}
	}
	log.Printf("[autopilot] harvest: %d/%d prompts accepted", accepted, len(prompts))
	return accepted
}

// #endregion harvest
