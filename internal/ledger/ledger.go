// Package ledger persists the append-only audit surfaces of the loop: the
// per-candidate mutation ledger, the training-example log, and the
// preference-pair log. All writes are line-delimited JSON and best-effort:
// a failed write degrades to a tagged status, never an abort.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/danielpatrickdp/student-loop/internal/curator"
)

// #region write-status

// WriteState tags the outcome of a best-effort append.
type WriteState int

const (
	WriteOK      WriteState = iota
	WriteSkipped            // no path configured, intentionally not persisted
	WriteFailed             // I/O or encode failure, logged and ignored
)

// WriteStatus makes the fail-open persistence policy visible to callers.
type WriteStatus struct {
	State  WriteState
	Reason string
}

func ok() WriteStatus      { return WriteStatus{State: WriteOK} }
func skipped() WriteStatus { return WriteStatus{State: WriteSkipped, Reason: "no path configured"} }
func failed(err error) WriteStatus {
	return WriteStatus{State: WriteFailed, Reason: err.Error()}
}

// #endregion write-status

// #region entry

// Entry is one gated candidate, accepted or rejected. One line per candidate.
type Entry struct {
	Timestamp          string   `json:"timestamp"`
	Accepted           bool     `json:"accepted"`
	QualityScore       float64  `json:"quality_score"`
	Similarity         float64  `json:"similarity"`
	FilteredTokens     int      `json:"filtered_tokens"`
	PIIDetected        bool     `json:"pii_detected"`
	RegexViolation     bool     `json:"regex_violation"`
	PromptHash         string   `json:"prompt_hash"`
	Tags               []string `json:"tags"`
	TeacherSource      string   `json:"teacher_source,omitempty"`
	Reasons            []string `json:"reasons"`
	GovernorViolations []string `json:"governor_violations"`
}

// #endregion entry

// #region mutation-ledger

// Ledger appends gating decisions to a JSONL file.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger creates a ledger bound to path. An empty path skips all writes.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Append writes one entry.
func (l *Ledger) Append(e Entry) WriteStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(l.path, e, "ledger")
}

// Tail returns the last n parseable entries. Malformed lines are skipped.
func (l *Ledger) Tail(n int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// #endregion mutation-ledger

// #region training-log

// TrainingLog appends accepted examples and loads persisted ones.
type TrainingLog struct {
	mu   sync.Mutex
	path string
}

// NewTrainingLog creates a training log bound to path.
func NewTrainingLog(path string) *TrainingLog {
	return &TrainingLog{path: path}
}

// Append writes one accepted example.
func (t *TrainingLog) Append(ex curator.TrainingExample) WriteStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return appendLine(t.path, ex, "training log")
}

// Load reads every parseable example. Malformed lines are skipped; missing
// fields default per the wire contract; a missing file is an empty log.
func (t *TrainingLog) Load() ([]curator.TrainingExample, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open training log: %w", err)
	}
	defer f.Close()

	var examples []curator.TrainingExample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ex curator.TrainingExample
		if err := json.Unmarshal(line, &ex); err != nil {
			continue
		}
		if ex.Constraints == nil {
			ex.Constraints = map[string]any{}
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan training log: %w", err)
	}
	return examples, nil
}

// #endregion training-log

// #region pairs-log

// PairsLog appends preference pairs for later refinement runs.
type PairsLog struct {
	mu   sync.Mutex
	path string
}

// NewPairsLog creates a pairs log bound to path.
func NewPairsLog(path string) *PairsLog {
	return &PairsLog{path: path}
}

// Append writes one preference pair.
func (p *PairsLog) Append(pair curator.PreferencePair) WriteStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return appendLine(p.path, pair, "pairs log")
}

// #endregion pairs-log

// #region append-line

// appendLine marshals v and appends it as one line to path.
func appendLine(path string, v any, what string) WriteStatus {
	if path == "" {
		return skipped()
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[ledger] %s marshal failed: %v", what, err)
		return failed(err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("[ledger] %s open failed: %v", what, err)
		return failed(err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("[ledger] %s write failed: %v", what, err)
		return failed(err)
	}
	return ok()
}

// #endregion append-line
