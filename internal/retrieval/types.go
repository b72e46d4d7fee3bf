package retrieval

// #region types

// Result is one ranked document returned by Query.
type Result struct {
	DocumentID string
	Score      float64
	Tokens     int // total term occurrences in the document
	Tags       []string
}

// DocumentSnapshot is the persisted form of one indexed document.
type DocumentSnapshot struct {
	ID         string         `json:"id"`
	TermCounts map[string]int `json:"term_counts"`
	Tags       []string       `json:"tags,omitempty"`
}

// Snapshot is the persisted form of the whole index: stats plus per-document
// terms and tags. Document frequencies are rebuilt on restore.
type Snapshot struct {
	Queries   int                `json:"queries"`
	Hits      int                `json:"hits"`
	Documents []DocumentSnapshot `json:"documents"`
}

// #endregion types
