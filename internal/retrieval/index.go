// Package retrieval maintains an incremental inverted index over accepted
// examples and serves TF×IDF-ranked queries with a running hit-rate statistic.
package retrieval

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
)

// #region index

// document is one indexed posting. Replaced wholesale on re-ingest so readers
// never observe a torn posting list.
type document struct {
	id         string
	termCounts map[string]int
	tags       []string
}

// Index is the incremental inverted index. One writer at a time; reads and
// writes are serialized per instance.
type Index struct {
	mu      sync.Mutex
	docs    map[string]*document
	df      map[string]int // term → number of documents containing it
	queries int
	hits    int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		docs: make(map[string]*document),
		df:   make(map[string]int),
	}
}

// #endregion index

// #region ingest

// IngestDocument tokenizes text and indexes it under id. Any prior posting
// for id is retracted first, decrementing stale document-frequency counts, so
// df[t] always equals the number of documents containing t.
func (x *Index) IngestDocument(id, text string, tags []string) {
	counts := termCounts(text)

	x.mu.Lock()
	defer x.mu.Unlock()

	if old, ok := x.docs[id]; ok {
		for t := range old.termCounts {
			x.df[t]--
			if x.df[t] <= 0 {
				delete(x.df, t)
			}
		}
	}
	for t := range counts {
		x.df[t]++
	}
	x.docs[id] = &document{
		id:         id,
		termCounts: counts,
		tags:       append([]string(nil), tags...),
	}
}

// #endregion ingest

// #region query

// Query ranks documents by TF×IDF against the query terms:
// idf(t) = ln((N+1)/(df[t]+1)) + 1, score = Σ tf·idf·qcount. Zero-scoring
// documents are excluded; results are truncated to topK (default 3).
func (x *Index) Query(text string, topK int) []Result {
	if topK <= 0 {
		topK = 3
	}
	qcounts := termCounts(text)

	x.mu.Lock()
	defer x.mu.Unlock()

	x.queries++
	n := len(x.docs)

	var results []Result
	for _, doc := range x.docs {
		var score float64
		total := 0
		for t, tf := range doc.termCounts {
			total += tf
			qc, ok := qcounts[t]
			if !ok {
				continue
			}
			idf := math.Log(float64(n+1)/float64(x.df[t]+1)) + 1
			score += float64(tf) * idf * float64(qc)
		}
		if score > 0 {
			results = append(results, Result{
				DocumentID: doc.id,
				Score:      score,
				Tokens:     total,
				Tags:       append([]string(nil), doc.tags...),
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	if len(results) > 0 {
		x.hits++
	}
	return results
}

// #endregion query

// #region stats

// HitRate returns hits/queries, or 0 before the first query.
func (x *Index) HitRate() float64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.queries == 0 {
		return 0
	}
	return float64(x.hits) / float64(x.queries)
}

// DocumentCount returns the number of indexed documents.
func (x *Index) DocumentCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.docs)
}

// DocumentFrequency returns df for a term, 0 if absent.
func (x *Index) DocumentFrequency(term string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.df[term]
}

// #endregion stats

// #region snapshot

// Snapshot captures stats and per-document terms for restart continuity.
func (x *Index) Snapshot() Snapshot {
	x.mu.Lock()
	defer x.mu.Unlock()

	snap := Snapshot{Queries: x.queries, Hits: x.hits}
	for _, doc := range x.docs {
		counts := make(map[string]int, len(doc.termCounts))
		for t, c := range doc.termCounts {
			counts[t] = c
		}
		snap.Documents = append(snap.Documents, DocumentSnapshot{
			ID:         doc.id,
			TermCounts: counts,
			Tags:       append([]string(nil), doc.tags...),
		})
	}
	return snap
}

// Restore replaces the index contents from a snapshot, rebuilding document
// frequencies from the per-document terms.
func (x *Index) Restore(snap Snapshot) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.docs = make(map[string]*document, len(snap.Documents))
	x.df = make(map[string]int)
	x.queries = snap.Queries
	x.hits = snap.Hits

	for _, ds := range snap.Documents {
		counts := make(map[string]int, len(ds.TermCounts))
		for t, c := range ds.TermCounts {
			counts[t] = c
			x.df[t]++
		}
		x.docs[ds.ID] = &document{
			id:         ds.ID,
			termCounts: counts,
			tags:       append([]string(nil), ds.Tags...),
		}
	}
}

// SaveFile writes the snapshot as JSON.
func (x *Index) SaveFile(path string) error {
	data, err := json.Marshal(x.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadFile restores an index from a JSON snapshot file.
func LoadFile(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	x := NewIndex()
	x.Restore(snap)
	return x, nil
}

// #endregion snapshot
