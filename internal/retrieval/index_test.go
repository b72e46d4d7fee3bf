package retrieval

import (
	"path/filepath"
	"testing"
)

func TestQueryRanksByTermFrequency(t *testing.T) {
	x := NewIndex()
	x.IngestDocument("d1", "cat dog", nil)
	x.IngestDocument("d2", "cat cat cat", nil)

	results := x.Query("cat", 3)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].DocumentID != "d2" {
		t.Fatalf("expected d2 ranked first, got %s", results[0].DocumentID)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("d2 score %f should exceed d1 score %f", results[0].Score, results[1].Score)
	}
}

func TestReingestRetractsOldPosting(t *testing.T) {
	x := NewIndex()
	x.IngestDocument("d1", "a b b", nil)
	x.IngestDocument("d1", "c", nil)

	if df := x.DocumentFrequency("a"); df != 0 {
		t.Fatalf("df[a] after re-ingest = %d, want 0", df)
	}
	results := x.Query("a", 3)
	if len(results) != 0 {
		t.Fatalf("query for retracted term returned %d results", len(results))
	}
	if got := x.Query("c", 3); len(got) != 1 || got[0].DocumentID != "d1" {
		t.Fatalf("re-ingested content not queryable: %v", got)
	}
}

func TestQueryExcludesZeroScores(t *testing.T) {
	x := NewIndex()
	x.IngestDocument("d1", "alpha beta", nil)
	x.IngestDocument("d2", "gamma delta", nil)

	results := x.Query("alpha", 3)
	if len(results) != 1 || results[0].DocumentID != "d1" {
		t.Fatalf("expected only d1, got %v", results)
	}
}

func TestQueryTruncatesToTopK(t *testing.T) {
	x := NewIndex()
	x.IngestDocument("d1", "term", nil)
	x.IngestDocument("d2", "term term", nil)
	x.IngestDocument("d3", "term term term", nil)
	x.IngestDocument("d4", "term term term term", nil)

	results := x.Query("term", 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].DocumentID != "d4" || results[1].DocumentID != "d3" {
		t.Fatalf("wrong ranking: %s, %s", results[0].DocumentID, results[1].DocumentID)
	}
}

func TestHitRate(t *testing.T) {
	x := NewIndex()
	if x.HitRate() != 0 {
		t.Fatal("hit rate before any query should be 0")
	}
	x.IngestDocument("d1", "hello world", nil)

	x.Query("hello", 3)   // hit
	x.Query("missing", 3) // miss

	if got := x.HitRate(); got != 0.5 {
		t.Fatalf("hit rate = %f, want 0.5", got)
	}
}

func TestQueryDefaultTopK(t *testing.T) {
	x := NewIndex()
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		x.IngestDocument(id, "common term set", nil)
	}
	if got := x.Query("common", 0); len(got) != 3 {
		t.Fatalf("default topK should be 3, got %d", len(got))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	x := NewIndex()
	x.IngestDocument("d1", "cat dog", []string{"animals"})
	x.IngestDocument("d2", "cat cat cat", nil)
	x.Query("cat", 3)
	x.Query("nothing", 3)

	path := filepath.Join(t.TempDir(), "index.json")
	if err := x.SaveFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored.DocumentCount() != 2 {
		t.Fatalf("restored doc count = %d", restored.DocumentCount())
	}
	if restored.HitRate() != 0.5 {
		t.Fatalf("restored hit rate = %f, want 0.5", restored.HitRate())
	}
	results := restored.Query("cat", 3)
	if len(results) != 2 || results[0].DocumentID != "d2" {
		t.Fatalf("restored ranking wrong: %v", results)
	}
	if len(results[1].Tags) != 1 || results[1].Tags[0] != "animals" {
		t.Fatalf("tags not restored: %v", results[1].Tags)
	}
}

func TestTokenSetFiltersTrivial(t *testing.T) {
	set := TokenSet("The cat is on a mat, obviously!")
	if _, ok := set["the"]; ok {
		t.Fatal("stopword survived")
	}
	if _, ok := set["cat"]; !ok {
		t.Fatal("content word missing")
	}
	if _, ok := set["mat"]; !ok {
		t.Fatal("punctuation-adjacent word missing")
	}
}

func TestJaccard(t *testing.T) {
	a := TokenSet("cat dog bird")
	b := TokenSet("cat dog fish")
	got := Jaccard(a, b)
	if got < 0.49 || got > 0.51 {
		t.Fatalf("jaccard = %f, want 0.5", got)
	}
	if Jaccard(nil, nil) != 1 {
		t.Fatal("two empty sets should be identical")
	}
	if Jaccard(a, a) != 1 {
		t.Fatal("self jaccard should be 1")
	}
}
