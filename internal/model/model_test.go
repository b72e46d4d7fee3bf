package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWordTokenizerReservedIDs(t *testing.T) {
	tok := NewWordTokenizer()
	if tok.PadID() != 0 || tok.EndID() != 1 || tok.UnknownID() != 2 {
		t.Fatalf("reserved ids wrong: pad=%d end=%d unk=%d", tok.PadID(), tok.EndID(), tok.UnknownID())
	}
	if tok.VocabSize() != 3 {
		t.Fatalf("fresh vocab size = %d, want 3", tok.VocabSize())
	}
}

func TestWordTokenizerGrowsAndRoundTrips(t *testing.T) {
	tok := NewWordTokenizer()
	ids := tok.Encode("the cat sat")
	if len(ids) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(ids))
	}
	again := tok.Encode("the cat sat")
	for i := range ids {
		if ids[i] != again[i] {
			t.Fatalf("encode not stable at %d: %d vs %d", i, ids[i], again[i])
		}
	}
	if got := tok.Decode(ids); got != "the cat sat" {
		t.Fatalf("decode round trip = %q", got)
	}
}

func TestWordTokenizerDecodeSkipsMarkers(t *testing.T) {
	tok := NewWordTokenizer()
	ids := tok.Encode("hello world")
	padded := append([]int{TokenPad}, append(ids, TokenEnd, TokenPad)...)
	if got := tok.Decode(padded); got != "hello world" {
		t.Fatalf("decode with markers = %q", got)
	}
}

func TestRefModelForwardDeterministic(t *testing.T) {
	m := NewRefModel(8, 16)
	a, err := m.Forward([]int{3, 4, 5})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	b, _ := m.Forward([]int{3, 4, 5})
	for i := range a.Hidden {
		if a.Hidden[i] != b.Hidden[i] {
			t.Fatalf("hidden not deterministic at %d", i)
		}
	}
	if len(a.Logits) != 16 {
		t.Fatalf("logits len = %d, want 16", len(a.Logits))
	}
}

func TestRefModelVocabGrowthOnForward(t *testing.T) {
	m := NewRefModel(4, 8)
	if _, err := m.Forward([]int{20}); err != nil {
		t.Fatalf("forward: %v", err)
	}
	_, vocab := m.ProjectionShape()
	if vocab != 21 {
		t.Fatalf("vocab after growth = %d, want 21", vocab)
	}
}

func TestRefModelProjectionUpdate(t *testing.T) {
	m := NewRefModel(2, 3)
	update := []float64{1, 0, 0, 0, 2, 0}
	if err := m.ApplyProjectionUpdate(update); err != nil {
		t.Fatalf("apply: %v", err)
	}
	w := m.ProjectionWeights()
	if w[0] != 1 || w[4] != 2 {
		t.Fatalf("update not applied: %v", w)
	}
	if err := m.ApplyProjectionUpdate([]float64{1}); err == nil {
		t.Fatal("size mismatch should error")
	}
}

func TestRefModelAdapterResidual(t *testing.T) {
	m := NewRefModel(3, 4)
	m.SetAdapterFn(func(pre []float64) []float64 {
		return []float64{1, 1, 1}
	})
	res, _ := m.Forward([]int{3})
	for d := range res.Hidden {
		diff := res.Hidden[d] - res.PreAdapterHidden[d]
		if diff < 0.999 || diff > 1.001 {
			t.Fatalf("adapter residual not applied at dim %d: %f", d, diff)
		}
	}
}

func TestRefModelSnapshotShape(t *testing.T) {
	m := NewRefModel(4, 6)
	cp := m.Snapshot()
	if len(cp.Tensors) != 1 {
		t.Fatalf("expected 1 tensor, got %d", len(cp.Tensors))
	}
	tensor := cp.Tensors[0]
	if tensor.Shape[0] != 4 || tensor.Shape[1] != 6 || len(tensor.Data) != 24 {
		t.Fatalf("bad tensor shape/data: %v len=%d", tensor.Shape, len(tensor.Data))
	}
}

func TestHTTPTeacherComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "a response"}`))
	}))
	defer srv.Close()

	teacher := NewHTTPTeacher(srv.URL, time.Second)
	text, ok := teacher.Complete(context.Background(), "a prompt")
	if !ok || text != "a response" {
		t.Fatalf("Complete = %q, %v", text, ok)
	}
}

func TestHTTPTeacherUnavailableIsNoData(t *testing.T) {
	teacher := NewHTTPTeacher("http://127.0.0.1:1/none", 200*time.Millisecond)
	if _, ok := teacher.Complete(context.Background(), "p"); ok {
		t.Fatal("unreachable teacher should report no data")
	}
}

func TestHTTPTeacherEmptyResponseIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": ""}`))
	}))
	defer srv.Close()

	teacher := NewHTTPTeacher(srv.URL, time.Second)
	if _, ok := teacher.Complete(context.Background(), "p"); ok {
		t.Fatal("empty response should report no data")
	}
}
