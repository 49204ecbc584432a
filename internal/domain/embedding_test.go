package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	failAt int
	calls  []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.calls = append(s.calls, text)
	if s.err != nil && len(s.calls) == s.failAt {
		return EmbeddingResult{}, s.err
	}
	return s.result, nil
}

type stubBatchEmbedder struct {
	stubEmbedder
	batchCalls int
}

func (s *stubBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (BatchEmbeddingResult, error) {
	s.batchCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.result.Embedding
	}
	return BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

func TestBatchFallback_CallsEmbedPerText(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.5}, PromptTokens: 2, TotalTokens: 3}}

	res, err := BatchFallback(context.Background(), inner, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.calls) != 3 {
		t.Fatalf("expected 3 Embed calls, got %d", len(inner.calls))
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.PromptTokens != 6 || res.TotalTokens != 9 {
		t.Errorf("unexpected usage: prompt=%d total=%d", res.PromptTokens, res.TotalTokens)
	}
}

func TestBatchFallback_StopsOnError(t *testing.T) {
	innerErr := errors.New("provider down")
	inner := &stubEmbedder{err: innerErr, failAt: 2}

	_, err := BatchFallback(context.Background(), inner, []string{"a", "b", "c"})
	if !errors.Is(err, innerErr) {
		t.Fatalf("expected wrapped inner error, got %v", err)
	}
	if len(inner.calls) != 2 {
		t.Errorf("expected to stop after 2 calls, got %d", len(inner.calls))
	}
}

func TestEmbedAll_PrefersNativeBatch(t *testing.T) {
	inner := &stubBatchEmbedder{stubEmbedder: stubEmbedder{result: EmbeddingResult{Embedding: []float32{1}}}}

	res, err := EmbedAll(context.Background(), inner, []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchCalls != 1 {
		t.Errorf("expected one batch call, got %d", inner.batchCalls)
	}
	if len(inner.calls) != 0 {
		t.Errorf("expected no single Embed calls, got %d", len(inner.calls))
	}
	if len(res.Embeddings) != 2 {
		t.Errorf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection refused")

	storeErr := NewStoreError("get_all", cause)
	if !errors.Is(storeErr, ErrStore) {
		t.Error("StoreError should match ErrStore")
	}
	if !errors.Is(storeErr, cause) {
		t.Error("StoreError should preserve its cause")
	}
	if errors.Is(storeErr, ErrNotFound) {
		t.Error("StoreError must not match ErrNotFound")
	}

	embErr := NewEmbeddingError(cause)
	if !errors.Is(embErr, ErrEmbeddingProviderError) {
		t.Error("EmbeddingError should match ErrEmbeddingProviderError")
	}
	if !errors.Is(embErr, cause) {
		t.Error("EmbeddingError should preserve its cause")
	}

	argErr := InvalidArgument("category is required")
	if !errors.Is(argErr, ErrInvalidArgument) {
		t.Error("InvalidArgument should match ErrInvalidArgument")
	}
	if argErr.Error() != "invalid argument: category is required" {
		t.Errorf("unexpected message: %q", argErr.Error())
	}
}

func TestEmbeddingUsage_NilSafe(t *testing.T) {
	var u *EmbeddingUsage
	u.AddTokens(5)

	ctx, usage := NewContextWithUsage(context.Background())
	UsageFromContext(ctx).AddTokens(7)
	if !usage.Used || usage.TotalTokens != 7 {
		t.Errorf("unexpected usage: %+v", usage)
	}
	if UsageFromContext(context.Background()) != nil {
		t.Error("expected nil collector for bare context")
	}
}
