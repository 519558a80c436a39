package embedding

import (
	"context"
	"math"
	"testing"
)

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := NewHashingEmbedder(0)
	a, err := e.Embed(context.Background(), "caldera mural de 17000 W")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	b, err := e.Embed(context.Background(), "caldera mural de 17000 W")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(a) != DefaultHashingDim {
		t.Fatalf("expected dimension %d, got %d", DefaultHashingDim, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at index %d", i)
		}
	}
}

func TestHashingEmbedderNormalized(t *testing.T) {
	e := NewHashingEmbedder(64)
	v, err := e.Embed(context.Background(), "radiadores de aluminio")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("vector not unit length: |v|^2 = %v", sum)
	}
}

func TestHashingEmbedderSimilarityReflectsOverlap(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()
	boiler, _ := e.Embed(ctx, "caldera mural condensación gas")
	sameish, _ := e.Embed(ctx, "caldera mural a gas")
	other, _ := e.Embed(ctx, "piso radiante kit completo")

	if cosine(boiler, sameish) <= cosine(boiler, other) {
		t.Error("expected overlapping text to score higher than unrelated text")
	}
}

func cosine(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
