package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/soldasur/advisor/internal/catalog"
	"github.com/soldasur/advisor/internal/embedding"
	"github.com/soldasur/advisor/internal/models"
)

func testProducts() []models.Candidate {
	return []models.Candidate{
		{Model: "Caldera A 24", Family: "Calderas", Type: "Caldera mural", Description: "caldera mural doble servicio", PowerWatts: 24000},
		{Model: "Caldera B 31", Family: "Calderas", Type: "Caldera mural", Description: "caldera mural alta potencia", PowerWatts: 31000},
		{Model: "Caldera C 11", Family: "Calderas", Type: "Caldera mural", Description: "caldera mural compacta", PowerWatts: 11000},
		{Model: "Radiador X", Family: "Radiadores", Type: "Radiador de aluminio", Description: "radiador de aluminio modular", PowerWatts: 900},
		{Model: "Radiador Y", Family: "Radiadores", Type: "Radiador de aluminio", Description: "radiador de aluminio grande", PowerWatts: 1100},
		{Model: "Radiador Z", Family: "Radiadores", Type: "Radiador de chapa", Description: "radiador de chapa clasico", PowerWatts: 700},
		{Model: "Kit Piso 30", Family: "Piso Radiante", Type: "Kit piso radiante", Description: "kit piso radiante completo", PowerWatts: 0},
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	products := testProducts()
	emb := embedding.NewHashingEmbedder(128)
	idx, err := catalog.BuildIndex(context.Background(), products, emb)
	if err != nil {
		t.Fatalf("BuildIndex error: %v", err)
	}
	eng, err := NewEngine(products, idx, emb, opts...)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	return eng
}

func TestExtractWatts(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"¿Tienen calderas de más de 17000 W?", 17000, true},
		{"necesito 17 kW", 17000, true},
		{"una caldera de 18.5KW", 18500, true},
		{"equipo industrial de 1,5 mw", 1500000, true},
		{"busco radiadores lindos", 0, false},
	}
	for _, tc := range tests {
		got, ok := ExtractWatts(tc.text)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ExtractWatts(%q) = %v, %v; want %v, %v", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSearchWattThresholdAndBoilerKeyword(t *testing.T) {
	eng := newTestEngine(t, WithTopK(5))
	got, err := eng.Search(context.Background(), "¿Tienen calderas de más de 17000 W?", nil)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected results")
	}
	for _, c := range got {
		if !strings.Contains(strings.ToLower(c.Type), "caldera") {
			t.Errorf("non-boiler in results: %s", c.Model)
		}
		if c.PowerWatts < 17000 {
			t.Errorf("underpowered result: %s (%v W)", c.Model, c.PowerWatts)
		}
	}
}

func TestSearchHeatLoadBand(t *testing.T) {
	eng := newTestEngine(t, WithTopK(7), WithToleranceBand(ToleranceBand{Lower: 0.15, Upper: 0.15}))
	convCtx := models.Context{"carga_termica": models.NumberValue(1000)}
	got, err := eng.Search(context.Background(), "radiadores para mi casa", convCtx)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	names := make(map[string]bool)
	for _, c := range got {
		names[c.Model] = true
	}
	if !names["Radiador X"] || !names["Radiador Y"] {
		t.Errorf("band should keep 900 W and 1100 W products, got %v", names)
	}
	if names["Radiador Z"] || names["Caldera B 31"] {
		t.Errorf("band should drop products outside [850, 1150], got %v", names)
	}
}

func TestSearchTypeContextFilter(t *testing.T) {
	eng := newTestEngine(t, WithTopK(7))
	convCtx := models.Context{"tipo_calefaccion": models.StringValue("Piso radiante")}
	got, err := eng.Search(context.Background(), "qué me recomiendan", convCtx)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	for _, c := range got {
		if !strings.Contains(strings.ToLower(c.Family+" "+c.Type), "piso") {
			t.Errorf("type filter leaked %s", c.Model)
		}
	}
}

func TestFilterNeverEmptiesPool(t *testing.T) {
	eng := newTestEngine(t)
	got, err := eng.Search(context.Background(), "caldera de 99999 kW", nil)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("an unsatisfiable filter must be discarded, not empty the results")
	}
}

func TestSearchOrderingAndTopK(t *testing.T) {
	eng := newTestEngine(t, WithTopK(3))
	got, err := eng.Search(context.Background(), "radiador de aluminio", nil)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) > 3 {
		t.Errorf("topK not honored: %d results", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Similarity < got[i].Similarity {
			t.Errorf("results not sorted by similarity: %v then %v", got[i-1].Similarity, got[i].Similarity)
		}
		if got[i-1].Similarity == got[i].Similarity && got[i-1].Rank > got[i].Rank {
			t.Errorf("ties not broken by retrieval rank")
		}
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("embedding backend down")
}

func TestQueryDegradesOnEmbeddingError(t *testing.T) {
	products := testProducts()
	goodEmb := embedding.NewHashingEmbedder(128)
	idx, err := catalog.BuildIndex(context.Background(), products, goodEmb)
	if err != nil {
		t.Fatalf("BuildIndex error: %v", err)
	}
	eng, err := NewEngine(products, idx, failingEmbedder{})
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	res := eng.Query(context.Background(), "qué es una caldera", nil)
	if len(res.Candidates) != 0 {
		t.Errorf("expected empty candidates, got %d", len(res.Candidates))
	}
	if res.Summary != NoResultsSummary {
		t.Errorf("expected degraded summary, got %q", res.Summary)
	}
}

func TestSummarize(t *testing.T) {
	candidates := []models.Candidate{
		{Model: "Caldera A 24", Type: "Caldera mural", PowerWatts: 24000},
		{Model: "Caldera B 31", Type: "Caldera mural", PowerWatts: 31000},
	}
	s := Summarize(candidates)
	for _, want := range []string{"Tipos disponibles: Caldera mural", "Rango de potencias: 24000-31000 W", "Modelo destacado: Caldera A 24"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q: %s", want, s)
		}
	}
	if Summarize(nil) != NoResultsSummary {
		t.Error("empty candidates must yield the no-results summary")
	}
}

func TestFormatProductList(t *testing.T) {
	out := FormatProductList([]models.Candidate{
		{Model: "Caldera A 24", Type: "Caldera mural", PowerWatts: 24000, Description: "doble servicio"},
	})
	if !strings.Contains(out, "1. Caldera A 24 (Caldera mural) - 24000 W: doble servicio") {
		t.Errorf("unexpected listing: %q", out)
	}
}

func TestQueryEmbeddingCache(t *testing.T) {
	counter := &countingEmbedder{inner: embedding.NewHashingEmbedder(128)}
	products := testProducts()
	idx, err := catalog.BuildIndex(context.Background(), products, counter.inner)
	if err != nil {
		t.Fatalf("BuildIndex error: %v", err)
	}
	eng, err := NewEngine(products, idx, counter)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := eng.Search(context.Background(), "misma consulta", nil); err != nil {
			t.Fatalf("Search error: %v", err)
		}
	}
	if counter.calls != 1 {
		t.Errorf("expected 1 embedding call for repeated query, got %d", counter.calls)
	}
}

type countingEmbedder struct {
	inner *embedding.HashingEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}
