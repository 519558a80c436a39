// Package retrieval implements vector search over the product catalog with
// structured filtering.
//
// A query is embedded and an over-fetched candidate pool is narrowed by
// filters derived from the query text and the conversation context. No
// filter is allowed to empty a non-empty pool; when one would, it is
// discarded and the pool passes through unchanged.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/soldasur/advisor/internal/embedding"
	"github.com/soldasur/advisor/internal/models"
	"github.com/soldasur/advisor/internal/vector"
)

const (
	// DefaultTopK is how many candidates a query returns.
	DefaultTopK = 3
	// SearchPoolK is how many candidates are fetched before filtering.
	SearchPoolK = 80
	// DefaultTimeout bounds one retrieval call end to end.
	DefaultTimeout = 10 * time.Second
	// DefaultCacheTTL is how long query embeddings stay cached.
	DefaultCacheTTL = 5 * time.Minute

	// NoResultsSummary is returned when retrieval degrades to empty.
	NoResultsSummary = "No se encontró información de productos para esta consulta."
)

// ToleranceBand is the asymmetric window applied around a computed heat
// load: products between load*(1-Lower) and load*(1+Upper) pass. Oversized
// equipment is more acceptable than undersized, hence the wider upper side.
type ToleranceBand struct {
	Lower float64
	Upper float64
}

// DefaultToleranceBand matches products from 80% to 150% of the heat load.
var DefaultToleranceBand = ToleranceBand{Lower: 0.2, Upper: 0.5}

// Opts holds configuration for the retrieval engine.
type Opts struct {
	TopK     int
	PoolK    int
	Band     ToleranceBand
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Option configures the retrieval engine.
type Option func(*Opts)

// WithTopK sets how many candidates a query returns.
func WithTopK(k int) Option {
	return func(o *Opts) { o.TopK = k }
}

// WithPoolK sets the over-fetch pool size.
func WithPoolK(k int) Option {
	return func(o *Opts) { o.PoolK = k }
}

// WithToleranceBand sets the heat-load filter window.
func WithToleranceBand(band ToleranceBand) Option {
	return func(o *Opts) { o.Band = band }
}

// WithTimeout sets the per-call retrieval budget.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Result is the outcome of one retrieval query.
type Result struct {
	Candidates []models.Candidate
	Summary    string
}

// Engine performs retrieval over an immutable catalog index.
type Engine struct {
	products []models.Candidate
	index    *vector.Index
	embedder embedding.Embedder
	topK     int
	poolK    int
	band     ToleranceBand
	timeout  time.Duration
	cache    *gocache.Cache
}

// NewEngine creates a retrieval engine over the given catalog and index.
// The index must have been built from the same product slice, in order.
func NewEngine(products []models.Candidate, index *vector.Index, embedder embedding.Embedder, opts ...Option) (*Engine, error) {
	if len(products) == 0 {
		return nil, models.ErrEmptyCatalog
	}
	if index.Len() != len(products) {
		return nil, fmt.Errorf("index size %d does not match catalog size %d", index.Len(), len(products))
	}
	cfg := Opts{
		TopK:     DefaultTopK,
		PoolK:    SearchPoolK,
		Band:     DefaultToleranceBand,
		Timeout:  DefaultTimeout,
		CacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.PoolK < cfg.TopK {
		cfg.PoolK = SearchPoolK
	}
	slog.Debug("retrieval.NewEngine created", "products", len(products), "topK", cfg.TopK, "poolK", cfg.PoolK)
	return &Engine{
		products: products,
		index:    index,
		embedder: embedder,
		topK:     cfg.TopK,
		poolK:    cfg.PoolK,
		band:     cfg.Band,
		timeout:  cfg.Timeout,
		cache:    gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}, nil
}

// Query retrieves and filters candidates for a question. Errors degrade to
// an empty result with NoResultsSummary instead of failing the turn.
func (e *Engine) Query(ctx context.Context, question string, convCtx models.Context) Result {
	candidates, err := e.Search(ctx, question, convCtx)
	if err != nil {
		slog.Error("retrieval.Query degraded to empty result", "error", err, "question", question)
		return Result{Summary: NoResultsSummary}
	}
	return Result{Candidates: candidates, Summary: Summarize(candidates)}
}

// Search embeds the question, over-fetches a candidate pool and narrows it
// with the query and context filters. Candidates come back ordered by
// similarity, original retrieval rank breaking ties, truncated to topK.
func (e *Engine) Search(ctx context.Context, question string, convCtx models.Context) ([]models.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	queryVec, err := e.embedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	hits, err := e.index.Search(queryVec, e.poolK)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("retrieval timed out: %w", err)
	}

	pool := make([]models.Candidate, 0, len(hits))
	for _, h := range hits {
		c := e.products[h.Index]
		c.Similarity = h.Score
		c.Rank = h.Rank
		pool = append(pool, c)
	}

	pool = e.applyQueryFilters(question, pool)
	pool = e.applyContextFilters(convCtx, pool)

	if len(pool) > e.topK {
		pool = pool[:e.topK]
	}
	slog.Debug("retrieval.Search complete", "question", question, "results", len(pool))
	return pool, nil
}

// SearchOnly retrieves candidates for a product search without context
// filtering, with a formatted listing for direct display.
func (e *Engine) SearchOnly(ctx context.Context, question string) Result {
	candidates, err := e.Search(ctx, question, nil)
	if err != nil {
		slog.Error("retrieval.SearchOnly degraded to empty result", "error", err, "question", question)
		return Result{Summary: NoResultsSummary}
	}
	return Result{Candidates: candidates, Summary: FormatProductList(candidates)}
}

// ContextFor returns enrichment material for a dialogue node: the filtered
// candidates plus their summary. Failures yield an empty result.
func (e *Engine) ContextFor(ctx context.Context, query string, convCtx models.Context) Result {
	return e.Query(ctx, query, convCtx)
}

func (e *Engine) embedQuery(ctx context.Context, question string) ([]float64, error) {
	if cached, ok := e.cache.Get(question); ok {
		return cached.([]float64), nil
	}
	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	e.cache.SetDefault(question, vec)
	return vec, nil
}

// applyQueryFilters narrows the pool using signals extracted from the
// question text: a wattage threshold and the boiler keyword.
func (e *Engine) applyQueryFilters(question string, pool []models.Candidate) []models.Candidate {
	if watts, ok := ExtractWatts(question); ok {
		pool = keepNonEmpty(pool, func(c models.Candidate) bool {
			return c.PowerWatts >= watts
		})
	}
	if strings.Contains(strings.ToLower(question), "caldera") {
		pool = keepNonEmpty(pool, func(c models.Candidate) bool {
			return strings.Contains(strings.ToLower(c.Type), "caldera")
		})
	}
	return pool
}

// applyContextFilters narrows the pool using conversation variables: the
// computed heat load band and the chosen heating type.
func (e *Engine) applyContextFilters(convCtx models.Context, pool []models.Candidate) []models.Candidate {
	if convCtx == nil {
		return pool
	}
	if load, ok := convCtx.Number("carga_termica"); ok && load > 0 {
		low := load * (1 - e.band.Lower)
		high := load * (1 + e.band.Upper)
		pool = keepNonEmpty(pool, func(c models.Candidate) bool {
			return c.PowerWatts >= low && c.PowerWatts <= high
		})
	}
	tipo, ok := convCtx.Text("tipo_calefaccion")
	if !ok {
		tipo, _ = convCtx.Text("inicio")
	}
	if tipo != "" {
		needle := strings.ToLower(tipo)
		pool = keepNonEmpty(pool, func(c models.Candidate) bool {
			hay := strings.ToLower(c.Family + " " + c.Type)
			for _, kw := range []string{"caldera", "radiador", "piso"} {
				if strings.Contains(needle, kw) && strings.Contains(hay, kw) {
					return true
				}
			}
			return false
		})
	}
	return pool
}

// keepNonEmpty applies pred but never empties a non-empty pool.
func keepNonEmpty(pool []models.Candidate, pred func(models.Candidate) bool) []models.Candidate {
	if len(pool) == 0 {
		return pool
	}
	filtered := pool[:0:0]
	for _, c := range pool {
		if pred(c) {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return pool
	}
	return filtered
}

var wattsPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*([km]?)\s*w`)

// ExtractWatts detects power requirements like "17000 W", "17 kW" or
// "1.5MW" in free text and converts them to watts.
func ExtractWatts(text string) (float64, bool) {
	m := wattsPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	val, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "k":
		val *= 1_000
	case "m":
		val *= 1_000_000
	}
	return val, true
}

// Summarize renders a one-line Spanish summary of the candidates: distinct
// types, power range and top model.
func Summarize(candidates []models.Candidate) string {
	if len(candidates) == 0 {
		return NoResultsSummary
	}
	var types []string
	seen := make(map[string]bool)
	minPower, maxPower := 0.0, 0.0
	first := true
	for _, c := range candidates {
		if c.Type != "" && !seen[c.Type] {
			seen[c.Type] = true
			types = append(types, c.Type)
		}
		if c.PowerWatts <= 0 {
			continue
		}
		if first || c.PowerWatts < minPower {
			minPower = c.PowerWatts
		}
		if first || c.PowerWatts > maxPower {
			maxPower = c.PowerWatts
		}
		first = false
	}
	parts := []string{fmt.Sprintf("Tipos disponibles: %s", strings.Join(types, ", "))}
	if !first {
		parts = append(parts, fmt.Sprintf("Rango de potencias: %.0f-%.0f W", minPower, maxPower))
	}
	parts = append(parts, fmt.Sprintf("Modelo destacado: %s", candidates[0].Model))
	return strings.Join(parts, " | ")
}

// FormatProductList renders candidates as a numbered listing for direct
// display when generation is unavailable or a plain search was requested.
func FormatProductList(candidates []models.Candidate) string {
	if len(candidates) == 0 {
		return NoResultsSummary
	}
	var b strings.Builder
	for i, c := range candidates {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, c.Model, c.Type)
		if c.PowerWatts > 0 {
			fmt.Fprintf(&b, " - %.0f W", c.PowerWatts)
		}
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
	}
	return b.String()
}
