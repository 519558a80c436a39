// Package catalog loads the read-only product catalog and prepares it for
// vector retrieval.
//
// The catalog is a JSON or YAML list of products. A default catalog is
// embedded so the service starts without any external files.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/soldasur/advisor/internal/embedding"
	"github.com/soldasur/advisor/internal/models"
	"github.com/soldasur/advisor/internal/vector"
)

//go:embed catalog_default.json
var defaultCatalog []byte

// Load reads the catalog from path. JSON is assumed unless the file ends in
// .yaml or .yml. An empty path loads the embedded default catalog.
func Load(path string) ([]models.Candidate, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
	}

	var products []models.Candidate
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, &products); err != nil {
			return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &products); err != nil {
			return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
		}
	}
	if len(products) == 0 {
		return nil, models.ErrEmptyCatalog
	}
	slog.Debug("catalog.Load succeeded", "path", path, "products", len(products))
	return products, nil
}

// ToText renders a product as the text that gets embedded for retrieval.
func ToText(p models.Candidate) string {
	parts := []string{
		fmt.Sprintf("Producto: %s", p.Model),
		fmt.Sprintf("Familia: %s", p.Family),
		fmt.Sprintf("Tipo: %s", p.Type),
		fmt.Sprintf("Descripción: %s", p.Description),
	}
	if len(p.Features) > 0 {
		parts = append(parts, fmt.Sprintf("Características: %s", strings.Join(p.Features, ", ")))
	}
	if len(p.Applications) > 0 {
		parts = append(parts, fmt.Sprintf("Aplicaciones: %s", strings.Join(p.Applications, ", ")))
	}
	parts = append(parts, fmt.Sprintf("Potencia: %.0f W", p.PowerWatts))
	return strings.Join(parts, " ")
}

// BuildIndex embeds every product and builds the vector index. The index
// position of each vector matches the product's position in the slice.
func BuildIndex(ctx context.Context, products []models.Candidate, embedder embedding.Embedder) (*vector.Index, error) {
	if len(products) == 0 {
		return nil, models.ErrEmptyCatalog
	}
	vectors := make([][]float64, len(products))
	for i, p := range products {
		v, err := embedder.Embed(ctx, ToText(p))
		if err != nil {
			return nil, fmt.Errorf("failed to embed product %s: %w", p.Model, err)
		}
		vectors[i] = v
	}
	idx, err := vector.NewIndex(vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog index: %w", err)
	}
	slog.Info("catalog.BuildIndex complete", "products", len(products), "dim", idx.Dim())
	return idx, nil
}
