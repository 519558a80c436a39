package graph

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/soldasur/advisor/internal/expr"
	"github.com/soldasur/advisor/internal/models"
)

// maxRecommendations caps the candidate lists produced by the
// recommendation functions.
const maxRecommendations = 3

// NewRegistry returns the function table available to calculation nodes:
// the math helpers plus the catalog-backed recommendation functions.
func NewRegistry(products []models.Candidate) expr.Registry {
	funcs := expr.BaseRegistry()
	funcs["load_product_catalog"] = func(args []models.Value) (models.Value, error) {
		return models.CandidatesValue(products), nil
	}
	funcs["filter_radiators"] = filterRadiators(products)
	funcs["recommend_radiator_from_catalog"] = recommendRadiator(products)
	funcs["format_radiator_recommendations"] = formatRadiatorRecommendations
	funcs["recommend_boiler"] = recommendBoiler(products)
	funcs["recommend_floor_heating_kit"] = recommendFloorHeatingKit(products)
	return funcs
}

func isRadiator(c models.Candidate) bool {
	return c.Family == "Radiadores" &&
		!strings.Contains(strings.ToLower(c.Type), "toallero") &&
		!strings.Contains(c.Model, "TOALLERO")
}

// effectivePower is the per-module heat output in kcal/h. The coefficient
// carries the watt-to-kcal/h conversion for each line.
func effectivePower(c models.Candidate) float64 {
	coef := c.Coefficient
	if coef == 0 {
		coef = 1
	}
	return c.PowerWatts * coef
}

// filterRadiators implements filter_radiators(tipo, instalacion, estilo,
// color, carga). Type, installation and style narrow by keyword against
// the product type; color narrows against the color list. Each criterion
// is dropped rather than allowed to empty the result.
func filterRadiators(products []models.Candidate) expr.Func {
	return func(args []models.Value) (models.Value, error) {
		if len(args) != 5 {
			return models.Value{}, fmt.Errorf("expects 5 arguments (tipo, instalacion, estilo, color, carga), got %d", len(args))
		}
		var criteria [4]string
		for i := 0; i < 4; i++ {
			s, ok := args[i].Text()
			if !ok {
				return models.Value{}, fmt.Errorf("argument %d must be text", i+1)
			}
			criteria[i] = strings.ToLower(s)
		}
		if _, ok := args[4].Number(); !ok {
			return models.Value{}, fmt.Errorf("carga must be a number")
		}

		var radiators []models.Candidate
		for _, c := range products {
			if isRadiator(c) {
				radiators = append(radiators, c)
			}
		}

		narrow := func(pool []models.Candidate, pred func(models.Candidate) bool) []models.Candidate {
			var out []models.Candidate
			for _, c := range pool {
				if pred(c) {
					out = append(out, c)
				}
			}
			if len(out) == 0 {
				return pool
			}
			return out
		}

		for _, kw := range criteria[:3] {
			if kw == "" || kw == "cualquiera" {
				continue
			}
			radiators = narrow(radiators, func(c models.Candidate) bool {
				return strings.Contains(strings.ToLower(c.Type+" "+c.Description), kw)
			})
		}
		if color := criteria[3]; color != "" && color != "cualquiera" {
			radiators = narrow(radiators, func(c models.Candidate) bool {
				for _, col := range c.Colors {
					if strings.EqualFold(col, color) {
						return true
					}
				}
				return false
			})
		}

		sort.SliceStable(radiators, func(a, b int) bool {
			return effectivePower(radiators[a]) > effectivePower(radiators[b])
		})
		if len(radiators) > maxRecommendations {
			radiators = radiators[:maxRecommendations]
		}
		return models.CandidatesValue(radiators), nil
	}
}

// recommendRadiator implements recommend_radiator_from_catalog(carga).
// Radiators are ordered by how close their output is to the requested
// load, closest first.
func recommendRadiator(products []models.Candidate) expr.Func {
	return func(args []models.Value) (models.Value, error) {
		if len(args) != 1 {
			return models.Value{}, fmt.Errorf("expects 1 argument (potencia requerida), got %d", len(args))
		}
		required, ok := args[0].Number()
		if !ok {
			return models.Value{}, fmt.Errorf("potencia requerida must be a number")
		}
		var radiators []models.Candidate
		for _, c := range products {
			if isRadiator(c) {
				radiators = append(radiators, c)
			}
		}
		sort.SliceStable(radiators, func(a, b int) bool {
			return math.Abs(radiators[a].PowerWatts-required) < math.Abs(radiators[b].PowerWatts-required)
		})
		if len(radiators) > maxRecommendations {
			radiators = radiators[:maxRecommendations]
		}
		return models.CandidatesValue(radiators), nil
	}
}

// formatRadiatorRecommendations implements
// format_radiator_recommendations(modelos, carga_kcal): a numbered listing
// with effective power, estimated module count and description.
func formatRadiatorRecommendations(args []models.Value) (models.Value, error) {
	if len(args) != 2 {
		return models.Value{}, fmt.Errorf("expects 2 arguments (modelos, carga), got %d", len(args))
	}
	list, ok := args[0].Candidates()
	if !ok {
		return models.Value{}, fmt.Errorf("modelos must be a candidate list")
	}
	heatLoad, ok := args[1].Number()
	if !ok {
		return models.Value{}, fmt.Errorf("carga must be a number")
	}
	if len(list) == 0 {
		return models.StringValue("No encontramos modelos que coincidan con tus requisitos. Por favor intentá con otros parámetros."), nil
	}

	var sections []string
	for i, c := range list {
		power := effectivePower(c)
		modules := 0
		if power > 0 {
			modules = int(math.Ceil(heatLoad / power))
		}
		lines := []string{
			fmt.Sprintf("%d. %s", i+1, c.Model),
			fmt.Sprintf("   - Potencia efectiva: %.0f kcal/h", power),
			fmt.Sprintf("   - Módulos estimados: %d", modules),
			fmt.Sprintf("   - Descripción: %s", c.Description),
		}
		if len(c.Colors) > 0 {
			lines = append(lines, fmt.Sprintf("   - Colores disponibles: %s", strings.Join(c.Colors, ", ")))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return models.StringValue(strings.Join(sections, "\n\n")), nil
}

// recommendBoiler implements recommend_boiler(potencia, tipo): the weakest
// boiler that still covers the requirement, or the strongest available
// when none does.
func recommendBoiler(products []models.Candidate) expr.Func {
	typeNames := map[string]string{"mural": "Caldera mural", "piso": "Caldera de piso"}
	return func(args []models.Value) (models.Value, error) {
		if len(args) != 2 {
			return models.Value{}, fmt.Errorf("expects 2 arguments (potencia, tipo), got %d", len(args))
		}
		required, ok := args[0].Number()
		if !ok {
			return models.Value{}, fmt.Errorf("potencia must be a number")
		}
		boilerType, ok := args[1].Text()
		if !ok {
			return models.Value{}, fmt.Errorf("tipo must be text")
		}

		var boilers []models.Candidate
		for _, c := range products {
			if c.Family != "Calderas" {
				continue
			}
			if wanted, known := typeNames[strings.ToLower(boilerType)]; known && c.Type != wanted {
				continue
			}
			boilers = append(boilers, c)
		}
		if len(boilers) == 0 {
			return models.StringValue(fmt.Sprintf("Caldera %s de %.0f W (a pedido)", boilerType, required)), nil
		}

		best := boilers[0]
		found := false
		for _, c := range boilers {
			if c.PowerWatts >= required && (!found || c.PowerWatts < best.PowerWatts) {
				best = c
				found = true
			}
		}
		if !found {
			for _, c := range boilers {
				if c.PowerWatts > best.PowerWatts {
					best = c
				}
			}
		}
		return models.StringValue(fmt.Sprintf("%s (%.0f W)", best.Model, best.PowerWatts)), nil
	}
}

var kitSurfacePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*m²`)

// recommendFloorHeatingKit implements recommend_floor_heating_kit(superficie):
// the smallest kit covering the surface, or a multiple of the largest kit
// when the surface exceeds every kit.
func recommendFloorHeatingKit(products []models.Candidate) expr.Func {
	return func(args []models.Value) (models.Value, error) {
		if len(args) != 1 {
			return models.Value{}, fmt.Errorf("expects 1 argument (superficie), got %d", len(args))
		}
		surface, ok := args[0].Number()
		if !ok {
			return models.Value{}, fmt.Errorf("superficie must be a number")
		}

		type kit struct {
			product models.Candidate
			surface float64
		}
		var kits []kit
		for _, c := range products {
			if c.Family != "Piso Radiante" || !strings.Contains(c.Model, "KIT") {
				continue
			}
			m := kitSurfacePattern.FindStringSubmatch(c.Model)
			if m == nil {
				continue
			}
			s, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			kits = append(kits, kit{product: c, surface: s})
		}
		if len(kits) == 0 {
			return models.StringValue(fmt.Sprintf("Kit Piso Radiante %.0fm² (a pedido)", surface)), nil
		}

		sort.SliceStable(kits, func(a, b int) bool { return kits[a].surface < kits[b].surface })
		for _, k := range kits {
			if k.surface >= surface {
				return models.StringValue(fmt.Sprintf("%s (cobertura %.0f m²)", k.product.Model, k.surface)), nil
			}
		}
		largest := kits[len(kits)-1]
		needed := int(math.Ceil(surface / largest.surface))
		return models.StringValue(fmt.Sprintf("%d x %s (cobertura %.0f m² cada uno)", needed, largest.product.Model, largest.surface)), nil
	}
}
