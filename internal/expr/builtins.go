package expr

import (
	"fmt"
	"math"

	"github.com/soldasur/advisor/internal/models"
)

// BaseRegistry returns the math helpers available to every calculation node.
// Catalog-backed recommendation functions are registered on top of this by
// the graph engine.
func BaseRegistry() Registry {
	return Registry{
		"ceil":  numeric1("ceil", math.Ceil),
		"floor": numeric1("floor", math.Floor),
		"round": numeric1("round", math.Round),
		"min":   numeric2("min", math.Min),
		"max":   numeric2("max", math.Max),
	}
}

func numeric1(name string, fn func(float64) float64) Func {
	return func(args []models.Value) (models.Value, error) {
		if len(args) != 1 {
			return models.Value{}, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		n, ok := args[0].Number()
		if !ok {
			return models.Value{}, fmt.Errorf("%s expects a number", name)
		}
		return models.NumberValue(fn(n)), nil
	}
}

func numeric2(name string, fn func(float64, float64) float64) Func {
	return func(args []models.Value) (models.Value, error) {
		if len(args) != 2 {
			return models.Value{}, fmt.Errorf("%s expects 2 arguments, got %d", name, len(args))
		}
		a, aok := args[0].Number()
		b, bok := args[1].Number()
		if !aok || !bok {
			return models.Value{}, fmt.Errorf("%s expects numbers", name)
		}
		return models.NumberValue(fn(a, b)), nil
	}
}
