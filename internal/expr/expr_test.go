package expr

import (
	"strings"
	"testing"

	"github.com/soldasur/advisor/internal/models"
)

func TestEvalExpressionArithmetic(t *testing.T) {
	ctx := models.Context{
		"superficie":  models.NumberValue(20),
		"potencia_m2": models.NumberValue(85),
	}
	tests := []struct {
		expr string
		want float64
	}{
		{"superficie * potencia_m2", 1700},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"-superficie + 30", 10},
		{"10 / 4", 2.5},
		{"superficie > 10", 1},
		{"superficie <= 10", 0},
		{"ceil(10 / 4)", 3},
		{"min(3, 7)", 3},
		{"max(3, 7)", 7},
		{"round(2.6)", 3},
	}
	for _, tc := range tests {
		got, err := EvalExpression(tc.expr, ctx, BaseRegistry())
		if err != nil {
			t.Errorf("EvalExpression(%q) error: %v", tc.expr, err)
			continue
		}
		n, ok := got.Number()
		if !ok || n != tc.want {
			t.Errorf("EvalExpression(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvalExpressionStrings(t *testing.T) {
	ctx := models.Context{"tipo": models.StringValue("mural")}
	got, err := EvalExpression("tipo == 'mural'", ctx, nil)
	if err != nil {
		t.Fatalf("EvalExpression error: %v", err)
	}
	if n, _ := got.Number(); n != 1 {
		t.Errorf("expected string equality to yield 1, got %v", got)
	}
}

func TestEvalExpressionContextSugar(t *testing.T) {
	ctx := models.Context{"carga_termica": models.NumberValue(1700)}
	got, err := EvalExpression("context['carga_termica'] / 100", ctx, nil)
	if err != nil {
		t.Fatalf("EvalExpression error: %v", err)
	}
	if n, _ := got.Number(); n != 17 {
		t.Errorf("expected 17, got %v", got)
	}
}

func TestEvalExpressionErrors(t *testing.T) {
	ctx := models.Context{"x": models.NumberValue(1)}
	cases := []string{
		"y + 1",        // unknown variable
		"nope(1)",      // unknown function
		"ceil(1, 2)",   // bad arity
		"x / 0",        // division by zero
		"x + 'texto'",  // mixed types
		"x + ",         // truncated
		"'unterminated", // bad string
	}
	for _, expr := range cases {
		if _, err := EvalExpression(expr, ctx, BaseRegistry()); err == nil {
			t.Errorf("EvalExpression(%q) expected error, got none", expr)
		}
	}
}

func TestEvalAssignment(t *testing.T) {
	ctx := models.Context{
		"superficie":  models.NumberValue(20),
		"potencia_m2": models.NumberValue(85),
	}
	if err := EvalAssignment("carga_termica = superficie * potencia_m2", ctx, BaseRegistry()); err != nil {
		t.Fatalf("EvalAssignment error: %v", err)
	}
	if n, ok := ctx.Number("carga_termica"); !ok || n != 1700 {
		t.Errorf("carga_termica = %v, want 1700", n)
	}
}

func TestEvalAssignmentFailureDoesNotWrite(t *testing.T) {
	ctx := models.Context{"x": models.NumberValue(1)}
	err := EvalAssignment("y = x / 0", ctx, nil)
	if err == nil {
		t.Fatal("expected error from division by zero")
	}
	if !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("unexpected error: %v", err)
	}
	if _, ok := ctx["y"]; ok {
		t.Error("failed assignment must not write the target variable")
	}
}

func TestEvalAssignmentRejectsNonAssignments(t *testing.T) {
	ctx := models.Context{}
	for _, step := range []string{"1 + 2", "= 5", "x =", "a b = 1"} {
		if err := EvalAssignment(step, ctx, nil); err == nil {
			t.Errorf("EvalAssignment(%q) expected error", step)
		}
	}
}

func TestCallWithRegisteredFunction(t *testing.T) {
	funcs := BaseRegistry()
	funcs["doble"] = func(args []models.Value) (models.Value, error) {
		n, _ := args[0].Number()
		return models.NumberValue(n * 2), nil
	}
	ctx := models.Context{"x": models.NumberValue(21)}
	got, err := EvalExpression("doble(x)", ctx, funcs)
	if err != nil {
		t.Fatalf("EvalExpression error: %v", err)
	}
	if n, _ := got.Number(); n != 42 {
		t.Errorf("doble(21) = %v, want 42", got)
	}
}
