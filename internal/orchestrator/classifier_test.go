package orchestrator

import (
	"testing"

	"github.com/soldasur/advisor/internal/models"
)

func TestClassifyIntents(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		name    string
		message string
		mode    models.Mode
		want    models.IntentType
		minConf float64
	}{
		{"guided request", "quiero calcular cuántos radiadores necesito", models.ModeHybrid, models.IntentGuidedCalculation, 0.9},
		{"guided floor heating", "me interesa el piso radiante", models.ModeHybrid, models.IntentGuidedCalculation, 0.9},
		{"free question", "qué es una caldera de condensación", models.ModeHybrid, models.IntentFreeQuery, 0.85},
		{"product search", "busco una caldera mural", models.ModeHybrid, models.IntentProductSearch, 0.85},
		{"product search price", "cuál es el precio del modelo DIVA", models.ModeHybrid, models.IntentProductSearch, 0.85},
		{"switch request", "prefiero que me guíes", models.ModeHybrid, models.IntentSwitchMode, 0.95},
		{"specific data", "tengo un ambiente de 30 metros en ushuaia", models.ModeHybrid, models.IntentHybrid, 0.75},
		{"location only", "vivo en buenos aires", models.ModeHybrid, models.IntentHybrid, 0.75},
		{"vague message", "hola", models.ModeHybrid, models.IntentHybrid, 0.5},
		{"clarification in expert", "qué significa carga térmica", models.ModeExpert, models.IntentClarification, 0.9},
		{"numeric answer in expert", "12,5", models.ModeExpert, models.IntentGuidedCalculation, 1.0},
		{"clarification outside expert falls through", "no entiendo", models.ModeHybrid, models.IntentHybrid, 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.message, tc.mode)
			if got.Type != tc.want {
				t.Errorf("Classify(%q, %s) = %s, want %s", tc.message, tc.mode, got.Type, tc.want)
			}
			if got.Confidence < tc.minConf {
				t.Errorf("Classify(%q) confidence = %v, want >= %v", tc.message, got.Confidence, tc.minConf)
			}
		})
	}
}

func TestClassifySwitchTargetMode(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		message string
		want    models.Mode
	}{
		{"prefiero que me guíes", models.ModeExpert},
		{"modo experto por favor", models.ModeExpert},
		{"quiero preguntar libremente", models.ModeRetrieval},
		{"modo chat", models.ModeRetrieval},
		{"cambiar modo", models.ModeHybrid},
	}
	for _, tc := range tests {
		got := c.Classify(tc.message, models.ModeHybrid)
		if got.Type != models.IntentSwitchMode {
			t.Fatalf("Classify(%q) = %s, want switch_mode", tc.message, got.Type)
		}
		if got.TargetMode != tc.want {
			t.Errorf("Classify(%q) target mode = %s, want %s", tc.message, got.TargetMode, tc.want)
		}
	}
}

func TestClassifyNumericOnlyInExpertMode(t *testing.T) {
	c := NewClassifier()
	got := c.Classify("25", models.ModeHybrid)
	if got.Type != models.IntentHybrid {
		t.Errorf("bare number outside expert mode should be hybrid, got %s", got.Type)
	}
}
