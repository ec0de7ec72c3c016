package models_test

import (
	"encoding/json"
	"math"
	"testing"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"github.com/shopspring/decimal"
)

func TestFlattenAnswerTokens(t *testing.T) {
	answers := map[string]any{
		"length":      4.5,
		"rooms":       3,
		"hasDormer":   true,
		"noDormer":    false,
		"numString":   "12.5",
		"finish":      "standard",
		"jsonNumber":  json.Number("7"),
		"badInfinity": math.Inf(1),
		"nothing":     nil,
	}
	tokens := models.FlattenAnswerTokens(answers)

	checks := map[string]string{
		"length":      "4.5",
		"rooms":       "3",
		"hasDormer":   "1",
		"noDormer":    "0",
		"numString":   "12.5",
		"jsonNumber":  "7",
		"badInfinity": "0",
	}
	for key, want := range checks {
		got, ok := tokens[key]
		if !ok {
			t.Fatalf("token %q missing", key)
		}
		if !got.Equal(dec(want)) {
			t.Fatalf("token %q = %s, want %s", key, got, want)
		}
	}
	if _, ok := tokens["finish"]; ok {
		t.Fatal("non-numeric string answer leaked into tokens")
	}
	if _, ok := tokens["nothing"]; ok {
		t.Fatal("nil answer leaked into tokens")
	}
}

func TestMergeTokensOverlayWins(t *testing.T) {
	base := map[string]decimal.Decimal{"length": dec("4"), "width": dec("5")}
	overlay := map[string]decimal.Decimal{"length": dec("4.2"), "height": dec("2.4")}

	merged := models.MergeTokens(base, overlay)
	if !merged["length"].Equal(dec("4.2")) {
		t.Fatalf("overlay did not win: length = %s", merged["length"])
	}
	if !merged["width"].Equal(dec("5")) || !merged["height"].Equal(dec("2.4")) {
		t.Fatalf("merge dropped keys: %v", merged)
	}
	// Inputs untouched.
	if !base["length"].Equal(dec("4")) {
		t.Fatalf("base mutated: %s", base["length"])
	}
}
