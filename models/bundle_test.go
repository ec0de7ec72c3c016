package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"github.com/shopspring/decimal"
)

func TestBundleMatchesTemplateAllowList(t *testing.T) {
	bundle := models.Bundle{
		Name:        "Loft conversion pack",
		TemplateIds: []string{"loft", "extension"},
	}
	if !bundle.Matches(nil, "loft") {
		t.Fatal("template on the allow-list should match")
	}
	if bundle.Matches(nil, "bathroom") {
		t.Fatal("template off the allow-list should not match")
	}

	// An absent allow-list matches every template.
	open := models.Bundle{Name: "Prelims"}
	if !open.Matches(nil, "anything") {
		t.Fatal("empty allow-list should match any template")
	}
}

func TestBundleMatchesConditions(t *testing.T) {
	bundle := models.Bundle{
		Name: "Dormer pack",
		Conditions: []models.BundleCondition{
			{Field: "hasDormer", Operator: models.OperatorTruthy},
			{Field: "roofArea", Operator: models.OperatorGreaterThan, Value: "20"},
			{Field: "finish", Operator: models.OperatorEquals, Value: "standard"},
		},
	}

	answers := map[string]any{
		"hasDormer": true,
		"roofArea":  35.5,
		"finish":    "standard",
	}
	if !bundle.Matches(answers, "loft") {
		t.Fatal("all conditions hold, bundle should match")
	}

	answers["roofArea"] = 20
	if bundle.Matches(answers, "loft") {
		t.Fatal("gt condition on the boundary should fail")
	}

	answers["roofArea"] = 35.5
	answers["hasDormer"] = false
	if bundle.Matches(answers, "loft") {
		t.Fatal("falsy answer should fail the truthy condition")
	}

	delete(answers, "hasDormer")
	if bundle.Matches(answers, "loft") {
		t.Fatal("absent answer should fail the truthy condition")
	}
}

func TestBundleConditionOperators(t *testing.T) {
	cases := []struct {
		operator models.ConditionOperator
		value    string
		answer   any
		want     bool
	}{
		{models.OperatorEquals, "victorian", "victorian", true},
		{models.OperatorEquals, "victorian", "modern", false},
		{models.OperatorNotEquals, "victorian", "modern", true},
		{models.OperatorNotEquals, "victorian", "victorian", false},
		{models.OperatorContains, "semi", "semi-detached", true},
		{models.OperatorContains, "flat", "semi-detached", false},
		{models.OperatorAtLeast, "3", 3, true},
		{models.OperatorAtLeast, "3", 2.99, false},
		{models.OperatorLessThan, "100", "55", true},
		{models.OperatorLessThan, "100", 100, false},
		{models.OperatorAtMost, "10", 10, true},
		{models.OperatorGreaterThan, "1.5", 2, true},
		// Non-numeric answer against a numeric operator never matches.
		{models.OperatorGreaterThan, "5", "many", false},
	}
	for _, tc := range cases {
		bundle := models.Bundle{Conditions: []models.BundleCondition{
			{Field: "f", Operator: tc.operator, Value: tc.value},
		}}
		got := bundle.Matches(map[string]any{"f": tc.answer}, "")
		if got != tc.want {
			t.Fatalf("operator %s value %q answer %v: got %v, want %v", tc.operator, tc.value, tc.answer, got, tc.want)
		}
	}
}

func TestRecommendBundlesPreservesOrder(t *testing.T) {
	registry := []models.Bundle{
		{Name: "A", TemplateIds: []string{"loft"}},
		{Name: "B", TemplateIds: []string{"bathroom"}},
		{Name: "C"},
		{Name: "D", Conditions: []models.BundleCondition{{Field: "x", Operator: models.OperatorTruthy}}},
	}
	got := models.RecommendBundles(registry, map[string]any{"x": true}, "loft")
	if len(got) != 3 || got[0].Name != "A" || got[1].Name != "C" || got[2].Name != "D" {
		t.Fatalf("recommendation = %v", got)
	}
}

func TestApplyBundleFormulaOverride(t *testing.T) {
	assembly := wallAssembly()
	bundle := models.Bundle{
		Name: "Pack",
		Assemblies: []models.BundleAssembly{
			{AssemblyId: assembly.ID, FormulaOverride: "area"},
		},
	}
	resolve := func(id int) (*models.Assembly, error) {
		if id != assembly.ID {
			t.Fatalf("resolve called with id %d", id)
		}
		return assembly, nil
	}

	section := models.CostingSection{Name: "Partitions"}
	tokens := map[string]decimal.Decimal{"area": dec("8")}
	if err := models.ApplyBundle(&section, &bundle, tokens, resolve); err != nil {
		t.Fatalf("ApplyBundle: %v", err)
	}
	if len(section.Items) != 2 {
		t.Fatalf("section has %d items, want 2", len(section.Items))
	}
	for i := range section.Items {
		if !section.Items[i].Quantity.Equal(dec("8")) {
			t.Fatalf("override formula not applied: qty = %s", section.Items[i].Quantity)
		}
		if section.Items[i].QtyFormula != "area" {
			t.Fatalf("provenance formula = %q, want override", section.Items[i].QtyFormula)
		}
	}
	// The registry template itself is untouched.
	if assembly.Lines[0].QtyFormula != "length*width" {
		t.Fatalf("registry assembly mutated: %q", assembly.Lines[0].QtyFormula)
	}
}
