package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
)

func previousCosting() *models.InternalCosting {
	return &models.InternalCosting{
		VatPct: dec("20"),
		Sections: []models.CostingSection{
			{
				Name: "Groundworks",
				Items: []models.LineItem{
					{
						Title: "Excavation", AssemblyId: 1, AssemblyLineId: 11,
						Quantity: dec("60"), UnitCost: dec("8"), UnitPrice: dec("12"),
						LineCost: dec("480"), LineTotal: dec("720"),
						IsAutoRated: true, IsManualOverride: true,
						Description: "hand-adjusted rate",
					},
					{
						Title: "Disposal", AssemblyId: 1, AssemblyLineId: 12,
						Quantity: dec("10"), UnitPrice: dec("30"), LineTotal: dec("300"),
						IsAutoRated: true,
					},
					{
						Title:    "Hand-entered allowance",
						Quantity: dec("1"), UnitPrice: dec("250"), LineTotal: dec("250"),
					},
				},
			},
			{
				Name: "Old section",
				Items: []models.LineItem{
					{Title: "Legacy item", Quantity: dec("1"), UnitPrice: dec("99"), LineTotal: dec("99")},
				},
			},
		},
	}
}

func freshCosting() *models.InternalCosting {
	return &models.InternalCosting{
		VatPct: dec("20"),
		Sections: []models.CostingSection{
			{
				Name: "Groundworks",
				Items: []models.LineItem{
					{
						Title: "Excavation", AssemblyId: 1, AssemblyLineId: 11,
						Quantity: dec("65"), UnitCost: dec("8"), UnitPrice: dec("10"),
						LineCost: dec("520"), LineTotal: dec("650"),
						IsAutoRated: true,
					},
					{
						Title: "Disposal", AssemblyId: 1, AssemblyLineId: 12,
						Quantity: dec("12"), UnitPrice: dec("30"), LineTotal: dec("360"),
						IsAutoRated: true,
					},
					{
						Title:    "Hand-entered allowance",
						Quantity: dec("1"), UnitPrice: dec("200"), LineTotal: dec("200"),
					},
				},
			},
			{
				Name: "New section",
				Items: []models.LineItem{
					{Title: "Fresh item", Quantity: dec("2"), UnitPrice: dec("40"), LineTotal: dec("80"), IsAutoRated: true},
				},
			},
		},
	}
}

func TestMergeRegenerationManualOverrideAlwaysWins(t *testing.T) {
	merged := models.MergeRegeneration(previousCosting(), freshCosting(), models.RegenerationModeAutoRatedOnly)

	var excavation *models.LineItem
	for s := range merged.Sections {
		for i := range merged.Sections[s].Items {
			if merged.Sections[s].Items[i].Title == "Excavation" {
				excavation = &merged.Sections[s].Items[i]
			}
		}
	}
	if excavation == nil {
		t.Fatal("excavation item missing from merge result")
	}
	// Field-for-field the previous row, regardless of what fresh carried.
	if !excavation.Quantity.Equal(dec("60")) || !excavation.UnitPrice.Equal(dec("12")) ||
		!excavation.LineTotal.Equal(dec("720")) || excavation.Description != "hand-adjusted rate" {
		t.Fatalf("manual override was not preserved verbatim: %+v", excavation)
	}
	if !excavation.IsManualOverride {
		t.Fatal("manual override flag lost in merge")
	}
}

func TestMergeRegenerationAutoRatedReplaced(t *testing.T) {
	merged := models.MergeRegeneration(previousCosting(), freshCosting(), models.RegenerationModeAutoRatedOnly)

	ground := merged.Sections[0]
	if ground.Name != "Groundworks" {
		t.Fatalf("section order changed: %q", ground.Name)
	}
	var disposal, allowance *models.LineItem
	for i := range ground.Items {
		switch ground.Items[i].Title {
		case "Disposal":
			disposal = &ground.Items[i]
		case "Hand-entered allowance":
			allowance = &ground.Items[i]
		}
	}
	if disposal == nil || !disposal.Quantity.Equal(dec("12")) {
		t.Fatalf("auto-rated item not refreshed: %+v", disposal)
	}
	// Non-auto-rated, non-overridden row with a previous counterpart keeps the
	// previous values.
	if allowance == nil || !allowance.UnitPrice.Equal(dec("250")) {
		t.Fatalf("unmatched-policy item wrong: %+v", allowance)
	}
}

func TestMergeRegenerationNewSectionKept(t *testing.T) {
	merged := models.MergeRegeneration(previousCosting(), freshCosting(), models.RegenerationModeAutoRatedOnly)

	names := make(map[string]bool)
	for i := range merged.Sections {
		names[merged.Sections[i].Name] = true
	}
	if !names["New section"] {
		t.Fatal("fresh section dropped by merge")
	}
	// Sections absent from fresh do not survive: regeneration output drives
	// the section list.
	if names["Old section"] {
		t.Fatal("stale previous section leaked into merge result")
	}
}

func TestMergeRegenerationFullMode(t *testing.T) {
	merged := models.MergeRegeneration(previousCosting(), freshCosting(), models.RegenerationModeFull)

	for s := range merged.Sections {
		for i := range merged.Sections[s].Items {
			if merged.Sections[s].Items[i].Title == "Excavation" &&
				!merged.Sections[s].Items[i].Quantity.Equal(dec("65")) {
				t.Fatalf("full mode preserved previous values: %+v", merged.Sections[s].Items[i])
			}
		}
	}
}

func TestMergeRegenerationNilPrevious(t *testing.T) {
	merged := models.MergeRegeneration(nil, freshCosting(), models.RegenerationModeAutoRatedOnly)
	if len(merged.Sections) != 2 {
		t.Fatalf("merge with nil previous produced %d sections", len(merged.Sections))
	}
	if merged.TotalAmount.IsZero() {
		t.Fatal("merge result not re-aggregated")
	}
}

func TestMergeRegenerationDoesNotMutateInputs(t *testing.T) {
	previous := previousCosting()
	fresh := freshCosting()
	_ = models.MergeRegeneration(previous, fresh, models.RegenerationModeAutoRatedOnly)

	if !fresh.Sections[0].Items[0].Quantity.Equal(dec("65")) {
		t.Fatalf("fresh input mutated: %+v", fresh.Sections[0].Items[0])
	}
	if !previous.Sections[0].Items[0].Quantity.Equal(dec("60")) {
		t.Fatalf("previous input mutated: %+v", previous.Sections[0].Items[0])
	}
	if !fresh.TotalAmount.IsZero() || !previous.TotalAmount.IsZero() {
		t.Fatal("aggregates written back onto inputs")
	}
}

func TestMergeRegenerationDeterministic(t *testing.T) {
	first := models.MergeRegeneration(previousCosting(), freshCosting(), models.RegenerationModeAutoRatedOnly)
	second := models.MergeRegeneration(previousCosting(), freshCosting(), models.RegenerationModeAutoRatedOnly)
	if !first.TotalAmount.Equal(second.TotalAmount) || len(first.Sections) != len(second.Sections) {
		t.Fatalf("identical inputs produced different merges: %s vs %s", first.TotalAmount, second.TotalAmount)
	}
}
