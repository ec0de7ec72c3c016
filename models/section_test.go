package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"github.com/shopspring/decimal"
)

func TestRecomputeSectionSumsThenRounds(t *testing.T) {
	// Three contributions of 10.005 each: rounding per item would give 30.03,
	// summing first then rounding once gives 30.02 (the correct figure).
	section := models.CostingSection{
		Items: []models.LineItem{
			{Quantity: dec("1"), UnitPrice: dec("10.005"), IsQtyDirty: true},
			{Quantity: dec("1"), UnitPrice: dec("10.005"), IsQtyDirty: true},
			{Quantity: dec("1"), UnitPrice: dec("10.005"), IsQtyDirty: true},
		},
	}
	models.RecomputeSection(&section)
	if !section.SectionTotal.Equal(dec("30.02")) {
		t.Fatalf("SectionTotal = %s, want 30.02", section.SectionTotal)
	}
}

func TestRecomputeSectionPrefersStoredLineTotal(t *testing.T) {
	section := models.CostingSection{
		Items: []models.LineItem{
			// Clean row: stored LineTotal is trusted even though qty*price
			// would differ.
			{Quantity: dec("2"), UnitPrice: dec("100"), LineTotal: dec("150")},
			// Dirty row: stale LineTotal ignored, qty*price used.
			{Quantity: dec("3"), UnitPrice: dec("10"), LineTotal: dec("999"), IsQtyDirty: true},
		},
	}
	models.RecomputeSection(&section)
	if !section.SectionTotal.Equal(dec("180")) {
		t.Fatalf("SectionTotal = %s, want 180", section.SectionTotal)
	}
}

func buildCosting() *models.InternalCosting {
	return &models.InternalCosting{
		OverheadPct:    dec("10"),
		MarginPct:      dec("15"),
		ContingencyPct: dec("5"),
		VatPct:         dec("20"),
		Sections: []models.CostingSection{
			{
				Name: "Groundworks",
				Items: []models.LineItem{
					{Title: "Excavation", Quantity: dec("60"), UnitCost: dec("8"), UnitPrice: dec("10"), IsQtyDirty: true},
				},
			},
			{
				Name: "Superstructure",
				Items: []models.LineItem{
					{Title: "Blockwork", Quantity: dec("40"), UnitCost: dec("7"), UnitPrice: dec("10"), IsQtyDirty: true},
				},
			},
		},
	}
}

func TestRecomputeEstimateAggregates(t *testing.T) {
	costing := buildCosting()
	models.RecomputeEstimate(costing)

	// Subtotal 1000; overhead/margin/contingency on the subtotal; VAT on the
	// grossed-up sum.
	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"Subtotal", costing.Subtotal, "1000"},
		{"OverheadAmount", costing.OverheadAmount, "100"},
		{"MarginAmount", costing.MarginAmount, "150"},
		{"ContingencyAmount", costing.ContingencyAmount, "50"},
		{"VatAmount", costing.VatAmount, "260"},
		{"TotalAmount", costing.TotalAmount, "1560"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Fatalf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestRecomputeEstimateIdempotent(t *testing.T) {
	costing := buildCosting()
	models.RecomputeEstimate(costing)
	first := costing.TotalAmount

	for i := 0; i < 5; i++ {
		models.RecomputeEstimate(costing)
	}
	if !costing.TotalAmount.Equal(first) {
		t.Fatalf("TotalAmount drifted from %s to %s", first, costing.TotalAmount)
	}
	if !costing.Subtotal.Equal(dec("1000")) {
		t.Fatalf("Subtotal drifted to %s", costing.Subtotal)
	}
}

func TestRecomputeEstimateEmptyCosting(t *testing.T) {
	costing := &models.InternalCosting{VatPct: dec("20")}
	models.RecomputeEstimate(costing)
	if !costing.Subtotal.IsZero() || !costing.TotalAmount.IsZero() {
		t.Fatalf("empty costing produced subtotal %s total %s", costing.Subtotal, costing.TotalAmount)
	}
}
