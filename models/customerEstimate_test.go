package models_test

import (
	"encoding/json"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
)

func TestBuildCustomerEstimateProjection(t *testing.T) {
	costing := buildCosting()
	models.RecomputeEstimate(costing)

	estimate := models.BuildCustomerEstimate(costing)
	if len(estimate.Sections) != 2 {
		t.Fatalf("projected %d sections, want 2", len(estimate.Sections))
	}
	item := estimate.Sections[0].Items[0]
	if item.Title != "Excavation" || !item.UnitPrice.Equal(dec("10")) {
		t.Fatalf("projection wrong: %+v", item)
	}
	if !estimate.VatPct.Equal(costing.VatPct) {
		t.Fatalf("VatPct = %s, want %s", estimate.VatPct, costing.VatPct)
	}
	if estimate.Status != models.CustomerEstimateStatusDraft {
		t.Fatalf("status = %s, want Draft", estimate.Status)
	}

	// The customer document must not leak the cost basis anywhere in its
	// serialized form.
	data, err := json.Marshal(estimate)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "unit_cost") || strings.Contains(string(data), "line_cost") {
		t.Fatal("cost basis leaked into the customer estimate")
	}
}

func TestRecomputeCustomerEstimateTotals(t *testing.T) {
	estimate := &models.CustomerEstimate{
		VatPct: dec("20"),
		Sections: []models.CustomerEstimateSection{
			{
				Name: "Groundworks",
				Items: []models.CustomerEstimateItem{
					{Title: "Excavation", Quantity: dec("60"), UnitPrice: dec("10")},
					{Title: "Disposal", Quantity: dec("10"), UnitPrice: dec("40")},
				},
			},
		},
	}
	models.RecomputeCustomerEstimate(estimate)

	if !estimate.Sections[0].SectionTotal.Equal(dec("1000")) {
		t.Fatalf("SectionTotal = %s, want 1000", estimate.Sections[0].SectionTotal)
	}
	if !estimate.Subtotal.Equal(dec("1000")) {
		t.Fatalf("Subtotal = %s, want 1000", estimate.Subtotal)
	}
	if !estimate.VatAmount.Equal(dec("200")) {
		t.Fatalf("VatAmount = %s, want 200", estimate.VatAmount)
	}
	if !estimate.TotalAmount.Equal(dec("1200")) {
		t.Fatalf("TotalAmount = %s, want 1200", estimate.TotalAmount)
	}
}

func TestRecomputeCustomerEstimateIdempotent(t *testing.T) {
	estimate := &models.CustomerEstimate{
		VatPct: dec("17.5"),
		Sections: []models.CustomerEstimateSection{
			{Items: []models.CustomerEstimateItem{{Quantity: dec("3"), UnitPrice: dec("33.33")}}},
		},
	}
	models.RecomputeCustomerEstimate(estimate)
	first := estimate.TotalAmount
	for i := 0; i < 5; i++ {
		models.RecomputeCustomerEstimate(estimate)
	}
	if !estimate.TotalAmount.Equal(first) {
		t.Fatalf("TotalAmount drifted from %s to %s", first, estimate.TotalAmount)
	}
}
