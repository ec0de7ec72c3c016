package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"github.com/shopspring/decimal"
)

func TestComputeLine(t *testing.T) {
	lineCost, lineTotal := models.ComputeLine(dec("3"), dec("10"), dec("15"))
	if !lineCost.Equal(dec("30")) {
		t.Fatalf("lineCost = %s, want 30", lineCost)
	}
	if !lineTotal.Equal(dec("45")) {
		t.Fatalf("lineTotal = %s, want 45", lineTotal)
	}
}

func TestComputeLineRoundsHalfUp(t *testing.T) {
	// 3.335 * 1 rounds up at the second decimal place.
	lineCost, lineTotal := models.ComputeLine(dec("1"), dec("3.335"), dec("7.125"))
	if !lineCost.Equal(dec("3.34")) {
		t.Fatalf("lineCost = %s, want 3.34", lineCost)
	}
	if !lineTotal.Equal(dec("7.13")) {
		t.Fatalf("lineTotal = %s, want 7.13", lineTotal)
	}
}

func TestDeriveUnitPrice(t *testing.T) {
	cases := []struct {
		unitCost  string
		marginPct string
		want      string
	}{
		{"100", "20", "120"},
		{"100", "0", "0"},
		{"0", "20", "0"},
		{"-5", "20", "0"},
		{"100", "-10", "0"},
		{"33.33", "10", "36.66"},
	}
	for _, tc := range cases {
		got := models.DeriveUnitPrice(dec(tc.unitCost), dec(tc.marginPct))
		if !got.Equal(dec(tc.want)) {
			t.Fatalf("DeriveUnitPrice(%s, %s) = %s, want %s", tc.unitCost, tc.marginPct, got, tc.want)
		}
	}
}

func TestRecalculateClearsQtyDirty(t *testing.T) {
	item := models.LineItem{
		Quantity:   dec("4"),
		UnitCost:   dec("2.5"),
		UnitPrice:  dec("4"),
		IsQtyDirty: true,
	}
	item.Recalculate()
	if item.IsQtyDirty {
		t.Fatal("IsQtyDirty still set after Recalculate")
	}
	if !item.LineCost.Equal(dec("10")) {
		t.Fatalf("LineCost = %s, want 10", item.LineCost)
	}
	if !item.LineTotal.Equal(dec("16")) {
		t.Fatalf("LineTotal = %s, want 16", item.LineTotal)
	}
}

func TestSourceTokensRoundTrip(t *testing.T) {
	var item models.LineItem
	in := map[string]decimal.Decimal{"length": dec("4.2"), "width": dec("5")}
	if err := item.SetSourceTokens(in); err != nil {
		t.Fatalf("SetSourceTokens: %v", err)
	}
	out, err := item.GetSourceTokens()
	if err != nil {
		t.Fatalf("GetSourceTokens: %v", err)
	}
	if len(out) != 2 || !out["length"].Equal(dec("4.2")) || !out["width"].Equal(dec("5")) {
		t.Fatalf("round trip produced %v", out)
	}
}
