package models_test

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"github.com/shopspring/decimal"
)

func wallAssembly() *models.Assembly {
	return &models.Assembly{
		ID:          7,
		Name:        "Stud wall",
		DefaultUnit: "m2",
		Lines: []models.AssemblyLine{
			{
				ID:               71,
				Kind:             models.CostKindMaterial,
				Title:            "Plasterboard",
				QtyFormula:       "length*width",
				BaseUnitCost:     dec("10"),
				DefaultMarkupPct: dec("50"),
			},
			{
				ID:         72,
				Kind:       models.CostKindLabour,
				Title:      "Boarding labour",
				QtyFormula: "length*width",
				Unit:       "hr",
				UnitPrice:  dec("35"),
			},
		},
	}
}

func TestExpandAssembly(t *testing.T) {
	tokens := map[string]decimal.Decimal{"length": dec("4"), "width": dec("5")}
	items, err := models.ExpandAssembly(wallAssembly(), tokens, 3)
	if err != nil {
		t.Fatalf("ExpandAssembly: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expanded %d items, want 2", len(items))
	}

	board := items[0]
	if !board.Quantity.Equal(dec("20")) {
		t.Fatalf("quantity = %s, want 20", board.Quantity)
	}
	// No explicit sell price on the line, so it derives from cost + markup.
	if !board.UnitPrice.Equal(dec("15")) {
		t.Fatalf("derived unit price = %s, want 15", board.UnitPrice)
	}
	if !board.LineTotal.Equal(dec("300")) {
		t.Fatalf("line total = %s, want 300", board.LineTotal)
	}
	if !board.IsAutoRated {
		t.Fatal("expanded item not flagged auto-rated")
	}
	if !board.IsPurchasable || board.IsWorkOrderEligible {
		t.Fatalf("material flags wrong: purchasable=%v workOrder=%v", board.IsPurchasable, board.IsWorkOrderEligible)
	}
	if board.Unit != "m2" {
		t.Fatalf("unit = %q, want assembly default m2", board.Unit)
	}
	if board.AssemblyId != 7 || board.AssemblyLineId != 71 || board.QtyFormula != "length*width" {
		t.Fatalf("provenance not recorded: %+v", board)
	}
	got, err := board.GetSourceTokens()
	if err != nil || !got["length"].Equal(dec("4")) {
		t.Fatalf("source tokens not recorded: %v %v", got, err)
	}
	if board.SortOrder != 3 || items[1].SortOrder != 4 {
		t.Fatalf("sort orders = %d,%d, want 3,4", board.SortOrder, items[1].SortOrder)
	}

	labour := items[1]
	// Explicit sell price wins over derivation.
	if !labour.UnitPrice.Equal(dec("35")) {
		t.Fatalf("labour unit price = %s, want 35", labour.UnitPrice)
	}
	if labour.Unit != "hr" {
		t.Fatalf("labour unit = %q, want hr", labour.Unit)
	}
	if !labour.IsWorkOrderEligible || labour.IsPurchasable {
		t.Fatalf("labour flags wrong: purchasable=%v workOrder=%v", labour.IsPurchasable, labour.IsWorkOrderEligible)
	}
}

func TestExpandAssemblyStrictOnMissingToken(t *testing.T) {
	_, err := models.ExpandAssembly(wallAssembly(), map[string]decimal.Decimal{"length": dec("4")}, 0)
	if !errors.Is(err, models.ErrUnknownVariable) {
		t.Fatalf("got %v, want ErrUnknownVariable", err)
	}
}

func TestApplyAssemblyToSectionInsertOnly(t *testing.T) {
	section := models.CostingSection{
		Name: "Partitions",
		Items: []models.LineItem{
			{Title: "Existing item", Quantity: dec("1"), UnitPrice: dec("100"), LineTotal: dec("100"), SortOrder: 0},
		},
	}
	tokens := map[string]decimal.Decimal{"length": dec("4"), "width": dec("5")}

	if err := models.ApplyAssemblyToSection(&section, wallAssembly(), tokens); err != nil {
		t.Fatalf("ApplyAssemblyToSection: %v", err)
	}
	if len(section.Items) != 3 {
		t.Fatalf("section has %d items, want 3", len(section.Items))
	}
	if section.Items[0].Title != "Existing item" || !section.Items[0].LineTotal.Equal(dec("100")) {
		t.Fatalf("pre-existing item was modified: %+v", section.Items[0])
	}
	if section.Items[1].SortOrder != 1 || section.Items[2].SortOrder != 2 {
		t.Fatalf("appended sort orders = %d,%d, want 1,2", section.Items[1].SortOrder, section.Items[2].SortOrder)
	}
	// 100 existing + 300 plasterboard + 700 labour
	if !section.SectionTotal.Equal(dec("1100")) {
		t.Fatalf("SectionTotal = %s, want 1100", section.SectionTotal)
	}
}

func TestApplyAssemblyFailureLeavesSectionUntouched(t *testing.T) {
	section := models.CostingSection{
		Name:  "Partitions",
		Items: []models.LineItem{{Title: "Existing item", Quantity: dec("1"), UnitPrice: dec("50"), LineTotal: dec("50")}},
	}
	err := models.ApplyAssemblyToSection(&section, wallAssembly(), nil)
	if err == nil {
		t.Fatal("expected strict evaluation failure")
	}
	if len(section.Items) != 1 {
		t.Fatalf("failed apply mutated the section: %d items", len(section.Items))
	}
}
