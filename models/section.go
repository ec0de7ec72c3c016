package models

import (
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
)

// CostingSection is a named ordered collection of line items with a derived
// section total.
type CostingSection struct {
	ID           int             `gorm:"primary_key" json:"id"`
	CostingId    int             `gorm:"index;not null" json:"costing_id"`
	Name         string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Notes        string          `gorm:"type:text;default:null" json:"notes"`
	SectionTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"section_total"`
	SortOrder    int             `gorm:"default:0" json:"sort_order"`
	Items        []LineItem      `gorm:"foreignKey:SectionId" json:"items"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecomputeSection re-derives the section total from its items. Item
// contributions are summed unrounded and the total is rounded once, after
// summation.
func RecomputeSection(section *CostingSection) {
	sum := decimal.Zero
	for i := range section.Items {
		sum = sum.Add(section.Items[i].lineTotalContribution())
	}
	section.SectionTotal = utils.RoundCurrency(sum)
}

// nextSortOrder returns the sort position for appending after existing items.
func (section *CostingSection) nextSortOrder() int {
	next := 0
	for i := range section.Items {
		if section.Items[i].SortOrder >= next {
			next = section.Items[i].SortOrder + 1
		}
	}
	return next
}

// RecomputeEstimate re-derives every aggregate on the costing root from its
// sections and the estimate-level percentages. Overhead, margin and
// contingency each apply to the subtotal; VAT applies to the grossed-up
// subtotal. Re-running it on already-recomputed input changes nothing.
func RecomputeEstimate(costing *InternalCosting) {
	subtotal := decimal.Zero
	for i := range costing.Sections {
		RecomputeSection(&costing.Sections[i])
		subtotal = subtotal.Add(costing.Sections[i].SectionTotal)
	}

	costing.Subtotal = utils.RoundCurrency(subtotal)
	costing.OverheadAmount = utils.RoundCurrency(utils.PercentOf(costing.Subtotal, costing.OverheadPct))
	costing.MarginAmount = utils.RoundCurrency(utils.PercentOf(costing.Subtotal, costing.MarginPct))
	costing.ContingencyAmount = utils.RoundCurrency(utils.PercentOf(costing.Subtotal, costing.ContingencyPct))

	grossed := costing.Subtotal.
		Add(costing.OverheadAmount).
		Add(costing.MarginAmount).
		Add(costing.ContingencyAmount)
	costing.VatAmount = utils.RoundCurrency(utils.PercentOf(grossed, costing.VatPct))
	costing.TotalAmount = grossed.Add(costing.VatAmount)
}
