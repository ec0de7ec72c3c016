package models

import (
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
)

// LineItem is one priced row of an internal costing section. Cost basis
// (UnitCost) and sell price (UnitPrice) live side by side; the per-line
// percentage fields are advisory/audit only and never participate in the
// estimate-level aggregate formula.
type LineItem struct {
	ID          int      `gorm:"primary_key" json:"id"`
	SectionId   int      `gorm:"index;not null" json:"section_id"`
	Kind        CostKind `gorm:"type:enum('material','labour','subcontract','plant','prelim');default:material" json:"kind"`
	Title       string   `gorm:"size:255;not null" json:"title" binding:"required"`
	Description string   `gorm:"type:text;default:null" json:"description"`

	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Unit      string          `gorm:"size:20" json:"unit"`
	UnitCost  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	LineCost  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_cost"`
	LineTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`

	MarginPct      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"margin_pct"`
	OverheadPct    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"overhead_pct"`
	ContingencyPct decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"contingency_pct"`
	VatRate        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_rate"`

	IsProvisional       bool `gorm:"default:false" json:"is_provisional"`
	IsPurchasable       bool `gorm:"default:false" json:"is_purchasable"`
	IsWorkOrderEligible bool `gorm:"default:false" json:"is_work_order_eligible"`
	IsAutoRated         bool `gorm:"default:false" json:"is_auto_rated"`
	IsManualOverride    bool `gorm:"default:false" json:"is_manual_override"`
	IsQtyLocked         bool `gorm:"default:false" json:"is_qty_locked"`
	IsVatApplicable     bool `gorm:"default:false" json:"is_vat_applicable"`
	// IsQtyDirty marks a quantity edit whose line total has not been
	// recomputed yet; aggregation ignores the stale LineTotal for such rows.
	IsQtyDirty bool `gorm:"default:false" json:"is_qty_dirty"`

	// Provenance of assembly-expanded rows. Zero ids mean hand-entered.
	AssemblyId     int    `gorm:"index;default:0" json:"assembly_id"`
	AssemblyLineId int    `gorm:"default:0" json:"assembly_line_id"`
	QtyFormula     string `gorm:"size:255" json:"qty_formula"`
	// SourceTokens is the JSON snapshot of the token set the quantity was
	// computed from, kept for audit and reproducible regeneration.
	SourceTokens string `gorm:"type:text" json:"source_tokens"`

	SortOrder int       `gorm:"default:0" json:"sort_order"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ComputeLine computes a line's cost and sell totals. Rounding happens here,
// at the monetary outputs, and nowhere upstream of it.
func ComputeLine(quantity, unitCost, unitPrice decimal.Decimal) (lineCost, lineTotal decimal.Decimal) {
	lineCost = utils.RoundCurrency(quantity.Mul(unitCost))
	lineTotal = utils.RoundCurrency(quantity.Mul(unitPrice))
	return lineCost, lineTotal
}

// DeriveUnitPrice derives a sell price from cost basis plus margin. Items
// with zero cost or zero margin require manual pricing, so both inputs must
// be positive; otherwise the caller gets 0 and must supply an explicit price.
func DeriveUnitPrice(unitCost, marginPct decimal.Decimal) decimal.Decimal {
	if !unitCost.IsPositive() || !marginPct.IsPositive() {
		return decimal.Zero
	}
	return utils.RoundCurrency(unitCost.Add(utils.PercentOf(unitCost, marginPct)))
}

// Recalculate refreshes the derived monetary fields and clears the qty-dirty
// marker. Call after any quantity or rate mutation.
func (item *LineItem) Recalculate() {
	item.LineCost, item.LineTotal = ComputeLine(item.Quantity, item.UnitCost, item.UnitPrice)
	item.IsQtyDirty = false
}

// lineTotalContribution is what the item adds to its section total: the
// precomputed line total when it is trustworthy, else quantity x unit price.
func (item *LineItem) lineTotalContribution() decimal.Decimal {
	if !item.IsQtyDirty && !item.LineTotal.IsZero() {
		return item.LineTotal
	}
	return item.Quantity.Mul(item.UnitPrice)
}

func (item *LineItem) SetSourceTokens(tokens map[string]decimal.Decimal) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	item.SourceTokens = string(data)
	return nil
}

func (item *LineItem) GetSourceTokens() (map[string]decimal.Decimal, error) {
	tokens := make(map[string]decimal.Decimal)
	if item.SourceTokens == "" {
		return tokens, nil
	}
	if err := json.Unmarshal([]byte(item.SourceTokens), &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// mergeKey identifies a line across regenerations: assembly provenance when
// both ids are present, else the title. Duplicate keys within a section
// resolve last-one-wins; known limitation.
func (item *LineItem) mergeKey() string {
	if item.AssemblyId > 0 && item.AssemblyLineId > 0 {
		return fmt.Sprintf("a:%d:%d", item.AssemblyId, item.AssemblyLineId)
	}
	return "t:" + item.Title
}
