package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VisibilitySettings controls which customer-estimate fields are rendered on
// the client-facing document. Pure presentation config: it never affects any
// computation.
type VisibilitySettings struct {
	ShowLineTotals     bool `gorm:"default:true" json:"show_line_totals"`
	ShowQuantities     bool `gorm:"default:true" json:"show_quantities"`
	ShowUnitPrices     bool `gorm:"default:true" json:"show_unit_prices"`
	ShowSectionTotals  bool `gorm:"default:true" json:"show_section_totals"`
	ShowVat            bool `gorm:"default:true" json:"show_vat"`
	ShowGrandTotalOnly bool `gorm:"default:false" json:"show_grand_total_only"`
	ShowAssumptions    bool `gorm:"default:true" json:"show_assumptions"`
}

// CustomerEstimate is the client-facing parallel of an internal costing. It
// carries sell prices only, no cost basis, and a human curates it
// independently of the internal view.
type CustomerEstimate struct {
	ID         int                    `gorm:"primary_key" json:"id"`
	CompanyId  string                 `gorm:"index;not null" json:"company_id"`
	EstimateId string                 `gorm:"uniqueIndex;size:64;not null" json:"estimate_id"`
	CustomerId int                    `gorm:"index;default:0" json:"customer_id"`
	Status     CustomerEstimateStatus `gorm:"type:enum('Draft','Sent','Accepted','Declined');default:Draft" json:"status"`

	VatPct      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_pct"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	VatAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_amount"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`

	Visibility VisibilitySettings `gorm:"embedded;embeddedPrefix:visibility_" json:"visibility"`

	Sections  []CustomerEstimateSection `gorm:"foreignKey:EstimateRef" json:"sections"`
	CreatedAt time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`
}

type CustomerEstimateSection struct {
	ID           int                    `gorm:"primary_key" json:"id"`
	EstimateRef  int                    `gorm:"index;not null" json:"estimate_ref"`
	Name         string                 `gorm:"size:255;not null" json:"name"`
	Notes        string                 `gorm:"type:text;default:null" json:"notes"`
	SectionTotal decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"section_total"`
	SortOrder    int                    `gorm:"default:0" json:"sort_order"`
	Items        []CustomerEstimateItem `gorm:"foreignKey:SectionId" json:"items"`
}

type CustomerEstimateItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	SectionId   int             `gorm:"index;not null" json:"section_id"`
	Title       string          `gorm:"size:255;not null" json:"title"`
	Description string          `gorm:"type:text;default:null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Unit        string          `gorm:"size:20" json:"unit"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
	SortOrder   int             `gorm:"default:0" json:"sort_order"`
}

// BuildCustomerEstimate projects an internal costing into a fresh
// customer-facing estimate: titles, quantities and sell prices cross over,
// the cost basis does not.
func BuildCustomerEstimate(costing *InternalCosting) *CustomerEstimate {
	estimate := &CustomerEstimate{
		CompanyId:  costing.CompanyId,
		EstimateId: costing.EstimateId,
		VatPct:     costing.VatPct,
		Status:     CustomerEstimateStatusDraft,
		Visibility: VisibilitySettings{
			ShowLineTotals:    true,
			ShowQuantities:    true,
			ShowUnitPrices:    true,
			ShowSectionTotals: true,
			ShowVat:           true,
			ShowAssumptions:   true,
		},
	}

	for i := range costing.Sections {
		src := &costing.Sections[i]
		section := CustomerEstimateSection{
			Name:      src.Name,
			Notes:     src.Notes,
			SortOrder: src.SortOrder,
		}
		for j := range src.Items {
			item := &src.Items[j]
			section.Items = append(section.Items, CustomerEstimateItem{
				Title:       item.Title,
				Description: item.Description,
				Quantity:    item.Quantity,
				Unit:        item.Unit,
				UnitPrice:   item.UnitPrice,
				LineTotal:   item.LineTotal,
				SortOrder:   item.SortOrder,
			})
		}
		estimate.Sections = append(estimate.Sections, section)
	}

	RecomputeCustomerEstimate(estimate)
	return estimate
}

// RecomputeCustomerEstimate re-derives section totals, subtotal, VAT and
// total. Same rounding discipline as the internal side: sum first, round once.
func RecomputeCustomerEstimate(estimate *CustomerEstimate) {
	subtotal := decimal.Zero
	for s := range estimate.Sections {
		section := &estimate.Sections[s]
		sum := decimal.Zero
		for i := range section.Items {
			item := &section.Items[i]
			if item.LineTotal.IsZero() {
				sum = sum.Add(item.Quantity.Mul(item.UnitPrice))
			} else {
				sum = sum.Add(item.LineTotal)
			}
		}
		section.SectionTotal = utils.RoundCurrency(sum)
		subtotal = subtotal.Add(section.SectionTotal)
	}
	estimate.Subtotal = utils.RoundCurrency(subtotal)
	estimate.VatAmount = utils.RoundCurrency(utils.PercentOf(estimate.Subtotal, estimate.VatPct))
	estimate.TotalAmount = estimate.Subtotal.Add(estimate.VatAmount)
}

func getCustomerEstimateTx(tx *gorm.DB, companyId string, estimateId string) (*CustomerEstimate, error) {
	var estimate CustomerEstimate
	err := tx.
		Preload("Sections", func(db *gorm.DB) *gorm.DB {
			return db.Order("customer_estimate_sections.sort_order ASC")
		}).
		Preload("Sections.Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("customer_estimate_items.sort_order ASC")
		}).
		Where("company_id = ? AND estimate_id = ?", companyId, estimateId).
		First(&estimate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &estimate, nil
}

func GetCustomerEstimate(ctx context.Context, estimateId string) (*CustomerEstimate, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return getCustomerEstimateTx(config.GetDB().WithContext(ctx), companyId, estimateId)
}

// SaveCustomerEstimate recomputes totals and persists the tree, replacing the
// stored one.
func SaveCustomerEstimate(ctx context.Context, estimate *CustomerEstimate) error {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return err
	}
	estimate.CompanyId = companyId

	RecomputeCustomerEstimate(estimate)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var existing CustomerEstimate
	err = tx.Where("company_id = ? AND estimate_id = ?", companyId, estimate.EstimateId).
		First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		tx.Rollback()
		return err
	}
	if err == nil {
		var sectionIds []int
		if err := tx.Model(&CustomerEstimateSection{}).Where("estimate_ref = ?", existing.ID).
			Pluck("id", &sectionIds).Error; err != nil {
			tx.Rollback()
			return err
		}
		if len(sectionIds) > 0 {
			if err := tx.Where("section_id IN ?", sectionIds).Delete(&CustomerEstimateItem{}).Error; err != nil {
				tx.Rollback()
				return err
			}
			if err := tx.Where("estimate_ref = ?", existing.ID).Delete(&CustomerEstimateSection{}).Error; err != nil {
				tx.Rollback()
				return err
			}
		}
		estimate.ID = existing.ID
		estimate.CreatedAt = existing.CreatedAt
		for i := range estimate.Sections {
			estimate.Sections[i].ID = 0
			estimate.Sections[i].EstimateRef = existing.ID
			for j := range estimate.Sections[i].Items {
				estimate.Sections[i].Items[j].ID = 0
				estimate.Sections[i].Items[j].SectionId = 0
			}
		}
		if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(estimate).Error; err != nil {
			tx.Rollback()
			return err
		}
	} else {
		if err := tx.Create(estimate).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}
