package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InternalCosting is the costing root for one estimate: ordered sections plus
// estimate-level aggregates. Aggregate fields are always derivable from
// section totals via RecomputeEstimate and are never hand-edited.
type InternalCosting struct {
	ID         int    `gorm:"primary_key" json:"id"`
	CompanyId  string `gorm:"index;not null" json:"company_id"`
	EstimateId string `gorm:"uniqueIndex;size:64;not null" json:"estimate_id" binding:"required"`

	OverheadPct    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"overhead_pct"`
	MarginPct      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"margin_pct"`
	ContingencyPct decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"contingency_pct"`
	VatPct         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_pct"`

	Subtotal          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	OverheadAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"overhead_amount"`
	MarginAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"margin_amount"`
	ContingencyAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"contingency_amount"`
	VatAmount         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_amount"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`

	// Assumptions is a JSON array of free-text assumption lines.
	Assumptions string `gorm:"type:text" json:"assumptions"`

	Sections  []CostingSection `gorm:"foreignKey:CostingId" json:"sections"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (costing *InternalCosting) GetAssumptions() ([]string, error) {
	var lines []string
	if costing.Assumptions == "" {
		return lines, nil
	}
	if err := json.Unmarshal([]byte(costing.Assumptions), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (costing *InternalCosting) SetAssumptions(lines []string) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	costing.Assumptions = string(data)
	return nil
}

// requireUser resolves the company and user ids from the request context.
// Every persistence operation goes through it; calls without a user context
// surface ErrorNotAuthenticated unchanged to the caller.
func requireUser(ctx context.Context) (companyId string, userId int, err error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return "", 0, utils.ErrorNotAuthenticated
	}
	userId, ok = utils.GetUserIdFromContext(ctx)
	if !ok {
		return "", 0, utils.ErrorNotAuthenticated
	}
	return companyId, userId, nil
}

// GetInternalCosting loads one costing with its sections and items in sort
// order. Returns nil (no error) when the estimate has no costing yet.
func GetInternalCosting(ctx context.Context, estimateId string) (*InternalCosting, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var costing InternalCosting
	err = db.WithContext(ctx).
		Preload("Sections", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("costing_sections.sort_order ASC")
		}).
		Preload("Sections.Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("line_items.sort_order ASC")
		}).
		Where("company_id = ? AND estimate_id = ?", companyId, estimateId).
		First(&costing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &costing, nil
}

// SaveInternalCosting recomputes aggregates and persists the full section
// tree, replacing whatever was stored for the estimate before. Compute then
// persist is a single logical operation; the write happens in one
// transaction.
func SaveInternalCosting(ctx context.Context, costing *InternalCosting) error {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return err
	}
	costing.CompanyId = companyId

	RecomputeEstimate(costing)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := saveInternalCostingTx(tx, costing); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func saveInternalCostingTx(tx *gorm.DB, costing *InternalCosting) error {
	var existing InternalCosting
	err := tx.Where("company_id = ? AND estimate_id = ?", costing.CompanyId, costing.EstimateId).
		First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err == nil {
		// Replace the stored tree wholesale; sections and items carry no
		// identity across saves.
		var sectionIds []int
		if err := tx.Model(&CostingSection{}).Where("costing_id = ?", existing.ID).
			Pluck("id", &sectionIds).Error; err != nil {
			return err
		}
		if len(sectionIds) > 0 {
			if err := tx.Where("section_id IN ?", sectionIds).Delete(&LineItem{}).Error; err != nil {
				return err
			}
			if err := tx.Where("costing_id = ?", existing.ID).Delete(&CostingSection{}).Error; err != nil {
				return err
			}
		}
		costing.ID = existing.ID
		costing.CreatedAt = existing.CreatedAt
		for i := range costing.Sections {
			costing.Sections[i].ID = 0
			costing.Sections[i].CostingId = existing.ID
			for j := range costing.Sections[i].Items {
				costing.Sections[i].Items[j].ID = 0
				costing.Sections[i].Items[j].SectionId = 0
			}
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(costing).Error
	}
	return tx.Create(costing).Error
}
