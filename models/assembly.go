package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Assembly is a reusable parametric bundle of costed line templates. Applying
// one against a token set (survey measurements) expands it into concrete
// priced line items.
type Assembly struct {
	ID          int            `gorm:"primary_key" json:"id"`
	CompanyId   string         `gorm:"index;not null" json:"company_id"`
	Name        string         `gorm:"size:255;not null" json:"name" binding:"required"`
	Category    string         `gorm:"size:100" json:"category"`
	DefaultUnit string         `gorm:"size:20" json:"default_unit"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	Lines       []AssemblyLine `gorm:"foreignKey:AssemblyId" json:"lines" validate:"required,dive,required"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type AssemblyLine struct {
	ID               int             `gorm:"primary_key" json:"id"`
	AssemblyId       int             `gorm:"index;not null" json:"assembly_id"`
	Kind             CostKind        `gorm:"type:enum('material','labour','subcontract','plant','prelim');default:material" json:"kind"`
	Title            string          `gorm:"size:255;not null" json:"title" binding:"required"`
	QtyFormula       string          `gorm:"size:255;not null" json:"qty_formula" binding:"required"`
	Unit             string          `gorm:"size:20" json:"unit"`
	BaseUnitCost     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"base_unit_cost"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	DefaultMarkupPct decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"default_markup_pct"`
	VatApplicable    bool            `gorm:"default:false" json:"vat_applicable"`
	CustomerText     string          `gorm:"type:text;default:null" json:"customer_text"`
	SortOrder        int             `gorm:"default:0" json:"sort_order"`
}

// ExpandAssembly evaluates each template line against the supplied tokens and
// returns concrete line items ready for insertion, sort-ordered from
// startSortOrder so they append after whatever the target section holds.
//
// This is the commit path: formula evaluation is strict, and a missing token
// or broken formula fails the whole expansion rather than silently inserting
// a zero-quantity line. Use PreviewQuantity for wizard-side previews.
func ExpandAssembly(assembly *Assembly, tokens map[string]decimal.Decimal, startSortOrder int) ([]LineItem, error) {
	items := make([]LineItem, 0, len(assembly.Lines))

	for idx := range assembly.Lines {
		line := &assembly.Lines[idx]

		quantity, err := EvaluateQuantity(line.QtyFormula, tokens)
		if err != nil {
			return nil, fmt.Errorf("assembly %q line %q: %w", assembly.Name, line.Title, err)
		}

		unitPrice := line.UnitPrice
		if !unitPrice.IsPositive() {
			unitPrice = DeriveUnitPrice(line.BaseUnitCost, line.DefaultMarkupPct)
		}

		unit := line.Unit
		if unit == "" {
			unit = assembly.DefaultUnit
		}

		item := LineItem{
			Kind:                line.Kind,
			Title:               line.Title,
			Description:         line.CustomerText,
			Quantity:            quantity,
			Unit:                unit,
			UnitCost:            line.BaseUnitCost,
			UnitPrice:           unitPrice,
			MarginPct:           line.DefaultMarkupPct,
			IsVatApplicable:     line.VatApplicable,
			IsAutoRated:         true,
			IsPurchasable:       line.Kind == CostKindMaterial || line.Kind == CostKindPlant,
			IsWorkOrderEligible: line.Kind == CostKindLabour || line.Kind == CostKindSubcontract,
			AssemblyId:          assembly.ID,
			AssemblyLineId:      line.ID,
			QtyFormula:          line.QtyFormula,
			SortOrder:           startSortOrder + idx,
		}
		if err := item.SetSourceTokens(tokens); err != nil {
			return nil, err
		}
		item.Recalculate()
		items = append(items, item)
	}

	return items, nil
}

// ApplyAssemblyToSection expands the assembly and appends the result. Insert
// only: pre-existing items and their sort positions are never touched.
func ApplyAssemblyToSection(section *CostingSection, assembly *Assembly, tokens map[string]decimal.Decimal) error {
	items, err := ExpandAssembly(assembly, tokens, section.nextSortOrder())
	if err != nil {
		return err
	}
	section.Items = append(section.Items, items...)
	RecomputeSection(section)
	return nil
}

// ApplyAssemblyToEstimate loads the stored costing, applies the assembly into
// the named section (created at the end of the section list if absent) and
// persists the recomputed tree.
func ApplyAssemblyToEstimate(ctx context.Context, estimateId string, sectionName string, assemblyId int, tokens map[string]decimal.Decimal) (*InternalCosting, error) {
	costing, err := GetInternalCosting(ctx, estimateId)
	if err != nil {
		return nil, err
	}
	if costing == nil {
		return nil, utils.ErrorRecordNotFound
	}

	assembly, err := GetAssembly(ctx, assemblyId)
	if err != nil {
		return nil, err
	}

	var section *CostingSection
	for i := range costing.Sections {
		if costing.Sections[i].Name == sectionName {
			section = &costing.Sections[i]
			break
		}
	}
	if section == nil {
		next := 0
		for i := range costing.Sections {
			if costing.Sections[i].SortOrder >= next {
				next = costing.Sections[i].SortOrder + 1
			}
		}
		costing.Sections = append(costing.Sections, CostingSection{
			Name:      sectionName,
			SortOrder: next,
		})
		section = &costing.Sections[len(costing.Sections)-1]
	}

	if err := ApplyAssemblyToSection(section, assembly, tokens); err != nil {
		return nil, err
	}
	if err := SaveInternalCosting(ctx, costing); err != nil {
		return nil, err
	}
	return costing, nil
}

func assemblyCacheKey(companyId string) string {
	return "assemblies:" + companyId
}

// ListAssemblies returns the company's active assembly registry, redis-cached.
func ListAssemblies(ctx context.Context) ([]Assembly, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	var assemblies []Assembly
	exists, err := config.GetRedisObject(assemblyCacheKey(companyId), &assemblies)
	if err != nil {
		config.LogError(config.GetLogger(), "models", "ListAssemblies", "redis get", companyId, err)
	}
	if exists {
		return assemblies, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).
		Preload("Lines", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("assembly_lines.sort_order ASC")
		}).
		Where("company_id = ? AND is_active = true", companyId).
		Order("name ASC").
		Find(&assemblies).Error; err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(assemblyCacheKey(companyId), &assemblies, utils.GetCacheLifespan()); err != nil {
		config.LogError(config.GetLogger(), "models", "ListAssemblies", "redis set", companyId, err)
	}
	return assemblies, nil
}

func GetAssembly(ctx context.Context, id int) (*Assembly, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var assembly Assembly
	if err := db.WithContext(ctx).
		Preload("Lines", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("assembly_lines.sort_order ASC")
		}).
		Where("company_id = ? AND id = ?", companyId, id).
		First(&assembly).Error; err != nil {
		return nil, err
	}
	return &assembly, nil
}

func CreateAssembly(ctx context.Context, input *Assembly) (*Assembly, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	for i := range input.Lines {
		if !input.Lines[i].Kind.IsValid() {
			return nil, errors.New("invalid cost kind")
		}
		// Reject templates whose formulas cannot even parse. Token values do
		// not matter at registration time.
		lineTokens, err := tokenizeFormula(input.Lines[i].QtyFormula)
		if err != nil {
			return nil, err
		}
		if _, err := toPostfix(lineTokens); err != nil {
			return nil, err
		}
	}

	input.ID = 0
	input.CompanyId = companyId
	input.IsActive = true

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(input).Error; err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey(assemblyCacheKey(companyId)); err != nil {
		config.LogError(config.GetLogger(), "models", "CreateAssembly", "redis del", companyId, err)
	}
	return input, nil
}
