package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Bundle groups assembly references so a wizard answer set can pull several
// assemblies into an estimate at once. Qualification is data-driven: an
// optional template-id allow-list plus a conjunction of condition clauses.
// Storing predicates as rows (not closures) keeps the registry serializable
// and means nothing sourced from it is ever executed as code.
type Bundle struct {
	ID          int               `gorm:"primary_key" json:"id"`
	CompanyId   string            `gorm:"index;not null" json:"company_id"`
	Name        string            `gorm:"size:255;not null" json:"name" binding:"required"`
	Description string            `gorm:"type:text;default:null" json:"description"`
	TemplateIds []string          `gorm:"serializer:json" json:"template_ids"`
	Conditions  []BundleCondition `gorm:"foreignKey:BundleId" json:"conditions"`
	Assemblies  []BundleAssembly  `gorm:"foreignKey:BundleId" json:"assemblies"`
	SortOrder   int               `gorm:"default:0" json:"sort_order"`
	IsActive    bool              `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type BundleCondition struct {
	ID       int               `gorm:"primary_key" json:"id"`
	BundleId int               `gorm:"index;not null" json:"bundle_id"`
	Field    string            `gorm:"size:100;not null" json:"field" binding:"required"`
	Operator ConditionOperator `gorm:"size:20;not null" json:"operator" binding:"required"`
	Value    string            `gorm:"size:255" json:"value"`
}

type BundleAssembly struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BundleId   int    `gorm:"index;not null" json:"bundle_id"`
	AssemblyId int    `gorm:"not null" json:"assembly_id" binding:"required"`
	// FormulaOverride, when set, replaces the quantity formula of every line
	// in the referenced assembly for this bundle's expansion.
	FormulaOverride string `gorm:"size:255" json:"formula_override"`
	SortOrder       int    `gorm:"default:0" json:"sort_order"`
}

// Matches reports whether the bundle qualifies for the template and answers:
// the allow-list must be absent or contain the template id, and every
// condition clause must pass (a bundle with no conditions is unconditional).
func (b *Bundle) Matches(answers map[string]any, templateId string) bool {
	if len(b.TemplateIds) > 0 {
		found := false
		for _, id := range b.TemplateIds {
			if id == templateId {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i := range b.Conditions {
		if !evaluateCondition(&b.Conditions[i], answers) {
			return false
		}
	}
	return true
}

// RecommendBundles filters the registry, preserving source order.
func RecommendBundles(bundles []Bundle, answers map[string]any, templateId string) []Bundle {
	matched := make([]Bundle, 0, len(bundles))
	for i := range bundles {
		if bundles[i].Matches(answers, templateId) {
			matched = append(matched, bundles[i])
		}
	}
	return matched
}

func evaluateCondition(c *BundleCondition, answers map[string]any) bool {
	raw, present := answers[c.Field]

	switch c.Operator {
	case OperatorTruthy:
		return present && answerIsTruthy(raw)
	case OperatorEquals:
		return present && answerString(raw) == c.Value
	case OperatorNotEquals:
		return !present || answerString(raw) != c.Value
	case OperatorContains:
		return present && strings.Contains(answerString(raw), c.Value)
	case OperatorGreaterThan, OperatorAtLeast, OperatorLessThan, OperatorAtMost:
		if !present {
			return false
		}
		left, ok := answerNumber(raw)
		if !ok {
			return false
		}
		right, err := decimal.NewFromString(c.Value)
		if err != nil {
			return false
		}
		switch c.Operator {
		case OperatorGreaterThan:
			return left.GreaterThan(right)
		case OperatorAtLeast:
			return left.GreaterThanOrEqual(right)
		case OperatorLessThan:
			return left.LessThan(right)
		default:
			return left.LessThanOrEqual(right)
		}
	}
	return false
}

// ApplyBundle expands every assembly the bundle references into the target
// section, in the bundle's declared order. resolve maps assembly ids to their
// templates (registry lookup, injected so the expansion itself stays pure).
func ApplyBundle(section *CostingSection, bundle *Bundle, tokens map[string]decimal.Decimal, resolve func(assemblyId int) (*Assembly, error)) error {
	for i := range bundle.Assemblies {
		ref := &bundle.Assemblies[i]
		assembly, err := resolve(ref.AssemblyId)
		if err != nil {
			return err
		}
		if ref.FormulaOverride != "" {
			patched := *assembly
			patched.Lines = make([]AssemblyLine, len(assembly.Lines))
			copy(patched.Lines, assembly.Lines)
			for j := range patched.Lines {
				patched.Lines[j].QtyFormula = ref.FormulaOverride
			}
			assembly = &patched
		}
		if err := ApplyAssemblyToSection(section, assembly, tokens); err != nil {
			return err
		}
	}
	return nil
}

func bundleCacheKey(companyId string) string {
	return "bundles:" + companyId
}

// ListBundles returns the company's active bundle registry in sort order,
// redis-cached.
func ListBundles(ctx context.Context) ([]Bundle, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	var bundles []Bundle
	exists, err := config.GetRedisObject(bundleCacheKey(companyId), &bundles)
	if err != nil {
		config.LogError(config.GetLogger(), "models", "ListBundles", "redis get", companyId, err)
	}
	if exists {
		return bundles, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).
		Preload("Conditions").
		Preload("Assemblies", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("bundle_assemblies.sort_order ASC")
		}).
		Where("company_id = ? AND is_active = true", companyId).
		Order("sort_order ASC").
		Find(&bundles).Error; err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(bundleCacheKey(companyId), &bundles, utils.GetCacheLifespan()); err != nil {
		config.LogError(config.GetLogger(), "models", "ListBundles", "redis set", companyId, err)
	}
	return bundles, nil
}
