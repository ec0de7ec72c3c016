package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EstimateBrief captures the wizard's survey output for one estimate. Known
// fields are a closed schema; template-defined custom fields land in Extras
// instead of turning the whole record into an open dictionary.
type EstimateBrief struct {
	ID           int    `gorm:"primary_key" json:"id"`
	CompanyId    string `gorm:"index;not null" json:"company_id"`
	EstimateId   string `gorm:"uniqueIndex;size:64;not null" json:"estimate_id"`
	TemplateId   string `gorm:"size:100" json:"template_id"`
	ProjectName  string `gorm:"size:255" json:"project_name"`
	PropertyType string `gorm:"size:100" json:"property_type"`
	Postcode     string `gorm:"size:20" json:"postcode"`
	ClientName   string `gorm:"size:255" json:"client_name"`
	Summary      string `gorm:"type:text" json:"summary"`

	// Answers is the raw wizard answer set; Extras holds template-defined
	// custom fields outside the known schema.
	Answers map[string]any             `gorm:"serializer:json" json:"answers"`
	Extras  map[string]json.RawMessage `gorm:"serializer:json" json:"extras"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FlattenAnswerTokens selects the numeric wizard answers as formula tokens.
// Booleans map to 1/0 so formulas can scale by yes/no answers; anything that
// is not numeric is skipped. Non-finite floats sanitize to 0.
func FlattenAnswerTokens(answers map[string]any) map[string]decimal.Decimal {
	tokens := make(map[string]decimal.Decimal, len(answers))
	for key, raw := range answers {
		if value, ok := answerNumber(raw); ok {
			tokens[key] = value
		}
	}
	return tokens
}

// MergeTokens overlays explicit measurements on top of flattened answers;
// measurements win on key collisions.
func MergeTokens(base map[string]decimal.Decimal, overlay map[string]decimal.Decimal) map[string]decimal.Decimal {
	merged := make(map[string]decimal.Decimal, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// GetEstimateBrief loads the brief for one estimate. Returns nil (no error)
// when the wizard has not been run yet.
func GetEstimateBrief(ctx context.Context, estimateId string) (*EstimateBrief, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var brief EstimateBrief
	err = db.WithContext(ctx).
		Where("company_id = ? AND estimate_id = ?", companyId, estimateId).
		First(&brief).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &brief, nil
}

// SaveEstimateBrief upserts the brief keyed by estimate id.
func SaveEstimateBrief(ctx context.Context, brief *EstimateBrief) error {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return err
	}
	brief.CompanyId = companyId

	db := config.GetDB()
	var existing EstimateBrief
	err = db.WithContext(ctx).
		Where("company_id = ? AND estimate_id = ?", companyId, brief.EstimateId).
		First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err == nil {
		brief.ID = existing.ID
		brief.CreatedAt = existing.CreatedAt
		return db.WithContext(ctx).Save(brief).Error
	}
	return db.WithContext(ctx).Create(brief).Error
}

func answerNumber(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		return utils.SafeDecimalFromFloat(v), true
	case float32:
		return utils.SafeDecimalFromFloat(float64(v)), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case bool:
		if v {
			return decimal.NewFromInt(1), true
		}
		return decimal.Zero, true
	case decimal.Decimal:
		return v, true
	}
	return decimal.Zero, false
}

func answerString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func answerIsTruthy(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s != "" && s != "false" && s != "no" && s != "0"
	case nil:
		return false
	default:
		if n, ok := answerNumber(raw); ok {
			return !n.IsZero()
		}
		return true
	}
}
