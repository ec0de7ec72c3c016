package models

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// GenerateCostingFromBrief runs the pricing engine against the estimate's
// current brief: flattens the wizard answers into formula tokens (explicit
// measurements win on collisions), recommends bundles for the brief's
// template, and expands each matched bundle into its own section. This is a
// commit context, so a broken formula fails the whole generation instead of
// inserting zero-quantity lines.
//
// Percentage rate settings carry over from the stored costing when one
// exists; a first generation starts at zero and the editor sets them.
func GenerateCostingFromBrief(ctx context.Context, estimateId string, measurements map[string]decimal.Decimal) (*InternalCosting, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	brief, err := GetEstimateBrief(ctx, estimateId)
	if err != nil {
		return nil, err
	}
	if brief == nil {
		return nil, errors.New("estimate has no brief")
	}

	tokens := MergeTokens(FlattenAnswerTokens(brief.Answers), measurements)

	bundles, err := ListBundles(ctx)
	if err != nil {
		return nil, err
	}
	matched := RecommendBundles(bundles, brief.Answers, brief.TemplateId)

	fresh := &InternalCosting{
		CompanyId:  companyId,
		EstimateId: estimateId,
	}
	if previous, err := GetInternalCosting(ctx, estimateId); err != nil {
		return nil, err
	} else if previous != nil {
		fresh.OverheadPct = previous.OverheadPct
		fresh.MarginPct = previous.MarginPct
		fresh.ContingencyPct = previous.ContingencyPct
		fresh.VatPct = previous.VatPct
		fresh.Assumptions = previous.Assumptions
	}

	resolve := func(assemblyId int) (*Assembly, error) {
		return GetAssembly(ctx, assemblyId)
	}
	for i := range matched {
		section := CostingSection{
			Name:      matched[i].Name,
			SortOrder: i,
		}
		if err := ApplyBundle(&section, &matched[i], tokens, resolve); err != nil {
			return nil, err
		}
		fresh.Sections = append(fresh.Sections, section)
	}

	RecomputeEstimate(fresh)
	return fresh, nil
}
