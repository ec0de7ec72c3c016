package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// MergeRegeneration merges a freshly generated costing over the previous one.
//
// full mode discards previous entirely. auto-rated-only matches sections by
// exact title (a renamed or brand-new fresh section is kept unmodified) and
// items by assembly provenance else title. Manual overrides always win;
// otherwise auto-rated fresh items replace their counterparts, and anything
// without a clear previous counterpart degrades to "prefer fresh". Duplicate
// keys resolve last-one-wins in the lookup; known limitation.
//
// Pure transformation: inputs are not mutated, there is no error path, and
// identical inputs produce identical output. The result is always
// re-aggregated before returning.
func MergeRegeneration(previous, fresh *InternalCosting, mode RegenerationMode) *InternalCosting {
	result := cloneCosting(fresh)

	if mode == RegenerationModeFull || previous == nil {
		RecomputeEstimate(result)
		return result
	}

	prevSections := make(map[string]*CostingSection, len(previous.Sections))
	for i := range previous.Sections {
		prevSections[previous.Sections[i].Name] = &previous.Sections[i]
	}

	for s := range result.Sections {
		section := &result.Sections[s]
		prevSection, ok := prevSections[section.Name]
		if !ok {
			// New section wins: nothing to preserve.
			continue
		}

		prevItems := make(map[string]*LineItem, len(prevSection.Items))
		for i := range prevSection.Items {
			prevItems[prevSection.Items[i].mergeKey()] = &prevSection.Items[i]
		}

		for j := range section.Items {
			prevItem, found := prevItems[section.Items[j].mergeKey()]
			switch {
			case found && prevItem.IsManualOverride:
				// Manual edits always win, field for field.
				section.Items[j] = *prevItem
			case section.Items[j].IsAutoRated:
				// take the fresh item
			case found:
				section.Items[j] = *prevItem
			}
		}
	}

	RecomputeEstimate(result)
	return result
}

func cloneCosting(costing *InternalCosting) *InternalCosting {
	clone := *costing
	clone.Sections = make([]CostingSection, len(costing.Sections))
	for i := range costing.Sections {
		clone.Sections[i] = costing.Sections[i]
		clone.Sections[i].Items = make([]LineItem, len(costing.Sections[i].Items))
		copy(clone.Sections[i].Items, costing.Sections[i].Items)
	}
	return &clone
}

const regenerationLockTTL = 30 * time.Second

// RegenerateEstimate replaces the stored costing with the merge of the fresh
// generation over it. Ordering is a correctness requirement, not an
// optimization: a version snapshot is created first, inside the same
// transaction as the save, so a failed snapshot aborts the regeneration and a
// committed one is always recoverable. A per-estimate redis lock enforces the
// single-writer assumption.
func RegenerateEstimate(ctx context.Context, estimateId string, fresh *InternalCosting, mode RegenerationMode) (*InternalCosting, error) {
	companyId, userId, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if !mode.IsValid() {
		return nil, errors.New("invalid regeneration mode")
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "costing:regenerate:"+estimateId, regenerationLockTTL, nil)
		if err == redislock.ErrNotObtained {
			return nil, errors.New("estimate is locked by another regeneration")
		}
		if err != nil {
			return nil, err
		}
		defer lock.Release(ctx)
	}

	previous, err := GetInternalCosting(ctx, estimateId)
	if err != nil {
		return nil, err
	}

	merged := MergeRegeneration(previous, fresh, mode)
	merged.CompanyId = companyId
	merged.EstimateId = estimateId

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if previous != nil {
		if _, err := createEstimateVersionTx(tx, ctx, estimateId, "pre-regeneration snapshot"); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := saveInternalCostingTx(tx, merged); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := enqueueEstimateEventTx(tx, ctx, companyId, estimateId, EstimateEventRegenerated, map[string]any{
		"mode":    mode,
		"user_id": userId,
		"total":   merged.TotalAmount,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return merged, nil
}

// RecomputeAndSave reloads, re-aggregates and persists one costing. Invoked
// after item edits, assembly application and version restore.
func RecomputeAndSave(ctx context.Context, estimateId string) (*InternalCosting, error) {
	costing, err := GetInternalCosting(ctx, estimateId)
	if err != nil {
		return nil, err
	}
	if costing == nil {
		return nil, gorm.ErrRecordNotFound
	}
	if err := SaveInternalCosting(ctx, costing); err != nil {
		return nil, err
	}
	return costing, nil
}
