package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"gorm.io/gorm"
)

// EstimateVersion is an immutable snapshot of an estimate's full state:
// costing tree, brief/answers, customer estimate and visibility settings.
// Version numbers are monotonic per estimate, assigned max+1 at creation.
// Rows are never mutated after creation.
type EstimateVersion struct {
	ID         int    `gorm:"primary_key" json:"id"`
	CompanyId  string `gorm:"index;not null" json:"company_id"`
	EstimateId string `gorm:"index;size:64;not null" json:"estimate_id"`
	VersionNo  int    `gorm:"not null" json:"version_no"`
	Reason     string `gorm:"size:255" json:"reason"`
	Snapshot   string `gorm:"type:longtext;not null" json:"snapshot"`
	UserId     int    `gorm:"not null" json:"user_id"`
	UserName   string `gorm:"size:100" json:"user_name"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// versionSnapshot is the serialized payload of one EstimateVersion.
type versionSnapshot struct {
	Costing          *InternalCosting  `json:"costing"`
	Brief            *EstimateBrief    `json:"brief,omitempty"`
	CustomerEstimate *CustomerEstimate `json:"customer_estimate,omitempty"`
}

// CreateEstimateVersion snapshots the estimate's current stored state.
func CreateEstimateVersion(ctx context.Context, estimateId string, reason string) (*EstimateVersion, error) {
	if _, _, err := requireUser(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	version, err := createEstimateVersionTx(tx, ctx, estimateId, reason)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return version, nil
}

func createEstimateVersionTx(tx *gorm.DB, ctx context.Context, estimateId string, reason string) (*EstimateVersion, error) {
	companyId, userId, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	userName, _ := utils.GetUserNameFromContext(ctx)

	costing, err := GetInternalCosting(ctx, estimateId)
	if err != nil {
		return nil, err
	}
	if costing == nil {
		return nil, errors.New("nothing to snapshot: estimate has no costing")
	}

	snapshot := versionSnapshot{Costing: costing}

	var brief EstimateBrief
	err = tx.Where("company_id = ? AND estimate_id = ?", companyId, estimateId).First(&brief).Error
	if err == nil {
		snapshot.Brief = &brief
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	customerEstimate, err := getCustomerEstimateTx(tx, companyId, estimateId)
	if err != nil {
		return nil, err
	}
	snapshot.CustomerEstimate = customerEstimate

	data, err := json.Marshal(&snapshot)
	if err != nil {
		return nil, err
	}

	// max existing + 1, inside the caller's transaction
	var maxVersion int
	if err := tx.Model(&EstimateVersion{}).
		Where("company_id = ? AND estimate_id = ?", companyId, estimateId).
		Select("COALESCE(MAX(version_no), 0)").
		Scan(&maxVersion).Error; err != nil {
		return nil, err
	}

	version := EstimateVersion{
		CompanyId:  companyId,
		EstimateId: estimateId,
		VersionNo:  maxVersion + 1,
		Reason:     reason,
		Snapshot:   string(data),
		UserId:     userId,
		UserName:   userName,
	}
	if err := tx.Create(&version).Error; err != nil {
		return nil, err
	}
	if err := enqueueEstimateEventTx(tx, ctx, companyId, estimateId, EstimateEventVersionCreated, map[string]any{
		"version_no": version.VersionNo,
		"reason":     reason,
	}); err != nil {
		return nil, err
	}
	return &version, nil
}

// ListEstimateVersions returns versions newest-first, snapshots included.
func ListEstimateVersions(ctx context.Context, estimateId string) ([]EstimateVersion, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var versions []EstimateVersion
	if err := db.WithContext(ctx).
		Where("company_id = ? AND estimate_id = ?", companyId, estimateId).
		Order("version_no DESC").
		Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

// RestoreEstimateVersion overwrites the estimate's current costing with the
// selected version's snapshot. The current state is snapshotted first, so a
// restore is itself recoverable; aggregates are recomputed on the way in.
func RestoreEstimateVersion(ctx context.Context, estimateId string, versionNo int) (*InternalCosting, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var version EstimateVersion
	if err := db.WithContext(ctx).
		Where("company_id = ? AND estimate_id = ? AND version_no = ?", companyId, estimateId, versionNo).
		First(&version).Error; err != nil {
		return nil, err
	}

	var snapshot versionSnapshot
	if err := json.Unmarshal([]byte(version.Snapshot), &snapshot); err != nil {
		return nil, err
	}
	if snapshot.Costing == nil {
		return nil, errors.New("version snapshot has no costing")
	}

	restored := snapshot.Costing
	restored.CompanyId = companyId
	restored.EstimateId = estimateId
	RecomputeEstimate(restored)

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	// snapshot-then-restore, same rule as regeneration
	if _, err := createEstimateVersionTx(tx, ctx, estimateId, "pre-restore snapshot"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := saveInternalCostingTx(tx, restored); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := enqueueEstimateEventTx(tx, ctx, companyId, estimateId, EstimateEventVersionRestored, map[string]any{
		"version_no": versionNo,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return restored, nil
}
