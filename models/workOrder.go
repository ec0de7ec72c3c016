package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/shopspring/decimal"
)

// WorkOrder is generated from an estimate's work-order-eligible items
// (labour and subcontract trades), priced on the cost basis.
type WorkOrder struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CompanyId     string          `gorm:"index;not null" json:"company_id"`
	EstimateId    string          `gorm:"index;size:64;not null" json:"estimate_id"`
	OrderNumber   string          `gorm:"size:64;not null" json:"order_number"`
	SequenceNo    int             `gorm:"not null" json:"sequence_no"`
	ContractorRef string          `gorm:"size:255" json:"contractor_ref"`
	Notes         string          `gorm:"type:text" json:"notes"`
	Status        WorkOrderStatus `gorm:"type:enum('Draft','Issued','Completed','Cancelled');default:Draft" json:"status"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	Details       []WorkOrderDetail `gorm:"foreignKey:WorkOrderId" json:"details"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type WorkOrderDetail struct {
	ID            int             `gorm:"primary_key" json:"id"`
	WorkOrderId   int             `gorm:"index;not null" json:"work_order_id"`
	LineItemId    int             `gorm:"default:0" json:"line_item_id"`
	Kind          CostKind        `gorm:"type:enum('material','labour','subcontract','plant','prelim');default:labour" json:"kind"`
	Title         string          `gorm:"size:255;not null" json:"title"`
	Description   string          `gorm:"type:text;default:null" json:"description"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Unit          string          `gorm:"size:20" json:"unit"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	LineCost      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_cost"`
	IsProvisional bool            `gorm:"default:false" json:"is_provisional"`
	SortOrder     int             `gorm:"default:0" json:"sort_order"`
}

// CreateWorkOrderFromCosting projects the estimate's work-order-eligible
// items into a new draft work order. Copy semantics, same as purchase orders.
func CreateWorkOrderFromCosting(ctx context.Context, estimateId string, contractorRef string, notes string) (*WorkOrder, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	costing, err := GetInternalCosting(ctx, estimateId)
	if err != nil {
		return nil, err
	}
	if costing == nil {
		return nil, utils.ErrorRecordNotFound
	}

	var details []WorkOrderDetail
	subtotal := decimal.Zero
	sortOrder := 0
	for s := range costing.Sections {
		for i := range costing.Sections[s].Items {
			item := &costing.Sections[s].Items[i]
			if !item.IsWorkOrderEligible {
				continue
			}
			lineCost, _ := ComputeLine(item.Quantity, item.UnitCost, item.UnitPrice)
			details = append(details, WorkOrderDetail{
				LineItemId:    item.ID,
				Kind:          item.Kind,
				Title:         item.Title,
				Description:   item.Description,
				Quantity:      item.Quantity,
				Unit:          item.Unit,
				UnitCost:      item.UnitCost,
				LineCost:      lineCost,
				IsProvisional: item.IsProvisional,
				SortOrder:     sortOrder,
			})
			subtotal = subtotal.Add(lineCost)
			sortOrder++
		}
	}
	if len(details) == 0 {
		return nil, errors.New("estimate has no work-order-eligible items")
	}

	order := WorkOrder{
		CompanyId:     companyId,
		EstimateId:    estimateId,
		ContractorRef: contractorRef,
		Notes:         notes,
		Status:        WorkOrderStatusDraft,
		Subtotal:      utils.RoundCurrency(subtotal),
		Details:       details,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	seqNo, err := nextOrderSequence[WorkOrder](tx, companyId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	order.SequenceNo = seqNo
	order.OrderNumber = fmt.Sprintf("WO-%05d", seqNo)

	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := enqueueEstimateEventTx(tx, ctx, companyId, estimateId, EstimateEventOrderCreated, map[string]any{
		"order_type":   "work_order",
		"order_number": order.OrderNumber,
		"subtotal":     order.Subtotal,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &order, nil
}
