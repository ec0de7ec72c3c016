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

// PurchaseOrder is generated from an estimate's purchasable line items
// (materials and plant). It is priced on the cost basis, not the sell price:
// this is what the business expects to pay, not what it charges.
type PurchaseOrder struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	CompanyId   string              `gorm:"index;not null" json:"company_id"`
	EstimateId  string              `gorm:"index;size:64;not null" json:"estimate_id"`
	OrderNumber string              `gorm:"size:64;not null" json:"order_number"`
	SequenceNo  int                 `gorm:"not null" json:"sequence_no"`
	SupplierRef string              `gorm:"size:255" json:"supplier_ref"`
	Notes       string              `gorm:"type:text" json:"notes"`
	Status      PurchaseOrderStatus `gorm:"type:enum('Draft','Confirmed','Closed','Cancelled');default:Draft" json:"status"`
	Subtotal    decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	Details     []PurchaseOrderDetail `gorm:"foreignKey:PurchaseOrderId" json:"details"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	LineItemId      int             `gorm:"default:0" json:"line_item_id"`
	Kind            CostKind        `gorm:"type:enum('material','labour','subcontract','plant','prelim');default:material" json:"kind"`
	Title           string          `gorm:"size:255;not null" json:"title"`
	Description     string          `gorm:"type:text;default:null" json:"description"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Unit            string          `gorm:"size:20" json:"unit"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	LineCost        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_cost"`
	IsProvisional   bool            `gorm:"default:false" json:"is_provisional"`
	SortOrder       int             `gorm:"default:0" json:"sort_order"`
}

// nextOrderSequence returns max existing + 1 for the company within tx.
func nextOrderSequence[T any](tx *gorm.DB, companyId string) (int, error) {
	var model T
	var maxSeq int
	if err := tx.Model(&model).
		Where("company_id = ?", companyId).
		Select("COALESCE(MAX(sequence_no), 0)").
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	return maxSeq + 1, nil
}

// CreatePurchaseOrderFromCosting projects the estimate's purchasable items
// into a new draft purchase order. The projection is a copy: later costing
// edits do not flow into the order.
func CreatePurchaseOrderFromCosting(ctx context.Context, estimateId string, supplierRef string, notes string) (*PurchaseOrder, error) {
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

	var details []PurchaseOrderDetail
	subtotal := decimal.Zero
	sortOrder := 0
	for s := range costing.Sections {
		for i := range costing.Sections[s].Items {
			item := &costing.Sections[s].Items[i]
			if !item.IsPurchasable {
				continue
			}
			lineCost, _ := ComputeLine(item.Quantity, item.UnitCost, item.UnitPrice)
			details = append(details, PurchaseOrderDetail{
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
		return nil, errors.New("estimate has no purchasable items")
	}

	order := PurchaseOrder{
		CompanyId:   companyId,
		EstimateId:  estimateId,
		SupplierRef: supplierRef,
		Notes:       notes,
		Status:      PurchaseOrderStatusDraft,
		Subtotal:    utils.RoundCurrency(subtotal),
		Details:     details,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	seqNo, err := nextOrderSequence[PurchaseOrder](tx, companyId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	order.SequenceNo = seqNo
	order.OrderNumber = fmt.Sprintf("PO-%05d", seqNo)

	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := enqueueEstimateEventTx(tx, ctx, companyId, estimateId, EstimateEventOrderCreated, map[string]any{
		"order_type":   "purchase_order",
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
