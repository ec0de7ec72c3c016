package models

// CostKind classifies a costed line by trade discipline.
type CostKind string

const (
	CostKindMaterial    CostKind = "material"
	CostKindLabour      CostKind = "labour"
	CostKindSubcontract CostKind = "subcontract"
	CostKindPlant       CostKind = "plant"
	CostKindPrelim      CostKind = "prelim"
)

func (k CostKind) IsValid() bool {
	switch k {
	case CostKindMaterial, CostKindLabour, CostKindSubcontract, CostKindPlant, CostKindPrelim:
		return true
	}
	return false
}

// RegenerationMode selects how a freshly generated costing is merged over the
// previous one.
type RegenerationMode string

const (
	// RegenerationModeFull discards the previous costing entirely.
	RegenerationModeFull RegenerationMode = "full"
	// RegenerationModeAutoRatedOnly replaces auto-rated items but preserves
	// manual overrides.
	RegenerationModeAutoRatedOnly RegenerationMode = "auto-rated-only"
)

func (m RegenerationMode) IsValid() bool {
	return m == RegenerationModeFull || m == RegenerationModeAutoRatedOnly
}

// ConditionOperator is the operator of one bundle condition clause. Bundle
// predicates are data, not code: a conjunction of {field, operator, value}
// clauses evaluated against the wizard answer set.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "eq"
	OperatorNotEquals   ConditionOperator = "neq"
	OperatorGreaterThan ConditionOperator = "gt"
	OperatorAtLeast     ConditionOperator = "gte"
	OperatorLessThan    ConditionOperator = "lt"
	OperatorAtMost      ConditionOperator = "lte"
	OperatorContains    ConditionOperator = "contains"
	OperatorTruthy      ConditionOperator = "truthy"
)

type CustomerEstimateStatus string

const (
	CustomerEstimateStatusDraft    CustomerEstimateStatus = "Draft"
	CustomerEstimateStatusSent     CustomerEstimateStatus = "Sent"
	CustomerEstimateStatusAccepted CustomerEstimateStatus = "Accepted"
	CustomerEstimateStatusDeclined CustomerEstimateStatus = "Declined"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft     PurchaseOrderStatus = "Draft"
	PurchaseOrderStatusConfirmed PurchaseOrderStatus = "Confirmed"
	PurchaseOrderStatusClosed    PurchaseOrderStatus = "Closed"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "Cancelled"
)

type WorkOrderStatus string

const (
	WorkOrderStatusDraft     WorkOrderStatus = "Draft"
	WorkOrderStatusIssued    WorkOrderStatus = "Issued"
	WorkOrderStatusCompleted WorkOrderStatus = "Completed"
	WorkOrderStatusCancelled WorkOrderStatus = "Cancelled"
)

// EstimateEventType tags outbox rows for downstream consumers.
type EstimateEventType string

const (
	EstimateEventRegenerated    EstimateEventType = "estimate.regenerated"
	EstimateEventVersionCreated EstimateEventType = "estimate.version_created"
	EstimateEventVersionRestored EstimateEventType = "estimate.version_restored"
	EstimateEventOrderCreated   EstimateEventType = "estimate.order_created"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "Pending"
	OutboxPublishStatusProcessing OutboxPublishStatus = "Processing"
	OutboxPublishStatusPublished  OutboxPublishStatus = "Published"
	OutboxPublishStatusFailed     OutboxPublishStatus = "Failed"
)
