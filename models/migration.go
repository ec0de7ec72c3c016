package models

import "gorm.io/gorm"

// MigrateAll runs the gorm auto-migration for every model in dependency
// order. Used by maintenance binaries and test harnesses; production schema
// changes go through reviewed SQL.
func MigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&Customer{},
		&EstimateBrief{},
		&InternalCosting{},
		&CostingSection{},
		&LineItem{},
		&CustomerEstimate{},
		&CustomerEstimateSection{},
		&CustomerEstimateItem{},
		&Assembly{},
		&AssemblyLine{},
		&Bundle{},
		&BundleCondition{},
		&BundleAssembly{},
		&EstimateVersion{},
		&EstimateEventRecord{},
		&PurchaseOrder{},
		&PurchaseOrderDetail{},
		&WorkOrder{},
		&WorkOrderDetail{},
	)
}
