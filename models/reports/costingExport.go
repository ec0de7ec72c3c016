package reports

import (
	"fmt"

	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"github.com/xuri/excelize/v2"
)

// BuildCostingWorkbook renders an internal costing as an xlsx workbook: one
// sheet, sections as bold header rows, items beneath, aggregate block at the
// bottom. Callers own closing the returned file.
func BuildCostingWorkbook(costing *models.InternalCosting, projectName string) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Costing"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	row := 1
	setRow := func(values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
		row++
		return nil
	}
	setBoldRow := func(values []interface{}) error {
		start, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		end, err := excelize.CoordinatesToCellName(len(values), row)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, start, end, boldStyle); err != nil {
			return err
		}
		return setRow(values)
	}

	if err := setBoldRow([]interface{}{projectName}); err != nil {
		return nil, err
	}
	if err := setRow([]interface{}{""}); err != nil {
		return nil, err
	}
	if err := setBoldRow([]interface{}{"Section / Item", "Kind", "Qty", "Unit", "Unit Cost", "Unit Price", "Line Cost", "Line Total"}); err != nil {
		return nil, err
	}

	for s := range costing.Sections {
		section := &costing.Sections[s]
		if err := setBoldRow([]interface{}{section.Name, "", "", "", "", "", "", section.SectionTotal.StringFixed(2)}); err != nil {
			return nil, err
		}
		for i := range section.Items {
			item := &section.Items[i]
			title := item.Title
			if item.IsProvisional {
				title = title + " (provisional)"
			}
			if err := setRow([]interface{}{
				"  " + title,
				string(item.Kind),
				item.Quantity.StringFixed(2),
				item.Unit,
				item.UnitCost.StringFixed(2),
				item.UnitPrice.StringFixed(2),
				item.LineCost.StringFixed(2),
				item.LineTotal.StringFixed(2),
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := setRow([]interface{}{""}); err != nil {
		return nil, err
	}
	aggregates := [][]interface{}{
		{"Subtotal", costing.Subtotal.StringFixed(2)},
		{fmt.Sprintf("Overhead (%s%%)", costing.OverheadPct.String()), costing.OverheadAmount.StringFixed(2)},
		{fmt.Sprintf("Margin (%s%%)", costing.MarginPct.String()), costing.MarginAmount.StringFixed(2)},
		{fmt.Sprintf("Contingency (%s%%)", costing.ContingencyPct.String()), costing.ContingencyAmount.StringFixed(2)},
		{fmt.Sprintf("VAT (%s%%)", costing.VatPct.String()), costing.VatAmount.StringFixed(2)},
		{"Total", costing.TotalAmount.StringFixed(2)},
	}
	for _, line := range aggregates {
		if err := setBoldRow(line); err != nil {
			return nil, err
		}
	}

	assumptions, err := costing.GetAssumptions()
	if err == nil && len(assumptions) > 0 {
		if err := setRow([]interface{}{""}); err != nil {
			return nil, err
		}
		if err := setBoldRow([]interface{}{"Assumptions"}); err != nil {
			return nil, err
		}
		for _, line := range assumptions {
			if err := setRow([]interface{}{line}); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}
