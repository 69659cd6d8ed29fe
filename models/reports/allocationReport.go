package reports

import (
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/flowshare/allocation_backend/models"
	"bitbucket.org/flowshare/allocation_backend/workflow"
)

var ErrorReconciliationNotCompleted = errors.New("reconciliation has no result to export")

var allocationHeadings = []string{
	"PartnerId",
	"PartnerName",
	"GrossVolume",
	"BswPercent",
	"WaterCutFactor",
	"NetVolumeObserved",
	"TemperatureCorrectionFactor",
	"ApiCorrectionFactor",
	"NetVolumeStandard",
	"OwnershipPercent",
	"AllocatedVolume",
}

// BuildAllocationReport renders a completed reconciliation as an xlsx
// workbook: a summary block, one row per partner in stored order, and a
// totals row. Caller owns closing the returned file.
func BuildAllocationReport(recon *models.Reconciliation) (*excelize.File, error) {
	if recon.Result == nil {
		return nil, ErrorReconciliationNotCompleted
	}
	result := recon.Result

	f := excelize.NewFile()
	sheetName := "Allocation"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	// Summary block
	f.SetCellValue(sheetName, "A1", "Reconciliation")
	f.SetCellValue(sheetName, "B1", recon.ID)
	f.SetCellValue(sheetName, "A2", "Period")
	f.SetCellValue(sheetName, "B2", recon.PeriodStart.Format("2006-01-02")+" to "+recon.PeriodEnd.Format("2006-01-02"))
	f.SetCellValue(sheetName, "A3", "TerminalVolume")
	f.SetCellValue(sheetName, "B3", recon.TerminalVolume.StringFixed(workflow.VolumePrecision))
	f.SetCellValue(sheetName, "A4", "AllocationModel")
	f.SetCellValue(sheetName, "B4", result.AllocationModelUsed)
	f.SetCellValue(sheetName, "A5", "ShrinkageVolume")
	f.SetCellValue(sheetName, "B5", result.ShrinkageVolume.StringFixed(workflow.VolumePrecision))
	f.SetCellValue(sheetName, "A6", "ShrinkagePercent")
	f.SetCellValue(sheetName, "B6", result.ShrinkagePercent.StringFixed(workflow.PercentPrecision))

	// Column headings
	headingRow := 8
	col := 'A'
	for _, h := range allocationHeadings {
		f.SetCellValue(sheetName, string(col)+fmt.Sprint(headingRow), h)
		col++
	}

	// Partner rows, in the order stored on the result
	rowNo := headingRow + 1
	for _, pa := range result.PartnerAllocations {
		f.SetCellValue(sheetName, "A"+fmt.Sprint(rowNo), pa.PartnerId)
		f.SetCellValue(sheetName, "B"+fmt.Sprint(rowNo), pa.PartnerName)
		f.SetCellValue(sheetName, "C"+fmt.Sprint(rowNo), pa.GrossVolume.StringFixed(workflow.VolumePrecision))
		f.SetCellValue(sheetName, "D"+fmt.Sprint(rowNo), pa.BswPercent.StringFixed(workflow.PercentPrecision))
		f.SetCellValue(sheetName, "E"+fmt.Sprint(rowNo), pa.WaterCutFactor.StringFixed(workflow.FactorPrecision))
		f.SetCellValue(sheetName, "F"+fmt.Sprint(rowNo), pa.NetVolumeObserved.StringFixed(workflow.VolumePrecision))
		f.SetCellValue(sheetName, "G"+fmt.Sprint(rowNo), pa.TemperatureCorrectionFactor.StringFixed(workflow.FactorPrecision))
		f.SetCellValue(sheetName, "H"+fmt.Sprint(rowNo), pa.ApiCorrectionFactor.StringFixed(workflow.FactorPrecision))
		f.SetCellValue(sheetName, "I"+fmt.Sprint(rowNo), pa.NetVolumeStandard.StringFixed(workflow.VolumePrecision))
		f.SetCellValue(sheetName, "J"+fmt.Sprint(rowNo), pa.OwnershipPercent.StringFixed(workflow.PercentPrecision))
		f.SetCellValue(sheetName, "K"+fmt.Sprint(rowNo), pa.AllocatedVolume.StringFixed(workflow.VolumePrecision))
		rowNo++
	}

	// Totals row
	f.SetCellValue(sheetName, "A"+fmt.Sprint(rowNo), "Total")
	f.SetCellValue(sheetName, "C"+fmt.Sprint(rowNo), result.TotalGrossVolume.StringFixed(workflow.VolumePrecision))
	f.SetCellValue(sheetName, "I"+fmt.Sprint(rowNo), result.TotalNetVolumeStandard.StringFixed(workflow.VolumePrecision))
	f.SetCellValue(sheetName, "K"+fmt.Sprint(rowNo), result.TotalAllocatedVolume.StringFixed(workflow.VolumePrecision))

	return f, nil
}

// GetAllocationReport loads the reconciliation for the tenant in ctx and
// renders it. Used by the export route.
func GetAllocationReport(ctx context.Context, tenantId string, reconciliationId int) (*excelize.File, error) {
	recon, err := models.GetReconciliation(ctx, tenantId, reconciliationId)
	if err != nil {
		return nil, err
	}
	return BuildAllocationReport(recon)
}
