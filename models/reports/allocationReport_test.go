package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/flowshare/allocation_backend/models"
)

func completedReconciliation() *models.Reconciliation {
	return &models.Reconciliation{
		ID:             7,
		TenantId:       "jv-test",
		PeriodStart:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		TerminalVolume: decimal.RequireFromString("950.00"),
		Status:         models.ReconciliationStatusCompleted,
		Result: &models.ReconciliationResult{
			TotalGrossVolume:       decimal.RequireFromString("1000.00"),
			TotalNetVolumeStandard: decimal.RequireFromString("1000.00"),
			TotalAllocatedVolume:   decimal.RequireFromString("950.00"),
			ShrinkageVolume:        decimal.RequireFromString("50.00"),
			ShrinkagePercent:       decimal.RequireFromString("5.0000"),
			AllocationModelUsed:    models.AllocationModelMPMS111,
			PartnerAllocations: []*models.PartnerAllocation{
				{
					PartnerId:        "alpha",
					PartnerName:      "Alpha Petroleum",
					GrossVolume:      decimal.RequireFromString("600.00"),
					OwnershipPercent: decimal.RequireFromString("60.0000"),
					AllocatedVolume:  decimal.RequireFromString("570.00"),
				},
				{
					PartnerId:        "beta",
					PartnerName:      "Beta Energy",
					GrossVolume:      decimal.RequireFromString("400.00"),
					OwnershipPercent: decimal.RequireFromString("40.0000"),
					AllocatedVolume:  decimal.RequireFromString("380.00"),
				},
			},
		},
	}
}

func TestBuildAllocationReport(t *testing.T) {
	f, err := BuildAllocationReport(completedReconciliation())
	if err != nil {
		t.Fatalf("BuildAllocationReport: %v", err)
	}
	defer f.Close()

	cases := []struct {
		cell     string
		expected string
	}{
		{"A1", "Reconciliation"},
		{"B2", "2026-03-01 to 2026-03-31"},
		{"B3", "950.00"},
		{"B4", models.AllocationModelMPMS111},
		{"B5", "50.00"},
		{"B6", "5.0000"},
		{"A8", "PartnerId"},
		{"K8", "AllocatedVolume"},
		{"A9", "alpha"},
		{"B9", "Alpha Petroleum"},
		{"C9", "600.00"},
		{"J9", "60.0000"},
		{"K9", "570.00"},
		{"A10", "beta"},
		{"J10", "40.0000"},
		{"K10", "380.00"},
		{"A11", "Total"},
		{"C11", "1000.00"},
		{"K11", "950.00"},
	}
	for _, tc := range cases {
		got, err := f.GetCellValue("Allocation", tc.cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", tc.cell, err)
		}
		if got != tc.expected {
			t.Fatalf("cell %s expected %q, got %q", tc.cell, tc.expected, got)
		}
	}
}

func TestBuildAllocationReportRequiresResult(t *testing.T) {
	recon := completedReconciliation()
	recon.Result = nil
	recon.Status = models.ReconciliationStatusFailed
	if _, err := BuildAllocationReport(recon); err != ErrorReconciliationNotCompleted {
		t.Fatalf("expected ErrorReconciliationNotCompleted, got %v", err)
	}
}
