package workflow

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/flowshare/allocation_backend/config"
	"bitbucket.org/flowshare/allocation_backend/models"
)

// AggregateInputs collects the approved production entries whose measurement
// date falls in the run's period, plus the terminal receipt the run was
// triggered from. Read-only; all failures are InputErrors.
func AggregateInputs(tx *gorm.DB, reconciliation *models.Reconciliation) ([]*models.ProductionEntry, *models.TerminalReceipt, error) {
	var receipt models.TerminalReceipt
	err := tx.Where("id = ? AND tenant_id = ?", reconciliation.TerminalReceiptId, reconciliation.TenantId).
		Take(&receipt).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, newInputError(ErrNoTerminalReceipt, "no terminal receipt for tenant %s period %s to %s",
				reconciliation.TenantId,
				reconciliation.PeriodStart.Format("2006-01-02"),
				reconciliation.PeriodEnd.Format("2006-01-02"))
		}
		return nil, nil, err
	}

	var entries []*models.ProductionEntry
	err = tx.Where("tenant_id = ? AND status = ? AND measurement_date >= ? AND measurement_date <= ?",
		reconciliation.TenantId,
		models.ProductionEntryStatusApproved,
		reconciliation.PeriodStart,
		reconciliation.PeriodEnd,
	).Order("partner_id, measurement_date, id").Find(&entries).Error
	if err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, newInputError(ErrNoApprovedEntries, "no approved production entries for tenant %s period %s to %s",
			reconciliation.TenantId,
			reconciliation.PeriodStart.Format("2006-01-02"),
			reconciliation.PeriodEnd.Format("2006-01-02"))
	}
	return entries, &receipt, nil
}

// ComputeShrinkage reports the aggregate gap between the summed standardized
// volumes and the terminal's metered volume. Negative shrinkage (terminal
// reports more than the field measurements) is a valid, reportable condition.
func ComputeShrinkage(totalStandard, terminalVolume decimal.Decimal) (volume, percent decimal.Decimal) {
	volume = totalStandard.Sub(terminalVolume)
	if totalStandard.IsPositive() {
		percent = volume.Div(totalStandard).Mul(decimalHundred)
	}
	return volume, percent
}

// ComputeReconciliationResult is the pure computation: corrector, allocator,
// shrinkage and result assembly, with no I/O. Identical inputs yield
// byte-identical serialized results (partners sorted, decimal arithmetic).
func ComputeReconciliationResult(tenant *models.Tenant, entries []*models.ProductionEntry, terminalVolume decimal.Decimal) (*models.ReconciliationResult, error) {
	engine, err := NewAllocationEngine(tenant)
	if err != nil {
		return nil, err
	}

	partners, err := engine.CorrectAllPartners(entries)
	if err != nil {
		return nil, err
	}

	allocations, err := AllocateVolumes(partners, terminalVolume)
	if err != nil {
		return nil, err
	}

	totalGross := decimal.Zero
	totalStandard := decimal.Zero
	totalAllocated := decimal.Zero
	for _, allocation := range allocations {
		totalGross = totalGross.Add(allocation.Partner.GrossVolume)
		totalStandard = totalStandard.Add(allocation.Partner.NetVolumeStandard)
		totalAllocated = totalAllocated.Add(allocation.AllocatedVolume)
	}
	shrinkageVolume, shrinkagePercent := ComputeShrinkage(totalStandard, terminalVolume)

	partnerAllocations := make([]*models.PartnerAllocation, 0, len(allocations))
	for _, allocation := range allocations {
		pv := allocation.Partner
		partnerAllocations = append(partnerAllocations, &models.PartnerAllocation{
			PartnerId:                   pv.PartnerId,
			PartnerName:                 pv.PartnerName,
			GrossVolume:                 pv.GrossVolume.Round(VolumePrecision),
			BswPercent:                  pv.BswPercent.Round(PercentPrecision),
			WaterCutFactor:              pv.WaterCutFactor.Round(FactorPrecision),
			NetVolumeObserved:           pv.NetVolumeObserved.Round(VolumePrecision),
			TemperatureCorrectionFactor: pv.TemperatureCorrectionFactor.Round(FactorPrecision),
			ApiCorrectionFactor:         pv.ApiCorrectionFactor.Round(FactorPrecision),
			NetVolumeStandard:           pv.NetVolumeStandard.Round(VolumePrecision),
			OwnershipPercent:            allocation.OwnershipPercent,
			AllocatedVolume:             allocation.AllocatedVolume,
			IntermediateCalculations: map[string]decimal.Decimal{
				"entry_count":               decimal.NewFromInt(int64(pv.EntryCount)),
				"water_volume":              pv.WaterVolume.Round(VolumePrecision),
				"total_net_standard_volume": totalStandard.Round(VolumePrecision),
				"terminal_volume":           terminalVolume.Round(VolumePrecision),
			},
		})
	}

	return &models.ReconciliationResult{
		TotalGrossVolume:       totalGross.Round(VolumePrecision),
		TotalNetVolumeStandard: totalStandard.Round(VolumePrecision),
		TotalAllocatedVolume:   totalAllocated.Round(VolumePrecision),
		ShrinkageVolume:        shrinkageVolume.Round(VolumePrecision),
		ShrinkagePercent:       shrinkagePercent.Round(PercentPrecision),
		AllocationModelUsed:    engine.ModelName(),
		PartnerAllocations:     partnerAllocations,
	}, nil
}

// ProcessReconciliationWorkflow runs one reconciliation end to end inside the
// caller's transaction. Taxonomy errors fail the single run (status=failed,
// message recorded, no partial result) and are NOT returned, so at-least-once
// delivery acks them instead of retrying; unexpected faults are returned for
// the transport to retry.
func ProcessReconciliationWorkflow(tx *gorm.DB, logger *logrus.Logger, msg config.ReconciliationTriggerMessage) error {
	var reconciliation models.Reconciliation
	err := tx.Where("id = ? AND tenant_id = ?", msg.ReconciliationId, msg.TenantId).Take(&reconciliation).Error
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationWorkflow", "Querying Reconciliation", msg, err)
		return err
	}

	// Duplicate delivery after a terminal state: nothing to do.
	if reconciliation.Status.IsTerminal() {
		return nil
	}

	// Serialize per (tenant, receipt) so the receipt is never consumed twice.
	if err := AcquireReceiptLock(tx, reconciliation.TenantId, reconciliation.TerminalReceiptId); err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationWorkflow", "AcquireReceiptLock", msg, err)
		return err
	}
	defer ReleaseReceiptLock(tx, reconciliation.TenantId, reconciliation.TerminalReceiptId)

	if reconciliation.Status == models.ReconciliationStatusPending {
		if err := reconciliation.MarkProcessing(tx); err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationWorkflow", "MarkProcessing", reconciliation.ID, err)
			return err
		}
	}

	tenant, err := models.GetTenantById2(tx, reconciliation.TenantId)
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationWorkflow", "GetTenant", msg.TenantId, err)
		return err
	}

	entries, _, err := AggregateInputs(tx, &reconciliation)
	if err != nil {
		return failOrReturn(tx, logger, &reconciliation, err)
	}

	result, err := ComputeReconciliationResult(tenant, entries, reconciliation.TerminalVolume)
	if err != nil {
		return failOrReturn(tx, logger, &reconciliation, err)
	}

	if err := reconciliation.MarkCompleted(tx, result); err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationWorkflow", "MarkCompleted", reconciliation.ID, err)
		return err
	}

	logger.WithFields(logrus.Fields{
		"module":            "reconciliationWorkflow.go",
		"tenant_id":         reconciliation.TenantId,
		"reconciliation_id": reconciliation.ID,
		"partners":          len(result.PartnerAllocations),
		"terminal_volume":   reconciliation.TerminalVolume,
		"shrinkage_volume":  result.ShrinkageVolume,
	}).Info("reconciliation completed")
	return nil
}

// failOrReturn marks the run failed for taxonomy errors; anything else
// bubbles up for the caller/transport to retry.
func failOrReturn(tx *gorm.DB, logger *logrus.Logger, reconciliation *models.Reconciliation, cause error) error {
	if !IsAllocationError(cause) {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationWorkflow", "Unexpected fault", reconciliation.ID, cause)
		return cause
	}
	if err := reconciliation.MarkFailed(tx, cause); err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationWorkflow", "MarkFailed", reconciliation.ID, err)
		return err
	}
	config.LogError(logger, "reconciliationWorkflow.go", "ProcessReconciliationWorkflow", "Reconciliation failed", reconciliation.ID, cause)
	return nil
}
