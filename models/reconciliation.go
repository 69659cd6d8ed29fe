package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/flowshare/allocation_backend/config"
	"bitbucket.org/flowshare/allocation_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PartnerAllocation is one partner's computed share within a result.
// The correction factors are fixed named fields so their correctness is
// statically checkable; IntermediateCalculations is the forward-compatible
// audit extension bag.
type PartnerAllocation struct {
	PartnerId                   string                     `json:"partner_id"`
	PartnerName                 string                     `json:"partner_name"`
	GrossVolume                 decimal.Decimal            `json:"gross_volume"`
	BswPercent                  decimal.Decimal            `json:"bsw_percent"`
	WaterCutFactor              decimal.Decimal            `json:"water_cut_factor"`
	NetVolumeObserved           decimal.Decimal            `json:"net_volume_observed"`
	TemperatureCorrectionFactor decimal.Decimal            `json:"temperature_correction_factor"`
	ApiCorrectionFactor         decimal.Decimal            `json:"api_correction_factor"`
	NetVolumeStandard           decimal.Decimal            `json:"net_volume_standard"`
	OwnershipPercent            decimal.Decimal            `json:"ownership_percent"`
	AllocatedVolume             decimal.Decimal            `json:"allocated_volume"`
	IntermediateCalculations    map[string]decimal.Decimal `json:"intermediate_calculations"`
}

// ReconciliationResult is owned exclusively by its Reconciliation: created
// together, destroyed together, never mutated after the run completes.
type ReconciliationResult struct {
	TotalGrossVolume       decimal.Decimal      `json:"total_gross_volume"`
	TotalNetVolumeStandard decimal.Decimal      `json:"total_net_volume_standard"`
	TotalAllocatedVolume   decimal.Decimal      `json:"total_allocated_volume"`
	ShrinkageVolume        decimal.Decimal      `json:"shrinkage_volume"`
	ShrinkagePercent       decimal.Decimal      `json:"shrinkage_percent"`
	AllocationModelUsed    string               `json:"allocation_model_used"`
	PartnerAllocations     []*PartnerAllocation `json:"partner_allocations"`
}

// Reconciliation is one computation run over a period. Exactly one terminal
// volume and one result per run; status transitions are monotonic.
type Reconciliation struct {
	ID                int                   `gorm:"primary_key" json:"id"`
	TenantId          string                `gorm:"index;size:64;not null" json:"tenant_id"`
	TerminalReceiptId int                   `gorm:"index;not null" json:"terminal_receipt_id"`
	PeriodStart       time.Time             `gorm:"not null" json:"period_start"`
	PeriodEnd         time.Time             `gorm:"not null" json:"period_end"`
	TerminalVolume    decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"terminal_volume"`
	Status            ReconciliationStatus  `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	Result            *ReconciliationResult `gorm:"type:json;serializer:json" json:"result"`
	ErrorMessage      string                `gorm:"type:text" json:"error_message"`
	TriggeredBy       string                `gorm:"size:255" json:"triggered_by"`
	CorrelationId     string                `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt         time.Time             `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt       *time.Time            `gorm:"" json:"completed_at"`
}

type NewReconciliation struct {
	TenantId    string    `json:"tenant_id" validate:"required"`
	PeriodStart time.Time `json:"period_start" validate:"required"`
	PeriodEnd   time.Time `json:"period_end" validate:"required"`
}

func (input *NewReconciliation) validate(ctx context.Context) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	if input.PeriodEnd.Before(input.PeriodStart) {
		return errors.New("period end must not be before period start")
	}
	if _, err := GetTenantById(ctx, input.TenantId); err != nil {
		return errors.New("tenant not found")
	}
	return nil
}

// transitionTo enforces the monotonic state machine in memory; the DB write
// belongs to the caller's transaction.
func (r *Reconciliation) transitionTo(next ReconciliationStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("cannot transition reconciliation from %s to %s", r.Status, next)
	}
	r.Status = next
	return nil
}

// MarkProcessing moves pending → processing.
func (r *Reconciliation) MarkProcessing(tx *gorm.DB) error {
	if err := r.transitionTo(ReconciliationStatusProcessing); err != nil {
		return err
	}
	return tx.Model(r).Update("status", r.Status).Error
}

// MarkCompleted attaches the result and stamps the completion time. After
// this the run and its result are immutable; a correction requires a new run.
func (r *Reconciliation) MarkCompleted(tx *gorm.DB, result *ReconciliationResult) error {
	if result == nil {
		return errors.New("completed reconciliation requires a result")
	}
	if err := r.transitionTo(ReconciliationStatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.Result = result
	r.CompletedAt = &now
	return tx.Model(r).Updates(map[string]interface{}{
		"status":       r.Status,
		"result":       r.Result,
		"completed_at": r.CompletedAt,
	}).Error
}

// MarkFailed records the human-readable cause and guarantees no partial
// result survives the run.
func (r *Reconciliation) MarkFailed(tx *gorm.DB, cause error) error {
	if err := r.transitionTo(ReconciliationStatusFailed); err != nil {
		return err
	}
	r.Result = nil
	r.ErrorMessage = cause.Error()
	return tx.Model(r).Updates(map[string]interface{}{
		"status":        r.Status,
		"result":        nil,
		"error_message": r.ErrorMessage,
	}).Error
}

// CreateReconciliation records a pending run for the period, copying the
// terminal volume from the receipt that triggers it.
func CreateReconciliation(ctx context.Context, input NewReconciliation) (*Reconciliation, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	receipt, err := FindTerminalReceiptForPeriod(db.WithContext(ctx), input.TenantId, input.PeriodStart, input.PeriodEnd)
	if err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, errors.New("no terminal receipt found for the period")
		}
		return nil, err
	}

	userName, _ := utils.GetUserNameFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	reconciliation := Reconciliation{
		TenantId:          input.TenantId,
		TerminalReceiptId: receipt.ID,
		PeriodStart:       input.PeriodStart,
		PeriodEnd:         input.PeriodEnd,
		TerminalVolume:    receipt.TerminalVolume,
		Status:            ReconciliationStatusPending,
		TriggeredBy:       userName,
		CorrelationId:     correlationId,
	}
	if err := db.WithContext(ctx).Create(&reconciliation).Error; err != nil {
		return nil, err
	}
	return &reconciliation, nil
}

func GetReconciliation(ctx context.Context, tenantId string, id int) (*Reconciliation, error) {
	db := config.GetDB()
	var reconciliation Reconciliation
	if err := db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantId).Take(&reconciliation).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &reconciliation, nil
}

func ListReconciliations(ctx context.Context, tenantId string, status *ReconciliationStatus, limit int) ([]*Reconciliation, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 500 {
		limit = config.SearchLimit
	}
	dbCtx := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var reconciliations []*Reconciliation
	if err := dbCtx.Order("created_at DESC, id DESC").Limit(limit).Find(&reconciliations).Error; err != nil {
		return nil, err
	}
	return reconciliations, nil
}
