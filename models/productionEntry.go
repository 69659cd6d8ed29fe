package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/flowshare/allocation_backend/config"
	"bitbucket.org/flowshare/allocation_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var validate = validator.New()

// ProductionEntry is one partner's raw field measurement for one day.
// GrossVolume × MeterFactor is the raw observed volume fed into correction.
type ProductionEntry struct {
	ID              int                   `gorm:"primary_key" json:"id"`
	TenantId        string                `gorm:"index;size:64;not null" json:"tenant_id" binding:"required"`
	PartnerId       string                `gorm:"index;size:64;not null" json:"partner_id" binding:"required"`
	PartnerName     string                `gorm:"size:255" json:"partner_name"`
	MeasurementDate time.Time             `gorm:"index;not null" json:"measurement_date" binding:"required"`
	GrossVolume     decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"gross_volume"`
	BswPercent      decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"bsw_percent"`
	Temperature     decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"temperature"`
	ApiGravity      decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"api_gravity"`
	Pressure        *decimal.Decimal      `gorm:"type:decimal(20,4)" json:"pressure"`
	MeterFactor     decimal.Decimal       `gorm:"type:decimal(20,6);not null;default:1" json:"meter_factor"`
	Status          ProductionEntryStatus `gorm:"size:20;index;not null;default:'draft'" json:"status"`
	ValidationNotes string                `gorm:"type:text" json:"validation_notes"`
	SubmittedBy     string                `gorm:"size:255" json:"submitted_by"`
	CreatedAt       time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProductionEntry struct {
	TenantId        string           `json:"tenant_id" validate:"required"`
	PartnerId       string           `json:"partner_id" validate:"required"`
	PartnerName     string           `json:"partner_name"`
	MeasurementDate time.Time        `json:"measurement_date" validate:"required"`
	GrossVolume     decimal.Decimal  `json:"gross_volume"`
	BswPercent      decimal.Decimal  `json:"bsw_percent"`
	Temperature     decimal.Decimal  `json:"temperature"`
	ApiGravity      decimal.Decimal  `json:"api_gravity"`
	Pressure        *decimal.Decimal `json:"pressure"`
	MeterFactor     *decimal.Decimal `json:"meter_factor"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewProductionEntry) validate(ctx context.Context, tenantId string, _ int) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	if _, err := GetTenantById(ctx, tenantId); err != nil {
		return errors.New("tenant not found")
	}
	if input.GrossVolume.IsNegative() {
		return errors.New("gross volume must not be negative")
	}
	hundred := decimal.NewFromInt(100)
	if input.BswPercent.IsNegative() || input.BswPercent.GreaterThan(hundred) {
		return errors.New("bsw percent must be between 0 and 100")
	}
	if !input.ApiGravity.IsPositive() {
		return errors.New("api gravity must be greater than 0")
	}
	if input.Temperature.LessThan(decimal.NewFromFloat(-459.67)) {
		return errors.New("temperature must not be below absolute zero (-459.67 F)")
	}
	if input.Pressure != nil && !input.Pressure.IsPositive() {
		return errors.New("pressure must be greater than 0")
	}
	if input.MeterFactor != nil && !input.MeterFactor.IsPositive() {
		return errors.New("meter factor must be greater than 0")
	}
	return nil
}

func CreateProductionEntry(ctx context.Context, input NewProductionEntry) (*ProductionEntry, error) {
	if err := input.validate(ctx, input.TenantId, 0); err != nil {
		return nil, err
	}

	meterFactor := decimal.NewFromInt(1)
	if input.MeterFactor != nil {
		meterFactor = *input.MeterFactor
	}
	userName, _ := utils.GetUserNameFromContext(ctx)

	entry := ProductionEntry{
		TenantId:        input.TenantId,
		PartnerId:       input.PartnerId,
		PartnerName:     input.PartnerName,
		MeasurementDate: input.MeasurementDate,
		GrossVolume:     input.GrossVolume,
		BswPercent:      input.BswPercent,
		Temperature:     input.Temperature,
		ApiGravity:      input.ApiGravity,
		Pressure:        input.Pressure,
		MeterFactor:     meterFactor,
		Status:          ProductionEntryStatusDraft,
		SubmittedBy:     userName,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func UpdateProductionEntry(ctx context.Context, id int, input NewProductionEntry) (*ProductionEntry, error) {
	if err := input.validate(ctx, input.TenantId, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var entry ProductionEntry
	if err := db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, input.TenantId).Take(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	// Entries are frozen once they leave draft/pending (approved entries may
	// already have entered a reconciliation).
	if entry.Status != ProductionEntryStatusDraft && entry.Status != ProductionEntryStatusPending {
		return nil, fmt.Errorf("cannot edit a %s production entry", entry.Status)
	}

	entry.PartnerId = input.PartnerId
	entry.PartnerName = input.PartnerName
	entry.MeasurementDate = input.MeasurementDate
	entry.GrossVolume = input.GrossVolume
	entry.BswPercent = input.BswPercent
	entry.Temperature = input.Temperature
	entry.ApiGravity = input.ApiGravity
	entry.Pressure = input.Pressure
	if input.MeterFactor != nil {
		entry.MeterFactor = *input.MeterFactor
	}
	if err := db.WithContext(ctx).Save(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// TransitionProductionEntry moves an entry along its lifecycle
// (draft → pending → approved|flagged|rejected). Transitions are monotonic.
func TransitionProductionEntry(ctx context.Context, tenantId string, id int, next ProductionEntryStatus, notes string) (*ProductionEntry, error) {
	db := config.GetDB()
	var entry ProductionEntry
	if err := db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantId).Take(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if !entry.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("cannot transition production entry from %s to %s", entry.Status, next)
	}
	entry.Status = next
	if notes != "" {
		entry.ValidationNotes = notes
	}
	if err := db.WithContext(ctx).Save(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func GetProductionEntry(ctx context.Context, tenantId string, id int) (*ProductionEntry, error) {
	db := config.GetDB()
	var entry ProductionEntry
	if err := db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantId).Take(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func ListProductionEntries(ctx context.Context, tenantId string, status *ProductionEntryStatus, limit int) ([]*ProductionEntry, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 500 {
		limit = config.SearchLimit
	}
	dbCtx := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var entries []*ProductionEntry
	if err := dbCtx.Order("measurement_date DESC, id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func DeleteProductionEntry(ctx context.Context, tenantId string, id int) error {
	db := config.GetDB()
	var entry ProductionEntry
	if err := db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantId).Take(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	if entry.Status == ProductionEntryStatusApproved {
		return errors.New("cannot delete an approved production entry")
	}
	return db.WithContext(ctx).Delete(&entry).Error
}
