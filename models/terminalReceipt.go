package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/flowshare/allocation_backend/config"
	"bitbucket.org/flowshare/allocation_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TerminalReceipt is the terminal operator's independently metered volume for
// a period. Once a reconciliation has consumed a receipt it becomes
// immutable; deletion is only allowed while no reconciliation references it.
type TerminalReceipt struct {
	ID             int             `gorm:"primary_key" json:"id"`
	TenantId       string          `gorm:"index;size:64;not null" json:"tenant_id" binding:"required"`
	ReceiptDate    time.Time       `gorm:"index;not null" json:"receipt_date" binding:"required"`
	TerminalVolume decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"terminal_volume"`
	TerminalName   string          `gorm:"size:255" json:"terminal_name"`
	OperatorName   string          `gorm:"size:255" json:"operator_name"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedBy      string          `gorm:"size:255" json:"created_by"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTerminalReceipt struct {
	TenantId       string          `json:"tenant_id" validate:"required"`
	ReceiptDate    time.Time       `json:"receipt_date" validate:"required"`
	TerminalVolume decimal.Decimal `json:"terminal_volume"`
	TerminalName   string          `json:"terminal_name"`
	OperatorName   string          `json:"operator_name"`
	Notes          string          `json:"notes"`
}

func (input *NewTerminalReceipt) validate(ctx context.Context) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	if _, err := GetTenantById(ctx, input.TenantId); err != nil {
		return errors.New("tenant not found")
	}
	if input.TerminalVolume.IsNegative() {
		return errors.New("terminal volume must not be negative")
	}
	return nil
}

func CreateTerminalReceipt(ctx context.Context, input NewTerminalReceipt) (*TerminalReceipt, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	userName, _ := utils.GetUserNameFromContext(ctx)
	receipt := TerminalReceipt{
		TenantId:       input.TenantId,
		ReceiptDate:    input.ReceiptDate,
		TerminalVolume: input.TerminalVolume,
		TerminalName:   input.TerminalName,
		OperatorName:   input.OperatorName,
		Notes:          input.Notes,
		CreatedBy:      userName,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func GetTerminalReceipt(ctx context.Context, tenantId string, id int) (*TerminalReceipt, error) {
	db := config.GetDB()
	var receipt TerminalReceipt
	if err := db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantId).Take(&receipt).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// FindTerminalReceiptForPeriod returns the single receipt whose receipt_date
// falls in [periodStart, periodEnd]. The latest one wins if the terminal
// corrected its figure by filing again.
func FindTerminalReceiptForPeriod(tx *gorm.DB, tenantId string, periodStart, periodEnd time.Time) (*TerminalReceipt, error) {
	var receipt TerminalReceipt
	err := tx.Where("tenant_id = ? AND receipt_date >= ? AND receipt_date <= ?", tenantId, periodStart, periodEnd).
		Order("receipt_date DESC, id DESC").
		First(&receipt).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

func ListTerminalReceipts(ctx context.Context, tenantId string, limit int) ([]*TerminalReceipt, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 500 {
		limit = config.SearchLimit
	}
	var receipts []*TerminalReceipt
	if err := db.WithContext(ctx).Where("tenant_id = ?", tenantId).
		Order("receipt_date DESC, id DESC").Limit(limit).Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteTerminalReceipt refuses to delete a receipt any reconciliation has
// consumed, regardless of that run's outcome.
func DeleteTerminalReceipt(ctx context.Context, tenantId string, id int) error {
	db := config.GetDB()
	var receipt TerminalReceipt
	if err := db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantId).Take(&receipt).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorRecordNotFound
		}
		return err
	}

	var count int64
	if err := db.WithContext(ctx).Model(&Reconciliation{}).
		Where("tenant_id = ? AND terminal_receipt_id = ?", tenantId, id).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New("terminal receipt has been consumed by a reconciliation")
	}
	return db.WithContext(ctx).Delete(&receipt).Error
}
