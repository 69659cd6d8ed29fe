package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireReceiptLock serializes reconciliation runs per (tenant, receipt)
// across instances using MySQL advisory locks, so the same receipt is never
// consumed by two overlapping runs. Acquisition blocks the second caller.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the reconciliation transaction.
func AcquireReceiptLock(tx *gorm.DB, tenantId string, receiptId int) error {
	lockName := fmt.Sprintf("recon:%s:%d", tenantId, receiptId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire reconciliation lock for tenant_id=%s receipt_id=%d", tenantId, receiptId)
	}
	return nil
}

func ReleaseReceiptLock(tx *gorm.DB, tenantId string, receiptId int) {
	lockName := fmt.Sprintf("recon:%s:%d", tenantId, receiptId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
