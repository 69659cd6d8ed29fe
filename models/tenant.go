package models

import (
	"context"
	"time"

	"bitbucket.org/flowshare/allocation_backend/config"
	"bitbucket.org/flowshare/allocation_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Tenant holds the joint-venture settings the allocation engine is
// configured from. Identity/subscription management lives in an external
// service; this table carries only what the computation and API need.
type Tenant struct {
	ID                  string          `gorm:"primary_key;size:64" json:"id"`
	Name                string          `gorm:"size:255;not null" json:"name"`
	AllocationModel     string          `gorm:"size:50;not null;default:'api_mpms_11_1'" json:"allocation_model"`
	StandardTemperature decimal.Decimal `gorm:"type:decimal(20,4);not null;default:60" json:"standard_temperature"`
	StandardPressure    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:14.696" json:"standard_pressure"`
	ApiKeyHash          string          `gorm:"size:255" json:"-"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetTenantById reads through the redis cache first.
func GetTenantById(ctx context.Context, tenantId string) (*Tenant, error) {
	var tenant Tenant
	key := "Tenant:" + tenantId
	exists, err := config.GetRedisObject(key, &tenant)
	if err != nil {
		return nil, err
	}
	if exists {
		return &tenant, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", tenantId).Take(&tenant).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := config.SetRedisObject(key, &tenant, 0); err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetTenantById2 is the transaction-scoped variant used by workers.
func GetTenantById2(tx *gorm.DB, tenantId string) (*Tenant, error) {
	var tenant Tenant
	if err := tx.Where("id = ?", tenantId).Take(&tenant).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &tenant, nil
}
