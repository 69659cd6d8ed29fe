package models

import (
	"bitbucket.org/flowshare/allocation_backend/config"
)

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Tenant{},
		&ProductionEntry{},
		&TerminalReceipt{},
		&Reconciliation{},
	)
	if err != nil {
		config.GetLogger().Panic("failed to migrate tables: " + err.Error())
	}
}
