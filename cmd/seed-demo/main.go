// seed-demo creates a demo tenant with two partners' approved production
// entries and a matching terminal receipt, then prints a JWT for API calls.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/flowshare/allocation_backend/config"
	"bitbucket.org/flowshare/allocation_backend/models"
	"bitbucket.org/flowshare/allocation_backend/utils"
)

const (
	demoTenantId = "demo-jv"
	demoApiKey   = "demo-field-automation-key"
)

func main() {
	measurementDate := flag.String("date", "", "Measurement date (YYYY-MM-DD, default: yesterday)")
	flag.Parse()

	day := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if *measurementDate != "" {
		parsed, err := time.Parse("2006-01-02", *measurementDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --date: %v\n", err)
			os.Exit(1)
		}
		day = parsed
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	hashed, err := utils.HashApiKey(demoApiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash api key: %v\n", err)
		os.Exit(1)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		tenant := models.Tenant{
			ID:                  demoTenantId,
			Name:                "Demo Joint Venture",
			AllocationModel:     models.AllocationModelMPMS111,
			StandardTemperature: decimal.NewFromInt(60),
			StandardPressure:    decimal.RequireFromString("14.696"),
			ApiKeyHash:          string(hashed),
		}
		if err := tx.Where("id = ?", demoTenantId).FirstOrCreate(&tenant).Error; err != nil {
			return err
		}

		entries := []models.ProductionEntry{
			{
				TenantId:        demoTenantId,
				PartnerId:       "alpha-petroleum",
				PartnerName:     "Alpha Petroleum",
				MeasurementDate: day,
				GrossVolume:     decimal.RequireFromString("6500.0000"),
				BswPercent:      decimal.RequireFromString("2.5000"),
				Temperature:     decimal.RequireFromString("85.0000"),
				ApiGravity:      decimal.RequireFromString("34.0000"),
				MeterFactor:     decimal.RequireFromString("1.000200"),
				Status:          models.ProductionEntryStatusApproved,
				SubmittedBy:     "seed-demo",
			},
			{
				TenantId:        demoTenantId,
				PartnerId:       "beta-energy",
				PartnerName:     "Beta Energy",
				MeasurementDate: day,
				GrossVolume:     decimal.RequireFromString("4300.0000"),
				BswPercent:      decimal.RequireFromString("1.8000"),
				Temperature:     decimal.RequireFromString("78.0000"),
				ApiGravity:      decimal.RequireFromString("41.5000"),
				MeterFactor:     decimal.RequireFromString("0.999800"),
				Status:          models.ProductionEntryStatusApproved,
				SubmittedBy:     "seed-demo",
			},
		}
		for i := range entries {
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
		}

		receipt := models.TerminalReceipt{
			TenantId:       demoTenantId,
			ReceiptDate:    day,
			TerminalVolume: decimal.RequireFromString("10480.25"),
			TerminalName:   "Coast Terminal 3",
			OperatorName:   "Coastline Midstream",
			CreatedBy:      "seed-demo",
		}
		return tx.Create(&receipt).Error
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	token, err := utils.JwtGenerate(1, demoTenantId, "operator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate jwt: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeded tenant %q for %s\n", demoTenantId, day.Format("2006-01-02"))
	fmt.Printf("X-API-Key: %s\n", demoApiKey)
	fmt.Printf("Bearer token: %s\n", token)
}
