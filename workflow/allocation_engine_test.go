package workflow

import (
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/flowshare/allocation_backend/models"
)

func testTenant() *models.Tenant {
	return &models.Tenant{
		ID:                  "jv-test",
		Name:                "Test JV",
		AllocationModel:     models.AllocationModelMPMS111,
		StandardTemperature: decimal.NewFromInt(60),
		StandardPressure:    decimal.RequireFromString("14.696"),
	}
}

func testEntry(partnerId, gross, bsw, temp, api string) *models.ProductionEntry {
	return &models.ProductionEntry{
		TenantId:    "jv-test",
		PartnerId:   partnerId,
		PartnerName: "Partner " + partnerId,
		GrossVolume: decimal.RequireFromString(gross),
		BswPercent:  decimal.RequireFromString(bsw),
		Temperature: decimal.RequireFromString(temp),
		ApiGravity:  decimal.RequireFromString(api),
		MeterFactor: decimal.NewFromInt(1),
		Status:      models.ProductionEntryStatusApproved,
	}
}

func TestNewAllocationEngineRejectsUnknownModel(t *testing.T) {
	tenant := testTenant()
	tenant.AllocationModel = "api_mpms_12_9"
	if _, err := NewAllocationEngine(tenant); err == nil {
		t.Fatal("expected error for unknown allocation model")
	}
}

func TestCorrectionFactorsAtStandardConditionsAreUnity(t *testing.T) {
	engine, err := NewAllocationEngine(testTenant())
	if err != nil {
		t.Fatalf("NewAllocationEngine: %v", err)
	}

	correction, err := engine.CorrectEntry(testEntry("a", "1000", "2", "60", "34"))
	if err != nil {
		t.Fatalf("CorrectEntry: %v", err)
	}
	if !correction.TemperatureCorrectionFactor.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("CTL at standard temperature expected 1, got %s", correction.TemperatureCorrectionFactor)
	}
	if !correction.ApiCorrectionFactor.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("CPL at standard temperature expected 1, got %s", correction.ApiCorrectionFactor)
	}
	if !correction.WaterCutFactor.Equal(decimal.RequireFromString("0.98")) {
		t.Fatalf("water cut factor expected 0.98, got %s", correction.WaterCutFactor)
	}
	if !correction.NetVolumeObserved.Equal(decimal.RequireFromString("980")) {
		t.Fatalf("net observed expected 980, got %s", correction.NetVolumeObserved)
	}
	if !correction.NetVolumeStandard.Equal(decimal.RequireFromString("980")) {
		t.Fatalf("net standard expected 980, got %s", correction.NetVolumeStandard)
	}
}

func TestTemperatureCorrectionDecreasesAboveStandard(t *testing.T) {
	engine, err := NewAllocationEngine(testTenant())
	if err != nil {
		t.Fatalf("NewAllocationEngine: %v", err)
	}

	cold, err := engine.CorrectEntry(testEntry("a", "1000", "0", "60", "34"))
	if err != nil {
		t.Fatalf("CorrectEntry cold: %v", err)
	}
	hot, err := engine.CorrectEntry(testEntry("a", "1000", "0", "95", "34"))
	if err != nil {
		t.Fatalf("CorrectEntry hot: %v", err)
	}
	if !hot.TemperatureCorrectionFactor.LessThan(cold.TemperatureCorrectionFactor) {
		t.Fatalf("CTL must shrink as temperature rises: cold=%s hot=%s",
			cold.TemperatureCorrectionFactor, hot.TemperatureCorrectionFactor)
	}
	if !hot.NetVolumeStandard.LessThan(cold.NetVolumeStandard) {
		t.Fatalf("hotter oil must standardize to less volume: cold=%s hot=%s",
			cold.NetVolumeStandard, hot.NetVolumeStandard)
	}
}

func TestThermalExpansionCoefficientSwitchesAtApi50(t *testing.T) {
	engine, err := NewAllocationEngine(testTenant())
	if err != nil {
		t.Fatalf("NewAllocationEngine: %v", err)
	}

	// ΔT = 1: CTL = 1 − α − β. Heavy crude (API < 50) uses α = 0.000347,
	// light crude uses α = 0.000400.
	heavy, err := engine.CorrectEntry(testEntry("a", "1000", "0", "61", "49.9"))
	if err != nil {
		t.Fatalf("CorrectEntry heavy: %v", err)
	}
	light, err := engine.CorrectEntry(testEntry("a", "1000", "0", "61", "50"))
	if err != nil {
		t.Fatalf("CorrectEntry light: %v", err)
	}
	if !heavy.TemperatureCorrectionFactor.Equal(decimal.RequireFromString("0.999651")) {
		t.Fatalf("heavy CTL expected 0.999651, got %s", heavy.TemperatureCorrectionFactor)
	}
	if !light.TemperatureCorrectionFactor.Equal(decimal.RequireFromString("0.999598")) {
		t.Fatalf("light CTL expected 0.999598, got %s", light.TemperatureCorrectionFactor)
	}
}

func TestCorrectEntryFullWaterCut(t *testing.T) {
	engine, err := NewAllocationEngine(testTenant())
	if err != nil {
		t.Fatalf("NewAllocationEngine: %v", err)
	}

	correction, err := engine.CorrectEntry(testEntry("a", "500", "100", "60", "34"))
	if err != nil {
		t.Fatalf("CorrectEntry: %v", err)
	}
	if !correction.WaterCutFactor.IsZero() {
		t.Fatalf("BSW 100 expects water cut factor 0, got %s", correction.WaterCutFactor)
	}
	if !correction.NetVolumeStandard.IsZero() {
		t.Fatalf("BSW 100 expects zero standardized volume, got %s", correction.NetVolumeStandard)
	}
}

func TestCorrectEntryRejectsInvalidMeasurements(t *testing.T) {
	engine, err := NewAllocationEngine(testTenant())
	if err != nil {
		t.Fatalf("NewAllocationEngine: %v", err)
	}

	cases := []struct {
		name  string
		entry *models.ProductionEntry
	}{
		{"negative gross", testEntry("a", "-1", "0", "60", "34")},
		{"bsw above 100", testEntry("a", "1000", "100.01", "60", "34")},
		{"zero api gravity", testEntry("a", "1000", "0", "60", "0")},
	}
	for _, tc := range cases {
		_, err := engine.CorrectEntry(tc.entry)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !IsAllocationError(err) {
			t.Fatalf("%s: expected an AllocationError, got %T", tc.name, err)
		}
		if kind := ErrorKindOf(err); kind != ErrInvalidMeasurement {
			t.Fatalf("%s: expected kind %s, got %s", tc.name, ErrInvalidMeasurement, kind)
		}
	}
}

func TestCorrectEntryRejectsTemperatureBelowAbsoluteZero(t *testing.T) {
	engine, err := NewAllocationEngine(testTenant())
	if err != nil {
		t.Fatalf("NewAllocationEngine: %v", err)
	}

	// At -2440 F the pressure correlation divisor crosses zero; the entry
	// must be rejected before the division instead of panicking.
	_, err = engine.CorrectEntry(testEntry("a", "1000", "2", "-2440", "34"))
	if err == nil {
		t.Fatal("expected error for temperature below absolute zero")
	}
	if kind := ErrorKindOf(err); kind != ErrInvalidMeasurement {
		t.Fatalf("expected kind %s, got %s", ErrInvalidMeasurement, kind)
	}
}

func TestCorrectEntryRejectsDegenerateCorrectionFactors(t *testing.T) {
	engine, err := NewAllocationEngine(testTenant())
	if err != nil {
		t.Fatalf("NewAllocationEngine: %v", err)
	}

	// ΔT = 3000 drives CTL negative; a negative factor would flip the
	// standardized volume negative, so the run must fail instead.
	_, err = engine.CorrectEntry(testEntry("a", "1000", "2", "3060", "34"))
	if err == nil {
		t.Fatal("expected error for degenerate correction factors")
	}
	if !IsAllocationError(err) {
		t.Fatalf("expected an AllocationError, got %T", err)
	}
	if kind := ErrorKindOf(err); kind != ErrNonFiniteResult {
		t.Fatalf("expected kind %s, got %s", ErrNonFiniteResult, kind)
	}
}

func TestCorrectPartnerEntriesSumsAndWeights(t *testing.T) {
	engine, err := NewAllocationEngine(testTenant())
	if err != nil {
		t.Fatalf("NewAllocationEngine: %v", err)
	}

	// Both entries at standard conditions so the volumes stay exact.
	entries := []*models.ProductionEntry{
		testEntry("a", "1000", "10", "60", "34"),
		testEntry("a", "3000", "2", "60", "34"),
	}
	pv, err := engine.CorrectPartnerEntries("a", "Partner a", entries)
	if err != nil {
		t.Fatalf("CorrectPartnerEntries: %v", err)
	}

	if pv.EntryCount != 2 {
		t.Fatalf("entry count expected 2, got %d", pv.EntryCount)
	}
	if !pv.GrossVolume.Equal(decimal.RequireFromString("4000")) {
		t.Fatalf("gross expected 4000, got %s", pv.GrossVolume)
	}
	// 900 + 2940
	if !pv.NetVolumeStandard.Equal(decimal.RequireFromString("3840")) {
		t.Fatalf("NSV expected 3840, got %s", pv.NetVolumeStandard)
	}
	// BSW weighted by metered gross: (10×1000 + 2×3000) / 4000 = 4
	if !pv.BswPercent.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("weighted BSW expected 4, got %s", pv.BswPercent)
	}
	// Water: 100 + 60
	if !pv.WaterVolume.Equal(decimal.RequireFromString("160")) {
		t.Fatalf("water volume expected 160, got %s", pv.WaterVolume)
	}
}

func TestCorrectPartnerEntriesAllWaterFallsBackToSimpleAverage(t *testing.T) {
	engine, err := NewAllocationEngine(testTenant())
	if err != nil {
		t.Fatalf("NewAllocationEngine: %v", err)
	}

	entries := []*models.ProductionEntry{
		testEntry("a", "0", "100", "60", "34"),
		testEntry("a", "0", "100", "60", "34"),
	}
	pv, err := engine.CorrectPartnerEntries("a", "Partner a", entries)
	if err != nil {
		t.Fatalf("CorrectPartnerEntries: %v", err)
	}
	// With zero metered volume the weighted average is undefined; the
	// reported BSW falls back to the simple average.
	if !pv.BswPercent.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("BSW expected 100, got %s", pv.BswPercent)
	}
	if !pv.NetVolumeStandard.IsZero() {
		t.Fatalf("NSV expected 0, got %s", pv.NetVolumeStandard)
	}
}

func TestCorrectAllPartnersGroupsAndSorts(t *testing.T) {
	engine, err := NewAllocationEngine(testTenant())
	if err != nil {
		t.Fatalf("NewAllocationEngine: %v", err)
	}

	entries := []*models.ProductionEntry{
		testEntry("zeta", "100", "0", "60", "34"),
		testEntry("alpha", "200", "0", "60", "34"),
		testEntry("zeta", "300", "0", "60", "34"),
	}
	partners, err := engine.CorrectAllPartners(entries)
	if err != nil {
		t.Fatalf("CorrectAllPartners: %v", err)
	}
	if len(partners) != 2 {
		t.Fatalf("expected 2 partners, got %d", len(partners))
	}
	if partners[0].PartnerId != "alpha" || partners[1].PartnerId != "zeta" {
		t.Fatalf("expected partner ids sorted [alpha zeta], got [%s %s]", partners[0].PartnerId, partners[1].PartnerId)
	}
	if partners[1].EntryCount != 2 {
		t.Fatalf("zeta expected 2 entries, got %d", partners[1].EntryCount)
	}
	if !partners[1].GrossVolume.Equal(decimal.RequireFromString("400")) {
		t.Fatalf("zeta gross expected 400, got %s", partners[1].GrossVolume)
	}
}
