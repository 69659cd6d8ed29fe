package workflow

import (
	"fmt"
	"sort"

	"bitbucket.org/flowshare/allocation_backend/models"
	"github.com/shopspring/decimal"
)

var (
	decimalOne     = decimal.NewFromInt(1)
	decimalHundred = decimal.NewFromInt(100)

	// API MPMS Ch.11.1 closed-form approximation coefficients. Production
	// lookup tables (ASTM D1250 Table 6A/6B) collapse to this correlation at
	// the precision the reconciliation reports.
	ctlAlphaHeavy    = decimal.NewFromFloat(0.000347) // API gravity < 50
	ctlAlphaLight    = decimal.NewFromFloat(0.000400)
	ctlBeta          = decimal.NewFromFloat(0.000002)
	cplTempExpansion = decimal.NewFromFloat(0.0004)
	ctlAlphaCutoff   = decimal.NewFromInt(50)

	sgNumerator = decimal.NewFromFloat(141.5)
	sgOffset    = decimal.NewFromFloat(131.5)

	absoluteZeroF = decimal.NewFromFloat(-459.67)
)

// CorrectionModel converts observed conditions into the standard-condition
// correction factors. Models are registered by identifier so a tenant can be
// switched to a future correlation without touching the allocator.
type CorrectionModel interface {
	Name() string

	// TemperatureCorrectionFactor is CTL: monotonically decreasing in the
	// observed temperature relative to the standard temperature.
	TemperatureCorrectionFactor(temperature, apiGravity decimal.Decimal) decimal.Decimal

	// ApiCorrectionFactor is CPL, derived from the API-gravity density
	// correlation at standard vs observed conditions. The specific gravities
	// are returned for the audit trail.
	ApiCorrectionFactor(temperature, apiGravity decimal.Decimal) (cpl, sgStandard, sgObserved decimal.Decimal)
}

type correctionModelFactory func(standardTemperature, standardPressure decimal.Decimal) CorrectionModel

var correctionModels = map[string]correctionModelFactory{
	models.AllocationModelMPMS111: func(standardTemperature, standardPressure decimal.Decimal) CorrectionModel {
		return &mpms111Model{
			standardTemperature: standardTemperature,
			standardPressure:    standardPressure,
		}
	},
}

// CorrectionModelFor resolves a registered model by its identifier.
func CorrectionModelFor(name string, standardTemperature, standardPressure decimal.Decimal) (CorrectionModel, error) {
	factory, ok := correctionModels[name]
	if !ok {
		return nil, fmt.Errorf("unknown allocation model %q", name)
	}
	return factory(standardTemperature, standardPressure), nil
}

// mpms111Model implements the API MPMS Chapter 11.1 volume correction:
//
//	SG  = 141.5 / (API + 131.5)                     (Section 11.1.6.2)
//	CTL = 1 − α·ΔT − β·ΔT²                          (Table 6A/6B approximation)
//	CPL = SG_standard / SG_observed, SG_observed = SG_standard / (1 + 0.0004·ΔT)
type mpms111Model struct {
	standardTemperature decimal.Decimal
	standardPressure    decimal.Decimal
}

func (m *mpms111Model) Name() string { return models.AllocationModelMPMS111 }

func (m *mpms111Model) TemperatureCorrectionFactor(temperature, apiGravity decimal.Decimal) decimal.Decimal {
	deltaT := temperature.Sub(m.standardTemperature)
	alpha := ctlAlphaHeavy
	if apiGravity.GreaterThanOrEqual(ctlAlphaCutoff) {
		alpha = ctlAlphaLight
	}
	return decimalOne.Sub(alpha.Mul(deltaT)).Sub(ctlBeta.Mul(deltaT).Mul(deltaT))
}

func (m *mpms111Model) ApiCorrectionFactor(temperature, apiGravity decimal.Decimal) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	deltaT := temperature.Sub(m.standardTemperature)
	sgStandard := sgNumerator.Div(apiGravity.Add(sgOffset))
	divisor := decimalOne.Add(cplTempExpansion.Mul(deltaT))
	if divisor.IsZero() {
		// Degenerate ΔT; CorrectEntry rejects the zero factor.
		return decimal.Zero, sgStandard, decimal.Zero
	}
	sgObserved := sgStandard.Div(divisor)
	cpl := sgStandard.Div(sgObserved)
	return cpl, sgStandard, sgObserved
}

// EntryCorrection is the per-entry output of the volume corrector.
type EntryCorrection struct {
	WaterCutFactor              decimal.Decimal
	NetVolumeObserved           decimal.Decimal
	TemperatureCorrectionFactor decimal.Decimal
	ApiCorrectionFactor         decimal.Decimal
	NetVolumeStandard           decimal.Decimal
	SpecificGravityStandard     decimal.Decimal
	SpecificGravityObserved     decimal.Decimal
}

// PartnerVolume is a partner's period aggregate: per-entry standardized
// volumes summed, correction factors re-derived as volume-weighted averages
// for reporting (the individual factors are not separately meaningful at the
// partner level).
type PartnerVolume struct {
	PartnerId                   string
	PartnerName                 string
	EntryCount                  int
	GrossVolume                 decimal.Decimal
	BswPercent                  decimal.Decimal
	WaterCutFactor              decimal.Decimal
	NetVolumeObserved           decimal.Decimal
	TemperatureCorrectionFactor decimal.Decimal
	ApiCorrectionFactor         decimal.Decimal
	NetVolumeStandard           decimal.Decimal
	WaterVolume                 decimal.Decimal
}

// AllocationEngine runs the volume correction for one tenant's configured
// model and standard conditions. It is pure: no I/O, no shared state.
type AllocationEngine struct {
	model CorrectionModel
}

func NewAllocationEngine(tenant *models.Tenant) (*AllocationEngine, error) {
	model, err := CorrectionModelFor(tenant.AllocationModel, tenant.StandardTemperature, tenant.StandardPressure)
	if err != nil {
		return nil, err
	}
	return &AllocationEngine{model: model}, nil
}

func (e *AllocationEngine) ModelName() string { return e.model.Name() }

func validateMeasurement(entry *models.ProductionEntry) error {
	if entry.GrossVolume.IsNegative() {
		return newInputError(ErrInvalidMeasurement, "partner %s: gross volume %s is negative", entry.PartnerId, entry.GrossVolume)
	}
	if entry.BswPercent.IsNegative() || entry.BswPercent.GreaterThan(decimalHundred) {
		return newInputError(ErrInvalidMeasurement, "partner %s: bsw percent %s outside [0, 100]", entry.PartnerId, entry.BswPercent)
	}
	if !entry.ApiGravity.IsPositive() {
		return newInputError(ErrInvalidMeasurement, "partner %s: api gravity %s must be greater than 0", entry.PartnerId, entry.ApiGravity)
	}
	if entry.Temperature.LessThan(absoluteZeroF) {
		return newInputError(ErrInvalidMeasurement, "partner %s: temperature %s F is below absolute zero", entry.PartnerId, entry.Temperature)
	}
	return nil
}

// CorrectEntry converts one raw field measurement into standardized volume:
//
//	water_cut_factor     = 1 − bsw/100
//	net_volume_observed  = gross × meter_factor × water_cut_factor
//	net_volume_standard  = net_volume_observed × CTL × CPL
func (e *AllocationEngine) CorrectEntry(entry *models.ProductionEntry) (*EntryCorrection, error) {
	if err := validateMeasurement(entry); err != nil {
		return nil, err
	}

	waterCut := decimalOne.Sub(entry.BswPercent.Div(decimalHundred))
	netObserved := entry.GrossVolume.Mul(entry.MeterFactor).Mul(waterCut)
	ctl := e.model.TemperatureCorrectionFactor(entry.Temperature, entry.ApiGravity)
	cpl, sgStandard, sgObserved := e.model.ApiCorrectionFactor(entry.Temperature, entry.ApiGravity)
	// The correlation is only physical while both factors stay positive.
	// Outside that envelope the standardized volume would go negative and
	// poison the allocation basis.
	if !ctl.IsPositive() || !cpl.IsPositive() {
		return nil, newComputationError(ErrNonFiniteResult,
			"partner %s: correction factors degenerate at temperature %s F (ctl=%s cpl=%s)",
			entry.PartnerId, entry.Temperature, ctl, cpl)
	}
	netStandard := netObserved.Mul(ctl).Mul(cpl)

	return &EntryCorrection{
		WaterCutFactor:              waterCut,
		NetVolumeObserved:           netObserved,
		TemperatureCorrectionFactor: ctl,
		ApiCorrectionFactor:         cpl,
		NetVolumeStandard:           netStandard,
		SpecificGravityStandard:     sgStandard,
		SpecificGravityObserved:     sgObserved,
	}, nil
}

// CorrectPartnerEntries aggregates all of a partner's approved entries for
// the period. NSV is summed; reported factors are weighted by each entry's
// volume contribution (simple average when the weights sum to zero, e.g.
// BSW = 100% across the board).
func (e *AllocationEngine) CorrectPartnerEntries(partnerId, partnerName string, entries []*models.ProductionEntry) (*PartnerVolume, error) {
	pv := &PartnerVolume{
		PartnerId:   partnerId,
		PartnerName: partnerName,
		EntryCount:  len(entries),
	}

	var (
		observedTotal    decimal.Decimal
		bswWeighted      decimal.Decimal
		waterCutWeighted decimal.Decimal
		ctlWeighted      decimal.Decimal
		cplWeighted      decimal.Decimal
		bswSimple        decimal.Decimal
		waterCutSimple   decimal.Decimal
		ctlSimple        decimal.Decimal
		cplSimple        decimal.Decimal
	)

	for _, entry := range entries {
		correction, err := e.CorrectEntry(entry)
		if err != nil {
			return nil, err
		}

		observed := entry.GrossVolume.Mul(entry.MeterFactor)
		observedTotal = observedTotal.Add(observed)
		pv.GrossVolume = pv.GrossVolume.Add(entry.GrossVolume)
		pv.NetVolumeObserved = pv.NetVolumeObserved.Add(correction.NetVolumeObserved)
		pv.NetVolumeStandard = pv.NetVolumeStandard.Add(correction.NetVolumeStandard)
		pv.WaterVolume = pv.WaterVolume.Add(observed.Sub(correction.NetVolumeObserved))

		bswWeighted = bswWeighted.Add(entry.BswPercent.Mul(observed))
		waterCutWeighted = waterCutWeighted.Add(correction.WaterCutFactor.Mul(observed))
		ctlWeighted = ctlWeighted.Add(correction.TemperatureCorrectionFactor.Mul(correction.NetVolumeStandard))
		cplWeighted = cplWeighted.Add(correction.ApiCorrectionFactor.Mul(correction.NetVolumeStandard))

		bswSimple = bswSimple.Add(entry.BswPercent)
		waterCutSimple = waterCutSimple.Add(correction.WaterCutFactor)
		ctlSimple = ctlSimple.Add(correction.TemperatureCorrectionFactor)
		cplSimple = cplSimple.Add(correction.ApiCorrectionFactor)
	}

	if pv.EntryCount == 0 {
		return pv, nil
	}

	count := decimal.NewFromInt(int64(pv.EntryCount))
	if observedTotal.IsPositive() {
		pv.BswPercent = bswWeighted.Div(observedTotal)
		pv.WaterCutFactor = waterCutWeighted.Div(observedTotal)
	} else {
		pv.BswPercent = bswSimple.Div(count)
		pv.WaterCutFactor = waterCutSimple.Div(count)
	}

	if pv.NetVolumeStandard.IsPositive() {
		pv.TemperatureCorrectionFactor = ctlWeighted.Div(pv.NetVolumeStandard)
		pv.ApiCorrectionFactor = cplWeighted.Div(pv.NetVolumeStandard)
	} else {
		pv.TemperatureCorrectionFactor = ctlSimple.Div(count)
		pv.ApiCorrectionFactor = cplSimple.Div(count)
	}

	return pv, nil
}

// CorrectAllPartners groups entries by partner and aggregates each group.
// Output order is deterministic (sorted by partner id) so identical inputs
// serialize byte-identically.
func (e *AllocationEngine) CorrectAllPartners(entries []*models.ProductionEntry) ([]*PartnerVolume, error) {
	grouped := make(map[string][]*models.ProductionEntry)
	names := make(map[string]string)
	for _, entry := range entries {
		grouped[entry.PartnerId] = append(grouped[entry.PartnerId], entry)
		if entry.PartnerName != "" {
			names[entry.PartnerId] = entry.PartnerName
		}
	}

	partnerIds := make([]string, 0, len(grouped))
	for partnerId := range grouped {
		partnerIds = append(partnerIds, partnerId)
	}
	sort.Strings(partnerIds)

	volumes := make([]*PartnerVolume, 0, len(partnerIds))
	for _, partnerId := range partnerIds {
		name := names[partnerId]
		if name == "" {
			name = "Partner " + partnerId
		}
		pv, err := e.CorrectPartnerEntries(partnerId, name, grouped[partnerId])
		if err != nil {
			return nil, err
		}
		volumes = append(volumes, pv)
	}
	return volumes, nil
}
