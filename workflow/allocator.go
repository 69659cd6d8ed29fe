package workflow

import (
	"github.com/shopspring/decimal"
)

// Reported precision: volumes to 2 decimal places, percentages to 4 and
// correction factors to 8.
const (
	VolumePrecision  = 2
	PercentPrecision = 4
	FactorPrecision  = 8
)

// Allocation is one partner's computed ownership share of the terminal
// volume, at reported precision.
type Allocation struct {
	Partner          *PartnerVolume
	OwnershipPercent decimal.Decimal
	AllocatedVolume  decimal.Decimal
}

// AllocateVolumes distributes the terminal volume across partners in
// proportion to their standardized volumes:
//
//	ownership_i = NSV_i / ΣNSV × 100
//	allocated_i = ownership_i/100 × T
//
// Shares are computed at full precision and rounded to the reported
// precision; the residual between the rounded volumes and T, and between the
// rounded percents and 100, is assigned to the partner with the largest
// standardized volume so the reported figures reconcile exactly.
func AllocateVolumes(partners []*PartnerVolume, terminalVolume decimal.Decimal) ([]*Allocation, error) {
	totalStandard := decimal.Zero
	for _, pv := range partners {
		totalStandard = totalStandard.Add(pv.NetVolumeStandard)
	}
	if !totalStandard.IsPositive() {
		return nil, newComputationError(ErrZeroBasis, "total standardized volume is %s; cannot allocate terminal volume %s", totalStandard, terminalVolume)
	}

	allocations := make([]*Allocation, 0, len(partners))
	roundedVolumeSum := decimal.Zero
	roundedPercentSum := decimal.Zero
	largest := -1
	for i, pv := range partners {
		share := pv.NetVolumeStandard.Div(totalStandard)
		ownership := share.Mul(decimalHundred).Round(PercentPrecision)
		allocated := share.Mul(terminalVolume).Round(VolumePrecision)
		roundedVolumeSum = roundedVolumeSum.Add(allocated)
		roundedPercentSum = roundedPercentSum.Add(ownership)

		allocations = append(allocations, &Allocation{
			Partner:          pv,
			OwnershipPercent: ownership,
			AllocatedVolume:  allocated,
		})

		if largest < 0 || pv.NetVolumeStandard.GreaterThan(partners[largest].NetVolumeStandard) {
			largest = i
		}
	}

	// Largest-remainder correction at the reported precision.
	volumeResidual := terminalVolume.Round(VolumePrecision).Sub(roundedVolumeSum)
	if !volumeResidual.IsZero() {
		allocations[largest].AllocatedVolume = allocations[largest].AllocatedVolume.Add(volumeResidual)
	}
	percentResidual := decimalHundred.Sub(roundedPercentSum)
	if !percentResidual.IsZero() {
		allocations[largest].OwnershipPercent = allocations[largest].OwnershipPercent.Add(percentResidual)
	}

	return allocations, nil
}
