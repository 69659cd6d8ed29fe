package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

func pvWithStandardVolume(partnerId, nsv string) *PartnerVolume {
	return &PartnerVolume{
		PartnerId:         partnerId,
		PartnerName:       "Partner " + partnerId,
		EntryCount:        1,
		NetVolumeStandard: decimal.RequireFromString(nsv),
	}
}

func TestAllocateVolumesProportionalSplit(t *testing.T) {
	partners := []*PartnerVolume{
		pvWithStandardVolume("a", "600"),
		pvWithStandardVolume("b", "400"),
	}
	allocations, err := AllocateVolumes(partners, decimal.RequireFromString("950"))
	if err != nil {
		t.Fatalf("AllocateVolumes: %v", err)
	}

	if !allocations[0].OwnershipPercent.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("partner a ownership expected 60, got %s", allocations[0].OwnershipPercent)
	}
	if !allocations[1].OwnershipPercent.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("partner b ownership expected 40, got %s", allocations[1].OwnershipPercent)
	}
	if !allocations[0].AllocatedVolume.Equal(decimal.NewFromInt(570)) {
		t.Fatalf("partner a allocation expected 570, got %s", allocations[0].AllocatedVolume)
	}
	if !allocations[1].AllocatedVolume.Equal(decimal.NewFromInt(380)) {
		t.Fatalf("partner b allocation expected 380, got %s", allocations[1].AllocatedVolume)
	}
}

func TestAllocateVolumesLargestRemainderReconcilesExactly(t *testing.T) {
	partners := []*PartnerVolume{
		pvWithStandardVolume("a", "1"),
		pvWithStandardVolume("b", "1"),
		pvWithStandardVolume("c", "1"),
	}
	terminal := decimal.RequireFromString("10000.00")
	allocations, err := AllocateVolumes(partners, terminal)
	if err != nil {
		t.Fatalf("AllocateVolumes: %v", err)
	}

	sum := decimal.Zero
	bumped := 0
	for _, a := range allocations {
		sum = sum.Add(a.AllocatedVolume)
		switch {
		case a.AllocatedVolume.Equal(decimal.RequireFromString("3333.34")):
			bumped++
		case a.AllocatedVolume.Equal(decimal.RequireFromString("3333.33")):
		default:
			t.Fatalf("unexpected allocation %s", a.AllocatedVolume)
		}
	}
	if bumped != 1 {
		t.Fatalf("exactly one partner should absorb the rounding residual, got %d", bumped)
	}
	if !sum.Equal(terminal) {
		t.Fatalf("allocations must sum to the terminal volume exactly: %s != %s", sum, terminal)
	}
}

func TestAllocateVolumesResidualGoesToLargestPartner(t *testing.T) {
	// Shares of 1/6, 1/6, 4/6 of 100.00 round to 16.67 + 16.67 + 66.67 =
	// 100.01, so the largest partner must absorb a −0.01 residual.
	partners := []*PartnerVolume{
		pvWithStandardVolume("a", "1"),
		pvWithStandardVolume("b", "1"),
		pvWithStandardVolume("c", "4"),
	}
	terminal := decimal.RequireFromString("100.00")
	allocations, err := AllocateVolumes(partners, terminal)
	if err != nil {
		t.Fatalf("AllocateVolumes: %v", err)
	}

	if !allocations[0].AllocatedVolume.Equal(decimal.RequireFromString("16.67")) {
		t.Fatalf("partner a expected 16.67, got %s", allocations[0].AllocatedVolume)
	}
	if !allocations[1].AllocatedVolume.Equal(decimal.RequireFromString("16.67")) {
		t.Fatalf("partner b expected 16.67, got %s", allocations[1].AllocatedVolume)
	}
	if !allocations[2].AllocatedVolume.Equal(decimal.RequireFromString("66.66")) {
		t.Fatalf("partner c expected 66.66 after absorbing the residual, got %s", allocations[2].AllocatedVolume)
	}

	sum := decimal.Zero
	for _, a := range allocations {
		sum = sum.Add(a.AllocatedVolume)
	}
	if !sum.Equal(terminal) {
		t.Fatalf("allocations must sum to the terminal volume exactly: %s != %s", sum, terminal)
	}
}

func TestAllocateVolumesOwnershipPercentsSumToHundred(t *testing.T) {
	// Three equal shares round to 33.3333 each, leaving +0.0001 unassigned.
	// The first partner absorbs it on the tie so the percents close exactly.
	equal, err := AllocateVolumes([]*PartnerVolume{
		pvWithStandardVolume("a", "1"),
		pvWithStandardVolume("b", "1"),
		pvWithStandardVolume("c", "1"),
	}, decimal.RequireFromString("300.00"))
	if err != nil {
		t.Fatalf("AllocateVolumes equal: %v", err)
	}
	if !equal[0].OwnershipPercent.Equal(decimal.RequireFromString("33.3334")) {
		t.Fatalf("partner a ownership expected 33.3334, got %s", equal[0].OwnershipPercent)
	}
	if !equal[1].OwnershipPercent.Equal(decimal.RequireFromString("33.3333")) {
		t.Fatalf("partner b ownership expected 33.3333, got %s", equal[1].OwnershipPercent)
	}

	// Shares of 1/6, 1/6, 4/6 round up to 100.0001, so the largest partner
	// gives back 0.0001.
	skewed, err := AllocateVolumes([]*PartnerVolume{
		pvWithStandardVolume("a", "1"),
		pvWithStandardVolume("b", "1"),
		pvWithStandardVolume("c", "4"),
	}, decimal.RequireFromString("100.00"))
	if err != nil {
		t.Fatalf("AllocateVolumes skewed: %v", err)
	}
	if !skewed[2].OwnershipPercent.Equal(decimal.RequireFromString("66.6666")) {
		t.Fatalf("partner c ownership expected 66.6666 after absorbing the residual, got %s", skewed[2].OwnershipPercent)
	}

	hundred := decimal.NewFromInt(100)
	for _, allocations := range [][]*Allocation{equal, skewed} {
		sum := decimal.Zero
		for _, a := range allocations {
			sum = sum.Add(a.OwnershipPercent)
		}
		if !sum.Equal(hundred) {
			t.Fatalf("ownership percents must sum to 100 exactly, got %s", sum)
		}
	}
}

func TestAllocateVolumesMonotonicInStandardVolume(t *testing.T) {
	terminal := decimal.RequireFromString("1000.00")

	base, err := AllocateVolumes([]*PartnerVolume{
		pvWithStandardVolume("a", "300"),
		pvWithStandardVolume("b", "700"),
	}, terminal)
	if err != nil {
		t.Fatalf("AllocateVolumes base: %v", err)
	}

	grown, err := AllocateVolumes([]*PartnerVolume{
		pvWithStandardVolume("a", "450"),
		pvWithStandardVolume("b", "700"),
	}, terminal)
	if err != nil {
		t.Fatalf("AllocateVolumes grown: %v", err)
	}

	if grown[0].AllocatedVolume.LessThan(base[0].AllocatedVolume) {
		t.Fatalf("raising a partner's standardized volume must not shrink their allocation: %s < %s",
			grown[0].AllocatedVolume, base[0].AllocatedVolume)
	}
	if grown[0].OwnershipPercent.LessThan(base[0].OwnershipPercent) {
		t.Fatalf("raising a partner's standardized volume must not shrink their ownership: %s < %s",
			grown[0].OwnershipPercent, base[0].OwnershipPercent)
	}
}

func TestAllocateVolumesZeroBasis(t *testing.T) {
	partners := []*PartnerVolume{
		pvWithStandardVolume("a", "0"),
		pvWithStandardVolume("b", "0"),
	}
	_, err := AllocateVolumes(partners, decimal.RequireFromString("500"))
	if err == nil {
		t.Fatal("expected error when total standardized volume is zero")
	}
	if kind := ErrorKindOf(err); kind != ErrZeroBasis {
		t.Fatalf("expected kind %s, got %s", ErrZeroBasis, kind)
	}
	if !IsAllocationError(err) {
		t.Fatalf("expected an AllocationError, got %T", err)
	}
}
