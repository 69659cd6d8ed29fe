package models

import "testing"

func TestProductionEntryStatusTransitions(t *testing.T) {
	cases := []struct {
		from    ProductionEntryStatus
		to      ProductionEntryStatus
		allowed bool
	}{
		{ProductionEntryStatusDraft, ProductionEntryStatusPending, true},
		{ProductionEntryStatusDraft, ProductionEntryStatusApproved, false},
		{ProductionEntryStatusPending, ProductionEntryStatusApproved, true},
		{ProductionEntryStatusPending, ProductionEntryStatusFlagged, true},
		{ProductionEntryStatusPending, ProductionEntryStatusRejected, true},
		{ProductionEntryStatusPending, ProductionEntryStatusDraft, false},
		{ProductionEntryStatusApproved, ProductionEntryStatusPending, false},
		{ProductionEntryStatusApproved, ProductionEntryStatusRejected, false},
		{ProductionEntryStatusFlagged, ProductionEntryStatusApproved, false},
		{ProductionEntryStatusRejected, ProductionEntryStatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestReconciliationStatusTransitions(t *testing.T) {
	cases := []struct {
		from    ReconciliationStatus
		to      ReconciliationStatus
		allowed bool
	}{
		{ReconciliationStatusPending, ReconciliationStatusProcessing, true},
		{ReconciliationStatusPending, ReconciliationStatusCompleted, false},
		{ReconciliationStatusProcessing, ReconciliationStatusCompleted, true},
		{ReconciliationStatusProcessing, ReconciliationStatusFailed, true},
		{ReconciliationStatusCompleted, ReconciliationStatusProcessing, false},
		{ReconciliationStatusCompleted, ReconciliationStatusFailed, false},
		{ReconciliationStatusFailed, ReconciliationStatusProcessing, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestReconciliationStatusIsTerminal(t *testing.T) {
	if ReconciliationStatusPending.IsTerminal() || ReconciliationStatusProcessing.IsTerminal() {
		t.Fatal("pending/processing must not be terminal")
	}
	if !ReconciliationStatusCompleted.IsTerminal() || !ReconciliationStatusFailed.IsTerminal() {
		t.Fatal("completed/failed must be terminal")
	}
}

func TestParseStatusesRejectUnknownValues(t *testing.T) {
	if _, err := ParseProductionEntryStatus("archived"); err == nil {
		t.Fatal("expected error for unknown production entry status")
	}
	if _, err := ParseReconciliationStatus("running"); err == nil {
		t.Fatal("expected error for unknown reconciliation status")
	}
	if s, err := ParseProductionEntryStatus("approved"); err != nil || s != ProductionEntryStatusApproved {
		t.Fatalf("parse approved: %v %s", err, s)
	}
	if s, err := ParseReconciliationStatus("completed"); err != nil || s != ReconciliationStatusCompleted {
		t.Fatalf("parse completed: %v %s", err, s)
	}
}
