package models

import "errors"

type ProductionEntryStatus string

const (
	ProductionEntryStatusDraft    ProductionEntryStatus = "draft"
	ProductionEntryStatusPending  ProductionEntryStatus = "pending"
	ProductionEntryStatusApproved ProductionEntryStatus = "approved"
	ProductionEntryStatusFlagged  ProductionEntryStatus = "flagged"
	ProductionEntryStatusRejected ProductionEntryStatus = "rejected"
)

// entry transitions are monotonic: approved/flagged/rejected are terminal.
var productionEntryTransitions = map[ProductionEntryStatus][]ProductionEntryStatus{
	ProductionEntryStatusDraft:   {ProductionEntryStatusPending},
	ProductionEntryStatusPending: {ProductionEntryStatusApproved, ProductionEntryStatusFlagged, ProductionEntryStatusRejected},
}

func (s ProductionEntryStatus) CanTransitionTo(next ProductionEntryStatus) bool {
	for _, allowed := range productionEntryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ParseProductionEntryStatus(str string) (ProductionEntryStatus, error) {
	statuses := map[string]ProductionEntryStatus{
		"draft":    ProductionEntryStatusDraft,
		"pending":  ProductionEntryStatusPending,
		"approved": ProductionEntryStatusApproved,
		"flagged":  ProductionEntryStatusFlagged,
		"rejected": ProductionEntryStatusRejected,
	}
	s, ok := statuses[str]
	if !ok {
		return "", errors.New("invalid production entry status")
	}
	return s, nil
}

type ReconciliationStatus string

const (
	ReconciliationStatusPending    ReconciliationStatus = "pending"
	ReconciliationStatusProcessing ReconciliationStatus = "processing"
	ReconciliationStatusCompleted  ReconciliationStatus = "completed"
	ReconciliationStatusFailed     ReconciliationStatus = "failed"
)

// No transition leaves completed or failed. Re-running a period creates a
// new Reconciliation; superseded records are retained for audit.
var reconciliationTransitions = map[ReconciliationStatus][]ReconciliationStatus{
	ReconciliationStatusPending:    {ReconciliationStatusProcessing},
	ReconciliationStatusProcessing: {ReconciliationStatusCompleted, ReconciliationStatusFailed},
}

func (s ReconciliationStatus) CanTransitionTo(next ReconciliationStatus) bool {
	for _, allowed := range reconciliationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ReconciliationStatus) IsTerminal() bool {
	return s == ReconciliationStatusCompleted || s == ReconciliationStatusFailed
}

func ParseReconciliationStatus(str string) (ReconciliationStatus, error) {
	statuses := map[string]ReconciliationStatus{
		"pending":    ReconciliationStatusPending,
		"processing": ReconciliationStatusProcessing,
		"completed":  ReconciliationStatusCompleted,
		"failed":     ReconciliationStatusFailed,
	}
	s, ok := statuses[str]
	if !ok {
		return "", errors.New("invalid reconciliation status")
	}
	return s, nil
}

// AllocationModelMPMS111 is the default allocation model identifier stamped
// on every result (API MPMS Chapter 11.1 volume correction).
const AllocationModelMPMS111 = "api_mpms_11_1"
