package domain

import "time"

// ChangeOperation describes a persisted activity operation for a case.
type ChangeOperation string

// ChangeOperation values used by the local activity ledger.
const (
	ChangeOperationCreate ChangeOperation = "create"
	ChangeOperationMove   ChangeOperation = "move"
	ChangeOperationDelete ChangeOperation = "delete"
)

// ChangeEvent represents a single activity-log entry for a case.
type ChangeEvent struct {
	ID         int64
	ProcessID  string
	CaseID     string
	Operation  ChangeOperation
	Metadata   map[string]string
	OccurredAt time.Time
}
