// Package ledger keeps the durable harvest bookkeeping: which identifiers have
// been completed or have failed for each task type, and why the failed ones
// failed. Both ledgers persist as JSON snapshots replaced atomically on disk.
package ledger

import (
	"fmt"
	"time"
)

// TaskType partitions ledger state between catalog and history harvesting.
type TaskType string

const (
	// TaskCatalogItem covers per-item catalog detail fetches
	TaskCatalogItem TaskType = "catalog_item"
	// TaskHistoryItem covers per-item review history fetches
	TaskHistoryItem TaskType = "history_item"
)

// TaskTypes lists every task type in a stable order.
var TaskTypes = []TaskType{TaskCatalogItem, TaskHistoryItem}

// ParseTaskType accepts the canonical names plus the short CLI aliases.
func ParseTaskType(s string) (TaskType, error) {
	switch s {
	case string(TaskCatalogItem), "catalog", "game", "games":
		return TaskCatalogItem, nil
	case string(TaskHistoryItem), "history", "review", "reviews":
		return TaskHistoryItem, nil
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Status is the recorded outcome for an identifier.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ReasonCode classifies why an identifier failed.
type ReasonCode string

const (
	ReasonTimeout     ReasonCode = "Timeout"
	ReasonRateLimited ReasonCode = "RateLimited"
	ReasonNotFound    ReasonCode = "NotFound"
	ReasonServerError ReasonCode = "ServerError"
	ReasonMalformed   ReasonCode = "Malformed"
	// ReasonStorage means the fetch succeeded but the record could not be persisted
	ReasonStorage ReasonCode = "StorageError"
	// ReasonUnknown is used for entries restored by reconciliation
	ReasonUnknown ReasonCode = "Unknown"
)

// Key identifies one ledger entry.
type Key struct {
	Identifier string
	TaskType   TaskType
}

func (k Key) String() string {
	return string(k.TaskType) + "/" + k.Identifier
}

// ProgressEntry is a single (identifier, task type) status.
type ProgressEntry struct {
	Identifier string   `json:"identifier"`
	TaskType   TaskType `json:"task_type"`
	Status     Status   `json:"status"`
}

// FailureEntry describes an unresolved failure.
type FailureEntry struct {
	Identifier   string     `json:"id"`
	TaskType     TaskType   `json:"type"`
	ReasonCode   ReasonCode `json:"reason_code"`
	Message      string     `json:"reason"`
	Timestamp    time.Time  `json:"timestamp"`
	AttemptCount int        `json:"attempt_count"`
	// Seq preserves first-failure order across rewrites of the entry
	Seq uint64 `json:"seq"`
}

// Key returns the ledger key of the entry.
func (e FailureEntry) Key() Key {
	return Key{Identifier: e.Identifier, TaskType: e.TaskType}
}

// Counts summarizes one task type's progress partition.
type Counts struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
