// Package models provides data model definitions for the TillSync engine.
package models

// Operation is the kind of mutation recorded against a collection.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationUpsert Operation = "upsert"
)

// IsValid reports whether op is one of the four queueable operations.
func (op Operation) IsValid() bool {
	switch op {
	case OperationInsert, OperationUpdate, OperationDelete, OperationUpsert:
		return true
	}
	return false
}

// MaxQueueRetries is the retry ceiling for a queued mutation. An item
// that fails this many replay attempts is dropped and counted as failed.
const MaxQueueRetries = 3

// QueueItem is one pending mutation in the durable sync queue. Items are
// owned and mutated exclusively by the queue component; everyone else
// sees read-only copies via ListPending.
type QueueItem struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Operation  Operation `json:"operation"`
	Payload    Record    `json:"payload"`
	EnqueuedAt string    `json:"enqueued_at"`
	RetryCount int       `json:"retry_count"`
}
