// Package queue provides the durable sync queue: an ordered log of
// pending mutations recorded against specific collections, persisted in
// the entity store's own syncQueue partition so that local writes made
// while disconnected survive process restarts. The queue is a delivery
// mechanism, not the source of truth — the entity store already holds
// the applied mutation.
package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/hweilin/tillsync/internal/errors"
	"github.com/hweilin/tillsync/internal/logging"
	"github.com/hweilin/tillsync/internal/models"
	"github.com/hweilin/tillsync/internal/schema"
	"github.com/hweilin/tillsync/internal/uuid"
)

// EntityStore is the slice of the store the queue needs.
type EntityStore interface {
	GetAll(collection string) ([]models.Record, error)
	Put(collection string, rec models.Record) error
	Delete(collection, id string) error
	Count(collection string) (int, error)
}

// Queue owns the syncQueue partition. No other component writes to it.
type Queue struct {
	store EntityStore
}

// New creates a Queue over the given store.
func New(store EntityStore) *Queue {
	return &Queue{store: store}
}

// Enqueue appends a mutation to the queue. If the backing partition
// does not exist yet, it fails with QUEUE_UNAVAILABLE — a signal that
// the schema must be upgraded before writes are durable, not data loss.
func (q *Queue) Enqueue(collection string, op models.Operation, payload models.Record) (*models.QueueItem, error) {
	if !op.IsValid() {
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown operation %q", op)
	}
	if payload.ID() == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "queue payload has no id")
	}

	item := &models.QueueItem{
		ID:         uuid.New(),
		Collection: collection,
		Operation:  op,
		Payload:    payload.Clone(),
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339Nano),
		RetryCount: 0,
	}

	rec, err := itemToRecord(item)
	if err != nil {
		return nil, err
	}

	if err := q.store.Put(schema.QueueCollection, rec); err != nil {
		if apperrors.Is(err, apperrors.ErrCollectionNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrQueueUnavailable,
				"sync queue partition missing (schema upgrade required)", err)
		}
		return nil, err
	}

	logging.Debug("Enqueued mutation", map[string]interface{}{
		"item_id":    item.ID,
		"collection": collection,
		"operation":  string(op),
		"record_id":  payload.ID(),
	})

	return item, nil
}

// ListPending returns every queued item, oldest first.
func (q *Queue) ListPending() ([]models.QueueItem, error) {
	records, err := q.store.GetAll(schema.QueueCollection)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCollectionNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrQueueUnavailable,
				"sync queue partition missing (schema upgrade required)", err)
		}
		return nil, err
	}

	items := make([]models.QueueItem, 0, len(records))
	for _, rec := range records {
		item, err := recordToItem(rec)
		if err != nil {
			// A corrupt entry cannot be replayed; log and skip rather
			// than wedging the whole queue behind it.
			logging.Error("Skipping corrupt queue entry", err,
				map[string]interface{}{"item_id": rec.ID()})
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].EnqueuedAt != items[j].EnqueuedAt {
			return items[i].EnqueuedAt < items[j].EnqueuedAt
		}
		return items[i].ID < items[j].ID
	})

	return items, nil
}

// Remove deletes a processed item by queue item id.
func (q *Queue) Remove(itemID string) error {
	return q.store.Delete(schema.QueueCollection, itemID)
}

// Clear removes every item from the queue.
func (q *Queue) Clear() error {
	items, err := q.ListPending()
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := q.Remove(item.ID); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the current queue length. A missing partition counts
// as zero pending changes.
func (q *Queue) Pending() int {
	n, err := q.store.Count(schema.QueueCollection)
	if err != nil {
		return 0
	}
	return n
}

// RecordFailure increments an item's retry counter. Once the counter
// reaches the ceiling the item is dropped from the queue and reported
// with dropped=true; it is never re-attempted again.
func (q *Queue) RecordFailure(item *models.QueueItem, cause error) (dropped bool, err error) {
	item.RetryCount++

	if item.RetryCount >= models.MaxQueueRetries {
		if err := q.Remove(item.ID); err != nil {
			return false, err
		}
		logging.ErrorWithCode("Queue item dropped after max retries",
			string(apperrors.ErrMaxRetriesExceeded), cause,
			map[string]interface{}{
				"item_id":     item.ID,
				"collection":  item.Collection,
				"operation":   string(item.Operation),
				"record_id":   item.Payload.ID(),
				"retry_count": item.RetryCount,
			})
		return true, nil
	}

	rec, err := itemToRecord(item)
	if err != nil {
		return false, err
	}
	if err := q.store.Put(schema.QueueCollection, rec); err != nil {
		return false, err
	}

	logging.Warn("Queue item replay failed, will retry",
		map[string]interface{}{
			"item_id":     item.ID,
			"collection":  item.Collection,
			"retry_count": item.RetryCount,
			"error":       fmt.Sprint(cause),
		})

	return false, nil
}

// itemToRecord serializes a queue item into the generic record shape
// the entity store persists.
func itemToRecord(item *models.QueueItem) (models.Record, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "queue item not serializable", err)
	}
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "queue item round trip failed", err)
	}
	return rec, nil
}

// recordToItem deserializes a stored record back into a queue item.
func recordToItem(rec models.Record) (models.QueueItem, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return models.QueueItem{}, apperrors.Wrap(apperrors.ErrInternal, "queue record not serializable", err)
	}
	var item models.QueueItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return models.QueueItem{}, apperrors.Wrap(apperrors.ErrInternal, "corrupt queue record", err)
	}
	if item.ID == "" || !item.Operation.IsValid() {
		return models.QueueItem{}, apperrors.New(apperrors.ErrValidation, "queue record missing id or operation")
	}
	return item, nil
}
