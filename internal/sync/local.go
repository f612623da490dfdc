package sync

import (
	"context"
	"time"

	apperrors "github.com/hweilin/tillsync/internal/errors"
	"github.com/hweilin/tillsync/internal/models"
	"github.com/hweilin/tillsync/internal/sync/wire"
)

// SaveLocal applies a local mutation: the record is written to the
// entity store first (domain operations always succeed locally), then
// remote persistence is attempted synchronously. If the remote write
// cannot be confirmed — offline, or the attempt fails — the mutation is
// enqueued for later replay instead.
func (e *Engine) SaveLocal(ctx context.Context, collection string, rec models.Record) error {
	col, ok := e.registry.Get(collection)
	if !ok {
		return apperrors.Newf(apperrors.ErrNotFound, "unknown collection %q", collection)
	}

	rec = rec.Clone()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, ok := rec[models.FieldCreatedAt]; !ok {
		rec[models.FieldCreatedAt] = now
	}
	rec[models.FieldUpdatedAt] = now

	if err := e.store.Put(collection, rec); err != nil {
		return err
	}

	if e.Online() {
		outbound := wire.FilterAllowed(col, wire.ToWireFormat(rec))
		if err := e.remote.UpsertBatch(ctx, col.RemoteTable, []models.Record{outbound}); err == nil {
			return nil
		}
	}

	_, err := e.queue.Enqueue(collection, models.OperationUpsert, rec)
	return err
}

// DeleteLocal removes a record locally and either confirms the remote
// delete synchronously or enqueues it.
func (e *Engine) DeleteLocal(ctx context.Context, collection, id string) error {
	col, ok := e.registry.Get(collection)
	if !ok {
		return apperrors.Newf(apperrors.ErrNotFound, "unknown collection %q", collection)
	}

	if err := e.store.Delete(collection, id); err != nil {
		return err
	}

	if e.Online() {
		if err := e.remote.DeleteByID(ctx, col.RemoteTable, id); err == nil {
			return nil
		}
	}

	_, err := e.queue.Enqueue(collection, models.OperationDelete, models.Record{models.FieldID: id})
	return err
}
