// Package sync provides the sync orchestrator: one bidirectional pass
// per collection (pull remote, merge, push local, drain the queue,
// re-pull), keeping the local entity store and the remote row store
// consistent under intermittent connectivity.
package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	apperrors "github.com/hweilin/tillsync/internal/errors"
	"github.com/hweilin/tillsync/internal/logging"
	"github.com/hweilin/tillsync/internal/models"
	"github.com/hweilin/tillsync/internal/schema"
	"github.com/hweilin/tillsync/internal/sync/conflict"
	"github.com/hweilin/tillsync/internal/sync/queue"
	"github.com/hweilin/tillsync/internal/sync/wire"
)

// EntityStore is the slice of the local store the engine reads and
// writes through.
type EntityStore interface {
	GetAll(collection string) ([]models.Record, error)
	Get(collection, id string) (models.Record, error)
	Put(collection string, rec models.Record) error
	Delete(collection, id string) error
	Count(collection string) (int, error)
}

// RemoteStore is the row-level boundary of the authoritative backend.
type RemoteStore interface {
	SelectAll(ctx context.Context, table string) ([]models.Record, error)
	UpsertBatch(ctx context.Context, table string, rows []models.Record) error
	DeleteByID(ctx context.Context, table, id string) error
}

// ChangeType is the kind of remote change event fed through the merge
// path by the realtime listener.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Engine coordinates full bidirectional sync passes.
type Engine struct {
	store    EntityStore
	remote   RemoteStore
	registry *schema.Registry
	queue    *queue.Queue
	online   atomic.Bool
}

// NewEngine creates an Engine over the given dependencies. The engine
// starts online; the coordinator flips the gate on connectivity edges.
func NewEngine(store EntityStore, remote RemoteStore, registry *schema.Registry, q *queue.Queue) *Engine {
	e := &Engine{
		store:    store,
		remote:   remote,
		registry: registry,
		queue:    q,
	}
	e.online.Store(true)
	return e
}

// SetOnline flips the connectivity gate. While offline, sync passes
// short-circuit to a no-op before any network call.
func (e *Engine) SetOnline(online bool) {
	e.online.Store(online)
}

// Online reports the current connectivity gate.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// Queue exposes the engine's queue for status derivation.
func (e *Engine) Queue() *queue.Queue {
	return e.queue
}

// Pending reports the number of queued mutations awaiting replay.
func (e *Engine) Pending() int {
	return e.queue.Pending()
}

// Registry exposes the collection registry.
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// collectionStats accumulates per-pass counters.
type collectionStats struct {
	pulled    int
	pushed    int
	conflicts int
}

// pendingDeletes collects the ids with a queued delete, per collection.
// Those ids are held out of the pull merge and push staging so a delete
// made offline wins until its replay is confirmed, instead of being
// resurrected by the remote copy.
func (e *Engine) pendingDeletes() map[string]map[string]bool {
	items, err := e.queue.ListPending()
	if err != nil {
		logging.Warn("Could not read queue for pending deletes", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	var out map[string]map[string]bool
	for i := range items {
		if items[i].Operation != models.OperationDelete {
			continue
		}
		id := items[i].Payload.ID()
		if id == "" {
			continue
		}
		if out == nil {
			out = make(map[string]map[string]bool)
		}
		ids := out[items[i].Collection]
		if ids == nil {
			ids = make(map[string]bool)
			out[items[i].Collection] = ids
		}
		ids[id] = true
	}
	return out
}

// pullCollection fetches all remote rows for a collection and merges
// them into the local store: a new id is inserted directly, an existing
// id is replaced by the conflict resolver's pick. Rows whose id has a
// queued delete are skipped entirely. It returns the remote snapshot
// keyed by id (in wire form) for the push step's comparison.
func (e *Engine) pullCollection(ctx context.Context, col *schema.Collection, skip map[string]bool, stats *collectionStats) (map[string]models.Record, error) {
	rows, err := e.remote.SelectAll(ctx, col.RemoteTable)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", col.Name, err)
	}

	snapshot := make(map[string]models.Record, len(rows))
	for _, row := range rows {
		incoming := wire.FromWireFormat(row, col)
		id := incoming.ID()
		if id == "" {
			logging.Warn("Skipping remote row without id",
				map[string]interface{}{"collection": col.Name})
			continue
		}
		if skip[id] {
			continue
		}
		snapshot[id] = row

		local, err := e.store.Get(col.Name, id)
		if err != nil {
			return nil, fmt.Errorf("pull %s: %w", col.Name, err)
		}

		if local == nil {
			if err := e.store.Put(col.Name, incoming); err != nil {
				return nil, fmt.Errorf("pull %s: %w", col.Name, err)
			}
			stats.pulled++
			continue
		}

		merged, winner := conflict.ResolveWithWinner(local, incoming)
		if winner == conflict.WinnerRemote {
			if err := e.store.Put(col.Name, merged); err != nil {
				return nil, fmt.Errorf("pull %s: %w", col.Name, err)
			}
		}
		// equal timestamps mean the same version on both sides, not a
		// concurrent edit
		if !local.Timestamp().Equal(incoming.Timestamp()) {
			stats.conflicts++
			if winner == conflict.WinnerRemote {
				stats.pulled++
			}
			conflict.LogResolution(col.Name, local, incoming, winner)
		}
	}

	return snapshot, nil
}

// pushCollection stages every local record that is new or wins against
// the remote snapshot by the resolver rule, then upserts the staged
// records in one batch. A local record that loses the comparison is
// re-pulled into the local store instead, so stale data is never pushed
// back out.
func (e *Engine) pushCollection(ctx context.Context, col *schema.Collection, snapshot map[string]models.Record, skip map[string]bool, stats *collectionStats) error {
	locals, err := e.store.GetAll(col.Name)
	if err != nil {
		return fmt.Errorf("push %s: %w", col.Name, err)
	}

	var staged []models.Record
	for _, local := range locals {
		outbound := wire.FilterAllowed(col, wire.ToWireFormat(local))
		id := outbound.ID()
		if id == "" {
			logging.Warn("Skipping local record without id",
				map[string]interface{}{"collection": col.Name})
			continue
		}
		if skip[id] {
			continue
		}

		row, exists := snapshot[id]
		if !exists {
			staged = append(staged, outbound)
			continue
		}

		remoteView := wire.FromWireFormat(row, col)
		merged, winner := conflict.ResolveWithWinner(local, remoteView)
		if winner == conflict.WinnerLocal {
			staged = append(staged, outbound)
			continue
		}

		// remote wins: fold its version back in rather than pushing
		// a stale local copy
		if err := e.store.Put(col.Name, merged); err != nil {
			return fmt.Errorf("push %s: %w", col.Name, err)
		}
	}

	if err := e.remote.UpsertBatch(ctx, col.RemoteTable, staged); err != nil {
		return fmt.Errorf("push %s: %w", col.Name, err)
	}
	stats.pushed += len(staged)

	return nil
}

// SyncCollection runs the pull and push steps for one collection. The
// queue drain and re-pull belong to the full pass, not to this method.
func (e *Engine) SyncCollection(ctx context.Context, name string) error {
	if !e.Online() {
		return nil
	}

	col, ok := e.registry.Get(name)
	if !ok {
		return apperrors.Newf(apperrors.ErrNotFound, "unknown collection %q", name)
	}

	var stats collectionStats
	skip := e.pendingDeletes()[name]
	snapshot, err := e.pullCollection(ctx, col, skip, &stats)
	if err != nil {
		return err
	}
	return e.pushCollection(ctx, col, snapshot, skip, &stats)
}

// DrainQueue replays every pending queue item against the remote
// backend, regardless of collection. An item is removed on confirmed
// success; on failure its retry counter is incremented and it is
// dropped once the counter reaches the ceiling.
func (e *Engine) DrainQueue(ctx context.Context) (drained int, err error) {
	items, err := e.queue.ListPending()
	if err != nil {
		return 0, err
	}

	for i := range items {
		item := items[i]

		if err := ctx.Err(); err != nil {
			return drained, err
		}

		replayErr := e.replayItem(ctx, &item)
		if replayErr == nil {
			if err := e.queue.Remove(item.ID); err != nil {
				return drained, err
			}
			drained++
			continue
		}

		if _, err := e.queue.RecordFailure(&item, replayErr); err != nil {
			return drained, err
		}
	}

	return drained, nil
}

// replayItem performs one queued mutation against the remote table.
func (e *Engine) replayItem(ctx context.Context, item *models.QueueItem) error {
	col, ok := e.registry.Get(item.Collection)
	if !ok {
		return apperrors.Newf(apperrors.ErrNotFound, "queued mutation for unknown collection %q", item.Collection)
	}

	if item.Operation == models.OperationDelete {
		return e.remote.DeleteByID(ctx, col.RemoteTable, item.Payload.ID())
	}

	outbound := wire.FilterAllowed(col, wire.ToWireFormat(item.Payload))
	return e.remote.UpsertBatch(ctx, col.RemoteTable, []models.Record{outbound})
}

// SyncAll performs one full pass: pull+push for every collection, one
// global queue drain, then a re-pull of every collection to fold in
// whatever the push and drain just confirmed. A failure in one
// collection is logged and does not abort the others; only pass-level
// problems (cancellation, an unreachable queue) surface in the result.
func (e *Engine) SyncAll(ctx context.Context) models.SyncResult {
	start := time.Now()
	var stats collectionStats
	result := models.SyncResult{Success: true}

	// network absence short-circuits the whole pass: no-op, not an error
	if !e.Online() {
		logging.Debug("Skipping sync pass while offline", nil)
		result.Duration = time.Since(start)
		return result
	}

	names := e.registry.Names()
	snapshots := make(map[string]map[string]models.Record, len(names))
	deletes := e.pendingDeletes()

	for _, name := range names {
		col, _ := e.registry.Get(name)

		snapshot, err := e.pullCollection(ctx, col, deletes[name], &stats)
		if err != nil {
			e.logCollectionFailure(name, "pull", err)
			continue
		}
		snapshots[name] = snapshot

		if err := e.pushCollection(ctx, col, snapshot, deletes[name], &stats); err != nil {
			e.logCollectionFailure(name, "push", err)
		}
	}

	drained, err := e.DrainQueue(ctx)
	result.Drained = drained
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		logging.ErrorWithCode("Queue drain failed", string(apperrors.CodeOf(err)), err, nil)
	}

	// step 5: fold in the post-push, post-drain authoritative state.
	// Pending deletes are recomputed: a drained delete no longer blocks
	// its id, a failed one still does.
	deletes = e.pendingDeletes()
	for _, name := range names {
		if _, synced := snapshots[name]; !synced {
			// collection already failed this pass; don't retry it here
			continue
		}
		col, _ := e.registry.Get(name)
		if _, err := e.pullCollection(ctx, col, deletes[name], &stats); err != nil {
			e.logCollectionFailure(name, "re-pull", err)
		}
	}

	result.Pulled = stats.pulled
	result.Pushed = stats.pushed
	result.Conflicts = stats.conflicts
	result.Duration = time.Since(start)

	logging.Info("Sync pass completed", map[string]interface{}{
		"pulled":    result.Pulled,
		"pushed":    result.Pushed,
		"drained":   result.Drained,
		"conflicts": result.Conflicts,
		"duration":  result.Duration.String(),
		"success":   result.Success,
	})

	return result
}

// logCollectionFailure records a per-collection failure without
// propagating it; other collections continue.
func (e *Engine) logCollectionFailure(name, step string, err error) {
	logging.ErrorWithCode("Collection sync failed", string(apperrors.CodeOf(err)), err,
		map[string]interface{}{"collection": name, "step": step})
}

// ApplyRemoteChange feeds one change-feed event through the same merge
// path as a pull. Insert and update events resolve against the local
// copy and persist the winner, returning it; a delete removes the local
// record and returns nil.
func (e *Engine) ApplyRemoteChange(collection string, typ ChangeType, row models.Record) (models.Record, error) {
	col, ok := e.registry.Get(collection)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "unknown collection %q", collection)
	}

	if typ == ChangeDelete {
		id := row.ID()
		if id == "" {
			return nil, apperrors.New(apperrors.ErrValidation, "delete event without id")
		}
		if err := e.store.Delete(collection, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	incoming := wire.FromWireFormat(row, col)
	id := incoming.ID()
	if id == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "change event without id")
	}

	// a queued local delete wins over incoming events until replayed
	if e.pendingDeletes()[collection][id] {
		return nil, nil
	}

	local, err := e.store.Get(collection, id)
	if err != nil {
		return nil, err
	}

	merged, winner := conflict.ResolveWithWinner(local, incoming)
	if local != nil {
		conflict.LogResolution(collection, local, incoming, winner)
	}
	if err := e.store.Put(collection, merged); err != nil {
		return nil, err
	}
	return merged, nil
}
