// Package conflict resolves concurrent edits of the same record using
// the last-write-wins strategy: whichever side carries the later
// updated_at timestamp prevails, with created_at as a fallback and the
// remote side winning exact ties.
package conflict

import (
	"github.com/hweilin/tillsync/internal/logging"
	"github.com/hweilin/tillsync/internal/models"
)

// Winner identifies which side a resolution picked.
type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// Resolve compares two versions of the same record by timestamp and
// returns the version that should prevail. The rule: updated_at,
// falling back to created_at when absent or unparseable; the side whose
// timestamp is not earlier wins; on exact equality remote wins, since
// the remote store is treated as authoritative. Pure function — no
// I/O, inputs are never mutated.
func Resolve(local, remote models.Record) models.Record {
	rec, _ := ResolveWithWinner(local, remote)
	return rec
}

// ResolveWithWinner is Resolve plus which side won, for callers that
// count or log conflict outcomes.
func ResolveWithWinner(local, remote models.Record) (models.Record, Winner) {
	if local == nil {
		return remote, WinnerRemote
	}
	if remote == nil {
		return local, WinnerLocal
	}

	localTS := local.Timestamp()
	remoteTS := remote.Timestamp()

	// remote >= local means remote prevails; only a strictly newer
	// local copy survives. Malformed timestamps parse to the zero
	// time, so a broken side loses to any well-formed one and remote
	// takes the both-broken case.
	if localTS.After(remoteTS) {
		return local, WinnerLocal
	}
	return remote, WinnerRemote
}

// LogResolution emits the structured conflict record for one
// resolution: the record id, both timestamps, and which side won.
func LogResolution(collection string, local, remote models.Record, winner Winner) {
	logging.Info("Conflict resolved using last-write-wins",
		map[string]interface{}{
			"collection":       collection,
			"record_id":        remote.ID(),
			"local_timestamp":  local.Timestamp(),
			"remote_timestamp": remote.Timestamp(),
			"winner":           string(winner),
		})
}
