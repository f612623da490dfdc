// Package conflict provides unit tests for last-write-wins resolution.
package conflict

import (
	"reflect"
	"testing"

	"github.com/hweilin/tillsync/internal/models"
)

func rec(id, updatedAt string) models.Record {
	r := models.Record{"id": id}
	if updatedAt != "" {
		r["updated_at"] = updatedAt
	}
	return r
}

// TestResolveNewerWins tests determinism: whichever argument order, the
// record with the later timestamp prevails.
func TestResolveNewerWins(t *testing.T) {
	older := rec("p1", "2024-01-01T00:00:00Z")
	newer := rec("p1", "2024-06-01T00:00:00Z")

	if got := Resolve(newer, older); !reflect.DeepEqual(got, newer) {
		t.Errorf("Expected newer local to win, got %v", got)
	}
	if got := Resolve(older, newer); !reflect.DeepEqual(got, newer) {
		t.Errorf("Expected newer remote to win, got %v", got)
	}
}

// TestResolveTiePrefersRemote tests the authoritative tie-break.
func TestResolveTiePrefersRemote(t *testing.T) {
	local := rec("p1", "2024-01-01T00:00:00Z")
	local["origin"] = "local"
	remote := rec("p1", "2024-01-01T00:00:00Z")
	remote["origin"] = "remote"

	got, winner := ResolveWithWinner(local, remote)

	if winner != WinnerRemote {
		t.Errorf("Expected remote to win the tie, got %s", winner)
	}
	if got["origin"] != "remote" {
		t.Errorf("Expected remote record returned, got %v", got)
	}
}

// TestResolveCreatedAtFallback tests falling back to created_at when
// updated_at is absent.
func TestResolveCreatedAtFallback(t *testing.T) {
	local := models.Record{"id": "p1", "created_at": "2024-06-01T00:00:00Z"}
	remote := rec("p1", "2024-01-01T00:00:00Z")

	got, winner := ResolveWithWinner(local, remote)

	if winner != WinnerLocal {
		t.Errorf("Expected local created_at fallback to win, got %s", winner)
	}
	if !reflect.DeepEqual(got, local) {
		t.Errorf("Expected local record, got %v", got)
	}
}

// TestResolveMalformedTimestamps tests that a side with an unparseable
// timestamp loses to a well-formed one, and remote takes the
// both-malformed case.
func TestResolveMalformedTimestamps(t *testing.T) {
	good := rec("p1", "2024-01-01T00:00:00Z")
	bad := rec("p1", "garbage")

	if _, winner := ResolveWithWinner(good, bad); winner != WinnerLocal {
		t.Errorf("Expected well-formed local to beat malformed remote, got %s", winner)
	}
	if _, winner := ResolveWithWinner(bad, good); winner != WinnerRemote {
		t.Errorf("Expected well-formed remote to beat malformed local, got %s", winner)
	}

	bad2 := rec("p1", "also garbage")
	if _, winner := ResolveWithWinner(bad, bad2); winner != WinnerRemote {
		t.Errorf("Expected remote to win when both are malformed, got %s", winner)
	}
}

// TestResolveNilSides tests nil handling.
func TestResolveNilSides(t *testing.T) {
	r := rec("p1", "2024-01-01T00:00:00Z")

	if got := Resolve(nil, r); !reflect.DeepEqual(got, r) {
		t.Errorf("Expected remote when local is nil, got %v", got)
	}
	if got := Resolve(r, nil); !reflect.DeepEqual(got, r) {
		t.Errorf("Expected local when remote is nil, got %v", got)
	}
}

// TestResolvePure tests that inputs are not mutated.
func TestResolvePure(t *testing.T) {
	local := rec("p1", "2024-01-01T00:00:00Z")
	remote := rec("p1", "2024-06-01T00:00:00Z")

	localCopy := local.Clone()
	remoteCopy := remote.Clone()

	Resolve(local, remote)

	if !reflect.DeepEqual(local, localCopy) || !reflect.DeepEqual(remote, remoteCopy) {
		t.Error("Expected Resolve to not mutate its inputs")
	}
}
