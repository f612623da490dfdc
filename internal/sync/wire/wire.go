// Package wire normalizes record field names at the local/remote
// boundary. The remote row store only accepts lowercase snake-style
// column names; everything outbound passes through ToWireFormat and
// FilterAllowed, everything inbound through FromWireFormat.
//
// ToWireFormat is idempotent by construction, so a record is normalized
// exactly once per crossing — there is no need to re-apply it
// defensively anywhere else.
package wire

import (
	"sort"

	"github.com/hweilin/tillsync/internal/models"
	"github.com/hweilin/tillsync/internal/schema"
)

// ToWireFormat canonicalizes every field name of a record: lowercase,
// word breaks flattened to underscores, known synonym variants
// collapsed. Two records differing only in field-name casing produce
// identical output. When distinct input fields fold to the same
// canonical name, a field already in canonical form wins; otherwise the
// lexicographically smallest original name wins, keeping the collapse
// deterministic. The input record is not mutated.
func ToWireFormat(rec models.Record) models.Record {
	if rec == nil {
		return nil
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(models.Record, len(rec))
	winner := make(map[string]string, len(rec))
	for _, k := range keys {
		ck := schema.CanonicalField(k)
		if prev, taken := winner[ck]; taken {
			// already-canonical names beat folded variants
			if prev == ck || k != ck {
				continue
			}
		}
		winner[ck] = k
		out[ck] = rec[k]
	}

	return out
}

// FromWireFormat maps a remote record into the local convention for a
// collection: canonical wire names with a declared alias are renamed,
// derived fields are synthesized when missing, and unrecognized fields
// pass through unchanged so newer remote columns survive a round trip.
// The input record is not mutated.
func FromWireFormat(rec models.Record, col *schema.Collection) models.Record {
	if rec == nil {
		return nil
	}

	out := make(models.Record, len(rec))
	for k, v := range rec {
		local := k
		if col != nil {
			if alias, ok := col.Aliases[k]; ok {
				local = alias
			}
		}
		out[local] = v
	}

	if col != nil {
		for target, source := range col.Derived {
			if _, present := out[target]; present {
				continue
			}
			if v, ok := out[source]; ok {
				out[target] = v
			}
		}
	}

	return out
}

// FilterAllowed retains only the fields on the collection's allow-list
// plus id. Unknown fields are dropped silently, never erroring, so an
// outbound write cannot fail because of schema drift on either side.
// The input record is not mutated.
func FilterAllowed(col *schema.Collection, rec models.Record) models.Record {
	if rec == nil {
		return nil
	}

	out := make(models.Record, len(rec))
	for k, v := range rec {
		if col.Allowed(k) {
			out[k] = v
		}
	}
	return out
}
