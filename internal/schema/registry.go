// Package schema provides the declarative collection registry for the
// sync engine: which local collections exist, which remote table each
// maps to, which fields are safe to cross the boundary, and how field
// names canonicalize. Both the field normalizer and the orchestrator
// consume this registry, so there is exactly one copy of every
// allow-list and table mapping.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// QueueCollection is the local partition backing the durable sync queue.
// It has no remote table; its contents are queue items, not records.
const QueueCollection = "syncQueue"

// Collection describes one named partition of records.
type Collection struct {
	// Name is the local collection name.
	Name string

	// RemoteTable is the remote table this collection maps to.
	RemoteTable string

	// AllowList is the ordered set of canonical field names permitted
	// to cross the local/remote boundary. "id" is always implied.
	AllowList []string

	// Hot marks the collection for the periodic re-sync timer.
	Hot bool

	// Aliases maps canonical wire field names back to the local
	// convention when pulling remote records. Fields without an alias
	// pass through unchanged.
	Aliases map[string]string

	// Derived maps a field name to a source field it is synthesized
	// from when missing (e.g. updated_at from created_at).
	Derived map[string]string

	allowed map[string]bool
}

// Allowed reports whether the canonical field name may cross the
// boundary for this collection. "id" is always allowed.
func (c *Collection) Allowed(field string) bool {
	if field == "id" {
		return true
	}
	return c.allowed[field]
}

// Registry holds every known collection, keyed by local name.
type Registry struct {
	collections map[string]*Collection
	order       []string
}

var nameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// NewRegistry builds a registry from collection definitions. Allow-list
// entries are canonicalized on the way in, so a definition written with
// mixed-case field names still enforces the lowercase wire invariant.
func NewRegistry(defs ...Collection) (*Registry, error) {
	r := &Registry{collections: make(map[string]*Collection, len(defs))}

	for i := range defs {
		c := defs[i]
		if !nameRegex.MatchString(c.Name) {
			return nil, fmt.Errorf("invalid collection name %q", c.Name)
		}
		if c.RemoteTable == "" {
			return nil, fmt.Errorf("collection %q has no remote table", c.Name)
		}
		if _, exists := r.collections[c.Name]; exists {
			return nil, fmt.Errorf("duplicate collection %q", c.Name)
		}

		canonical := make([]string, 0, len(c.AllowList))
		c.allowed = make(map[string]bool, len(c.AllowList))
		for _, f := range c.AllowList {
			cf := CanonicalField(f)
			if c.allowed[cf] {
				continue
			}
			c.allowed[cf] = true
			canonical = append(canonical, cf)
		}
		c.AllowList = canonical

		r.collections[c.Name] = &c
		r.order = append(r.order, c.Name)
	}

	return r, nil
}

// Get returns the collection definition for name.
func (r *Registry) Get(name string) (*Collection, bool) {
	c, ok := r.collections[name]
	return c, ok
}

// Names returns all collection names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Hot returns the names of collections in the hot subset, in
// registration order.
func (r *Registry) Hot() []string {
	var out []string
	for _, name := range r.order {
		if r.collections[name].Hot {
			out = append(out, name)
		}
	}
	return out
}

// RemoteTable returns the remote table for a collection, or "" if the
// collection is unknown.
func (r *Registry) RemoteTable(name string) string {
	if c, ok := r.collections[name]; ok {
		return c.RemoteTable
	}
	return ""
}

// synonymRule folds any field name containing Token to Canonical.
type synonymRule struct {
	Token     string
	Canonical string
}

// synonymRules collapse known naming variants to one canonical wire
// name. Rules are applied in order, first match wins. Every Canonical
// on the right side must be a fixed point of the rule set, which keeps
// CanonicalField idempotent.
var synonymRules = []synonymRule{
	{Token: "updated", Canonical: "updated_at"},
	{Token: "modified", Canonical: "updated_at"},
	{Token: "created", Canonical: "created_at"},
	{Token: "quantity", Canonical: "stock"},
	{Token: "qty", Canonical: "stock"},
	{Token: "upc", Canonical: "barcode"},
	{Token: "ean", Canonical: "barcode"},
}

// CanonicalField maps a field name to its canonical wire form:
// lowercase, word breaks flattened to underscores, known synonym
// variants collapsed. The function is idempotent; its output for any
// input equals its own lowercase form.
func CanonicalField(name string) string {
	flat := flatten(name)
	for _, rule := range synonymRules {
		if strings.Contains(flat, rule.Token) {
			return rule.Canonical
		}
	}
	return flat
}

// flatten lowercases a field name, inserting an underscore at each
// camelCase word boundary and mapping separator runs to a single
// underscore. An uppercase run is one word: "EAN" flattens to "ean",
// "ItemSKU" to "item_sku", "HTTPPort" to "http_port".
func flatten(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)

	prevUnderscore := false
	for i, r := range runes {
		switch {
		case r >= 'A' && r <= 'Z':
			prevUpper := i > 0 && runes[i-1] >= 'A' && runes[i-1] <= 'Z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			// a boundary is lower-to-upper, or the last upper of a run
			// followed by a lowercase tail
			if i > 0 && !prevUnderscore && (!prevUpper || nextLower) {
				b.WriteByte('_')
			}
			b.WriteByte(byte(r - 'A' + 'a'))
			prevUnderscore = false
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			// space, dash, dot and anything exotic become one underscore
			if i > 0 && !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}

// Default returns the point-of-sale registry: products, customers,
// transactions, suppliers and settings, with products and transactions
// in the hot subset.
func Default() *Registry {
	r, err := NewRegistry(
		Collection{
			Name:        "products",
			RemoteTable: "products",
			AllowList: []string{
				"id", "name", "sku", "barcode", "price", "cost", "stock",
				"category", "tax_rate", "is_active", "created_at", "updated_at",
			},
			Hot:     true,
			Derived: map[string]string{"updated_at": "created_at"},
		},
		Collection{
			Name:        "customers",
			RemoteTable: "customers",
			AllowList: []string{
				"id", "name", "email", "phone", "address", "loyalty_points",
				"created_at", "updated_at",
			},
			Derived: map[string]string{"updated_at": "created_at"},
		},
		Collection{
			Name:        "transactions",
			RemoteTable: "transactions",
			AllowList: []string{
				"id", "customer_id", "items", "subtotal", "tax", "total",
				"payment_method", "status", "created_at", "updated_at",
			},
			Hot:     true,
			Derived: map[string]string{"updated_at": "created_at"},
		},
		Collection{
			Name:        "suppliers",
			RemoteTable: "suppliers",
			AllowList: []string{
				"id", "name", "contact_name", "email", "phone",
				"created_at", "updated_at",
			},
			Derived: map[string]string{"updated_at": "created_at"},
		},
		Collection{
			Name:        "settings",
			RemoteTable: "pos_settings",
			AllowList: []string{
				"id", "key", "value", "created_at", "updated_at",
			},
			Derived: map[string]string{"updated_at": "created_at"},
		},
	)
	if err != nil {
		// The default registry is static; a construction failure is a
		// programming error.
		panic(fmt.Sprintf("default registry: %v", err))
	}
	return r
}
