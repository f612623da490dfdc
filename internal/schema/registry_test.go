// Package schema provides unit tests for the collection registry.
package schema

import (
	"strings"
	"testing"
)

// TestCanonicalFieldLowercase tests basic case flattening.
func TestCanonicalFieldLowercase(t *testing.T) {
	cases := map[string]string{
		"Stock":         "stock",
		"name":          "name",
		"taxRate":       "tax_rate",
		"TaxRate":       "tax_rate",
		"tax-rate":      "tax_rate",
		"tax rate":      "tax_rate",
		"tax__rate":     "tax_rate",
		"PaymentMethod": "payment_method",
		// an uppercase run is one word, not one word per letter
		"SKU":      "sku",
		"ItemSKU":  "item_sku",
		"SKUCode":  "sku_code",
		"HTTPPort": "http_port",
	}

	for in, want := range cases {
		if got := CanonicalField(in); got != want {
			t.Errorf("CanonicalField(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestCanonicalFieldSynonyms tests synonym token folding.
func TestCanonicalFieldSynonyms(t *testing.T) {
	cases := map[string]string{
		"qty":          "stock",
		"Qty":          "stock",
		"qtyOnHand":    "stock",
		"Quantity":     "stock",
		"updatedAt":    "updated_at",
		"UpdatedAt":    "updated_at",
		"lastModified": "updated_at",
		"createdAt":    "created_at",
		"DateCreated":  "created_at",
		"upcCode":      "barcode",
		"EAN":          "barcode",
		"UPC":          "barcode",
		"ItemEAN":      "barcode",
	}

	for in, want := range cases {
		if got := CanonicalField(in); got != want {
			t.Errorf("CanonicalField(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestCanonicalFieldIdempotent tests that canonicalization is a fixed
// point for its own output, including every synonym canonical and every
// default allow-list entry.
func TestCanonicalFieldIdempotent(t *testing.T) {
	inputs := []string{
		"Stock", "qtyOnHand", "updatedAt", "lastModified", "DateCreated",
		"upcCode", "Tax-Rate", "plainname", "payment method",
	}

	for _, in := range inputs {
		once := CanonicalField(in)
		twice := CanonicalField(once)
		if once != twice {
			t.Errorf("CanonicalField not idempotent for %q: %q != %q", in, once, twice)
		}
		if once != strings.ToLower(once) {
			t.Errorf("CanonicalField(%q) = %q is not lowercase", in, once)
		}
	}

	for _, name := range Default().Names() {
		c, _ := Default().Get(name)
		for _, f := range c.AllowList {
			if CanonicalField(f) != f {
				t.Errorf("allow-list entry %q of %q is not canonical", f, name)
			}
		}
	}
}

// TestRegistryCanonicalizesAllowList tests that mixed-case definitions
// are normalized on registration.
func TestRegistryCanonicalizesAllowList(t *testing.T) {
	r, err := NewRegistry(Collection{
		Name:        "widgets",
		RemoteTable: "widgets",
		AllowList:   []string{"id", "Name", "Qty", "updatedAt"},
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	c, ok := r.Get("widgets")
	if !ok {
		t.Fatal("Expected widgets collection")
	}

	for _, want := range []string{"name", "stock", "updated_at"} {
		if !c.Allowed(want) {
			t.Errorf("Expected %q to be allowed", want)
		}
	}

	if c.Allowed("qty") {
		t.Error("Expected raw qty to not appear; it folds to stock")
	}

	if !c.Allowed("id") {
		t.Error("Expected id to always be allowed")
	}
}

// TestRegistryValidation tests definition validation.
func TestRegistryValidation(t *testing.T) {
	if _, err := NewRegistry(Collection{Name: "bad name", RemoteTable: "t"}); err == nil {
		t.Error("Expected error for invalid collection name")
	}

	if _, err := NewRegistry(Collection{Name: "ok"}); err == nil {
		t.Error("Expected error for missing remote table")
	}

	_, err := NewRegistry(
		Collection{Name: "dup", RemoteTable: "a"},
		Collection{Name: "dup", RemoteTable: "b"},
	)
	if err == nil {
		t.Error("Expected error for duplicate collection")
	}
}

// TestDefaultRegistry tests the shipped point-of-sale registry.
func TestDefaultRegistry(t *testing.T) {
	r := Default()

	names := r.Names()
	if len(names) != 5 {
		t.Fatalf("Expected 5 collections, got %d: %v", len(names), names)
	}

	hot := r.Hot()
	if len(hot) != 2 || hot[0] != "products" || hot[1] != "transactions" {
		t.Errorf("Expected hot subset [products transactions], got %v", hot)
	}

	if r.RemoteTable("settings") != "pos_settings" {
		t.Errorf("Expected settings to map to pos_settings, got %q", r.RemoteTable("settings"))
	}

	if r.RemoteTable("unknown") != "" {
		t.Error("Expected empty table for unknown collection")
	}

	products, _ := r.Get("products")
	if products.Derived["updated_at"] != "created_at" {
		t.Error("Expected products to derive updated_at from created_at")
	}
}
