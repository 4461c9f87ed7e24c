package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func intPtr(n int) *int { return &n }

func TestLocalCart_Totals(t *testing.T) {
	cart := LocalCart{Items: []CartItem{
		{VariantID: "1", UnitPrice: decimal.RequireFromString("10.50"), Quantity: 2, Currency: "EUR"},
		{VariantID: "2", UnitPrice: decimal.RequireFromString("3.25"), Quantity: 1},
	}}

	if got := cart.Total(); !got.Equal(decimal.RequireFromString("24.25")) {
		t.Errorf("Total() = %s, want 24.25", got)
	}
	if got := cart.ItemCount(); got != 3 {
		t.Errorf("ItemCount() = %d, want 3", got)
	}
	if got := cart.Currency(); got != "EUR" {
		t.Errorf("Currency() = %q, want EUR", got)
	}
}

func TestLocalCart_CloneIsDeep(t *testing.T) {
	orig := LocalCart{Items: []CartItem{{VariantID: "1", Quantity: 1, QuantityAvailable: intPtr(5)}}}
	clone := orig.Clone()

	clone.Items[0].Quantity = 9
	*clone.Items[0].QuantityAvailable = 0

	if orig.Items[0].Quantity != 1 {
		t.Errorf("original Quantity = %d, want 1", orig.Items[0].Quantity)
	}
	if *orig.Items[0].QuantityAvailable != 5 {
		t.Errorf("original QuantityAvailable = %d, want 5", *orig.Items[0].QuantityAvailable)
	}
}

func TestMergeCanonical(t *testing.T) {
	local := []CartItem{
		{VariantID: "gid://shopify/ProductVariant/1", Title: "Dune", UnitPrice: decimal.NewFromInt(20), Quantity: 1, ImageRef: "dune.jpg"},
		{VariantID: "gid://shopify/ProductVariant/2", Title: "Gone remotely", Quantity: 1},
	}
	lines := []RemoteLine{
		{LineID: "L1", VariantID: "1", Quantity: 3, Merchandise: &Merchandise{IsAvailable: true, QuantityAvailable: intPtr(4)}},
		{LineID: "L3", VariantID: "3", Quantity: 2, Merchandise: &Merchandise{Title: "Other tab", UnitPrice: decimal.NewFromInt(5), Currency: "USD", IsAvailable: true}},
	}

	got := MergeCanonical(local, lines)

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Title != "Dune" || got[0].ImageRef != "dune.jpg" {
		t.Errorf("known item lost metadata: %+v", got[0])
	}
	if got[0].Quantity != 3 {
		t.Errorf("Quantity = %d, want remote 3", got[0].Quantity)
	}
	if got[0].QuantityAvailable == nil || *got[0].QuantityAvailable != 4 {
		t.Errorf("QuantityAvailable not refreshed from remote")
	}
	if !got[0].UnitPrice.Equal(decimal.NewFromInt(20)) {
		t.Errorf("UnitPrice = %s, want local 20 kept when remote reports none", got[0].UnitPrice)
	}
	if got[1].Title != "Other tab" || got[1].Quantity != 2 || got[1].Currency != "USD" {
		t.Errorf("unknown line not built from merchandise: %+v", got[1])
	}
}

func TestMergeCanonical_CollapsesDuplicateLines(t *testing.T) {
	lines := []RemoteLine{
		{LineID: "L1", VariantID: "gid://shopify/ProductVariant/1", Quantity: 1},
		{LineID: "L2", VariantID: "1", Quantity: 2},
	}

	got := MergeCanonical(nil, lines)

	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Quantity != 3 {
		t.Errorf("Quantity = %d, want 3", got[0].Quantity)
	}
}
