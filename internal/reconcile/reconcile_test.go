package reconcile

import (
	"reflect"
	"testing"

	"cartsync/internal/model"
)

func item(id string, qty int) model.CartItem {
	return model.CartItem{VariantID: id, Quantity: qty}
}

func line(lineID, variantID string, qty int) model.RemoteLine {
	return model.RemoteLine{LineID: lineID, VariantID: variantID, Quantity: qty}
}

func TestDiffLineItems_EmptyRemote(t *testing.T) {
	// Fresh add: no remote lines → all adds
	local := []model.CartItem{item("gid://shopify/ProductVariant/1", 2), item("2", 1)}

	diff := DiffLineItems(local, nil)

	if len(diff.ToAdd) != 2 {
		t.Errorf("ToAdd = %d, want 2", len(diff.ToAdd))
	}
	if len(diff.ToRemove) != 0 {
		t.Errorf("ToRemove = %d, want 0", len(diff.ToRemove))
	}
	if len(diff.ToUpdate) != 0 {
		t.Errorf("ToUpdate = %d, want 0", len(diff.ToUpdate))
	}
	// Original id form is what the backend receives
	if diff.ToAdd[0].VariantID != "gid://shopify/ProductVariant/1" {
		t.Errorf("ToAdd[0].VariantID = %q, want original form", diff.ToAdd[0].VariantID)
	}
}

func TestDiffLineItems_EmptyLocalRemovesEverything(t *testing.T) {
	remote := []model.RemoteLine{line("L1", "1", 2), line("L2", "2", 1)}

	diff := DiffLineItems(nil, remote)

	if len(diff.ToAdd) != 0 || len(diff.ToUpdate) != 0 {
		t.Errorf("ToAdd = %d, ToUpdate = %d, want 0, 0", len(diff.ToAdd), len(diff.ToUpdate))
	}
	if got := diff.RemoveIDs(); !reflect.DeepEqual(got, []string{"L1", "L2"}) {
		t.Errorf("RemoveIDs() = %v, want [L1 L2]", got)
	}
}

func TestDiffLineItems_QuantityUpdateReusesLine(t *testing.T) {
	local := []model.CartItem{item("gid://shopify/ProductVariant/42", 3)}
	remote := []model.RemoteLine{line("gid://shopify/CartLine/abc", "42", 1)}

	diff := DiffLineItems(local, remote)

	if len(diff.ToAdd) != 0 || len(diff.ToRemove) != 0 {
		t.Fatalf("expected update only, got %+v", diff)
	}
	if len(diff.ToUpdate) != 1 {
		t.Fatalf("ToUpdate = %d, want 1", len(diff.ToUpdate))
	}
	u := diff.ToUpdate[0]
	if u.LineID != "gid://shopify/CartLine/abc" {
		t.Errorf("LineID = %q, want existing line", u.LineID)
	}
	if u.OldQuantity != 1 || u.NewQuantity != 3 {
		t.Errorf("quantities = %d→%d, want 1→3", u.OldQuantity, u.NewQuantity)
	}
}

func TestDiffLineItems_Mixed(t *testing.T) {
	local := []model.CartItem{item("1", 2), item("3", 1), item("4", 5)}
	remote := []model.RemoteLine{line("L1", "1", 2), line("L2", "2", 1), line("L4", "4", 1)}

	diff := DiffLineItems(local, remote)

	want := &LineItemDiff{
		ToAdd:    []ItemToAdd{{VariantID: "3", Quantity: 1}},
		ToRemove: []ItemToRemove{{VariantID: "2", LineID: "L2"}},
		ToUpdate: []ItemToUpdate{{VariantID: "4", LineID: "L4", OldQuantity: 1, NewQuantity: 5}},
	}
	if !reflect.DeepEqual(diff, want) {
		t.Errorf("diff = %+v, want %+v", diff, want)
	}
}

func TestDiffLineItems_Idempotent(t *testing.T) {
	// Diff(X, X) is empty: applying a diff then re-diffing yields nothing
	local := []model.CartItem{item("gid://shopify/ProductVariant/1", 2), item("2", 1)}
	remote := []model.RemoteLine{line("L1", "1", 2), line("L2", "gid://shopify/ProductVariant/2", 1)}

	diff := DiffLineItems(local, remote)

	if !diff.IsEmpty() {
		t.Errorf("diff = %+v, want empty", diff)
	}
}

func TestDiffLineItems_OrderInvariant(t *testing.T) {
	local := []model.CartItem{item("1", 2), item("2", 1), item("3", 4)}
	remote := []model.RemoteLine{line("L5", "5", 1), line("L2", "2", 3), line("L6", "6", 1)}

	first := DiffLineItems(local, remote)

	reversedLocal := []model.CartItem{local[2], local[1], local[0]}
	reversedRemote := []model.RemoteLine{remote[2], remote[1], remote[0]}
	second := DiffLineItems(reversedLocal, reversedRemote)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("diff depends on ordering:\n%+v\n%+v", first, second)
	}
}

func TestDiffLineItems_DuplicateRemoteLines(t *testing.T) {
	// Two remote lines for one variant: keep one, remove the other
	local := []model.CartItem{item("1", 2)}
	remote := []model.RemoteLine{line("L9", "1", 1), line("L3", "gid://shopify/ProductVariant/1", 1)}

	diff := DiffLineItems(local, remote)

	if got := diff.RemoveIDs(); !reflect.DeepEqual(got, []string{"L9"}) {
		t.Errorf("RemoveIDs() = %v, want [L9]", got)
	}
	if len(diff.ToUpdate) != 1 || diff.ToUpdate[0].LineID != "L3" {
		t.Errorf("ToUpdate = %+v, want update of L3", diff.ToUpdate)
	}
	if len(diff.ToAdd) != 0 {
		t.Errorf("ToAdd = %d, want 0", len(diff.ToAdd))
	}
}

func TestDiffLineItems_NonPositiveQuantityIsRemoval(t *testing.T) {
	local := []model.CartItem{item("1", 0)}
	remote := []model.RemoteLine{line("L1", "1", 2)}

	diff := DiffLineItems(local, remote)

	if got := diff.RemoveIDs(); !reflect.DeepEqual(got, []string{"L1"}) {
		t.Errorf("RemoveIDs() = %v, want [L1]", got)
	}
}

func TestLineItemDiff_ServiceShapes(t *testing.T) {
	diff := &LineItemDiff{
		ToAdd:    []ItemToAdd{{VariantID: "v1", Quantity: 2}},
		ToUpdate: []ItemToUpdate{{LineID: "L1", NewQuantity: 4}},
	}

	if got := diff.AddInputs(); !reflect.DeepEqual(got, []model.LineInput{{VariantID: "v1", Quantity: 2}}) {
		t.Errorf("AddInputs() = %+v", got)
	}
	if got := diff.Updates(); !reflect.DeepEqual(got, []model.LineUpdate{{LineID: "L1", Quantity: 4}}) {
		t.Errorf("Updates() = %+v", got)
	}
}
