package woocommerce

import (
	"encoding/json"
	"testing"

	"cartsync/internal/model"
)

func TestBatchBuilder_AddItem(t *testing.T) {
	b := NewBatch().AddItem(123, 2)

	if !b.HasOperations() {
		t.Fatal("expected operations")
	}
	if b.OperationCount() != 1 {
		t.Errorf("count = %d, want 1", b.OperationCount())
	}

	req := b.Build()
	if len(req.Requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(req.Requests))
	}

	op := req.Requests[0]
	if op.Path != "/wc/store/v1/cart/add-item" {
		t.Errorf("path = %s, want /wc/store/v1/cart/add-item", op.Path)
	}
	if op.Method != "POST" {
		t.Errorf("method = %s, want POST", op.Method)
	}

	var body map[string]int
	if err := json.Unmarshal(op.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["id"] != 123 {
		t.Errorf("id = %d, want 123", body["id"])
	}
	if body["quantity"] != 2 {
		t.Errorf("quantity = %d, want 2", body["quantity"])
	}
}

func TestBatchBuilder_UpdateCustomer(t *testing.T) {
	req := NewBatch().UpdateCustomer(model.BuyerIdentity{Email: " Ada@Shop.IO ", Phone: "+1 (415) 555-0100"}).Build()

	op := req.Requests[0]
	if op.Path != "/wc/store/v1/cart/update-customer" {
		t.Errorf("path = %s", op.Path)
	}

	var body struct {
		Billing WooAddress `json:"billing_address"`
	}
	if err := json.Unmarshal(op.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Billing.Email != "ada@shop.io" {
		t.Errorf("email = %q, want ada@shop.io", body.Billing.Email)
	}
	if body.Billing.Phone != "+14155550100" {
		t.Errorf("phone = %q, want +14155550100", body.Billing.Phone)
	}
}

func TestBatchBuilder_ItemOps(t *testing.T) {
	tests := []struct {
		name     string
		build    func(*BatchBuilder) *BatchBuilder
		wantPath string
		wantOps  int
	}{
		{
			name:     "remove item",
			build:    func(b *BatchBuilder) *BatchBuilder { return b.RemoveItem("abc123") },
			wantPath: "/wc/store/v1/cart/remove-item",
			wantOps:  1,
		},
		{
			name:    "remove item empty key skipped",
			build:   func(b *BatchBuilder) *BatchBuilder { return b.RemoveItem("") },
			wantOps: 0,
		},
		{
			name:     "update quantity",
			build:    func(b *BatchBuilder) *BatchBuilder { return b.UpdateItemQuantity("abc123", 5) },
			wantPath: "/wc/store/v1/cart/update-item",
			wantOps:  1,
		},
		{
			name:    "update quantity empty key skipped",
			build:   func(b *BatchBuilder) *BatchBuilder { return b.UpdateItemQuantity("", 5) },
			wantOps: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.build(NewBatch())
			if b.OperationCount() != tc.wantOps {
				t.Fatalf("count = %d, want %d", b.OperationCount(), tc.wantOps)
			}
			if tc.wantOps == 0 {
				if b.Build() != nil {
					t.Error("Build() should return nil for an empty batch")
				}
				return
			}
			if got := b.Build().Requests[0].Path; got != tc.wantPath {
				t.Errorf("path = %s, want %s", got, tc.wantPath)
			}
		})
	}
}

func TestBatchBuilder_Chaining(t *testing.T) {
	req := NewBatch().
		RemoveItem("k1").
		UpdateItemQuantity("k2", 3).
		AddItem(7, 1).
		Build()

	want := []string{
		"/wc/store/v1/cart/remove-item",
		"/wc/store/v1/cart/update-item",
		"/wc/store/v1/cart/add-item",
	}
	if len(req.Requests) != len(want) {
		t.Fatalf("requests = %d, want %d", len(req.Requests), len(want))
	}
	for i, p := range want {
		if req.Requests[i].Path != p {
			t.Errorf("request[%d] = %s, want %s", i, req.Requests[i].Path, p)
		}
	}
}

func TestInjectHeaders(t *testing.T) {
	req := NewBatch().AddItem(1, 1).AddItem(2, 1).Build()
	req.InjectHeaders(map[string]string{"Nonce": "n1", "Cart-Token": "tok"})

	for i, op := range req.Requests {
		if op.Headers["Nonce"] != "n1" || op.Headers["Cart-Token"] != "tok" {
			t.Errorf("request[%d] headers = %v", i, op.Headers)
		}
	}
}
