package adapter

import (
	"context"

	"cartsync/internal/model"
)

// Mock implements CartService for testing.
// Each method can be configured via function fields.
type Mock struct {
	CreateCartFunc          func(ctx context.Context, lines []model.LineInput, identity model.BuyerIdentity) (*model.RemoteCart, error)
	GetCartFunc             func(ctx context.Context, id string) (*model.RemoteCart, error)
	AddLinesFunc            func(ctx context.Context, id string, lines []model.LineInput) (*model.RemoteCart, error)
	UpdateLinesFunc         func(ctx context.Context, id string, updates []model.LineUpdate) (*model.RemoteCart, error)
	RemoveLinesFunc         func(ctx context.Context, id string, lineIDs []string) (*model.RemoteCart, error)
	UpdateBuyerIdentityFunc func(ctx context.Context, id string, identity model.BuyerIdentity) (*model.RemoteCart, error)
}

// CreateCart calls the configured CreateCartFunc or returns an error.
func (m *Mock) CreateCart(ctx context.Context, lines []model.LineInput, identity model.BuyerIdentity) (*model.RemoteCart, error) {
	if m.CreateCartFunc != nil {
		return m.CreateCartFunc(ctx, lines, identity)
	}
	return nil, model.NewInternalError(nil)
}

// GetCart calls the configured GetCartFunc or returns not found.
func (m *Mock) GetCart(ctx context.Context, id string) (*model.RemoteCart, error) {
	if m.GetCartFunc != nil {
		return m.GetCartFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("cart")
}

// AddLines calls the configured AddLinesFunc or returns an error.
func (m *Mock) AddLines(ctx context.Context, id string, lines []model.LineInput) (*model.RemoteCart, error) {
	if m.AddLinesFunc != nil {
		return m.AddLinesFunc(ctx, id, lines)
	}
	return nil, model.NewInternalError(nil)
}

// UpdateLines calls the configured UpdateLinesFunc or returns an error.
func (m *Mock) UpdateLines(ctx context.Context, id string, updates []model.LineUpdate) (*model.RemoteCart, error) {
	if m.UpdateLinesFunc != nil {
		return m.UpdateLinesFunc(ctx, id, updates)
	}
	return nil, model.NewInternalError(nil)
}

// RemoveLines calls the configured RemoveLinesFunc or returns an error.
func (m *Mock) RemoveLines(ctx context.Context, id string, lineIDs []string) (*model.RemoteCart, error) {
	if m.RemoveLinesFunc != nil {
		return m.RemoveLinesFunc(ctx, id, lineIDs)
	}
	return nil, model.NewInternalError(nil)
}

// UpdateBuyerIdentity calls the configured UpdateBuyerIdentityFunc or returns an error.
func (m *Mock) UpdateBuyerIdentity(ctx context.Context, id string, identity model.BuyerIdentity) (*model.RemoteCart, error) {
	if m.UpdateBuyerIdentityFunc != nil {
		return m.UpdateBuyerIdentityFunc(ctx, id, identity)
	}
	return nil, model.NewInternalError(nil)
}

// PointerMock implements PointerStore for testing.
type PointerMock struct {
	GetPointerFunc func(ctx context.Context, key string) (string, bool, error)
	SetPointerFunc func(ctx context.Context, key, cartID string) error
}

// GetPointer calls the configured GetPointerFunc or reports no pointer.
func (m *PointerMock) GetPointer(ctx context.Context, key string) (string, bool, error) {
	if m.GetPointerFunc != nil {
		return m.GetPointerFunc(ctx, key)
	}
	return "", false, nil
}

// SetPointer calls the configured SetPointerFunc or succeeds.
func (m *PointerMock) SetPointer(ctx context.Context, key, cartID string) error {
	if m.SetPointerFunc != nil {
		return m.SetPointerFunc(ctx, key, cartID)
	}
	return nil
}

// Verify mocks implement the interfaces at compile time.
var (
	_ CartService  = (*Mock)(nil)
	_ PointerStore = (*PointerMock)(nil)
)
