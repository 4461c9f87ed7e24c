package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"cartsync/internal/model"
)

// Operation names reported to MemoryCartService.BeforeCall and Calls.
const (
	OpCreate   = "create"
	OpGet      = "get"
	OpAdd      = "add"
	OpUpdate   = "update"
	OpRemove   = "remove"
	OpIdentity = "identity"
)

// MemoryCartService is an in-process CartService. It backs the "memory"
// adapter type for local development and gives engine tests a backend with
// real state.
type MemoryCartService struct {
	// BeforeCall, when set, runs before every operation; a non-nil error
	// fails the operation. Tests use it to inject faults or hold a call open.
	BeforeCall func(ctx context.Context, op, cartID string) error

	mu       sync.Mutex
	carts    map[string]*model.RemoteCart
	catalog  map[string]model.Merchandise
	calls    []string
	lineSeq  int
	checkout string
}

// NewMemoryCartService creates an empty service. catalog is optional variant
// metadata (keyed by any id form) attached to lines as merchandise.
func NewMemoryCartService(catalog map[string]model.Merchandise) *MemoryCartService {
	byKey := make(map[string]model.Merchandise, len(catalog))
	for id, m := range catalog {
		byKey[model.NormalizeID(id)] = m
	}
	return &MemoryCartService{
		carts:    make(map[string]*model.RemoteCart),
		catalog:  byKey,
		checkout: "https://checkout.invalid/cart/",
	}
}

// Calls returns the operations performed so far, in order.
func (s *MemoryCartService) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CountCalls returns how many times op was performed.
func (s *MemoryCartService) CountCalls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Put stores a cart directly, bypassing the call log. Test setup only.
func (s *MemoryCartService) Put(cart model.RemoteCart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneCart(&cart)
	s.carts[cart.ID] = c
}

// Delete drops a cart, simulating backend expiry.
func (s *MemoryCartService) Delete(cartID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, cartID)
}

func (s *MemoryCartService) CreateCart(ctx context.Context, lines []model.LineInput, identity model.BuyerIdentity) (*model.RemoteCart, error) {
	if err := s.before(ctx, OpCreate, ""); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, OpCreate)

	id := "gid://memory/Cart/" + uuid.NewString()
	cart := &model.RemoteCart{
		ID:            id,
		Lines:         []model.RemoteLine{},
		BuyerIdentity: identity.Canonical(),
		CheckoutURL:   s.checkout + model.NormalizeID(id),
	}
	s.carts[id] = cart
	if err := s.addLocked(cart, lines); err != nil {
		return nil, err
	}
	return cloneCart(cart), nil
}

func (s *MemoryCartService) GetCart(ctx context.Context, cartID string) (*model.RemoteCart, error) {
	if err := s.before(ctx, OpGet, cartID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, OpGet)

	cart, ok := s.carts[cartID]
	if !ok {
		return nil, model.NewNotFoundError("cart")
	}
	return cloneCart(cart), nil
}

func (s *MemoryCartService) AddLines(ctx context.Context, cartID string, lines []model.LineInput) (*model.RemoteCart, error) {
	return s.mutate(ctx, OpAdd, cartID, func(cart *model.RemoteCart) error {
		return s.addLocked(cart, lines)
	})
}

func (s *MemoryCartService) UpdateLines(ctx context.Context, cartID string, updates []model.LineUpdate) (*model.RemoteCart, error) {
	return s.mutate(ctx, OpUpdate, cartID, func(cart *model.RemoteCart) error {
		for _, u := range updates {
			idx := lineIndex(cart, u.LineID)
			if idx < 0 {
				return model.NewValidationError("line_id", fmt.Sprintf("line %s not in cart", u.LineID))
			}
			if u.Quantity <= 0 {
				cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
				continue
			}
			cart.Lines[idx].Quantity = u.Quantity
		}
		return nil
	})
}

func (s *MemoryCartService) RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*model.RemoteCart, error) {
	return s.mutate(ctx, OpRemove, cartID, func(cart *model.RemoteCart) error {
		for _, id := range lineIDs {
			if idx := lineIndex(cart, id); idx >= 0 {
				cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
			}
		}
		return nil
	})
}

func (s *MemoryCartService) UpdateBuyerIdentity(ctx context.Context, cartID string, identity model.BuyerIdentity) (*model.RemoteCart, error) {
	return s.mutate(ctx, OpIdentity, cartID, func(cart *model.RemoteCart) error {
		cart.BuyerIdentity = identity.Canonical()
		return nil
	})
}

func (s *MemoryCartService) before(ctx context.Context, op, cartID string) error {
	if s.BeforeCall == nil {
		return nil
	}
	return s.BeforeCall(ctx, op, cartID)
}

func (s *MemoryCartService) mutate(ctx context.Context, op, cartID string, fn func(*model.RemoteCart) error) (*model.RemoteCart, error) {
	if err := s.before(ctx, op, cartID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)

	cart, ok := s.carts[cartID]
	if !ok {
		return nil, model.NewNotFoundError("cart")
	}
	if err := fn(cart); err != nil {
		return nil, err
	}
	return cloneCart(cart), nil
}

// addLocked merges lines into cart; a variant already present gains quantity.
func (s *MemoryCartService) addLocked(cart *model.RemoteCart, lines []model.LineInput) error {
	for _, in := range lines {
		if in.Quantity <= 0 {
			return model.NewValidationError("quantity", "must be positive")
		}
		key := model.NormalizeID(in.VariantID)
		merged := false
		for i := range cart.Lines {
			if model.NormalizeID(cart.Lines[i].VariantID) == key {
				cart.Lines[i].Quantity += in.Quantity
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		s.lineSeq++
		line := model.RemoteLine{
			LineID:    fmt.Sprintf("gid://memory/CartLine/%d", s.lineSeq),
			VariantID: in.VariantID,
			Quantity:  in.Quantity,
		}
		if m, ok := s.catalog[key]; ok {
			m := m
			line.Merchandise = &m
		}
		cart.Lines = append(cart.Lines, line)
	}
	return nil
}

func lineIndex(cart *model.RemoteCart, lineID string) int {
	for i, l := range cart.Lines {
		if l.LineID == lineID {
			return i
		}
	}
	return -1
}

func cloneCart(c *model.RemoteCart) *model.RemoteCart {
	out := *c
	out.Lines = make([]model.RemoteLine, len(c.Lines))
	copy(out.Lines, c.Lines)
	return &out
}

var _ CartService = (*MemoryCartService)(nil)
