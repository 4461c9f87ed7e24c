package stock

import (
	"testing"

	"cartsync/internal/model"
)

func TestCanIncrease(t *testing.T) {
	qty := func(n int) *int { return &n }

	tests := []struct {
		name      string
		available *int
		requested int
		want      bool
	}{
		{"unknown never blocks", nil, 500, true},
		{"zero blocks", qty(0), 1, false},
		{"within ceiling", qty(3), 3, true},
		{"above ceiling", qty(3), 4, false},
		{"below ceiling", qty(10), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := model.CartItem{VariantID: "1", QuantityAvailable: tt.available}
			if got := CanIncrease(item, tt.requested); got != tt.want {
				t.Errorf("CanIncrease(%d) = %v, want %v", tt.requested, got, tt.want)
			}
		})
	}
}
