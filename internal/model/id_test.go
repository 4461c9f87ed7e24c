package model

import "testing"

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"gid://shopify/ProductVariant/123", "123"},
		{"ProductVariant/123", "123"},
		{"123", "123"},
		{"gid://shopify/ProductVariant/123?cart=abc", "123"},
		{"gid://shopify/Cart/c1-xyz?key=secret", "c1-xyz"},
		{"  456  ", "456"},
		{"gid://shopify/ProductVariant/789/", "789"},
		{"", ""},
		{"not an id", "not an id"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeID(tt.input); got != tt.want {
				t.Errorf("NormalizeID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSameID(t *testing.T) {
	if !SameID("gid://shopify/ProductVariant/1", "1") {
		t.Error("SameID should match prefixed and bare forms")
	}
	if SameID("gid://shopify/ProductVariant/1", "gid://shopify/ProductVariant/10") {
		t.Error("SameID should not match different variants")
	}
}
