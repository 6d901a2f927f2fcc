package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestResolveWithinTolerance(t *testing.T) {
	catalog := DefaultCatalog()

	cases := []struct {
		name    string
		amount  float64
		wantKey string
		wantOK  bool
	}{
		{"exact mini", 399.00, "mini", true},
		{"mini plus a kopeck", 399.01, "mini", true},
		{"mini minus a kopeck", 398.99, "mini", true},
		{"just outside tolerance", 399.02, "", false},
		{"exact avatar", 590.00, "avatar", true},
		{"exact vip", 3199.00, "vip", true},
		{"nothing close", 1000000.00, "", false},
		{"zero", 0, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tariff, ok := catalog.Resolve(decimal.NewFromFloat(tc.amount))
			if ok != tc.wantOK {
				t.Fatalf("Resolve(%v) ok = %v, want %v", tc.amount, ok, tc.wantOK)
			}
			if ok && tariff.Key != tc.wantKey {
				t.Errorf("Resolve(%v) key = %q, want %q", tc.amount, tariff.Key, tc.wantKey)
			}
		})
	}
}

func TestDefaultCatalogShape(t *testing.T) {
	catalog := DefaultCatalog()
	if len(catalog.Tariffs()) != 5 {
		t.Fatalf("tariffs = %d, want 5", len(catalog.Tariffs()))
	}
	for _, tariff := range catalog.Tariffs() {
		if tariff.Photos == 0 && tariff.Avatars == 0 {
			t.Errorf("tariff %q grants nothing", tariff.Key)
		}
		if !tariff.Amount.IsPositive() {
			t.Errorf("tariff %q has non-positive amount", tariff.Key)
		}
	}
}
