package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"float", -3.5, "-3.5", true},
		{"string", "12.34", "12.34", true},
		{"string with spaces", " 12.34 ", "12.34", true},
		{"int", 7, "7", true},
		{"json number", json.Number("0.005"), "0.005", true},
		{"nil", nil, "", false},
		{"empty string", "", "", false},
		{"garbage", "abc", "", false},
		{"bool", true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseAmount(%v) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && got.String() != tt.want {
				t.Errorf("ParseAmount(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestMoneyAmount(t *testing.T) {
	t.Run("pascal case", func(t *testing.T) {
		m := Document{"CurrencyCode": "EUR", "CurrencyAmount": -2.5}
		amt, cur, ok := MoneyAmount(m)
		if !ok || cur != "EUR" || amt.String() != "-2.5" {
			t.Errorf("got %s %s %v", amt, cur, ok)
		}
	})

	t.Run("plain amount key", func(t *testing.T) {
		m := Document{"currencyCode": "USD", "Amount": "10.00"}
		amt, cur, ok := MoneyAmount(m)
		if !ok || cur != "USD" || !amt.Equal(decimal.RequireFromString("10")) {
			t.Errorf("got %s %s %v", amt, cur, ok)
		}
	})

	t.Run("missing amount keeps currency", func(t *testing.T) {
		m := Document{"CurrencyCode": "EUR"}
		_, cur, ok := MoneyAmount(m)
		if ok || cur != "EUR" {
			t.Errorf("got cur=%s ok=%v", cur, ok)
		}
	})

	t.Run("nil document", func(t *testing.T) {
		_, _, ok := MoneyAmount(nil)
		if ok {
			t.Error("expected ok=false for nil document")
		}
	})
}

func TestNearlyEqual(t *testing.T) {
	tol := decimal.RequireFromString("0.02")
	a := decimal.RequireFromString("3.00")

	if !NearlyEqual(a, decimal.RequireFromString("3.01"), tol) {
		t.Error("3.00 and 3.01 should be within 0.02")
	}
	if !NearlyEqual(a, decimal.RequireFromString("3.02"), tol) {
		t.Error("3.00 and 3.02 should be within 0.02 inclusive")
	}
	if NearlyEqual(a, decimal.RequireFromString("3.03"), tol) {
		t.Error("3.00 and 3.03 should not match")
	}
}
