package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{".5", 50, true},
		{"1.005", 101, true}, // half-up rounding
		{"12.344", 1234, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.001", 0, false},
		{"abc", 0, false},
		{"1e3", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %d", tc.in, got)
		}
	}
}

func TestParseBudget(t *testing.T) {
	for _, in := range []string{"", "0", "0.00", "0,0"} {
		m, err := ParseBudget(in)
		if err != nil || m.Cents != 0 {
			t.Fatalf("%q expected empty budget, got %v (err=%v)", in, m, err)
		}
	}
	m, err := ParseBudget("250,5")
	if err != nil || m.Cents != 25050 {
		t.Fatalf("expected 25050, got %v (err=%v)", m, err)
	}
	if _, err := ParseBudget("x"); err != ErrInvalidBudget {
		t.Fatalf("expected ErrInvalidBudget, got %v", err)
	}
}

func TestMoneyFromDecimal(t *testing.T) {
	m, err := MoneyFromDecimal(decimal.NewFromFloat(19.999))
	if err != nil || m.Cents != 2000 {
		t.Fatalf("expected 2000, got %v (err=%v)", m, err)
	}
	if _, err := MoneyFromDecimal(decimal.NewFromFloat(-3)); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestMoneyString(t *testing.T) {
	if s := (Money{Cents: 1234}).String(); s != "12.34" {
		t.Fatalf("expected 12.34, got %s", s)
	}
	if s := (Money{Cents: 5}).String(); s != "0.05" {
		t.Fatalf("expected 0.05, got %s", s)
	}
	if s := (Money{Cents: -150}).String(); s != "-1.50" {
		t.Fatalf("expected -1.50, got %s", s)
	}
}
