package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-03-09 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2025-03-09" {
		t.Fatalf("expected 2025-03-09, got %s", d)
	}
	for _, in := range []string{"", "09/03/2025", "2025-13-01", "2025-02-30"} {
		if _, err := ParseDate(in); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", in, err)
		}
	}
}

func TestMonthBounds(t *testing.T) {
	first, last := MonthBounds(2024, 2)
	if first.String() != "2024-02-01" || last.String() != "2024-02-29" {
		t.Fatalf("unexpected bounds %s..%s", first, last)
	}
	first, last = MonthBounds(2025, 12)
	if first.String() != "2025-12-01" || last.String() != "2025-12-31" {
		t.Fatalf("unexpected bounds %s..%s", first, last)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		HouseholdID: "h1",
		CategoryID:  "cat1",
		Description: "groceries",
		Amount:      Money{Cents: 100},
		Date:        NewDate(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := map[string]struct {
		mutate func(*Transaction)
		want   error
	}{
		"zero date":        {func(tx *Transaction) { tx.Date = Date{} }, ErrInvalidDate},
		"empty desc":       {func(tx *Transaction) { tx.Description = "  " }, ErrEmptyDescription},
		"long desc":        {func(tx *Transaction) { tx.Description = strings.Repeat("x", 201) }, ErrDescriptionTooLong},
		"zero amount":      {func(tx *Transaction) { tx.Amount = Money{} }, ErrInvalidAmount},
		"negative amount":  {func(tx *Transaction) { tx.Amount = Money{Cents: -5} }, ErrInvalidAmount},
		"missing category": {func(tx *Transaction) { tx.CategoryID = "" }, ErrEmptyCategory},
		"missing household": {func(tx *Transaction) { tx.HouseholdID = "" }, ErrEmptyHousehold},
	}
	for name, tc := range bads {
		t.Run(name, func(t *testing.T) {
			tx := good
			tc.mutate(&tx)
			err := tx.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !IsValidationError(err) {
				t.Fatalf("expected %v to be a validation error", err)
			}
		})
	}
}

func TestCategoryValidate(t *testing.T) {
	c := Category{HouseholdID: "h1", Name: "Food"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	c.Name = ""
	if err := c.Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	c.Name = "Food"
	c.Budget = Money{Cents: -1}
	if err := c.Validate(); !errors.Is(err, ErrInvalidBudget) {
		t.Fatalf("expected ErrInvalidBudget, got %v", err)
	}
	if IsValidationError(ErrCategoryNotFound) {
		t.Fatalf("lookup errors are not validation errors")
	}
}

func TestHouseholdHasMember(t *testing.T) {
	h := Household{OwnerID: "u1", MemberIDs: []string{"u2"}}
	if !h.HasMember("u1") || !h.HasMember("u2") || h.HasMember("u3") {
		t.Fatalf("unexpected membership result")
	}
}
