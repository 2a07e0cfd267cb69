package core

import (
	"errors"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Household struct {
		ID        string
		Name      string
		OwnerID   string
		MemberIDs []string
		CreatedAt time.Time
		Budget    Money  // optional, zero when unset
		Currency  string // optional ISO code
	}

	Category struct {
		ID          string
		HouseholdID string
		Name        string
		Slug        string
		Description string
		Budget      Money // monthly
		Color       string
		Icon        string
	}

	Transaction struct {
		ID          string
		HouseholdID string
		CategoryID  string
		Description string
		Amount      Money
		Date        Date
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidBudget      = errors.New("invalid budget")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long (max 80 characters)")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyHousehold     = errors.New("empty household")
	ErrEmptyFile          = errors.New("empty file")
	ErrFileTooLarge       = errors.New("file too large")
	ErrUnsupportedFile    = errors.New("unsupported file type")
)

// Lookup and authorization failures shared by services and the request layer.
var (
	ErrHouseholdNotFound   = errors.New("household not found")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrImportNotFound      = errors.New("import not found")
	ErrImportNotReady      = errors.New("import is not ready to confirm")
	ErrUnauthorized        = errors.New("unauthorized")
)

// Category deletion failures.
var (
	ErrTooManyTransactions        = errors.New("too many transactions")
	ErrTargetCategoryNotFound     = errors.New("target category not found")
	ErrTargetCategoryUnauthorized = errors.New("target category unauthorized")
	ErrTargetIsSource             = errors.New("target category is the category being deleted")
)

// ParseDate parses a calendar date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthBounds returns the first and last day of the given month.
func MonthBounds(year, month int) (Date, Date) {
	first := NewDate(year, month, 1)
	last := Date{Time: first.AddDate(0, 1, -1)}
	return first, last
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (h Household) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return ErrEmptyName
	}
	if h.Budget.Cents < 0 {
		return ErrInvalidBudget
	}
	return nil
}

// HasMember reports whether userID owns or belongs to the household.
func (h Household) HasMember(userID string) bool {
	if h.OwnerID == userID {
		return true
	}
	for _, id := range h.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.HouseholdID) == "" {
		return ErrEmptyHousehold
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > 80 {
		return ErrNameTooLong
	}
	if c.Budget.Cents < 0 {
		return ErrInvalidBudget
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.HouseholdID) == "" {
		return ErrEmptyHousehold
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	desc := strings.TrimSpace(t.Description)
	if desc == "" {
		return ErrEmptyDescription
	}
	if len(desc) > 200 {
		return ErrDescriptionTooLong
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// IsValidationError reports whether err is one of the input validation errors
// returned by the Validate methods and the money parser.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidDate, ErrInvalidAmount, ErrInvalidBudget, ErrEmptyDescription,
		ErrDescriptionTooLong, ErrEmptyName, ErrNameTooLong, ErrEmptyCategory, ErrEmptyHousehold,
		ErrEmptyFile, ErrFileTooLarge, ErrUnsupportedFile,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
