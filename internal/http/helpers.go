package http

import (
	"net/http"
	"strings"
	"time"

	"buckify/internal/auth"
	"buckify/internal/core"
)

// householdID returns the caller's household from the verified token.
// Handlers never read it from the request body.
func householdID(r *http.Request) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.HouseholdID == "" {
		return "", false
	}
	return claims.HouseholdID, true
}

// sanitizeInput drops control characters other than tab and newlines and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

type categoryDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Budget      string `json:"budget"`
	BudgetCents int64  `json:"budgetCents"`
	Color       string `json:"color,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

func toCategoryDTO(c core.Category) categoryDTO {
	return categoryDTO{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		Budget:      c.Budget.String(),
		BudgetCents: c.Budget.Cents,
		Color:       c.Color,
		Icon:        c.Icon,
	}
}

type transactionDTO struct {
	ID          string `json:"id"`
	CategoryID  string `json:"categoryId"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amountCents"`
	Date        string `json:"date"`
}

func toTransactionDTO(t core.Transaction) transactionDTO {
	return transactionDTO{
		ID:          t.ID,
		CategoryID:  t.CategoryID,
		Description: t.Description,
		Amount:      t.Amount.String(),
		AmountCents: t.Amount.Cents,
		Date:        t.Date.String(),
	}
}

type categorySpendDTO struct {
	CategoryID     string `json:"categoryId"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	Color          string `json:"color,omitempty"`
	SpentCents     int64  `json:"spentCents"`
	BudgetCents    int64  `json:"budgetCents"`
	RemainingCents int64  `json:"remainingCents"`
}

type overviewDTO struct {
	Year        int                `json:"year"`
	Month       int                `json:"month"`
	Total       string             `json:"total"`
	TotalCents  int64              `json:"totalCents"`
	BudgetCents int64              `json:"budgetCents"`
	Categories  []categorySpendDTO `json:"categories"`
}

func toOverviewDTO(ov core.MonthOverview) overviewDTO {
	out := overviewDTO{
		Year:        ov.Year,
		Month:       ov.Month,
		Total:       ov.Total.String(),
		TotalCents:  ov.Total.Cents,
		BudgetCents: ov.Budget.Cents,
		Categories:  make([]categorySpendDTO, 0, len(ov.ByCategory)),
	}
	for _, c := range ov.ByCategory {
		out.Categories = append(out.Categories, categorySpendDTO{
			CategoryID:     c.CategoryID,
			Name:           c.Name,
			Slug:           c.Slug,
			Color:          c.Color,
			SpentCents:     c.Spent.Cents,
			BudgetCents:    c.Budget.Cents,
			RemainingCents: c.Remaining().Cents,
		})
	}
	return out
}

type importRowDTO struct {
	Index       int    `json:"index"`
	Date        string `json:"date"`
	Description string `json:"description"`
	AmountCents int64  `json:"amountCents"`
	Duplicate   bool   `json:"duplicate"`
}

type importDTO struct {
	ID        string         `json:"id"`
	FileName  string         `json:"fileName"`
	MimeType  string         `json:"mimeType"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Rows      []importRowDTO `json:"rows"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toImportDTO(imp core.StatementImport) importDTO {
	out := importDTO{
		ID:        imp.ID,
		FileName:  imp.FileName,
		MimeType:  imp.MimeType,
		Status:    string(imp.Status),
		Error:     imp.Error,
		Rows:      make([]importRowDTO, 0, len(imp.Rows)),
		CreatedAt: imp.CreatedAt,
	}
	for _, row := range imp.Rows {
		out.Rows = append(out.Rows, importRowDTO{
			Index:       row.Index,
			Date:        row.Date.String(),
			Description: row.Description,
			AmountCents: row.Amount.Cents,
			Duplicate:   row.Duplicate,
		})
	}
	return out
}
