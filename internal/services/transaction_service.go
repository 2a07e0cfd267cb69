package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"buckify/internal/core"
	applog "buckify/internal/log"
	"buckify/internal/ports"

	"github.com/google/uuid"
)

// TransactionInput carries user supplied transaction fields as strings, the
// way they arrive from a request body.
type TransactionInput struct {
	Description string
	Amount      string
	Date        string
	CategoryID  string
}

type TransactionService struct {
	transactions ports.TransactionRepository
	categories   ports.CategoryRepository
	cache        HouseholdInvalidator
}

func NewTransactionService(transactions ports.TransactionRepository, categories ports.CategoryRepository, cache HouseholdInvalidator) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		categories:   categories,
		cache:        cache,
	}
}

func (s *TransactionService) build(householdID string, in TransactionInput) (core.Transaction, error) {
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	cents, err := core.ParseDecimalToCents(in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		HouseholdID: householdID,
		CategoryID:  strings.TrimSpace(in.CategoryID),
		Description: strings.TrimSpace(in.Description),
		Amount:      core.Money{Cents: cents},
		Date:        date,
	}
	return t, t.Validate()
}

// checkCategory reports ErrCategoryNotFound unless the category exists in the household.
func (s *TransactionService) checkCategory(ctx context.Context, householdID, categoryID string) error {
	c, err := s.categories.GetCategory(ctx, categoryID)
	if errors.Is(err, ports.ErrNotFound) {
		return core.ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("read category: %w", err)
	}
	if c.HouseholdID != householdID {
		return core.ErrCategoryNotFound
	}
	return nil
}

func (s *TransactionService) CreateTransaction(ctx context.Context, householdID string, in TransactionInput) (core.Transaction, error) {
	t, err := s.build(householdID, in)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkCategory(ctx, householdID, t.CategoryID); err != nil {
		return core.Transaction{}, err
	}

	t.ID = uuid.NewString()
	if err := s.transactions.CreateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.invalidate(householdID)

	slog.InfoContext(ctx, "Transaction created",
		applog.FieldComponent, applog.ComponentTransaction,
		applog.FieldHouseholdID, householdID,
		applog.FieldTxID, t.ID,
		applog.FieldAmountCents, t.Amount.Cents)
	return t, nil
}

// GetTransaction returns the transaction if it belongs to householdID.
func (s *TransactionService) GetTransaction(ctx context.Context, householdID, id string) (core.Transaction, error) {
	t, err := s.transactions.GetTransaction(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, err
	}
	if t.HouseholdID != householdID {
		return core.Transaction{}, core.ErrUnauthorized
	}
	return t, nil
}

func (s *TransactionService) UpdateTransaction(ctx context.Context, householdID, id string, in TransactionInput) (core.Transaction, error) {
	if _, err := s.GetTransaction(ctx, householdID, id); err != nil {
		return core.Transaction{}, err
	}
	t, err := s.build(householdID, in)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkCategory(ctx, householdID, t.CategoryID); err != nil {
		return core.Transaction{}, err
	}

	t.ID = id
	if err := s.transactions.UpdateTransaction(ctx, t); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return core.Transaction{}, core.ErrTransactionNotFound
		}
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.invalidate(householdID)
	return t, nil
}

func (s *TransactionService) DeleteTransaction(ctx context.Context, householdID, id string) error {
	if _, err := s.GetTransaction(ctx, householdID, id); err != nil {
		return err
	}
	if err := s.transactions.DeleteTransaction(ctx, id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return core.ErrTransactionNotFound
		}
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.invalidate(householdID)
	return nil
}

// ListTransactions returns the household's transactions for a month, newest first.
func (s *TransactionService) ListTransactions(ctx context.Context, householdID string, year, month int) ([]core.Transaction, error) {
	if err := validateMonth(year, month); err != nil {
		return nil, err
	}
	from, to := core.MonthBounds(year, month)
	ts, err := s.transactions.ListTransactions(ctx, householdID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if ts == nil {
		ts = []core.Transaction{}
	}
	return ts, nil
}

func (s *TransactionService) invalidate(householdID string) {
	if s.cache != nil {
		s.cache.InvalidateHousehold(householdID)
	}
}

func validateMonth(year, month int) error {
	if year < 1 || year > 9999 || month < 1 || month > 12 {
		return core.ErrInvalidDate
	}
	return nil
}
