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

// DefaultCategoryDeleteLimit is the largest number of dependent transactions a
// single deletion may touch.
const DefaultCategoryDeleteLimit = 450

// Messages returned in DeleteCategoryResult.
const (
	MsgCategoryDeleted    = "Category deleted successfully"
	MsgCategoryNotFound   = "Category not found"
	MsgUnauthorized       = "Unauthorized"
	MsgTargetNotFound     = "Target category not found"
	MsgTargetUnauthorized = "Target category unauthorized"
	MsgTargetIsSource     = "Cannot transfer transactions to the category being deleted"
	MsgDeleteFailed       = "Error deleting category"
)

// DeleteCategoryResult is what callers of DeleteCategory always get back.
type DeleteCategoryResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HouseholdInvalidator drops cached data derived from a household's records.
type HouseholdInvalidator interface {
	InvalidateHousehold(householdID string)
}

// CategoryInput carries user supplied category fields. Budget is a decimal
// string; empty means no budget.
type CategoryInput struct {
	Name        string
	Description string
	Budget      string
	Color       string
	Icon        string
}

type CategoryService struct {
	store       ports.CategoryStore
	repo        ports.CategoryRepository
	deleteLimit int
	cache       HouseholdInvalidator
	events      *applog.StructuredLogger
}

type CategoryOption func(*CategoryService)

// WithDeleteLimit overrides DefaultCategoryDeleteLimit. Non-positive values are ignored.
func WithDeleteLimit(n int) CategoryOption {
	return func(s *CategoryService) {
		if n > 0 {
			s.deleteLimit = n
		}
	}
}

func WithCacheInvalidator(inv HouseholdInvalidator) CategoryOption {
	return func(s *CategoryService) { s.cache = inv }
}

func NewCategoryService(store ports.CategoryStore, repo ports.CategoryRepository, opts ...CategoryOption) *CategoryService {
	s := &CategoryService{
		store:       store,
		repo:        repo,
		deleteLimit: DefaultCategoryDeleteLimit,
		events: applog.NewStructuredLogger(applog.New(applog.Config{
			Handler:   slog.Default().Handler(),
			Component: applog.ComponentCategory,
		})),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CategoryService) DeleteLimit() int { return s.deleteLimit }

// tooManyTransactionsError reports the count that tripped the limit.
type tooManyTransactionsError struct {
	count, limit int
}

func (e *tooManyTransactionsError) Error() string {
	return fmt.Sprintf("%s: %d (limit %d)", core.ErrTooManyTransactions, e.count, e.limit)
}

func (e *tooManyTransactionsError) Unwrap() error { return core.ErrTooManyTransactions }

// DeleteCategory removes a category and its dependent transactions, or moves
// them to transferTo when given. transferTo may be a category id or a slug of
// the caller's household; nil or empty means delete the transactions.
// Failures never surface as errors, only as an unsuccessful result.
func (s *CategoryService) DeleteCategory(ctx context.Context, id, householdID string, transferTo *string) DeleteCategoryResult {
	target := ""
	if transferTo != nil {
		target = strings.TrimSpace(*transferTo)
	}

	resolved, moved, err := s.deleteCategory(ctx, id, householdID, target)
	if err != nil {
		return s.deleteFailure(ctx, id, householdID, target, err)
	}

	if s.cache != nil {
		s.cache.InvalidateHousehold(householdID)
	}
	s.events.LogCategoryDeleted(ctx, householdID, id, resolved, moved)
	return DeleteCategoryResult{Success: true, Message: MsgCategoryDeleted}
}

func (s *CategoryService) deleteCategory(ctx context.Context, id, householdID, target string) (string, int, error) {
	// Best effort guard outside the transaction; a concurrent insert may slip past it.
	count, err := s.store.CountTransactionsByCategory(ctx, id)
	if err != nil {
		return "", 0, fmt.Errorf("count transactions: %w", err)
	}
	if count > s.deleteLimit {
		return "", 0, &tooManyTransactionsError{count: count, limit: s.deleteLimit}
	}

	var (
		dest  string
		moved int
	)
	err = s.store.RunInTx(ctx, func(tx ports.CategoryTx) error {
		cat, err := tx.GetCategory(ctx, id)
		if errors.Is(err, ports.ErrNotFound) {
			return core.ErrCategoryNotFound
		}
		if err != nil {
			return fmt.Errorf("read category: %w", err)
		}
		if cat.HouseholdID != householdID {
			return core.ErrUnauthorized
		}

		if target != "" {
			dest, err = resolveCategoryID(ctx, tx, target, householdID)
			if err != nil {
				return err
			}
			if dest == id {
				return core.ErrTargetIsSource
			}
		}

		dependents, err := tx.ListTransactionsByCategory(ctx, id)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		for _, t := range dependents {
			if dest != "" {
				err = tx.UpdateTransactionCategory(ctx, t.ID, dest)
			} else {
				err = tx.DeleteTransaction(ctx, t.ID)
			}
			if err != nil {
				return fmt.Errorf("transaction %s: %w", t.ID, err)
			}
		}
		moved = len(dependents)

		if err := tx.DeleteCategory(ctx, id); err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return nil
	})
	return dest, moved, err
}

// resolveCategoryID maps a transfer target to a category id: first as an id,
// then as a slug within householdID.
func resolveCategoryID(ctx context.Context, tx ports.CategoryTx, candidate, householdID string) (string, error) {
	c, err := tx.GetCategory(ctx, candidate)
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrNotFound):
		c, err = tx.FindCategoryBySlug(ctx, householdID, candidate)
		if errors.Is(err, ports.ErrNotFound) {
			return "", core.ErrTargetCategoryNotFound
		}
		if err != nil {
			return "", fmt.Errorf("resolve target by slug: %w", err)
		}
	default:
		return "", fmt.Errorf("resolve target by id: %w", err)
	}

	if c.HouseholdID != householdID {
		return "", core.ErrTargetCategoryUnauthorized
	}
	return c.ID, nil
}

func (s *CategoryService) deleteFailure(ctx context.Context, id, householdID, target string, err error) DeleteCategoryResult {
	fields := applog.NewFields().WithHousehold(householdID).WithCategory(id, target)

	var tooMany *tooManyTransactionsError
	msg := ""
	switch {
	case errors.As(err, &tooMany):
		msg = fmt.Sprintf("Category has %d transactions, more than the %d that can be deleted at once. Reduce them manually and try again.",
			tooMany.count, tooMany.limit)
	case errors.Is(err, core.ErrCategoryNotFound):
		msg = MsgCategoryNotFound
	case errors.Is(err, core.ErrUnauthorized):
		msg = MsgUnauthorized
	case errors.Is(err, core.ErrTargetCategoryNotFound):
		msg = MsgTargetNotFound
	case errors.Is(err, core.ErrTargetCategoryUnauthorized):
		msg = MsgTargetUnauthorized
	case errors.Is(err, core.ErrTargetIsSource):
		msg = MsgTargetIsSource
	default:
		s.events.LogError(ctx, "Failed to delete category", err, applog.ComponentCategory, applog.OpDelete, fields)
		return DeleteCategoryResult{Success: false, Message: MsgDeleteFailed}
	}

	slog.WarnContext(ctx, "Category deletion rejected", append(fields.WithError(err).ToSlice(), applog.FieldComponent, applog.ComponentCategory)...)
	return DeleteCategoryResult{Success: false, Message: msg}
}

// CreateCategory adds a category with a slug unique in the household.
func (s *CategoryService) CreateCategory(ctx context.Context, householdID string, in CategoryInput) (core.Category, error) {
	budget, err := core.ParseBudget(in.Budget)
	if err != nil {
		return core.Category{}, err
	}
	c := core.Category{
		ID:          uuid.NewString(),
		HouseholdID: householdID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Budget:      budget,
		Color:       strings.TrimSpace(in.Color),
		Icon:        strings.TrimSpace(in.Icon),
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	if c.Slug, err = s.uniqueSlug(ctx, householdID, core.Slugify(c.Name)); err != nil {
		return core.Category{}, err
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}

	s.invalidate(householdID)
	slog.InfoContext(ctx, "Category created",
		applog.FieldComponent, applog.ComponentCategory,
		applog.FieldHouseholdID, householdID,
		applog.FieldCategoryID, c.ID,
		"slug", c.Slug)
	return c, nil
}

// UpdateCategory replaces the editable fields. The household never changes;
// the slug follows the name.
func (s *CategoryService) UpdateCategory(ctx context.Context, householdID, id string, in CategoryInput) (core.Category, error) {
	c, err := s.GetCategory(ctx, householdID, id)
	if err != nil {
		return core.Category{}, err
	}
	budget, err := core.ParseBudget(in.Budget)
	if err != nil {
		return core.Category{}, err
	}

	oldName := c.Name
	c.Name = strings.TrimSpace(in.Name)
	c.Description = strings.TrimSpace(in.Description)
	c.Budget = budget
	c.Color = strings.TrimSpace(in.Color)
	c.Icon = strings.TrimSpace(in.Icon)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	if base := core.Slugify(c.Name); c.Name != oldName && base != c.Slug {
		if c.Slug, err = s.uniqueSlug(ctx, householdID, base); err != nil {
			return core.Category{}, err
		}
	}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}

	s.invalidate(householdID)
	return c, nil
}

// GetCategory returns the category if it belongs to householdID.
func (s *CategoryService) GetCategory(ctx context.Context, householdID, id string) (core.Category, error) {
	c, err := s.repo.GetCategory(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return core.Category{}, core.ErrCategoryNotFound
	}
	if err != nil {
		return core.Category{}, err
	}
	if c.HouseholdID != householdID {
		return core.Category{}, core.ErrUnauthorized
	}
	return c, nil
}

func (s *CategoryService) ListCategories(ctx context.Context, householdID string) ([]core.Category, error) {
	cs, err := s.repo.ListCategories(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		cs = []core.Category{}
	}
	return cs, nil
}

func (s *CategoryService) uniqueSlug(ctx context.Context, householdID, base string) (string, error) {
	var lookupErr error
	slug := core.UniqueSlug(base, func(candidate string) bool {
		if lookupErr != nil {
			return false
		}
		taken, err := s.repo.SlugExists(ctx, householdID, candidate)
		if err != nil {
			lookupErr = err
			return false
		}
		return taken
	})
	if lookupErr != nil {
		return "", fmt.Errorf("check slug: %w", lookupErr)
	}
	return slug, nil
}

func (s *CategoryService) invalidate(householdID string) {
	if s.cache != nil {
		s.cache.InvalidateHousehold(householdID)
	}
}
