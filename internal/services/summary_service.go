package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"buckify/internal/cache"
	"buckify/internal/core"
	applog "buckify/internal/log"
	"buckify/internal/ports"

	"golang.org/x/sync/errgroup"
)

// SummaryService builds month overviews and caches them per household and month.
type SummaryService struct {
	reader     ports.DashboardReader
	categories ports.CategoryRepository
	loader     *cache.Loader[core.MonthOverview]
}

func NewSummaryService(reader ports.DashboardReader, categories ports.CategoryRepository, c *cache.LRUCache[core.MonthOverview]) *SummaryService {
	return &SummaryService{
		reader:     reader,
		categories: categories,
		loader:     cache.NewLoader(c),
	}
}

func overviewKey(householdID string, year, month int) string {
	return fmt.Sprintf("%s:%04d-%02d", householdID, year, month)
}

// MonthOverview returns total spend and per-category spend for a month,
// categories ordered by spend descending.
func (s *SummaryService) MonthOverview(ctx context.Context, householdID string, year, month int) (core.MonthOverview, error) {
	if err := validateMonth(year, month); err != nil {
		return core.MonthOverview{}, err
	}
	return s.loader.Get(ctx, overviewKey(householdID, year, month), func(ctx context.Context) (core.MonthOverview, error) {
		return s.compute(ctx, householdID, year, month)
	})
}

// InvalidateHousehold implements HouseholdInvalidator.
func (s *SummaryService) InvalidateHousehold(householdID string) {
	if n := s.loader.Invalidate(householdID + ":"); n > 0 {
		slog.Debug("Dashboard cache invalidated",
			applog.FieldComponent, applog.ComponentCache,
			applog.FieldHouseholdID, householdID,
			applog.FieldCount, n)
	}
}

func (s *SummaryService) compute(ctx context.Context, householdID string, year, month int) (core.MonthOverview, error) {
	from, to := core.MonthBounds(year, month)

	var (
		total      core.Money
		sums       []core.CategorySum
		categories []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.reader.MonthTotal(gctx, householdID, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		sums, err = s.reader.CategorySums(gctx, householdID, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.categories.ListCategories(gctx, householdID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.MonthOverview{}, fmt.Errorf("month overview: %w", err)
	}

	spent := make(map[string]core.Money, len(sums))
	for _, sum := range sums {
		spent[sum.CategoryID] = sum.Total
	}

	ov := core.MonthOverview{
		HouseholdID: householdID,
		Year:        year,
		Month:       month,
		Total:       total,
		ByCategory:  make([]core.CategorySpend, 0, len(categories)),
	}
	for _, c := range categories {
		ov.Budget.Cents += c.Budget.Cents
		ov.ByCategory = append(ov.ByCategory, core.CategorySpend{
			CategoryID: c.ID,
			Name:       c.Name,
			Slug:       c.Slug,
			Color:      c.Color,
			Spent:      spent[c.ID],
			Budget:     c.Budget,
		})
	}
	sort.SliceStable(ov.ByCategory, func(i, j int) bool {
		a, b := ov.ByCategory[i], ov.ByCategory[j]
		if a.Spent.Cents != b.Spent.Cents {
			return a.Spent.Cents > b.Spent.Cents
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return ov, nil
}
