package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"buckify/internal/cache"
	"buckify/internal/core"
	"buckify/internal/ports"
)

// countingReader counts MonthTotal calls to observe cache hits.
type countingReader struct {
	ports.DashboardReader
	calls atomic.Int32
	err   error
}

func (c *countingReader) MonthTotal(ctx context.Context, householdID string, from, to core.Date) (core.Money, error) {
	c.calls.Add(1)
	if c.err != nil {
		return core.Money{}, c.err
	}
	return c.DashboardReader.MonthTotal(ctx, householdID, from, to)
}

func newOverviewCache() *cache.LRUCache[core.MonthOverview] {
	return cache.NewLRUCache[core.MonthOverview](16, time.Minute)
}

func TestMonthOverview(t *testing.T) {
	forEachStore(t, func(t *testing.T, st testStore) {
		ctx := context.Background()
		for _, c := range []core.Category{
			{ID: "food", HouseholdID: "h1", Name: "Food", Slug: "food", Budget: core.Money{Cents: 20000}, Color: "#0f0"},
			{ID: "fun", HouseholdID: "h1", Name: "Fun", Slug: "fun", Budget: core.Money{Cents: 1000}},
			{ID: "idle", HouseholdID: "h1", Name: "Idle", Slug: "idle"},
		} {
			if err := st.CreateCategory(ctx, c); err != nil {
				t.Fatalf("CreateCategory: %v", err)
			}
		}
		addTransaction(t, st, "t1", "h1", "food", 5000, core.NewDate(2025, 3, 1))
		addTransaction(t, st, "t2", "h1", "fun", 1500, core.NewDate(2025, 3, 2))
		addTransaction(t, st, "t3", "h1", "food", 2500, core.NewDate(2025, 3, 31))
		addTransaction(t, st, "t4", "h1", "food", 9999, core.NewDate(2025, 4, 1))

		svc := NewSummaryService(st, st, newOverviewCache())
		ov, err := svc.MonthOverview(ctx, "h1", 2025, 3)
		if err != nil {
			t.Fatalf("MonthOverview: %v", err)
		}
		if ov.Total.Cents != 9000 || ov.Budget.Cents != 21000 || ov.Year != 2025 || ov.Month != 3 {
			t.Errorf("overview = %+v", ov)
		}
		if len(ov.ByCategory) != 3 {
			t.Fatalf("ByCategory = %+v", ov.ByCategory)
		}
		food, fun, idle := ov.ByCategory[0], ov.ByCategory[1], ov.ByCategory[2]
		if food.CategoryID != "food" || food.Spent.Cents != 7500 || food.Remaining().Cents != 12500 || food.Color != "#0f0" {
			t.Errorf("food = %+v", food)
		}
		if fun.CategoryID != "fun" || fun.Remaining().Cents != -500 {
			t.Errorf("fun = %+v (remaining %d)", fun, fun.Remaining().Cents)
		}
		if idle.Spent.Cents != 0 || idle.Remaining().Cents != 0 {
			t.Errorf("idle = %+v", idle)
		}

		if _, err := svc.MonthOverview(ctx, "h1", 2025, 0); !errors.Is(err, core.ErrInvalidDate) {
			t.Errorf("month 0 err = %v", err)
		}
	})
}

func TestMonthOverviewCachingAndInvalidation(t *testing.T) {
	st := storeCases()[0].open(t)
	ctx := context.Background()
	addCategory(t, st, "food", "h1", "food")
	addTransaction(t, st, "t1", "h1", "food", 100, march)

	reader := &countingReader{DashboardReader: st}
	summary := NewSummaryService(reader, st, newOverviewCache())
	txs := NewTransactionService(st, st, summary)

	for i := 0; i < 3; i++ {
		ov, err := summary.MonthOverview(ctx, "h1", 2025, 3)
		if err != nil || ov.Total.Cents != 100 {
			t.Fatalf("MonthOverview = %+v, %v", ov, err)
		}
	}
	if got := reader.calls.Load(); got != 1 {
		t.Fatalf("reader called %d times, want 1", got)
	}

	if _, err := txs.CreateTransaction(ctx, "h1", TransactionInput{Description: "x", Amount: "2", Date: "2025-03-11", CategoryID: "food"}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	ov, _ := summary.MonthOverview(ctx, "h1", 2025, 3)
	if ov.Total.Cents != 300 {
		t.Errorf("stale overview after create: total = %d", ov.Total.Cents)
	}
	if got := reader.calls.Load(); got != 2 {
		t.Errorf("reader called %d times, want 2", got)
	}

	cats := NewCategoryService(st, st, WithCacheInvalidator(summary))
	if res := cats.DeleteCategory(ctx, "food", "h1", nil); !res.Success {
		t.Fatalf("DeleteCategory: %+v", res)
	}
	ov, _ = summary.MonthOverview(ctx, "h1", 2025, 3)
	if ov.Total.Cents != 0 || len(ov.ByCategory) != 0 {
		t.Errorf("stale overview after delete: %+v", ov)
	}
}

func TestMonthOverviewErrorNotCached(t *testing.T) {
	st := storeCases()[0].open(t)
	reader := &countingReader{DashboardReader: st, err: errors.New("store down")}
	svc := NewSummaryService(reader, st, newOverviewCache())

	if _, err := svc.MonthOverview(context.Background(), "h1", 2025, 3); err == nil {
		t.Fatal("expected error")
	}
	reader.err = nil
	if _, err := svc.MonthOverview(context.Background(), "h1", 2025, 3); err != nil {
		t.Fatalf("error was cached: %v", err)
	}
}
