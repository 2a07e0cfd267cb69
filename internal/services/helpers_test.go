package services

import (
	"context"
	"path/filepath"
	"testing"

	"buckify/internal/core"
	"buckify/internal/memory"
	"buckify/internal/ports"
	"buckify/internal/storage"
)

// testStore is what the service tests need from a backend.
type testStore interface {
	ports.CategoryStore
	ports.CategoryRepository
	ports.TransactionRepository
	ports.DashboardReader
	ports.ImportRepository
}

type storeCase struct {
	name string
	open func(t *testing.T) testStore
}

func storeCases() []storeCase {
	return []storeCase{
		{name: "memory", open: func(t *testing.T) testStore { return memory.New(nil) }},
		{name: "sqlite", open: func(t *testing.T) testStore {
			t.Helper()
			repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "buckify.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { repo.Close() })
			return repo
		}},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, st testStore)) {
	for _, sc := range storeCases() {
		t.Run(sc.name, func(t *testing.T) {
			fn(t, sc.open(t))
		})
	}
}

func addCategory(t *testing.T, st testStore, id, household, slug string) {
	t.Helper()
	err := st.CreateCategory(context.Background(), core.Category{ID: id, HouseholdID: household, Name: slug, Slug: slug})
	if err != nil {
		t.Fatalf("CreateCategory(%s): %v", id, err)
	}
}

func addTransaction(t *testing.T, st testStore, id, household, category string, cents int64, d core.Date) {
	t.Helper()
	err := st.CreateTransaction(context.Background(), core.Transaction{
		ID: id, HouseholdID: household, CategoryID: category,
		Description: "tx " + id, Amount: core.Money{Cents: cents}, Date: d,
	})
	if err != nil {
		t.Fatalf("CreateTransaction(%s): %v", id, err)
	}
}

type recordingInvalidator struct {
	households []string
}

func (r *recordingInvalidator) InvalidateHousehold(householdID string) {
	r.households = append(r.households, householdID)
}

func strPtr(s string) *string { return &s }
