package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"buckify/internal/core"
	"buckify/internal/ports"
)

func mustCategory(t *testing.T, s *Store, id, household, slug string) {
	t.Helper()
	if err := s.CreateCategory(context.Background(), core.Category{ID: id, HouseholdID: household, Name: slug, Slug: slug}); err != nil {
		t.Fatalf("CreateCategory(%s): %v", id, err)
	}
}

func mustTransaction(t *testing.T, s *Store, id, household, category string, cents int64, d core.Date) {
	t.Helper()
	err := s.CreateTransaction(context.Background(), core.Transaction{
		ID: id, HouseholdID: household, CategoryID: category, Description: id, Amount: core.Money{Cents: cents}, Date: d,
	})
	if err != nil {
		t.Fatalf("CreateTransaction(%s): %v", id, err)
	}
}

func TestNewFromFilesSeedsAndDedupe(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// No file -> built-in defaults
	s := NewFromFiles(dir)
	cats, err := s.ListCategories(ctx, "h1")
	if err != nil || len(cats) == 0 {
		t.Fatalf("expected defaults when file missing: %v %v", cats, err)
	}

	content := "# header\nFood & Drinks\nRent\nFood & Drinks\n\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s = NewFromFiles(dir)
	cats, _ = s.ListCategories(ctx, "h1")
	if len(cats) != 2 || cats[0].Slug != "food-drinks" || cats[1].Slug != "rent" {
		t.Fatalf("unexpected cats: %+v", cats)
	}

	// Seeding happens once.
	again, _ := s.ListCategories(ctx, "h1")
	if len(again) != 2 {
		t.Fatalf("seeded twice: %+v", again)
	}
}

func TestSeedSkipsHouseholdWithCategories(t *testing.T) {
	ctx := context.Background()
	s := New([]string{"A", "B"})
	mustCategory(t, s, "c1", "h1", "mine")

	cats, _ := s.ListCategories(ctx, "h1")
	if len(cats) != 1 || cats[0].ID != "c1" {
		t.Fatalf("unexpected cats: %+v", cats)
	}
}

func TestRunInTxIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	mustCategory(t, s, "src", "h1", "src")
	mustCategory(t, s, "dst", "h1", "dst")
	mustTransaction(t, s, "t1", "h1", "src", 100, core.NewDate(2025, 1, 1))
	mustTransaction(t, s, "t2", "h1", "src", 200, core.NewDate(2025, 1, 2))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx ports.CategoryTx) error {
		if err := tx.DeleteTransaction(ctx, "t1"); err != nil {
			return err
		}
		if err := tx.UpdateTransactionCategory(ctx, "t2", "dst"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx error = %v, want boom", err)
	}
	if n, _ := s.CountTransactionsByCategory(ctx, "src"); n != 2 {
		t.Fatalf("writes leaked from failed tx: count = %d", n)
	}

	err = s.RunInTx(ctx, func(tx ports.CategoryTx) error {
		if err := tx.DeleteTransaction(ctx, "t1"); err != nil {
			return err
		}
		if err := tx.UpdateTransactionCategory(ctx, "t2", "dst"); err != nil {
			return err
		}
		return tx.DeleteCategory(ctx, "src")
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	if _, err := s.GetCategory(ctx, "src"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("src still present: %v", err)
	}
	if got, _ := s.GetTransaction(ctx, "t2"); got.CategoryID != "dst" {
		t.Errorf("t2 category = %s, want dst", got.CategoryID)
	}
}

func TestDeleteReferencedCategoryFails(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	mustCategory(t, s, "c1", "h1", "food")
	mustTransaction(t, s, "t1", "h1", "c1", 100, core.NewDate(2025, 1, 1))

	err := s.RunInTx(ctx, func(tx ports.CategoryTx) error { return tx.DeleteCategory(ctx, "c1") })
	if err == nil {
		t.Fatal("expected error deleting referenced category")
	}
}

func TestRunInTxHonoursCancelledContext(t *testing.T) {
	s := New(nil)
	mustCategory(t, s, "c1", "h1", "food")

	ctx, cancel := context.WithCancel(context.Background())
	err := s.RunInTx(ctx, func(tx ports.CategoryTx) error {
		cancel()
		return tx.DeleteCategory(ctx, "c1")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunInTx error = %v, want context.Canceled", err)
	}
	if _, err := s.GetCategory(context.Background(), "c1"); err != nil {
		t.Errorf("category deleted despite cancelled tx: %v", err)
	}
}

func TestCreateTransactionRequiresCategory(t *testing.T) {
	s := New(nil)
	err := s.CreateTransaction(context.Background(), core.Transaction{
		ID: "t1", HouseholdID: "h1", CategoryID: "nope", Description: "x", Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1),
	})
	if err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestCreateTransactionsIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	mustCategory(t, s, "c1", "h1", "food")
	err := s.CreateTransactions(ctx, []core.Transaction{
		{ID: "a", HouseholdID: "h1", CategoryID: "c1", Description: "a", Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)},
		{ID: "b", HouseholdID: "h1", CategoryID: "nope", Description: "b", Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, err := s.GetTransaction(ctx, "a"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("partial batch committed: %v", err)
	}
}

func TestListTransactionsAndSums(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	mustCategory(t, s, "food", "h1", "food")
	mustCategory(t, s, "fun", "h1", "fun")
	mustCategory(t, s, "x", "h2", "x")
	mustTransaction(t, s, "t1", "h1", "food", 1000, core.NewDate(2025, 3, 1))
	mustTransaction(t, s, "t2", "h1", "food", 250, core.NewDate(2025, 3, 31))
	mustTransaction(t, s, "t3", "h1", "fun", 500, core.NewDate(2025, 3, 31))
	mustTransaction(t, s, "t4", "h1", "fun", 999, core.NewDate(2025, 4, 1))
	mustTransaction(t, s, "t5", "h2", "x", 777, core.NewDate(2025, 3, 10))

	from, to := core.MonthBounds(2025, 3)
	ts, _ := s.ListTransactions(ctx, "h1", from, to)
	want := []string{"t3", "t2", "t1"}
	if len(ts) != len(want) {
		t.Fatalf("got %d transactions, want %d", len(ts), len(want))
	}
	for i, id := range want {
		if ts[i].ID != id {
			t.Errorf("ts[%d] = %s, want %s", i, ts[i].ID, id)
		}
	}

	total, _ := s.MonthTotal(ctx, "h1", from, to)
	if total.Cents != 1750 {
		t.Errorf("MonthTotal = %d, want 1750", total.Cents)
	}
	sums, _ := s.CategorySums(ctx, "h1", from, to)
	if len(sums) != 2 || sums[0].CategoryID != "food" || sums[0].Count != 2 || sums[1].Total.Cents != 500 {
		t.Errorf("CategorySums = %+v", sums)
	}
}

func TestSlugUniquePerHousehold(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	mustCategory(t, s, "c1", "h1", "food")
	mustCategory(t, s, "c2", "h2", "food")
	if err := s.CreateCategory(ctx, core.Category{ID: "c3", HouseholdID: "h1", Name: "Food", Slug: "food"}); err == nil {
		t.Fatal("expected duplicate slug error")
	}
	if ok, _ := s.SlugExists(ctx, "h1", "food"); !ok {
		t.Error("SlugExists(h1, food) = false")
	}
}

func TestImportsPurge(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_ = s.CreateImport(ctx, core.StatementImport{ID: "old", HouseholdID: "h1", Status: core.ImportPending, CreatedAt: time.Now().Add(-48 * time.Hour)})
	_ = s.CreateImport(ctx, core.StatementImport{ID: "new", HouseholdID: "h1", Status: core.ImportPending})

	rows := []core.ImportRow{{Index: 0, Date: core.NewDate(2025, 1, 1), Description: "x", Amount: core.Money{Cents: 5}}}
	if err := s.SaveImportResult(ctx, "new", core.ImportReady, rows, ""); err != nil {
		t.Fatalf("SaveImportResult: %v", err)
	}
	got, _ := s.GetImport(ctx, "new")
	if got.Status != core.ImportReady || len(got.Rows) != 1 {
		t.Errorf("GetImport = %+v", got)
	}

	n, _ := s.PurgeImportsBefore(ctx, time.Now().Add(-24*time.Hour))
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if _, err := s.GetImport(ctx, "old"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("old import survived: %v", err)
	}
}

func TestConfirmImport(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	mustCategory(t, s, "c1", "h1", "food")
	_ = s.CreateImport(ctx, core.StatementImport{ID: "imp", HouseholdID: "h1", Status: core.ImportReady})
	_ = s.CreateImport(ctx, core.StatementImport{ID: "pending", HouseholdID: "h1", Status: core.ImportPending})

	good := core.Transaction{ID: "a", HouseholdID: "h1", CategoryID: "c1", Description: "a", Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)}
	bad := good
	bad.ID, bad.CategoryID = "b", "nope"

	if err := s.ConfirmImport(ctx, "imp", []core.Transaction{good, bad}); err == nil {
		t.Fatal("expected error for unknown category")
	}
	if got, _ := s.GetImport(ctx, "imp"); got.Status != core.ImportReady {
		t.Errorf("status after failed confirm = %s, want ready", got.Status)
	}
	if _, err := s.GetTransaction(ctx, "a"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("partial batch committed: %v", err)
	}

	if err := s.ConfirmImport(ctx, "imp", []core.Transaction{good}); err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}
	if got, _ := s.GetImport(ctx, "imp"); got.Status != core.ImportConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}

	tests := []struct {
		name string
		id   string
		want error
	}{
		{"already confirmed", "imp", ports.ErrStaleState},
		{"still pending", "pending", ports.ErrStaleState},
		{"unknown", "nope", ports.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.ConfirmImport(ctx, tt.id, nil); !errors.Is(err, tt.want) {
				t.Errorf("ConfirmImport(%s) error = %v, want %v", tt.id, err, tt.want)
			}
		})
	}
}

func TestHouseholdMembers(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	if err := s.CreateHousehold(ctx, core.Household{ID: "h1", Name: "Home", OwnerID: "u1"}); err != nil {
		t.Fatalf("CreateHousehold: %v", err)
	}
	_ = s.AddMember(ctx, "h1", "u2")
	_ = s.AddMember(ctx, "h1", "u2")
	h, err := s.GetHousehold(ctx, "h1")
	if err != nil || len(h.MemberIDs) != 1 || !h.HasMember("u2") {
		t.Errorf("GetHousehold = %+v, %v", h, err)
	}
	if err := s.AddMember(ctx, "nope", "u2"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("AddMember(nope) = %v", err)
	}
}
