package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"buckify/internal/core"
	"buckify/internal/ports"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "buckify.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedCategory(t *testing.T, repo *SQLiteRepository, id, household, slug string) core.Category {
	t.Helper()
	c := core.Category{ID: id, HouseholdID: household, Name: slug, Slug: slug}
	if err := repo.CreateCategory(context.Background(), c); err != nil {
		t.Fatalf("CreateCategory(%s): %v", id, err)
	}
	return c
}

func seedTransaction(t *testing.T, repo *SQLiteRepository, id, household, category string, cents int64, date core.Date) {
	t.Helper()
	tx := core.Transaction{
		ID: id, HouseholdID: household, CategoryID: category,
		Description: "t " + id, Amount: core.Money{Cents: cents}, Date: date,
	}
	if err := repo.CreateTransaction(context.Background(), tx); err != nil {
		t.Fatalf("CreateTransaction(%s): %v", id, err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buckify.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		if err := repo.Ping(context.Background()); err != nil {
			t.Fatalf("ping #%d: %v", i+1, err)
		}
		repo.Close()
	}
}

func TestCategoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	c := seedCategory(t, repo, "c1", "h1", "food")

	got, err := repo.GetCategory(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCategory: %v", err)
	}
	if got != c {
		t.Errorf("GetCategory = %+v, want %+v", got, c)
	}

	if _, err := repo.GetCategory(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetCategory(missing) error = %v, want ErrNotFound", err)
	}

	exists, err := repo.SlugExists(ctx, "h1", "food")
	if err != nil || !exists {
		t.Errorf("SlugExists(h1, food) = %v, %v; want true", exists, err)
	}
	exists, err = repo.SlugExists(ctx, "h2", "food")
	if err != nil || exists {
		t.Errorf("SlugExists(h2, food) = %v, %v; want false", exists, err)
	}

	// Same slug in another household is allowed, same household is not.
	seedCategory(t, repo, "c2", "h2", "food")
	if err := repo.CreateCategory(ctx, core.Category{ID: "c3", HouseholdID: "h1", Name: "x", Slug: "food"}); err == nil {
		t.Error("expected unique violation for duplicate slug in household")
	}

	c.Name = "Groceries"
	c.Budget = core.Money{Cents: 50000}
	if err := repo.UpdateCategory(ctx, c); err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	list, err := repo.ListCategories(ctx, "h1")
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Groceries" || list[0].Budget.Cents != 50000 {
		t.Errorf("ListCategories = %+v", list)
	}

	if err := repo.UpdateCategory(ctx, core.Category{ID: "missing", Name: "x", Slug: "x"}); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("UpdateCategory(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRunInTxCommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "src", "h1", "src")
	seedCategory(t, repo, "dst", "h1", "dst")
	seedTransaction(t, repo, "t1", "h1", "src", 100, core.NewDate(2025, 3, 1))
	seedTransaction(t, repo, "t2", "h1", "src", 200, core.NewDate(2025, 3, 2))

	boom := errors.New("boom")
	err := repo.RunInTx(ctx, func(tx ports.CategoryTx) error {
		if err := tx.UpdateTransactionCategory(ctx, "t1", "dst"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx error = %v, want boom", err)
	}
	got, _ := repo.GetTransaction(ctx, "t1")
	if got.CategoryID != "src" {
		t.Errorf("rolled back write is visible: category = %s", got.CategoryID)
	}

	err = repo.RunInTx(ctx, func(tx ports.CategoryTx) error {
		ts, err := tx.ListTransactionsByCategory(ctx, "src")
		if err != nil {
			return err
		}
		for _, tr := range ts {
			if err := tx.UpdateTransactionCategory(ctx, tr.ID, "dst"); err != nil {
				return err
			}
		}
		return tx.DeleteCategory(ctx, "src")
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	n, err := repo.CountTransactionsByCategory(ctx, "dst")
	if err != nil || n != 2 {
		t.Errorf("CountTransactionsByCategory(dst) = %d, %v; want 2", n, err)
	}
	if _, err := repo.GetCategory(ctx, "src"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("source category still present: %v", err)
	}
}

func TestDeleteCategoryWithTransactionsViolatesForeignKey(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "c1", "h1", "food")
	seedTransaction(t, repo, "t1", "h1", "c1", 100, core.NewDate(2025, 3, 1))

	err := repo.RunInTx(ctx, func(tx ports.CategoryTx) error {
		return tx.DeleteCategory(ctx, "c1")
	})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
	if _, err := repo.GetCategory(ctx, "c1"); err != nil {
		t.Errorf("category lost after failed delete: %v", err)
	}
}

func TestFindCategoryBySlugInTx(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "c1", "h1", "food")

	err := repo.RunInTx(ctx, func(tx ports.CategoryTx) error {
		c, err := tx.FindCategoryBySlug(ctx, "h1", "food")
		if err != nil {
			return err
		}
		if c.ID != "c1" {
			t.Errorf("FindCategoryBySlug = %s, want c1", c.ID)
		}
		if _, err := tx.FindCategoryBySlug(ctx, "h2", "food"); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("FindCategoryBySlug(h2) error = %v, want ErrNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
}

func TestListTransactionsAndDashboard(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "food", "h1", "food")
	seedCategory(t, repo, "fun", "h1", "fun")
	seedCategory(t, repo, "other", "h2", "other")

	seedTransaction(t, repo, "t1", "h1", "food", 1000, core.NewDate(2025, 3, 1))
	seedTransaction(t, repo, "t2", "h1", "food", 250, core.NewDate(2025, 3, 31))
	seedTransaction(t, repo, "t3", "h1", "fun", 500, core.NewDate(2025, 3, 15))
	seedTransaction(t, repo, "t4", "h1", "fun", 999, core.NewDate(2025, 4, 1))
	seedTransaction(t, repo, "t5", "h2", "other", 777, core.NewDate(2025, 3, 10))

	from, to := core.MonthBounds(2025, 3)
	ts, err := repo.ListTransactions(ctx, "h1", from, to)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	var ids []string
	for _, tr := range ts {
		ids = append(ids, tr.ID)
	}
	want := []string{"t2", "t3", "t1"}
	if len(ids) != len(want) {
		t.Fatalf("ListTransactions ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ListTransactions ids = %v, want %v", ids, want)
		}
	}

	total, err := repo.MonthTotal(ctx, "h1", from, to)
	if err != nil || total.Cents != 1750 {
		t.Errorf("MonthTotal = %d, %v; want 1750", total.Cents, err)
	}

	sums, err := repo.CategorySums(ctx, "h1", from, to)
	if err != nil {
		t.Fatalf("CategorySums: %v", err)
	}
	if len(sums) != 2 || sums[0].CategoryID != "food" || sums[0].Total.Cents != 1250 || sums[0].Count != 2 ||
		sums[1].CategoryID != "fun" || sums[1].Total.Cents != 500 {
		t.Errorf("CategorySums = %+v", sums)
	}

	empty, err := repo.MonthTotal(ctx, "h1", core.NewDate(2020, 1, 1), core.NewDate(2020, 1, 31))
	if err != nil || empty.Cents != 0 {
		t.Errorf("MonthTotal(empty month) = %d, %v", empty.Cents, err)
	}
}

func TestCreateTransactionsIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "c1", "h1", "food")

	batch := []core.Transaction{
		{ID: "a", HouseholdID: "h1", CategoryID: "c1", Description: "a", Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)},
		{ID: "b", HouseholdID: "h1", CategoryID: "missing", Description: "b", Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)},
	}
	if err := repo.CreateTransactions(ctx, batch); err == nil {
		t.Fatal("expected error for unknown category")
	}
	if _, err := repo.GetTransaction(ctx, "a"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("partial batch committed: %v", err)
	}
}

func TestHouseholds(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	h := core.Household{ID: "h1", Name: "Home", OwnerID: "u1", MemberIDs: []string{"u2"}, Currency: "EUR"}
	if err := repo.CreateHousehold(ctx, h); err != nil {
		t.Fatalf("CreateHousehold: %v", err)
	}
	if err := repo.AddMember(ctx, "h1", "u3"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := repo.AddMember(ctx, "h1", "u3"); err != nil {
		t.Fatalf("AddMember twice: %v", err)
	}

	got, err := repo.GetHousehold(ctx, "h1")
	if err != nil {
		t.Fatalf("GetHousehold: %v", err)
	}
	if got.Name != "Home" || got.Currency != "EUR" || len(got.MemberIDs) != 2 {
		t.Errorf("GetHousehold = %+v", got)
	}
	if !got.HasMember("u1") || !got.HasMember("u3") || got.HasMember("u9") {
		t.Errorf("membership wrong: %+v", got)
	}
	if _, err := repo.GetHousehold(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetHousehold(nope) error = %v, want ErrNotFound", err)
	}
}

func TestImportsLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	old := time.Now().Add(-48 * time.Hour)
	for _, imp := range []core.StatementImport{
		{ID: "old", HouseholdID: "h1", FileName: "a.pdf", MimeType: "application/pdf", Content: []byte("%PDF"), Status: core.ImportPending, CreatedAt: old},
		{ID: "new", HouseholdID: "h1", FileName: "b.csv", MimeType: "text/csv", Content: []byte("x"), Status: core.ImportPending},
	} {
		if err := repo.CreateImport(ctx, imp); err != nil {
			t.Fatalf("CreateImport(%s): %v", imp.ID, err)
		}
	}

	rows := []core.ImportRow{
		{Index: 0, Date: core.NewDate(2025, 3, 1), Description: "Coffee", Amount: core.Money{Cents: 350}},
		{Index: 1, Date: core.NewDate(2025, 3, 2), Description: "Rent", Amount: core.Money{Cents: 90000}, Duplicate: true},
	}
	if err := repo.SaveImportResult(ctx, "new", core.ImportReady, rows, ""); err != nil {
		t.Fatalf("SaveImportResult: %v", err)
	}

	got, err := repo.GetImport(ctx, "new")
	if err != nil {
		t.Fatalf("GetImport: %v", err)
	}
	if got.Status != core.ImportReady || len(got.Rows) != 2 || !got.Rows[1].Duplicate || got.Rows[0].Description != "Coffee" {
		t.Errorf("GetImport = %+v", got)
	}
	if string(got.Content) != "x" {
		t.Errorf("content = %q", got.Content)
	}

	if err := repo.ConfirmImport(ctx, "new", nil); err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}
	if got, _ := repo.GetImport(ctx, "new"); got.Status != core.ImportConfirmed {
		t.Errorf("status after confirm = %s", got.Status)
	}
	if err := repo.ConfirmImport(ctx, "new", nil); !errors.Is(err, ports.ErrStaleState) {
		t.Errorf("second ConfirmImport error = %v, want ErrStaleState", err)
	}
	if err := repo.ConfirmImport(ctx, "old", nil); !errors.Is(err, ports.ErrStaleState) {
		t.Errorf("ConfirmImport(pending) error = %v, want ErrStaleState", err)
	}
	if err := repo.ConfirmImport(ctx, "missing", nil); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("ConfirmImport(missing) error = %v, want ErrNotFound", err)
	}

	n, err := repo.PurgeImportsBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PurgeImportsBefore = %d, %v; want 1", n, err)
	}
	if _, err := repo.GetImport(ctx, "old"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("old import survived purge: %v", err)
	}
	if _, err := repo.GetImport(ctx, "new"); err != nil {
		t.Errorf("new import purged: %v", err)
	}
}

func TestConfirmImportIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "c1", "h1", "food")
	if err := repo.CreateImport(ctx, core.StatementImport{ID: "imp", HouseholdID: "h1", FileName: "a.pdf", MimeType: "application/pdf", Content: []byte("%PDF"), Status: core.ImportReady}); err != nil {
		t.Fatalf("CreateImport: %v", err)
	}

	batch := []core.Transaction{
		{ID: "a", HouseholdID: "h1", CategoryID: "c1", Description: "a", Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)},
		{ID: "b", HouseholdID: "h1", CategoryID: "missing", Description: "b", Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)},
	}
	if err := repo.ConfirmImport(ctx, "imp", batch); err == nil {
		t.Fatal("expected error for unknown category")
	}
	if _, err := repo.GetTransaction(ctx, "a"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("partial batch committed: %v", err)
	}
	if got, _ := repo.GetImport(ctx, "imp"); got.Status != core.ImportReady {
		t.Errorf("status after failed confirm = %s, want ready", got.Status)
	}

	if err := repo.ConfirmImport(ctx, "imp", batch[:1]); err != nil {
		t.Fatalf("ConfirmImport: %v", err)
	}
	if _, err := repo.GetTransaction(ctx, "a"); err != nil {
		t.Errorf("confirmed transaction missing: %v", err)
	}
}

func TestRunInTxReleasesConnectionOnPanic(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCategory(t, repo, "src", "h1", "src")
	seedCategory(t, repo, "dst", "h1", "dst")
	seedTransaction(t, repo, "t1", "h1", "src", 100, core.NewDate(2025, 3, 1))

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the panic to propagate")
			}
		}()
		_ = repo.RunInTx(ctx, func(tx ports.CategoryTx) error {
			if err := tx.UpdateTransactionCategory(ctx, "t1", "dst"); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	got, err := repo.GetTransaction(ctx, "t1")
	if err != nil || got.CategoryID != "src" {
		t.Fatalf("after panic: %+v, %v; want category src", got, err)
	}

	// The write lock must be gone, or this times out on busy_timeout.
	timeout, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err = repo.RunInTx(timeout, func(tx ports.CategoryTx) error {
		return tx.UpdateTransactionCategory(timeout, "t1", "dst")
	})
	if err != nil {
		t.Fatalf("RunInTx after panic: %v", err)
	}
	if got, _ := repo.GetTransaction(ctx, "t1"); got.CategoryID != "dst" {
		t.Errorf("category = %s, want dst", got.CategoryID)
	}
}
