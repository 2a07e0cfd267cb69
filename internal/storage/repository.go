package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"buckify/internal/core"
	"buckify/internal/ports"

	_ "modernc.org/sqlite"
)

// dsnPragmas turns on foreign keys, waits on a locked database instead of
// failing, and takes the write lock when a transaction begins so two
// concurrent deletions serialize rather than deadlock on upgrade.
const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var (
	_ ports.CategoryStore         = (*SQLiteRepository)(nil)
	_ ports.CategoryRepository    = (*SQLiteRepository)(nil)
	_ ports.TransactionRepository = (*SQLiteRepository)(nil)
	_ ports.DashboardReader       = (*SQLiteRepository)(nil)
	_ ports.HouseholdRepository   = (*SQLiteRepository)(nil)
	_ ports.ImportRepository      = (*SQLiteRepository)(nil)
	_ ports.Pinger                = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the pool opens so every connection sees the schema.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RunInTx implements ports.CategoryStore.
func (r *SQLiteRepository) RunInTx(ctx context.Context, fn func(tx ports.CategoryTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&categoryTx{q: r.queries.WithTx(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CountTransactionsByCategory(ctx context.Context, categoryID string) (int, error) {
	n, err := r.queries.CountTransactionsByCategory(ctx, categoryID)
	if err != nil {
		return 0, fmt.Errorf("count transactions for category %s: %w", categoryID, err)
	}
	return n, nil
}

// categoryTx is the ports.CategoryTx view over a *sql.Tx.
type categoryTx struct {
	q *Queries
}

func (t *categoryTx) GetCategory(ctx context.Context, id string) (core.Category, error) {
	return t.q.GetCategory(ctx, id)
}

func (t *categoryTx) FindCategoryBySlug(ctx context.Context, householdID, slug string) (core.Category, error) {
	return t.q.GetCategoryBySlug(ctx, householdID, slug)
}

func (t *categoryTx) ListTransactionsByCategory(ctx context.Context, categoryID string) ([]core.Transaction, error) {
	return t.q.ListTransactionsByCategory(ctx, categoryID)
}

func (t *categoryTx) UpdateTransactionCategory(ctx context.Context, transactionID, categoryID string) error {
	return expectRow(t.q.UpdateTransactionCategory(ctx, transactionID, categoryID))
}

func (t *categoryTx) DeleteTransaction(ctx context.Context, id string) error {
	return expectRow(t.q.DeleteTransaction(ctx, id))
}

func (t *categoryTx) DeleteCategory(ctx context.Context, id string) error {
	return expectRow(t.q.DeleteCategory(ctx, id))
}

func expectRow(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Categories

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	if err := r.queries.CreateCategory(ctx, c); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	slog.InfoContext(ctx, "Category saved to SQLite", "id", c.ID, "household_id", c.HouseholdID, "slug", c.Slug)
	return nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := expectRow(r.queries.UpdateCategory(ctx, c)); err != nil {
		return fmt.Errorf("update category %s: %w", c.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	c, err := r.queries.GetCategory(ctx, id)
	if err != nil {
		return c, fmt.Errorf("get category %s: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, householdID string) ([]core.Category, error) {
	cs, err := r.queries.ListCategories(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cs, nil
}

func (r *SQLiteRepository) SlugExists(ctx context.Context, householdID, slug string) (bool, error) {
	ok, err := r.queries.SlugExists(ctx, householdID, slug)
	if err != nil {
		return false, fmt.Errorf("check slug %s: %w", slug, err)
	}
	return ok, nil
}

// Transactions

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	if err := r.queries.CreateTransaction(ctx, t); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"household_id", t.HouseholdID,
		"category_id", t.CategoryID,
		"amount_cents", t.Amount.Cents,
		"date", t.Date.String())
	return nil
}

// CreateTransactions inserts all of ts or none of them.
func (r *SQLiteRepository) CreateTransactions(ctx context.Context, ts []core.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	for _, t := range ts {
		if err := q.CreateTransaction(ctx, t); err != nil {
			return fmt.Errorf("create transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transactions batch saved to SQLite", "count", len(ts))
	return nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := expectRow(r.queries.UpdateTransaction(ctx, t)); err != nil {
		return fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := r.queries.GetTransaction(ctx, id)
	if err != nil {
		return t, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	if err := expectRow(r.queries.DeleteTransaction(ctx, id)); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, householdID string, from, to core.Date) ([]core.Transaction, error) {
	ts, err := r.queries.ListTransactions(ctx, householdID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return ts, nil
}

// Dashboard

func (r *SQLiteRepository) MonthTotal(ctx context.Context, householdID string, from, to core.Date) (core.Money, error) {
	total, err := r.queries.MonthTotal(ctx, householdID, from, to)
	if err != nil {
		return core.Money{}, fmt.Errorf("get month total: %w", err)
	}
	return core.Money{Cents: total}, nil
}

func (r *SQLiteRepository) CategorySums(ctx context.Context, householdID string, from, to core.Date) ([]core.CategorySum, error) {
	sums, err := r.queries.CategorySums(ctx, householdID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get category sums: %w", err)
	}
	return sums, nil
}

// Households

func (r *SQLiteRepository) CreateHousehold(ctx context.Context, h core.Household) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.CreateHousehold(ctx, h); err != nil {
		return fmt.Errorf("create household: %w", err)
	}
	for _, id := range h.MemberIDs {
		if err := q.AddMember(ctx, h.ID, id); err != nil {
			return fmt.Errorf("add member %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) GetHousehold(ctx context.Context, id string) (core.Household, error) {
	h, err := r.queries.GetHousehold(ctx, id)
	if err != nil {
		return h, fmt.Errorf("get household %s: %w", id, err)
	}
	if h.MemberIDs, err = r.queries.ListMembers(ctx, id); err != nil {
		return h, fmt.Errorf("list members of %s: %w", id, err)
	}
	return h, nil
}

func (r *SQLiteRepository) AddMember(ctx context.Context, householdID, userID string) error {
	if err := r.queries.AddMember(ctx, householdID, userID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// Statement imports

func (r *SQLiteRepository) CreateImport(ctx context.Context, imp core.StatementImport) error {
	if err := r.queries.CreateImport(ctx, imp); err != nil {
		return fmt.Errorf("create import: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetImport(ctx context.Context, id string) (core.StatementImport, error) {
	imp, err := r.queries.GetImport(ctx, id)
	if err != nil {
		return imp, fmt.Errorf("get import %s: %w", id, err)
	}
	if imp.Rows, err = r.queries.ListImportRows(ctx, id); err != nil {
		return imp, fmt.Errorf("list rows of import %s: %w", id, err)
	}
	return imp, nil
}

// SaveImportResult replaces the import's rows and status in one transaction.
func (r *SQLiteRepository) SaveImportResult(ctx context.Context, id string, status core.ImportStatus, rows []core.ImportRow, errMsg string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := expectRow(q.UpdateImport(ctx, id, status, errMsg)); err != nil {
		return fmt.Errorf("update import %s: %w", id, err)
	}
	if err := q.DeleteImportRows(ctx, id); err != nil {
		return fmt.Errorf("clear rows of import %s: %w", id, err)
	}
	for _, row := range rows {
		if err := q.InsertImportRow(ctx, id, row); err != nil {
			return fmt.Errorf("insert row %d of import %s: %w", row.Index, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Import result saved", "id", id, "status", status, "rows", len(rows))
	return nil
}

func (r *SQLiteRepository) ConfirmImport(ctx context.Context, id string, ts []core.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	n, err := q.TransitionImportStatus(ctx, id, core.ImportReady, core.ImportConfirmed)
	if err != nil {
		return fmt.Errorf("confirm import %s: %w", id, err)
	}
	if n == 0 {
		if _, err := q.GetImport(ctx, id); err != nil {
			return fmt.Errorf("confirm import %s: %w", id, err)
		}
		return fmt.Errorf("confirm import %s: %w", id, ports.ErrStaleState)
	}
	for _, t := range ts {
		if err := q.CreateTransaction(ctx, t); err != nil {
			return fmt.Errorf("create transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	slog.InfoContext(ctx, "Import confirmed in SQLite", "id", id, "transactions", len(ts))
	return nil
}

func (r *SQLiteRepository) PurgeImportsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := r.queries.PurgeImports(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge imports: %w", err)
	}
	return int(n), nil
}
