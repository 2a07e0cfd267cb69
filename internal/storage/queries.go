package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"buckify/internal/core"
	"buckify/internal/ports"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL used by the repository. The same statements run
// against the pool or inside a transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ErrNotFound
	}
	return err
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func scanDate(s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("stored date %q: %w", s, err)
	}
	return d, nil
}

// Categories

const categoryColumns = `id, household_id, name, slug, description, budget_cents, color, icon`

func scanCategory(row scanner) (core.Category, error) {
	var c core.Category
	err := row.Scan(&c.ID, &c.HouseholdID, &c.Name, &c.Slug, &c.Description, &c.Budget.Cents, &c.Color, &c.Icon)
	return c, err
}

const createCategory = `INSERT INTO categories (` + categoryColumns + `, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := q.db.ExecContext(ctx, createCategory,
		c.ID, c.HouseholdID, c.Name, c.Slug, c.Description, c.Budget.Cents, c.Color, c.Icon, unixMilli(time.Time{}))
	return err
}

const updateCategory = `UPDATE categories
SET name = ?, slug = ?, description = ?, budget_cents = ?, color = ?, icon = ?
WHERE id = ?`

func (q *Queries) UpdateCategory(ctx context.Context, c core.Category) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCategory,
		c.Name, c.Slug, c.Description, c.Budget.Cents, c.Color, c.Icon, c.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getCategory = `SELECT ` + categoryColumns + ` FROM categories WHERE id = ?`

func (q *Queries) GetCategory(ctx context.Context, id string) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx, getCategory, id))
	return c, notFound(err)
}

const getCategoryBySlug = `SELECT ` + categoryColumns + ` FROM categories WHERE household_id = ? AND slug = ?`

func (q *Queries) GetCategoryBySlug(ctx context.Context, householdID, slug string) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx, getCategoryBySlug, householdID, slug))
	return c, notFound(err)
}

const listCategories = `SELECT ` + categoryColumns + ` FROM categories WHERE household_id = ? ORDER BY name COLLATE NOCASE, id`

func (q *Queries) ListCategories(ctx context.Context, householdID string) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const slugExists = `SELECT EXISTS (SELECT 1 FROM categories WHERE household_id = ? AND slug = ?)`

func (q *Queries) SlugExists(ctx context.Context, householdID, slug string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, slugExists, householdID, slug).Scan(&exists)
	return exists, err
}

const deleteCategory = `DELETE FROM categories WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Transactions

const transactionColumns = `id, household_id, category_id, description, amount_cents, date`

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t    core.Transaction
		date string
	)
	if err := row.Scan(&t.ID, &t.HouseholdID, &t.CategoryID, &t.Description, &t.Amount.Cents, &date); err != nil {
		return t, err
	}
	d, err := scanDate(date)
	if err != nil {
		return t, err
	}
	t.Date = d
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const createTransaction = `INSERT INTO transactions (` + transactionColumns + `, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		t.ID, t.HouseholdID, t.CategoryID, t.Description, t.Amount.Cents, t.Date.String(), unixMilli(time.Time{}))
	return err
}

const updateTransaction = `UPDATE transactions
SET category_id = ?, description = ?, amount_cents = ?, date = ?
WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		t.CategoryID, t.Description, t.Amount.Cents, t.Date.String(), t.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateTransactionCategory = `UPDATE transactions SET category_id = ? WHERE id = ?`

func (q *Queries) UpdateTransactionCategory(ctx context.Context, id, categoryID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransactionCategory, categoryID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
	return t, notFound(err)
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listTransactionsByCategory = `SELECT ` + transactionColumns + ` FROM transactions WHERE category_id = ? ORDER BY date, id`

func (q *Queries) ListTransactionsByCategory(ctx context.Context, categoryID string) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByCategory, categoryID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

const countTransactionsByCategory = `SELECT COUNT(*) FROM transactions WHERE category_id = ?`

func (q *Queries) CountTransactionsByCategory(ctx context.Context, categoryID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, countTransactionsByCategory, categoryID).Scan(&n)
	return n, err
}

const listTransactions = `SELECT ` + transactionColumns + ` FROM transactions
WHERE household_id = ? AND date BETWEEN ? AND ?
ORDER BY date DESC, created_at DESC, id`

func (q *Queries) ListTransactions(ctx context.Context, householdID string, from, to core.Date) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, householdID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// Dashboard

const monthTotal = `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
WHERE household_id = ? AND date BETWEEN ? AND ?`

func (q *Queries) MonthTotal(ctx context.Context, householdID string, from, to core.Date) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, monthTotal, householdID, from.String(), to.String()).Scan(&total)
	return total, err
}

const categorySums = `SELECT category_id, SUM(amount_cents), COUNT(*) FROM transactions
WHERE household_id = ? AND date BETWEEN ? AND ?
GROUP BY category_id
ORDER BY SUM(amount_cents) DESC, category_id`

func (q *Queries) CategorySums(ctx context.Context, householdID string, from, to core.Date) ([]core.CategorySum, error) {
	rows, err := q.db.QueryContext(ctx, categorySums, householdID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.CategorySum
	for rows.Next() {
		var s core.CategorySum
		if err := rows.Scan(&s.CategoryID, &s.Total.Cents, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Households

const createHousehold = `INSERT INTO households (id, name, owner_id, budget_cents, currency, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateHousehold(ctx context.Context, h core.Household) error {
	_, err := q.db.ExecContext(ctx, createHousehold,
		h.ID, h.Name, h.OwnerID, h.Budget.Cents, h.Currency, unixMilli(h.CreatedAt))
	return err
}

const getHousehold = `SELECT id, name, owner_id, budget_cents, currency, created_at FROM households WHERE id = ?`

func (q *Queries) GetHousehold(ctx context.Context, id string) (core.Household, error) {
	var (
		h       core.Household
		created int64
	)
	err := q.db.QueryRowContext(ctx, getHousehold, id).
		Scan(&h.ID, &h.Name, &h.OwnerID, &h.Budget.Cents, &h.Currency, &created)
	if err != nil {
		return h, notFound(err)
	}
	h.CreatedAt = fromUnixMilli(created)
	return h, nil
}

const listMembers = `SELECT user_id FROM household_members WHERE household_id = ? ORDER BY user_id`

func (q *Queries) ListMembers(ctx context.Context, householdID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listMembers, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const addMember = `INSERT INTO household_members (household_id, user_id) VALUES (?, ?)
ON CONFLICT (household_id, user_id) DO NOTHING`

func (q *Queries) AddMember(ctx context.Context, householdID, userID string) error {
	_, err := q.db.ExecContext(ctx, addMember, householdID, userID)
	return err
}

// Statement imports

const createImport = `INSERT INTO statement_imports
(id, household_id, file_name, mime_type, content, status, error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateImport(ctx context.Context, imp core.StatementImport) error {
	created := unixMilli(imp.CreatedAt)
	updated := created
	if !imp.UpdatedAt.IsZero() {
		updated = unixMilli(imp.UpdatedAt)
	}
	_, err := q.db.ExecContext(ctx, createImport,
		imp.ID, imp.HouseholdID, imp.FileName, imp.MimeType, imp.Content,
		string(imp.Status), imp.Error, created, updated)
	return err
}

const getImport = `SELECT id, household_id, file_name, mime_type, content, status, error, created_at, updated_at
FROM statement_imports WHERE id = ?`

func (q *Queries) GetImport(ctx context.Context, id string) (core.StatementImport, error) {
	var (
		imp              core.StatementImport
		status           string
		created, updated int64
	)
	err := q.db.QueryRowContext(ctx, getImport, id).Scan(
		&imp.ID, &imp.HouseholdID, &imp.FileName, &imp.MimeType, &imp.Content,
		&status, &imp.Error, &created, &updated)
	if err != nil {
		return imp, notFound(err)
	}
	imp.Status = core.ImportStatus(status)
	imp.CreatedAt = fromUnixMilli(created)
	imp.UpdatedAt = fromUnixMilli(updated)
	return imp, nil
}

const listImportRows = `SELECT idx, date, description, amount_cents, duplicate FROM import_rows
WHERE import_id = ? ORDER BY idx`

func (q *Queries) ListImportRows(ctx context.Context, importID string) ([]core.ImportRow, error) {
	rows, err := q.db.QueryContext(ctx, listImportRows, importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ImportRow
	for rows.Next() {
		var (
			r    core.ImportRow
			date string
		)
		if err := rows.Scan(&r.Index, &date, &r.Description, &r.Amount.Cents, &r.Duplicate); err != nil {
			return nil, err
		}
		if r.Date, err = scanDate(date); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const deleteImportRows = `DELETE FROM import_rows WHERE import_id = ?`

func (q *Queries) DeleteImportRows(ctx context.Context, importID string) error {
	_, err := q.db.ExecContext(ctx, deleteImportRows, importID)
	return err
}

const insertImportRow = `INSERT INTO import_rows (import_id, idx, date, description, amount_cents, duplicate)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertImportRow(ctx context.Context, importID string, r core.ImportRow) error {
	_, err := q.db.ExecContext(ctx, insertImportRow,
		importID, r.Index, r.Date.String(), r.Description, r.Amount.Cents, r.Duplicate)
	return err
}

const updateImport = `UPDATE statement_imports SET status = ?, error = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateImport(ctx context.Context, id string, status core.ImportStatus, errMsg string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateImport, string(status), errMsg, unixMilli(time.Time{}), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const transitionImportStatus = `UPDATE statement_imports SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

// TransitionImportStatus sets status only while the import is still in from.
func (q *Queries) TransitionImportStatus(ctx context.Context, id string, from, to core.ImportStatus) (int64, error) {
	res, err := q.db.ExecContext(ctx, transitionImportStatus, string(to), unixMilli(time.Time{}), id, string(from))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const purgeImports = `DELETE FROM statement_imports WHERE created_at < ?`

func (q *Queries) PurgeImports(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, purgeImports, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
