package ports

import (
	"context"
	"errors"
	"time"

	"buckify/internal/core"
)

var (
	// ErrNotFound is returned by stores when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleState is returned when a conditional update finds the record
	// in another state than the one it expected.
	ErrStaleState = errors.New("stale state")
)

// Ports for outbound adapters.
type (
	// CategoryTx is the view of the store available inside an atomic
	// transaction. Reads observe one consistent snapshot; writes become
	// visible to other readers only when the transaction commits.
	CategoryTx interface {
		GetCategory(ctx context.Context, id string) (core.Category, error)
		FindCategoryBySlug(ctx context.Context, householdID, slug string) (core.Category, error)
		ListTransactionsByCategory(ctx context.Context, categoryID string) ([]core.Transaction, error)
		UpdateTransactionCategory(ctx context.Context, transactionID, categoryID string) error
		DeleteTransaction(ctx context.Context, id string) error
		DeleteCategory(ctx context.Context, id string) error
	}

	// CategoryStore is what category deletion needs from persistence.
	CategoryStore interface {
		CountTransactionsByCategory(ctx context.Context, categoryID string) (int, error)
		// RunInTx runs fn in a single atomic transaction. If fn returns an
		// error nothing fn wrote is committed and the error is returned as is.
		RunInTx(ctx context.Context, fn func(tx CategoryTx) error) error
	}

	CategoryRepository interface {
		CreateCategory(ctx context.Context, c core.Category) error
		UpdateCategory(ctx context.Context, c core.Category) error
		GetCategory(ctx context.Context, id string) (core.Category, error)
		ListCategories(ctx context.Context, householdID string) ([]core.Category, error)
		SlugExists(ctx context.Context, householdID, slug string) (bool, error)
	}

	TransactionRepository interface {
		CreateTransaction(ctx context.Context, t core.Transaction) error
		CreateTransactions(ctx context.Context, ts []core.Transaction) error
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
		// ListTransactions returns the household's transactions dated within
		// [from, to], newest first.
		ListTransactions(ctx context.Context, householdID string, from, to core.Date) ([]core.Transaction, error)
	}

	// DashboardReader provides aggregated monthly data.
	DashboardReader interface {
		MonthTotal(ctx context.Context, householdID string, from, to core.Date) (core.Money, error)
		CategorySums(ctx context.Context, householdID string, from, to core.Date) ([]core.CategorySum, error)
	}

	HouseholdRepository interface {
		CreateHousehold(ctx context.Context, h core.Household) error
		GetHousehold(ctx context.Context, id string) (core.Household, error)
		AddMember(ctx context.Context, householdID, userID string) error
	}

	ImportRepository interface {
		CreateImport(ctx context.Context, imp core.StatementImport) error
		GetImport(ctx context.Context, id string) (core.StatementImport, error)
		// SaveImportResult stores the scan outcome: rows with status ready, or
		// an error message with status failed.
		SaveImportResult(ctx context.Context, id string, status core.ImportStatus, rows []core.ImportRow, errMsg string) error
		// ConfirmImport moves a ready import to confirmed and inserts ts in the
		// same transaction. It returns ErrStaleState when the import is no
		// longer ready, and nothing is written.
		ConfirmImport(ctx context.Context, id string, ts []core.Transaction) error
		PurgeImportsBefore(ctx context.Context, cutoff time.Time) (int, error)
	}

	// Pinger reports whether the store is reachable.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
