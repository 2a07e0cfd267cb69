package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"buckify/internal/core"
	applog "buckify/internal/log"
	"buckify/internal/ports"

	"github.com/google/uuid"
)

// DefaultImportMaxBytes caps uploaded statements.
const DefaultImportMaxBytes = 10 << 20

// AllowedStatementTypes lists the MIME types a statement upload may have.
var AllowedStatementTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"application/pdf": true,
}

// StatementScanner extracts transaction rows from a statement image or PDF.
type StatementScanner interface {
	Scan(ctx context.Context, mimeType string, content []byte) ([]core.ImportRow, error)
}

// ScanPublisher hands an import to a background worker for scanning.
type ScanPublisher interface {
	PublishImportScan(ctx context.Context, importID, householdID string) error
}

// ConfirmInput selects which scanned rows become transactions. Empty Rows
// means all rows.
type ConfirmInput struct {
	CategoryID     string
	SkipDuplicates bool
	Rows           []int
}

type ImportService struct {
	imports      ports.ImportRepository
	transactions ports.TransactionRepository
	categories   ports.CategoryRepository
	scanner      StatementScanner
	publisher    ScanPublisher
	maxBytes     int64
	cache        HouseholdInvalidator
}

type ImportOption func(*ImportService)

// WithPublisher makes Upload queue scans instead of running them inline.
func WithPublisher(p ScanPublisher) ImportOption {
	return func(s *ImportService) { s.publisher = p }
}

func WithMaxBytes(n int64) ImportOption {
	return func(s *ImportService) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

func WithImportInvalidator(inv HouseholdInvalidator) ImportOption {
	return func(s *ImportService) { s.cache = inv }
}

func NewImportService(imports ports.ImportRepository, transactions ports.TransactionRepository, categories ports.CategoryRepository, scanner StatementScanner, opts ...ImportOption) *ImportService {
	s := &ImportService{
		imports:      imports,
		transactions: transactions,
		categories:   categories,
		scanner:      scanner,
		maxBytes:     DefaultImportMaxBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ImportService) MaxBytes() int64 { return s.maxBytes }

// Upload stores a statement as a pending import and starts its scan, either
// through the publisher or inline. The returned import reflects the state
// after an inline scan.
func (s *ImportService) Upload(ctx context.Context, householdID, fileName, mimeType string, content []byte) (core.StatementImport, error) {
	switch {
	case len(content) == 0:
		return core.StatementImport{}, core.ErrEmptyFile
	case int64(len(content)) > s.maxBytes:
		return core.StatementImport{}, core.ErrFileTooLarge
	case !AllowedStatementTypes[mimeType]:
		return core.StatementImport{}, core.ErrUnsupportedFile
	}

	now := time.Now().UTC()
	imp := core.StatementImport{
		ID:          uuid.NewString(),
		HouseholdID: householdID,
		FileName:    fileName,
		MimeType:    mimeType,
		Content:     content,
		Status:      core.ImportPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.imports.CreateImport(ctx, imp); err != nil {
		return core.StatementImport{}, fmt.Errorf("save import: %w", err)
	}

	logger := slog.With(
		applog.FieldComponent, applog.ComponentImport,
		applog.FieldHouseholdID, householdID,
		applog.FieldImportID, imp.ID)

	if s.publisher != nil {
		err := s.publisher.PublishImportScan(ctx, imp.ID, householdID)
		if err == nil {
			logger.InfoContext(ctx, "Import queued for scanning")
			imp.Content = nil
			return imp, nil
		}
		// Fall back to scanning here so the import does not stay pending.
		logger.ErrorContext(ctx, "Failed to publish import scan, scanning inline", applog.FieldError, err)
	}

	if err := s.ProcessScan(ctx, imp.ID); err != nil {
		return core.StatementImport{}, err
	}
	return s.GetImport(ctx, householdID, imp.ID)
}

// ProcessScan scans a pending import and stores the result. Imports that are
// no longer pending are left alone, so redelivered messages are harmless. A
// scanner failure marks the import failed and is not returned as an error.
func (s *ImportService) ProcessScan(ctx context.Context, importID string) error {
	imp, err := s.imports.GetImport(ctx, importID)
	if errors.Is(err, ports.ErrNotFound) {
		slog.WarnContext(ctx, "Import to scan no longer exists",
			applog.FieldComponent, applog.ComponentImport, applog.FieldImportID, importID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load import: %w", err)
	}
	if imp.Status != core.ImportPending {
		return nil
	}

	logger := slog.With(
		applog.FieldComponent, applog.ComponentImport,
		applog.FieldHouseholdID, imp.HouseholdID,
		applog.FieldImportID, imp.ID)

	rows, err := s.scanner.Scan(ctx, imp.MimeType, imp.Content)
	if err != nil {
		logger.WarnContext(ctx, "Statement scan failed", applog.FieldError, err)
		if saveErr := s.imports.SaveImportResult(ctx, imp.ID, core.ImportFailed, nil, err.Error()); saveErr != nil {
			return fmt.Errorf("save failed scan: %w", saveErr)
		}
		return nil
	}

	if from, to, ok := core.RowsDateRange(rows); ok {
		existing, err := s.transactions.ListTransactions(ctx, imp.HouseholdID, from, to)
		if err != nil {
			return fmt.Errorf("load existing transactions: %w", err)
		}
		rows = core.FlagDuplicates(rows, existing)
	}

	if err := s.imports.SaveImportResult(ctx, imp.ID, core.ImportReady, rows, ""); err != nil {
		return fmt.Errorf("save scan result: %w", err)
	}
	logger.InfoContext(ctx, "Statement scanned", applog.FieldCount, len(rows))
	return nil
}

// GetImport returns the import and its rows without the uploaded content.
func (s *ImportService) GetImport(ctx context.Context, householdID, id string) (core.StatementImport, error) {
	imp, err := s.imports.GetImport(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return core.StatementImport{}, core.ErrImportNotFound
	}
	if err != nil {
		return core.StatementImport{}, err
	}
	if imp.HouseholdID != householdID {
		return core.StatementImport{}, core.ErrUnauthorized
	}
	imp.Content = nil
	return imp, nil
}

// Confirm turns the selected rows of a ready import into transactions in one
// batch and marks the import confirmed. It returns the number created.
func (s *ImportService) Confirm(ctx context.Context, householdID, id string, in ConfirmInput) (int, error) {
	imp, err := s.GetImport(ctx, householdID, id)
	if err != nil {
		return 0, err
	}
	if imp.Status != core.ImportReady {
		return 0, core.ErrImportNotReady
	}

	cat, err := s.categories.GetCategory(ctx, in.CategoryID)
	if errors.Is(err, ports.ErrNotFound) || (err == nil && cat.HouseholdID != householdID) {
		return 0, core.ErrCategoryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read category: %w", err)
	}

	selected := map[int]bool{}
	for _, i := range in.Rows {
		selected[i] = true
	}

	var batch []core.Transaction
	for _, row := range imp.Rows {
		if len(selected) > 0 && !selected[row.Index] {
			continue
		}
		if in.SkipDuplicates && row.Duplicate {
			continue
		}
		t := core.Transaction{
			ID:          uuid.NewString(),
			HouseholdID: householdID,
			CategoryID:  cat.ID,
			Description: row.Description,
			Amount:      row.Amount,
			Date:        row.Date,
		}
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("row %d: %w", row.Index, err)
		}
		batch = append(batch, t)
	}

	// A concurrent confirm may have won since the read above.
	err = s.imports.ConfirmImport(ctx, id, batch)
	switch {
	case errors.Is(err, ports.ErrStaleState):
		return 0, core.ErrImportNotReady
	case errors.Is(err, ports.ErrNotFound):
		return 0, core.ErrImportNotFound
	case err != nil:
		return 0, fmt.Errorf("confirm import: %w", err)
	}
	if s.cache != nil {
		s.cache.InvalidateHousehold(householdID)
	}

	slog.InfoContext(ctx, "Import confirmed",
		applog.FieldComponent, applog.ComponentImport,
		applog.FieldHouseholdID, householdID,
		applog.FieldImportID, id,
		applog.FieldCount, len(batch))
	return len(batch), nil
}

// PurgeExpired deletes imports created more than retention ago.
func (s *ImportService) PurgeExpired(ctx context.Context, retention time.Duration) (int, error) {
	n, err := s.imports.PurgeImportsBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge imports: %w", err)
	}
	return n, nil
}
