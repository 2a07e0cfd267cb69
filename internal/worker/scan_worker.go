package worker

import (
	"context"
	"fmt"
	"log/slog"

	"buckify/internal/amqp"
)

// ImportScanner runs the scan stage of a statement import.
type ImportScanner interface {
	ProcessScan(ctx context.Context, importID string) error
}

// ScanWorker turns queued scan requests into scanned imports.
type ScanWorker struct {
	imports ImportScanner
}

func NewScanWorker(imports ImportScanner) *ScanWorker {
	return &ScanWorker{imports: imports}
}

// HandleScanMessage is an amqp.Handler. Errors are returned only for store
// failures; scanner failures are recorded on the import itself.
func (w *ScanWorker) HandleScanMessage(ctx context.Context, msg *amqp.ImportScanMessage) error {
	slog.InfoContext(ctx, "Processing import scan message",
		"import_id", msg.ImportID,
		"household_id", msg.HouseholdID,
		"queued_at", msg.Timestamp)

	if err := w.imports.ProcessScan(ctx, msg.ImportID); err != nil {
		return fmt.Errorf("process scan %s: %w", msg.ImportID, err)
	}
	return nil
}
