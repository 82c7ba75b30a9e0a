package cart

import (
	"context"
	"fmt"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"go.uber.org/multierr"
)

// FailedItem records a guest line the server cart refused. Stranded is set when the line was
// added but neither the quantity top-up nor its rollback went through, so the server holds the
// SKU with fewer units than the guest had.
type FailedItem struct {
	SkuID    int   `json:"sku_id"`
	Stranded bool  `json:"stranded,omitempty"`
	Err      error `json:"-"`
}

// MigrationReport is the result of folding the guest lines into the server cart.
type MigrationReport struct {
	Succeeded []int        `json:"succeeded"`
	Failed    []FailedItem `json:"failed"`
}

// Partial reports whether at least one line could not be migrated.
func (r MigrationReport) Partial() bool {
	return len(r.Failed) > 0
}

// Err aggregates the per-item failures; nil when every line made it.
func (r MigrationReport) Err() error {
	var combined error
	for _, f := range r.Failed {
		combined = multierr.Append(combined, fmt.Errorf("sku %d: %w", f.SkuID, f.Err))
	}
	if combined == nil {
		return nil
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, combined, "partial guest cart migration").
		WithDetails(map[string]any{"failed_skus": r.failedSkus()})
}

func (r MigrationReport) failedSkus() []int {
	out := make([]int, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.SkuID)
	}
	return out
}

// migrateLines replays guest lines one at a time against the server strategy. A failing line
// is recorded and skipped; it never aborts the rest.
func migrateLines(ctx context.Context, server Repository, lines []GuestLine) MigrationReport {
	report := MigrationReport{Succeeded: []int{}, Failed: []FailedItem{}}
	for _, line := range lines {
		if stranded, err := migrateLine(ctx, server, line); err != nil {
			report.Failed = append(report.Failed, FailedItem{SkuID: line.SkuID, Stranded: stranded, Err: err})
			continue
		}
		report.Succeeded = append(report.Succeeded, line.SkuID)
	}
	return report
}

// migrateLine adds the SKU and, for guest quantities above one, tops the server line up so the
// guest units land on top of whatever the customer already had. A failed top-up undoes the add
// so a line reported as failed is not left half-migrated on the server.
func migrateLine(ctx context.Context, server Repository, line GuestLine) (bool, error) {
	result, err := server.AddItem(ctx, line.SkuID, line.ProductID)
	if err != nil {
		return false, err
	}
	if line.Quantity <= 1 {
		return false, nil
	}
	current := 1
	if item, ok := result.Find(line.SkuID); ok {
		current = item.Quantity
	}
	if _, err = server.SetItemQuantity(ctx, line.SkuID, current+line.Quantity-1); err == nil {
		return false, nil
	}
	if undoErr := undoAdd(ctx, server, line.SkuID, current-1); undoErr != nil {
		return true, multierr.Append(err, fmt.Errorf("undo add: %w", undoErr))
	}
	return false, err
}

// undoAdd restores the quantity the server line had before AddItem, removing it when the add
// created it.
func undoAdd(ctx context.Context, server Repository, skuID, previous int) error {
	if previous <= 0 {
		_, err := server.RemoveItem(ctx, skuID)
		return err
	}
	_, err := server.SetItemQuantity(ctx, skuID, previous)
	return err
}
