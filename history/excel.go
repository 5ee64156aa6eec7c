package history

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

var statementHeaders = []string{
	"Attempt ID", "Item ID", "Kind", "Order ID", "Payment ID",
	"Amount (paise)", "State", "Message", "Recorded At",
}

// ExportStatement writes the attempt journal to an .xlsx statement at path.
func ExportStatement(ctx context.Context, r Recorder, path string) error {
	recs, err := r.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read attempt journal: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Statement"
	f.SetSheetName("Sheet1", sheet)

	for col, header := range statementHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, rec := range recs {
		values := []interface{}{
			rec.AttemptID, rec.ItemID, rec.Kind, rec.OrderID, rec.PaymentID,
			rec.AmountMinorUnits, rec.State, rec.Message,
			rec.RecordedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("failed to compute cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", i+2, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save statement: %w", err)
	}
	return nil
}
