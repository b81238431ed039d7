package roster

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Roster"

var exportHeaders = []string{"Identity ID", "Name", "Email", "Last message", "Last message at (UTC)", "Last sender", "Unread", "Total"}

// WriteXLSX renders entries as a single-sheet workbook.
func WriteXLSX(w io.Writer, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return err
		}
	}

	for i, e := range entries {
		row := i + 2
		values := []any{
			e.IdentityID,
			e.DisplayName,
			e.ContactAddress,
			e.LastMessagePreview,
			e.LastMessageAt.UTC().Format("2006-01-02 15:04:05"),
			string(e.LastSender),
			e.UnreadCount,
			e.TotalCount,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(exportSheet, "A", "A", 38); err != nil {
		return err
	}
	if err := f.SetColWidth(exportSheet, "D", "D", 60); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
