package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"dontforget/internal/models"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Bookings"

var headers = []string{
	"Date", "Time", "Guest", "Email", "Phone", "Package",
	"Status", "Payment", "Meeting link", "Comment",
}

// FileName is the download name of an export made at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("bookings_%s.xlsx", now.Format("2006-01-02"))
}

// WriteBookings renders the bookings as one XLSX sheet ordered by date and
// time slot.
func WriteBookings(w io.Writer, bookings []models.Booking) error {
	sorted := append([]models.Booking(nil), bookings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date == sorted[j].Date {
			return sorted[i].TimeSlot < sorted[j].TimeSlot
		}
		return sorted[i].Date < sorted[j].Date
	})

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
		_ = f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}

	for r, b := range sorted {
		row := []any{
			b.Date, b.TimeSlot, b.GuestName, b.GuestEmail, b.GuestPhone, b.PackageName,
			b.Status, string(b.PaymentStatus), b.MeetingLink, b.GuestComment,
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("error writing row %d: %w", r+2, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "B", 12)
	_ = f.SetColWidth(SheetName, "C", "H", 20)
	_ = f.SetColWidth(SheetName, "I", "J", 40)
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}
