package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	waitlistSheet = "Waitlist"
)

var (
	bookingHeaders = []string{
		"ID", "User", "Court", "Coach", "Start", "End", "Rackets", "Shoes",
		"Base price", "Equipment fee", "Coach fee", "Total", "Status", "Created", "Cancelled",
	}
	waitlistHeaders = []string{
		"ID", "User", "Court", "Start", "End", "Position", "Status", "Created", "Notified", "Booking",
	}
)

// Exporter renders bookings and the waitlist as an xlsx workbook.
type Exporter struct {
	store  domain.Reader
	path   string
	logger *zerolog.Logger
	now    func() time.Time
}

func NewExporter(store domain.Reader, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, path: path, logger: logger, now: time.Now}
}

// Build returns a workbook with one sheet of bookings matching filter and
// one sheet with every waitlist entry. The caller closes it.
func (e *Exporter) Build(ctx context.Context, filter models.BookingFilter) (*excelize.File, error) {
	bookings, err := e.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error getting bookings: %w", err)
	}
	entries, err := e.store.ListAllWaitlist(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting waitlist: %w", err)
	}

	f := excelize.NewFile()
	if err := writeBookings(f, bookings); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeWaitlist(f, entries); err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// Write streams the workbook to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, filter models.BookingFilter) error {
	f, err := e.Build(ctx, filter)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

// SaveToDir writes the workbook into the exports directory and returns its path.
func (e *Exporter) SaveToDir(ctx context.Context, filter models.BookingFilter) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.Build(ctx, filter)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.path, fmt.Sprintf("bookings_%s.xlsx", e.now().Format("2006-01-02_15-04-05")))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func newSheet(f *excelize.File, name string, headers []string) error {
	index, err := f.NewSheet(name)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	if name == bookingsSheet {
		f.SetActiveSheet(index)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(name, cell, header)
		_ = f.SetCellStyle(name, cell, cell, style)
	}

	last, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(name, "A", last, 18)
	_ = f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	return f.SetSheetRow(sheet, cell, &values)
}

func writeBookings(f *excelize.File, bookings []*models.Booking) error {
	if err := newSheet(f, bookingsSheet, bookingHeaders); err != nil {
		return err
	}
	for i, b := range bookings {
		values := []interface{}{
			b.ID, b.UserID, b.CourtID, deref(b.CoachID),
			models.FormatTimestamp(b.Window.Start), models.FormatTimestamp(b.Window.End),
			b.RacketCount, b.ShoesCount,
			b.BasePrice.InexactFloat64(), b.EquipmentFee.InexactFloat64(), b.CoachFee.InexactFloat64(), b.TotalPrice.InexactFloat64(),
			b.Status, formatTime(&b.CreatedAt), formatTime(b.CancelledAt),
		}
		if err := writeRow(f, bookingsSheet, i+2, values); err != nil {
			return fmt.Errorf("error writing booking %s: %w", b.ID, err)
		}
	}
	return nil
}

func writeWaitlist(f *excelize.File, entries []*models.WaitlistEntry) error {
	if err := newSheet(f, waitlistSheet, waitlistHeaders); err != nil {
		return err
	}
	for i, e := range entries {
		var position interface{}
		if e.Position != nil {
			position = *e.Position
		}
		values := []interface{}{
			e.ID, e.UserID, e.CourtID,
			models.FormatTimestamp(e.Window.Start), models.FormatTimestamp(e.Window.End),
			position, e.Status, formatTime(&e.CreatedAt), formatTime(e.NotifiedAt), deref(e.BookingID),
		}
		if err := writeRow(f, waitlistSheet, i+2, values); err != nil {
			return fmt.Errorf("error writing waitlist entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
