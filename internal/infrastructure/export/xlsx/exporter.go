// Package xlsx renders the landlord-facing dossier overview workbook.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

const (
	sheetDossier   = "Dossier"
	sheetParties   = "Parties"
	sheetDocuments = "Documents"
)

type Exporter struct{}

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *Exporter) Export(ctx context.Context, d *domain.Dossier, progress domain.DossierProgress, w io.Writer) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetDossier); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeDossierSheet(f, d, progress); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writePartiesSheet(f, d, progress); err != nil {
		return err
	}
	if err := writeDocumentsSheet(f, d); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeDossierSheet(f *excelize.File, d *domain.Dossier, progress domain.DossierProgress) error {
	start := ""
	if d.StartDate != nil {
		start = d.StartDate.Format("2006-01-02")
	}
	rows := [][]any{
		{"Dossier", d.ID},
		{"Property", d.Property.Address},
		{"Bid (EUR)", d.BidAmount},
		{"Start date", start},
		{"Advance months", d.AdvanceMonths},
		{"Motivation", d.Motivation},
		{"Progress (%)", progress.Percent},
		{"Submitted", d.Completed},
	}
	return writeRows(f, sheetDossier, rows)
}

func writePartiesSheet(f *excelize.File, d *domain.Dossier, progress domain.DossierProgress) error {
	if _, err := f.NewSheet(sheetParties); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheetParties, err)
	}
	rows := [][]any{{"Role", "Name", "Email", "Phone", "Employment", "Income (EUR)", "Form %", "Documents %", "Overall %", "Documents complete"}}
	for _, p := range d.Parties {
		pp := progress.Parties[p.LocalID]
		rows = append(rows, []any{
			string(p.Role), p.Name, p.Email, p.Phone, string(p.EmploymentStatus), p.Income,
			pp.FormPercent, pp.DocPercent, pp.OverallPercent, p.DocumentsDone,
		})
	}
	return writeRows(f, sheetParties, rows)
}

func writeDocumentsSheet(f *excelize.File, d *domain.Dossier) error {
	if _, err := f.NewSheet(sheetDocuments); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheetDocuments, err)
	}
	rows := [][]any{{"Party", "Document type", "Status", "Files"}}
	for _, p := range d.Parties {
		for _, slot := range p.Slots {
			names := make([]string, 0, len(slot.Files()))
			for _, ev := range slot.Files() {
				names = append(names, ev.Filename)
			}
			rows = append(rows, []any{p.Name, slot.DocumentType, string(slot.Status), strings.Join(names, ", ")})
		}
	}
	return writeRows(f, sheetDocuments, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
