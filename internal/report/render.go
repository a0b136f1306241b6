package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/tealeg/xlsx"
)

// Document is a titled table, independent of the output format.
type Document struct {
	Title    string
	Subtitle string
	Columns  []string
	Rows     [][]string
}

type Renderer interface {
	Render(w io.Writer, d Document) error
	Ext() string
	ContentType() string
}

// Renderers returns the file renderers keyed by format.
func Renderers() map[Format]Renderer {
	return map[Format]Renderer{
		FormatCSV:   CSVRenderer{},
		FormatExcel: XLSXRenderer{},
		FormatPDF:   PDFRenderer{},
	}
}

type CSVRenderer struct{}

func (CSVRenderer) Ext() string         { return "csv" }
func (CSVRenderer) ContentType() string { return "text/csv; charset=utf-8" }

func (CSVRenderer) Render(w io.Writer, d Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(d.Rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

type XLSXRenderer struct{}

func (XLSXRenderer) Ext() string { return "xlsx" }
func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (XLSXRenderer) Render(w io.Writer, d Document) error {
	file := xlsx.NewFile()
	name := d.Title
	if len(name) > 31 || name == "" {
		name = "Reporte"
	}
	sheet, err := file.AddSheet(name)
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	if d.Subtitle != "" {
		sheet.AddRow().AddCell().SetString(d.Subtitle)
	}
	header := sheet.AddRow()
	for _, c := range d.Columns {
		header.AddCell().SetString(c)
	}
	for _, r := range d.Rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	if err := file.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

type PDFRenderer struct{}

func (PDFRenderer) Ext() string         { return "pdf" }
func (PDFRenderer) ContentType() string { return "application/pdf" }

func (PDFRenderer) Render(w io.Writer, d Document) error {
	orientation := "P"
	if len(d.Columns) > 4 {
		orientation = "L"
	}
	pdf := fpdf.New(orientation, "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(12, 12, 12)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr(d.Title), "", 1, "L", false, 0, "")
	if d.Subtitle != "" {
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 6, tr(d.Subtitle), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	if len(d.Columns) == 0 {
		return pdf.Output(w)
	}
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (pageW - left - right) / float64(len(d.Columns))

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range d.Columns {
		pdf.CellFormat(colW, 7, tr(c), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	for _, r := range d.Rows {
		for i := range d.Columns {
			v := ""
			if i < len(r) {
				v = r[i]
			}
			pdf.CellFormat(colW, 6, tr(v), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
