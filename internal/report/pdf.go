package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/anstrom/netsweep/internal/db"
)

// PDFTitle heads the audit report.
const PDFTitle = "Network Audit Report"

// PDFHeader is the audit report's column set.
var PDFHeader = []string{"IP Address", "MAC Address", "Hostname", "Open Ports"}

// Column widths in points; the table is centered on a US Letter page.
var pdfColumnWidths = []float64{100, 130, 150, 100}

const (
	pdfPageWidth  = 612.0
	pdfTopMargin  = 72.0
	pdfRowHeight  = 18.0
	pdfHeadHeight = 24.0
	pdfDateFormat = "2006-01-02 15:04:05"
)

// PDFRow flattens a device into the audit report columns.
func PDFRow(d *db.Device) []string {
	row := []string{d.IPAddress.String(), "N/A", "Unknown", FormatPorts(d.OpenPorts)}
	if len(d.MACAddress.HardwareAddr) > 0 {
		row[1] = d.MACAddress.String()
	}
	if d.Hostname != nil && *d.Hostname != "" {
		row[2] = *d.Hostname
	}
	return row
}

// WritePDF renders the audit report: title, generation date, device count
// and one table row per device. The header row repeats on every page.
func WritePDF(w io.Writer, devices []*db.Device, generated time.Time) error {
	var tableWidth float64
	for _, cw := range pdfColumnWidths {
		tableWidth += cw
	}
	margin := (pdfPageWidth - tableWidth) / 2

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(margin, pdfTopMargin, margin)
	pdf.SetAutoPageBreak(true, pdfTopMargin)
	pdf.SetTitle(PDFTitle, false)
	pdf.SetCreator("netsweep", false)
	pdf.SetCreationDate(generated)
	pdf.SetModificationDate(generated)
	pdf.SetCompression(false)

	tableStarted := false
	pdf.SetHeaderFunc(func() {
		if tableStarted {
			writePDFHeaderRow(pdf)
		}
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(tableWidth, 28, PDFTitle, "", 1, "C", false, 0, "")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(tableWidth, 16, "Date: "+generated.Local().Format(pdfDateFormat), "", 1, "L", false, 0, "")
	pdf.CellFormat(tableWidth, 16, fmt.Sprintf("Total Devices Discovered: %d", len(devices)), "", 1, "L", false, 0, "")
	pdf.Ln(20)

	writePDFHeaderRow(pdf)
	tableStarted = true

	pdf.SetFont("Helvetica", "", 10)
	for _, d := range devices {
		pdf.SetFillColor(245, 245, 220)
		pdf.SetTextColor(0, 0, 0)
		for i, cell := range PDFRow(d) {
			pdf.CellFormat(pdfColumnWidths[i], pdfRowHeight, fitText(pdf, cell, pdfColumnWidths[i]-6),
				"1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf report: %w", err)
	}
	return pdf.Output(w)
}

func writePDFHeaderRow(pdf *fpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetFillColor(128, 128, 128)
	pdf.SetTextColor(245, 245, 245)
	for i, title := range PDFHeader {
		pdf.CellFormat(pdfColumnWidths[i], pdfHeadHeight, title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(0, 0, 0)
}

// fitText shortens s with an ellipsis until it fits width.
func fitText(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return strings.TrimSpace(string(r)) + "..."
}
