// Package report renders device inventories as CSV, text tables or a PDF
// audit report.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/netsweep/internal/db"
)

// Format selects the report encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
)

// TimeFormat matches the dashboard's timestamps.
const TimeFormat = "2006-01-02 03:04:05 PM"

// Header is the column set shared by every format.
var Header = []string{"ID", "IP Address", "MAC Address", "Hostname", "Vendor", "Active", "Open Ports", "Last Seen"}

// ParseFormat accepts "csv", "text", "pdf" or empty (csv).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatText, "txt", "table":
		return FormatText, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Filename returns the attachment name for a report generated at t.
func (f Format) Filename(t time.Time) string {
	ext := "csv"
	switch f {
	case FormatText:
		ext = "txt"
	case FormatPDF:
		ext = "pdf"
	}
	return fmt.Sprintf("network_report_%s.%s", t.Format("20060102_150405"), ext)
}

// Row flattens a device into report columns.
func Row(d *db.Device) []string {
	row := []string{
		strconv.FormatInt(d.ID, 10),
		d.IPAddress.String(),
		"-",
		"-",
		"-",
		"no",
		FormatPorts(d.OpenPorts),
		"",
	}
	if len(d.MACAddress.HardwareAddr) > 0 {
		row[2] = d.MACAddress.String()
	}
	if d.Hostname != nil && *d.Hostname != "" {
		row[3] = *d.Hostname
	}
	if d.Vendor != nil && *d.Vendor != "" {
		row[4] = *d.Vendor
	}
	if d.IsActive {
		row[5] = "yes"
	}
	if !d.LastSeen.IsZero() {
		row[7] = d.LastSeen.Local().Format(TimeFormat)
	}
	return row
}

// FormatPorts renders ports as "22, 80" or "None".
func FormatPorts(ports db.PortList) string {
	if len(ports) == 0 {
		return "None"
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports.Sorted() {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ", ")
}

// Write renders devices to w in format f. generated stamps the PDF report.
func Write(w io.Writer, f Format, devices []*db.Device, generated time.Time) error {
	switch f {
	case FormatText:
		return WriteTable(w, devices)
	case FormatPDF:
		return WritePDF(w, devices, generated)
	default:
		return WriteCSV(w, devices)
	}
}

// WriteCSV writes a header row and one row per device.
func WriteCSV(w io.Writer, devices []*db.Device) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, d := range devices {
		if err := cw.Write(Row(d)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes an aligned text table followed by a summary line.
func WriteTable(w io.Writer, devices []*db.Device) error {
	table := tablewriter.NewWriter(w)
	table.Header(toAny(Header)...)

	active := 0
	for _, d := range devices {
		if d.IsActive {
			active++
		}
		if err := table.Append(Row(d)); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d devices, %d active\n", len(devices), active)
	return err
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
