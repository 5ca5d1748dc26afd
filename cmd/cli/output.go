package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/netsweep/internal/api/handlers"
	"github.com/anstrom/netsweep/internal/db"
	"github.com/anstrom/netsweep/internal/report"
)

// Output formats accepted by listing commands.
const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatCSV, formatJSON:
		return nil
	default:
		return fmt.Errorf("unsupported format %q (use table, csv or json)", format)
	}
}

func writeDevices(w io.Writer, format string, devices []*db.Device) error {
	switch format {
	case formatCSV:
		return report.WriteCSV(w, devices)
	case formatJSON:
		return writeJSON(w, map[string]interface{}{"devices": handlers.NewDeviceViews(devices)})
	default:
		return report.WriteTable(w, devices)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeTable renders rows under header.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	h := make([]any, len(header))
	for i, v := range header {
		h[i] = v
	}
	table.Header(h...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeCSVRows(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
