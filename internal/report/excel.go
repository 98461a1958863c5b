package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	sheetDevices = "Devices"
	sheetLinks   = "Links"
	sheetAlerts  = "Alerts"
)

// Workbook builds an inventory workbook with device, link and alert
// sheets. The caller closes it.
func Workbook(data *Data) (*excelize.File, error) {
	f := excelize.NewFile()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	sheets := []struct {
		name    string
		columns []interface{}
		rows    [][]interface{}
	}{
		{sheetDevices, []interface{}{"ID", "Hostname", "IP", "Vendor", "Type", "Status", "Parent", "CPU %", "Memory %", "Last Seen"}, deviceRows(data)},
		{sheetLinks, []interface{}{"ID", "Device A", "Device B", "Bandwidth Mbps", "In bps", "Out bps", "In %", "Out %", "Ports", "Excluded"}, linkRows(data)},
		{sheetAlerts, []interface{}{"ID", "Target", "Type", "Severity", "Message", "Active", "Triggered", "Recovered", "Acknowledged By"}, alertRows(data)},
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				f.Close()
				return nil, err
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			f.Close()
			return nil, err
		}
		if err := writeSheet(f, s.name, s.columns, s.rows, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write %s sheet: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// ExportWorkbook writes the workbook to path.
func ExportWorkbook(data *Data, path string) error {
	f, err := Workbook(data)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

// WriteWorkbook streams the workbook to w.
func WriteWorkbook(data *Data, w io.Writer) error {
	f, err := Workbook(data)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

func writeSheet(f *excelize.File, sheet string, columns []interface{}, rows [][]interface{}, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &columns); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", lastCol, 16)
}

func deviceRows(data *Data) [][]interface{} {
	rows := make([][]interface{}, 0, len(data.Devices))
	for _, d := range data.Devices {
		parent := ""
		if d.ParentID != nil {
			parent = data.hostname(*d.ParentID)
		}
		lastSeen := ""
		if d.LastSeen != nil {
			lastSeen = d.LastSeen.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []interface{}{
			d.ID, d.Hostname, d.IP, d.Vendor, string(d.Type), string(d.Status), parent,
			optional(d.CPUPercent), optional(d.MemoryPercent), lastSeen,
		})
	}
	return rows
}

func linkRows(data *Data) [][]interface{} {
	rows := make([][]interface{}, 0, len(data.Links))
	for _, l := range data.Links {
		rows = append(rows, []interface{}{
			l.ID, data.hostname(l.DeviceAID), data.hostname(l.DeviceBID), l.TotalBandwidthMbps,
			l.CurrentInBps, l.CurrentOutBps, l.UtilizationInPercent, l.UtilizationOutPercent,
			len(l.PortPairs), l.IsExcluded,
		})
	}
	return rows
}

func alertRows(data *Data) [][]interface{} {
	rows := make([][]interface{}, 0, len(data.RecentAlerts))
	for _, a := range data.RecentAlerts {
		recovered := ""
		if a.RecoveredAt != nil {
			recovered = a.RecoveredAt.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []interface{}{
			a.ID, data.TargetName(a), string(a.Type), string(a.Severity), a.Message, a.IsActive,
			a.TriggeredAt.Format("2006-01-02 15:04:05"), recovered, a.AcknowledgedBy,
		})
	}
	return rows
}

func optional(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
