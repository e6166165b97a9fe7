package core

// export.go renders the current (client-filtered) row set into downloadable
// files. CSV and XLS are byte-prefixed with a UTF-8 BOM so spreadsheet tools
// pick up the encoding; JSON and SQL are not. Cell content is the resolved
// display value, the same text the grid shows, so locale fallback and
// relation labels carry into the file.

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExportFormat is one of the supported export/import file formats.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLS  ExportFormat = "xls"
	FormatJSON ExportFormat = "json"
	FormatSQL  ExportFormat = "sql"
)

// ParseExportFormat validates a wire-format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLS:
		return FormatXLS, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatSQL:
		return FormatSQL, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Ext returns the file extension without a dot.
func (f ExportFormat) Ext() string { return string(f) }

// MIME returns the content type served with the download.
func (f ExportFormat) MIME() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLS:
		return "application/vnd.ms-excel"
	case FormatJSON:
		return "application/json"
	case FormatSQL:
		return "application/sql"
	default:
		return "application/octet-stream"
	}
}

// utf8BOM prefixes CSV and XLS exports.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExportFilename builds the download name: {collection}_{date}.{ext}.
func ExportFilename(collection string, format ExportFormat, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", collection, now.Format("2006-01-02"), format.Ext())
}

// Export renders rows through the generated columns into the given format.
// Fixed columns (row select, actions) are skipped; the output holds one
// header entry and one cell per data column.
func Export(format ExportFormat, collection string, columns []ColumnDef, rows []RowRecord) ([]byte, error) {
	data := dataColumns(columns)

	switch format {
	case FormatCSV:
		return exportDelimited(data, rows, ',')
	case FormatXLS:
		return exportDelimited(data, rows, '\t')
	case FormatJSON:
		return exportJSON(data, rows)
	case FormatSQL:
		return exportSQL(collection, data, rows)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

func dataColumns(columns []ColumnDef) []ColumnDef {
	out := make([]ColumnDef, 0, len(columns))
	for _, col := range columns {
		if col.Fixed {
			continue
		}
		out = append(out, col)
	}
	return out
}

// exportDelimited writes CSV (comma) or XLS (tab) with a UTF-8 BOM.
func exportDelimited(columns []ColumnDef, rows []RowRecord, delim rune) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	w.Comma = delim

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Title
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = exportCell(col, row)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// exportJSON writes an array of objects keyed by column id, values already
// display-resolved.
func exportJSON(columns []ColumnDef, rows []RowRecord) ([]byte, error) {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]string, len(columns))
		for _, col := range columns {
			obj[col.ID] = exportCell(col, row)
		}
		out = append(out, obj)
	}
	return json.MarshalIndent(out, "", "  ")
}

// exportSQL writes one INSERT statement per row in column order, using the
// raw stored values so the output can be replayed against a database.
func exportSQL(collection string, columns []ColumnDef, rows []RowRecord) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "-- export of %s, %d rows\n", collection, len(rows))

	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = quoteSQLIdent(sqlColumnName(col))
	}
	columnList := strings.Join(names, ", ")

	for _, row := range rows {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = sqlLiteral(sqlRawValue(col, row))
		}
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s);\n",
			quoteSQLIdent(collection), columnList, strings.Join(values, ", "))
	}
	return []byte(b.String()), nil
}

// sqlColumnName maps extension columns back to the blob field so the INSERT
// targets a real column.
func sqlColumnName(col ColumnDef) string {
	if col.Extension {
		return ExtensionBlobField
	}
	return col.ID
}

// sqlRawValue picks the stored value for SQL export. Extension columns export
// the whole blob once; resolving each base key separately would write the
// same column repeatedly.
func sqlRawValue(col ColumnDef, row RowRecord) any {
	if col.Extension {
		return row[ExtensionBlobField]
	}
	return row[col.ID]
}

func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int, int32, int64, float32, float64:
		return formatDisplay(val)
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case time.Time:
		return "'" + val.Format("2006-01-02 15:04:05") + "'"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "NULL"
		}
		return "'" + strings.ReplaceAll(string(data), "'", "''") + "'"
	}
}

func quoteSQLIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// exportCell resolves one cell through the column accessor, with a plain
// fallback for columns generated without one.
func exportCell(col ColumnDef, row RowRecord) string {
	if col.Resolve != nil {
		return col.Resolve(row)
	}
	return formatDisplay(row[col.ID])
}
