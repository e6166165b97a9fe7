package core

// import.go parses uploaded files back into row maps and applies them as
// upserts. Parsing and applying are separate steps so the web layer can
// report row counts before committing anything. A malformed row is recorded
// and skipped; it never aborts the batch.

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseImport decodes file content in the given format into row maps.
// CSV and XLS tolerate a UTF-8 BOM; JSON expects an array of objects; SQL
// expects INSERT statements of the shape this engine exports.
func ParseImport(format ExportFormat, content []byte) ([]map[string]any, error) {
	content = bytes.TrimPrefix(content, utf8BOM)

	switch format {
	case FormatCSV:
		return parseDelimited(content, ',')
	case FormatXLS:
		return parseDelimited(content, '\t')
	case FormatJSON:
		return parseJSONRows(content)
	case FormatSQL:
		return parseSQLRows(content)
	}
	return nil, fmt.Errorf("unsupported import format %q", format)
}

func parseDelimited(content []byte, delim rune) ([]map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = delim
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing delimited file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	header := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(record) {
				row[strings.TrimSpace(name)] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseJSONRows(content []byte) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.Unmarshal(content, &rows); err != nil {
		return nil, fmt.Errorf("parsing json file: %w", err)
	}
	return rows, nil
}

// parseSQLRows reads INSERT statements line by line. It handles the format
// written by exportSQL: quoted identifiers, single-quoted strings with
// doubled-quote escaping, NULL/TRUE/FALSE, and bare numbers.
func parseSQLRows(content []byte) ([]map[string]any, error) {
	var rows []map[string]any

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		if !strings.HasPrefix(strings.ToUpper(line), "INSERT INTO") {
			continue
		}

		columns, values, err := splitInsert(line)
		if err != nil {
			return nil, err
		}
		if len(columns) != len(values) {
			return nil, fmt.Errorf("insert statement has %d columns but %d values", len(columns), len(values))
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = values[i]
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no insert statements found")
	}
	return rows, nil
}

func splitInsert(line string) ([]string, []any, error) {
	open := strings.Index(line, "(")
	if open < 0 {
		return nil, nil, fmt.Errorf("malformed insert statement")
	}
	closeIdx := strings.Index(line[open:], ")")
	if closeIdx < 0 {
		return nil, nil, fmt.Errorf("malformed insert statement")
	}
	closeIdx += open

	var columns []string
	for _, part := range strings.Split(line[open+1:closeIdx], ",") {
		columns = append(columns, strings.Trim(strings.TrimSpace(part), `"`))
	}

	valuesIdx := strings.Index(strings.ToUpper(line[closeIdx:]), "VALUES")
	if valuesIdx < 0 {
		return nil, nil, fmt.Errorf("malformed insert statement")
	}
	rest := line[closeIdx+valuesIdx:]
	vOpen := strings.Index(rest, "(")
	vClose := strings.LastIndex(rest, ")")
	if vOpen < 0 || vClose <= vOpen {
		return nil, nil, fmt.Errorf("malformed insert statement")
	}

	values, err := splitSQLValues(rest[vOpen+1 : vClose])
	if err != nil {
		return nil, nil, err
	}
	return columns, values, nil
}

// splitSQLValues splits a VALUES tuple body, respecting single-quoted strings
// with doubled-quote escaping.
func splitSQLValues(body string) ([]any, error) {
	var values []any
	var current strings.Builder
	inString := false

	runes := []rune(body)
	flush := func() error {
		v, err := sqlValue(strings.TrimSpace(current.String()))
		if err != nil {
			return err
		}
		values = append(values, v)
		current.Reset()
		return nil
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'':
			if inString && i+1 < len(runes) && runes[i+1] == '\'' {
				current.WriteRune('\'')
				current.WriteRune('\'')
				i++
				continue
			}
			inString = !inString
			current.WriteRune(r)
		case r == ',' && !inString:
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			current.WriteRune(r)
		}
	}
	if inString {
		return nil, fmt.Errorf("unterminated string literal")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return values, nil
}

func sqlValue(token string) (any, error) {
	switch {
	case token == "":
		return nil, fmt.Errorf("empty value in insert statement")
	case strings.EqualFold(token, "NULL"):
		return nil, nil
	case strings.EqualFold(token, "TRUE"):
		return true, nil
	case strings.EqualFold(token, "FALSE"):
		return false, nil
	case strings.HasPrefix(token, "'") && strings.HasSuffix(token, "'") && len(token) >= 2:
		return strings.ReplaceAll(token[1:len(token)-1], "''", "'"), nil
	default:
		if n, err := strconv.ParseFloat(token, 64); err == nil {
			return n, nil
		}
		return token, nil
	}
}

// ValidateImportRow checks one parsed row against the collection schema:
// kind-typed fields must convert cleanly and unknown fields outside the
// extension blob are rejected. The converted row is returned on success.
func ValidateImportRow(schema []ColumnSchema, row map[string]any) (map[string]any, error) {
	byName := make(map[string]ColumnSchema, len(schema))
	for _, col := range schema {
		byName[col.Name] = col
	}

	out := make(map[string]any, len(row))
	for field, value := range row {
		col, known := byName[field]
		if !known {
			if field == ExtensionBlobField || strings.HasPrefix(field, ExtensionBlobField+".") {
				out[field] = value
				continue
			}
			return nil, fmt.Errorf("unknown column %q", field)
		}

		if value == nil {
			out[field] = nil
			continue
		}
		if s, ok := value.(string); ok {
			converted, err := editFieldValue(col, s)
			if err != nil {
				return nil, err
			}
			out[field] = converted
			continue
		}
		out[field] = value
	}
	return out, nil
}

// ImportRows validates and upserts parsed rows one at a time, accumulating
// per-row errors and reporting progress after every row. The batch always
// runs to the end; Success is true only when every row applied.
func ImportRows(ctx context.Context, store Store, collection string, schema []ColumnSchema, rows []map[string]any, onProgress ProgressFunc) ImportResult {
	result := ImportResult{Errors: []string{}}
	total := len(rows)

	for i, raw := range rows {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: import cancelled", i+1))
			break
		}

		row, err := ValidateImportRow(schema, raw)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}

		if err := store.Upsert(ctx, collection, row); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}

		result.ImportedCount++
		if onProgress != nil {
			onProgress(result.ImportedCount, total)
		}
	}

	result.Success = len(result.Errors) == 0
	return result
}
