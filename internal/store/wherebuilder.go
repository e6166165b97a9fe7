package store

// wherebuilder.go accumulates WHERE conditions with positional arguments so
// every query value travels as a parameter, never as inlined SQL.

import (
	"fmt"
	"strings"

	"github.com/GTFB/forlifely-sub001/internal/core"
)

// WhereBuilder accumulates SQL WHERE conditions with numbered arguments.
type WhereBuilder struct {
	conditions []string
	args       []interface{}
	argIndex   int
}

// NewWhereBuilder creates an empty builder. Argument numbering starts at $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add appends an equality condition. Empty values are skipped.
func (wb *WhereBuilder) Add(column, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", quoteIdentifier(column), wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// AddSearch appends a case-insensitive substring match ORed across the
// searchable columns. Non-text columns are cast so every field participates.
func (wb *WhereBuilder) AddSearch(query string, columns []core.ColumnSchema) {
	query = strings.TrimSpace(query)
	if query == "" || len(columns) == 0 {
		return
	}

	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, fmt.Sprintf("%s::text ILIKE $%d", quoteIdentifier(col.Name), wb.argIndex))
	}
	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " OR ")+")")
	wb.args = append(wb.args, "%"+query+"%")
	wb.argIndex++
}

// AddFilter appends one column filter condition.
func (wb *WhereBuilder) AddFilter(f core.ColumnFilter) {
	col := quoteIdentifier(f.Field)

	switch f.Op {
	case core.OpIn:
		if len(f.Values) == 0 {
			return
		}
		placeholders := make([]string, len(f.Values))
		for i, v := range f.Values {
			placeholders[i] = fmt.Sprintf("$%d", wb.argIndex)
			wb.args = append(wb.args, strings.TrimSpace(v))
			wb.argIndex++
		}
		wb.conditions = append(wb.conditions, fmt.Sprintf("%s::text IN (%s)", col, strings.Join(placeholders, ", ")))

	case core.OpContains:
		wb.addPattern(col, "%"+f.Value+"%", f.Value)
	case core.OpStartsWith:
		wb.addPattern(col, f.Value+"%", f.Value)
	case core.OpEndsWith:
		wb.addPattern(col, "%"+f.Value, f.Value)

	case core.OpEquals:
		wb.addComparison(col, "=", f.Value)
	case core.OpGreaterEq:
		wb.addComparison(col, ">=", f.Value)
	case core.OpLessEq:
		wb.addComparison(col, "<=", f.Value)
	case core.OpGreater:
		wb.addComparison(col, ">", f.Value)
	case core.OpLess:
		wb.addComparison(col, "<", f.Value)
	}
}

// AddFilters appends every filter in the set.
func (wb *WhereBuilder) AddFilters(filters []core.ColumnFilter) {
	for _, f := range filters {
		wb.AddFilter(f)
	}
}

func (wb *WhereBuilder) addPattern(col, pattern, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s::text ILIKE $%d", col, wb.argIndex))
	wb.args = append(wb.args, pattern)
	wb.argIndex++
}

func (wb *WhereBuilder) addComparison(col, op, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s %s $%d", col, op, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// Build returns the WHERE clause (with a leading space) and its arguments.
// An empty builder yields an empty clause and nil args.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// NextArgIndex returns the next free argument number, for appending LIMIT and
// OFFSET placeholders after Build.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteColumns quotes each column name in the slice.
func quoteColumns(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdentifier(col)
	}
	return quoted
}
