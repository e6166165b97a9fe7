// Package store backs the grid engine with PostgreSQL. Collection schemas
// are discovered from the information schema at runtime, so adding a table
// needs no code change.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GTFB/forlifely-sub001/internal/core"
)

// schemaTTL bounds how long a discovered schema is reused before the
// information schema is consulted again.
const schemaTTL = time.Minute

type cachedSchema struct {
	columns   []core.ColumnSchema
	fetchedAt time.Time
}

// Postgres implements core.Store over a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu          sync.RWMutex
	schemas     map[string]cachedSchema
	collections []string
	listedAt    time.Time
}

// New creates a store over an established pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{
		pool:    pool,
		logger:  logger,
		schemas: make(map[string]cachedSchema),
	}
}

// Collections lists the public base tables.
func (p *Postgres) Collections(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	if time.Since(p.listedAt) < schemaTTL && p.collections != nil {
		out := append([]string(nil), p.collections...)
		p.mu.RUnlock()
		return out, nil
	}
	p.mu.RUnlock()

	rows, err := p.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	p.mu.Lock()
	p.collections = names
	p.listedAt = time.Now()
	p.mu.Unlock()
	return append([]string(nil), names...), nil
}

// ensureCollection rejects names not present in the database before any
// identifier interpolation happens.
func (p *Postgres) ensureCollection(ctx context.Context, collection string) error {
	names, err := p.Collections(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == collection {
			return nil
		}
	}
	return fmt.Errorf("unknown collection: %s", collection)
}

// Schema discovers the normalized column schema of a collection, cached for
// a short interval.
func (p *Postgres) Schema(ctx context.Context, collection string) ([]core.ColumnSchema, error) {
	p.mu.RLock()
	if cached, ok := p.schemas[collection]; ok && time.Since(cached.fetchedAt) < schemaTTL {
		p.mu.RUnlock()
		return cached.columns, nil
	}
	p.mu.RUnlock()

	if err := p.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}

	columns, err := p.discoverSchema(ctx, collection)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.schemas[collection] = cachedSchema{columns: columns, fetchedAt: time.Now()}
	p.mu.Unlock()
	return columns, nil
}

func (p *Postgres) discoverSchema(ctx context.Context, collection string) ([]core.ColumnSchema, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT column_name, data_type, udt_name, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, collection)
	if err != nil {
		return nil, fmt.Errorf("discover columns: %w", err)
	}
	defer rows.Close()

	type rawColumn struct {
		name     string
		dataType string
		udtName  string
		nullable bool
	}
	var raw []rawColumn
	for rows.Next() {
		var c rawColumn
		if err := rows.Scan(&c.name, &c.dataType, &c.udtName, &c.nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		raw = append(raw, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("discover columns: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("collection %s has no columns", collection)
	}

	primaryKeys, err := p.primaryKeys(ctx, collection)
	if err != nil {
		return nil, err
	}
	relations, err := p.foreignKeys(ctx, collection)
	if err != nil {
		return nil, err
	}
	enums, err := p.enumValues(ctx)
	if err != nil {
		return nil, err
	}

	columns := make([]core.ColumnSchema, 0, len(raw))
	for _, c := range raw {
		storageType := c.dataType
		if c.dataType == "ARRAY" || c.dataType == "USER-DEFINED" {
			storageType = c.udtName
		}
		var enumVals []string
		if c.dataType == "USER-DEFINED" {
			enumVals = enums[c.udtName]
		}
		columns = append(columns, core.NormalizeColumn(
			c.name, storageType, c.nullable, primaryKeys[c.name], enumVals, relations[c.name],
		))
	}
	return columns, nil
}

func (p *Postgres) primaryKeys(ctx context.Context, collection string) (map[string]bool, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = 'public'
		  AND tc.table_name = $1
		  AND tc.constraint_type = 'PRIMARY KEY'`, collection)
	if err != nil {
		return nil, fmt.Errorf("discover primary keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		keys[name] = true
	}
	return keys, rows.Err()
}

func (p *Postgres) foreignKeys(ctx context.Context, collection string) (map[string]*core.RelationRef, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		 AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = 'public'
		  AND tc.table_name = $1
		  AND tc.constraint_type = 'FOREIGN KEY'`, collection)
	if err != nil {
		return nil, fmt.Errorf("discover foreign keys: %w", err)
	}
	defer rows.Close()

	relations := make(map[string]*core.RelationRef)
	for rows.Next() {
		var column, targetTable, targetColumn string
		if err := rows.Scan(&column, &targetTable, &targetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		relations[column] = &core.RelationRef{
			TargetCollection: targetTable,
			ValueField:       targetColumn,
			LabelFields:      []string{targetColumn},
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Pick human label fields from each target table.
	for _, rel := range relations {
		rel.LabelFields = p.pickLabelFields(ctx, rel.TargetCollection, rel.ValueField)
	}
	return relations, nil
}

// pickLabelFields chooses display columns for a relation target: well-known
// name columns first, else the first text column, else the key itself.
func (p *Postgres) pickLabelFields(ctx context.Context, collection, valueField string) []string {
	columns, err := p.discoverSchema(ctx, collection)
	if err != nil {
		p.logger.Warn("relation target schema lookup failed", "collection", collection, "error", err)
		return []string{valueField}
	}

	for _, preferred := range []string{"name", "title", "label", "full_name"} {
		for _, col := range columns {
			if col.Name == preferred {
				return []string{preferred}
			}
		}
	}
	for _, col := range columns {
		if col.Kind == core.KindText && !col.PrimaryKey {
			return []string{col.Name}
		}
	}
	return []string{valueField}
}

func (p *Postgres) enumValues(ctx context.Context) (map[string][]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		ORDER BY t.typname, e.enumsortorder`)
	if err != nil {
		return nil, fmt.Errorf("discover enums: %w", err)
	}
	defer rows.Close()

	enums := make(map[string][]string)
	for rows.Next() {
		var typ, label string
		if err := rows.Scan(&typ, &label); err != nil {
			return nil, fmt.Errorf("scan enum: %w", err)
		}
		enums[typ] = append(enums[typ], label)
	}
	return enums, rows.Err()
}

// Query returns one page of rows with the collection schema and totals.
func (p *Postgres) Query(ctx context.Context, params core.QueryParams) (*core.QueryResult, error) {
	schema, err := p.Schema(ctx, params.Collection)
	if err != nil {
		return nil, err
	}

	wb := NewWhereBuilder()
	wb.AddSearch(params.Search, schema)
	wb.AddFilters(validFilters(params.Filters, schema))
	whereClause, queryArgs := wb.Build()

	table := quoteIdentifier(params.Collection)

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, whereClause)
	if err := p.pool.QueryRow(ctx, countQuery, queryArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 10
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	offset := (page - 1) * pageSize

	names := make([]string, len(schema))
	for i, col := range schema {
		names[i] = col.Name
	}

	argIndex := wb.NextArgIndex()
	query := fmt.Sprintf(
		"SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		strings.Join(quoteColumns(names), ", "),
		table,
		whereClause,
		orderByClause(params.Sort, schema),
		argIndex,
		argIndex+1,
	)
	queryArgs = append(queryArgs, pageSize, offset)

	rows, err := p.pool.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	data := make([]core.RowRecord, 0, pageSize)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(core.RowRecord, len(names))
		for i, name := range names {
			if i < len(values) {
				row[name] = normalizeScanValue(values[i])
			}
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &core.QueryResult{
		Data:       data,
		Columns:    schema,
		Total:      int(total),
		TotalPages: totalPages,
	}, nil
}

// validFilters drops filters on columns the schema does not know; extension
// column filters are client-side only.
func validFilters(filters []core.ColumnFilter, schema []core.ColumnSchema) []core.ColumnFilter {
	known := make(map[string]bool, len(schema))
	for _, col := range schema {
		known[col.Name] = true
	}
	out := make([]core.ColumnFilter, 0, len(filters))
	for _, f := range filters {
		if known[f.Field] {
			out = append(out, f)
		}
	}
	return out
}

// orderByClause validates sort entries against the schema. Unknown ids
// (extension columns among them) are skipped; with nothing left the primary
// key, else the first column, orders the page deterministically.
func orderByClause(sorts []core.SortSpec, schema []core.ColumnSchema) string {
	known := make(map[string]bool, len(schema))
	for _, col := range schema {
		known[col.Name] = true
	}

	var parts []string
	for _, s := range sorts {
		if !known[s.ColumnID] {
			continue
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, quoteIdentifier(s.ColumnID)+" "+dir)
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}

	for _, col := range schema {
		if col.PrimaryKey {
			return quoteIdentifier(col.Name) + " ASC"
		}
	}
	return quoteIdentifier(schema[0].Name) + " ASC"
}

// Create inserts a row, generating a UUID key when the caller supplies none,
// and returns the stored row.
func (p *Postgres) Create(ctx context.Context, collection string, fields map[string]any) (core.RowRecord, error) {
	schema, err := p.Schema(ctx, collection)
	if err != nil {
		return nil, err
	}

	pk := primaryKeyColumn(schema)
	if pk != "" {
		if v, ok := fields[pk]; !ok || v == nil || v == "" {
			fields = copyFields(fields)
			fields[pk] = uuid.New().String()
		}
	}

	names, placeholders, args := writeColumns(fields, schema)
	if len(names) == 0 {
		return nil, fmt.Errorf("no valid fields to insert")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quoteIdentifier(collection),
		strings.Join(quoteColumns(names), ", "),
		strings.Join(placeholders, ", "),
		strings.Join(quoteColumns(schemaNames(schema)), ", "),
	)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert row: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("insert row: %w", err)
		}
		return nil, fmt.Errorf("insert returned no row")
	}
	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("read inserted row: %w", err)
	}

	created := make(core.RowRecord, len(schema))
	for i, col := range schema {
		if i < len(values) {
			created[col.Name] = normalizeScanValue(values[i])
		}
	}
	return created, nil
}

// Update applies a partial field map to one row.
func (p *Postgres) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	schema, err := p.Schema(ctx, collection)
	if err != nil {
		return err
	}
	pk := primaryKeyColumn(schema)
	if pk == "" {
		return fmt.Errorf("collection %s has no primary key", collection)
	}

	names, _, args := writeColumns(fields, schema)
	if len(names) == 0 {
		return fmt.Errorf("no valid fields to update")
	}

	assignments := make([]string, len(names))
	for i, name := range names {
		assignments[i] = fmt.Sprintf("%s = $%d", quoteIdentifier(name), i+1)
	}
	args = append(args, key)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s::text = $%d",
		quoteIdentifier(collection),
		strings.Join(assignments, ", "),
		quoteIdentifier(pk),
		len(args),
	)

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("row %s not found in %s", key, collection)
	}
	return nil
}

// Upsert inserts the row or, on a primary key conflict, updates every
// supplied column.
func (p *Postgres) Upsert(ctx context.Context, collection string, rowFields map[string]any) error {
	schema, err := p.Schema(ctx, collection)
	if err != nil {
		return err
	}
	pk := primaryKeyColumn(schema)

	fields := rowFields
	if pk != "" {
		if v, ok := fields[pk]; !ok || v == nil || v == "" {
			fields = copyFields(fields)
			fields[pk] = uuid.New().String()
		}
	}

	names, placeholders, args := writeColumns(fields, schema)
	if len(names) == 0 {
		return fmt.Errorf("no valid fields to upsert")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(collection),
		strings.Join(quoteColumns(names), ", "),
		strings.Join(placeholders, ", "),
	)

	if pk != "" {
		assignments := make([]string, 0, len(names))
		for _, name := range names {
			if name == pk {
				continue
			}
			quoted := quoteIdentifier(name)
			assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
		}
		if len(assignments) > 0 {
			query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
				quoteIdentifier(pk), strings.Join(assignments, ", "))
		} else {
			query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quoteIdentifier(pk))
		}
	}

	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert row: %w", err)
	}
	return nil
}

// Delete removes one row by key.
func (p *Postgres) Delete(ctx context.Context, collection, key string) error {
	schema, err := p.Schema(ctx, collection)
	if err != nil {
		return err
	}
	pk := primaryKeyColumn(schema)
	if pk == "" {
		return fmt.Errorf("collection %s has no primary key", collection)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s::text = $1",
		quoteIdentifier(collection), quoteIdentifier(pk))

	tag, err := p.pool.Exec(ctx, query, key)
	if err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("row %s not found in %s", key, collection)
	}
	return nil
}

func primaryKeyColumn(schema []core.ColumnSchema) string {
	for _, col := range schema {
		if col.PrimaryKey {
			return col.Name
		}
	}
	return ""
}

func schemaNames(schema []core.ColumnSchema) []string {
	names := make([]string, len(schema))
	for i, col := range schema {
		names[i] = col.Name
	}
	return names
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// writeColumns filters the field map down to schema columns in schema order
// and converts each value to its bound representation.
func writeColumns(fields map[string]any, schema []core.ColumnSchema) (names []string, placeholders []string, args []any) {
	for _, col := range schema {
		value, ok := fields[col.Name]
		if !ok {
			continue
		}
		names = append(names, col.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, normalizeWriteValue(col, value))
	}
	return names, placeholders, args
}

// normalizeWriteValue converts a display-layer value into what pgx should
// bind for the column's storage type. String inputs for typed columns go
// through the tolerant ToPg* converters.
func normalizeWriteValue(col core.ColumnSchema, value any) any {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return data
	case string:
		switch col.Kind {
		case core.KindDate:
			if d := ToPgDate(v); d.Valid {
				return d
			}
		case core.KindDateTime:
			if ts := ToPgTimestamp(v); ts.Valid {
				return ts
			}
		case core.KindBool:
			if b := ToPgBool(v); b.Valid {
				return b
			}
		case core.KindNumber:
			if n := ToPgNumeric(CleanCell(v)); n.Valid {
				return n
			}
		case core.KindText:
			if col.StorageType == "uuid" {
				if u := ToPgUUID(v); u.Valid {
					return u
				}
			}
		}
		return v
	default:
		return value
	}
}

// normalizeScanValue converts pgx scan output into the engine's row
// representation: uuids and numerics become plain Go values.
func normalizeScanValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}
