package core

// schema.go normalizes raw storage metadata into the closed FieldKind set.
// The store hands over column names, storage types, and constraint info; the
// rules here decide how each column renders and edits.

import "strings"

// priceFieldNames are column names treated as integer-minor-unit prices
// regardless of their numeric storage type.
var priceFieldNames = map[string]bool{
	"price":       true,
	"amount":      true,
	"cost":        true,
	"total":       true,
	"price_minor": true,
}

// localizedFieldNames are json columns that hold per-locale objects.
var localizedFieldNames = map[string]bool{
	"title":       true,
	"description": true,
	"name_i18n":   true,
}

// KindForStorageType maps a storage type name to a FieldKind. Name-based
// overrides (price columns, localized json) are applied on top; enum and
// relation tagging happens separately because they need constraint metadata.
func KindForStorageType(storageType, columnName string) FieldKind {
	t := strings.ToLower(strings.TrimSpace(storageType))
	name := strings.ToLower(strings.TrimSpace(columnName))

	switch {
	case strings.HasPrefix(t, "_"), strings.HasSuffix(t, "[]"), t == "array":
		return KindArray
	case t == "json", t == "jsonb":
		return KindJSON
	case t == "boolean", t == "bool":
		return KindBool
	case t == "date":
		return KindDate
	case strings.HasPrefix(t, "timestamp"), t == "datetime", t == "timestamptz":
		return KindDateTime
	case t == "bigint", t == "integer", t == "smallint", t == "int", t == "int2", t == "int4", t == "int8":
		if priceFieldNames[name] {
			return KindPrice
		}
		return KindNumber
	case t == "numeric", t == "decimal", t == "real", t == "double precision", t == "float4", t == "float8", t == "money":
		if priceFieldNames[name] {
			return KindPrice
		}
		return KindNumber
	case t == "uuid", t == "text", t == "character varying", t == "varchar", t == "char", t == "character", t == "citext":
		return KindText
	default:
		return KindText
	}
}

// NormalizeColumn builds a ColumnSchema from raw storage metadata.
// enumValues, when non-empty, re-tags the column as an enum; relation, when
// set, re-tags it as a relation. Localized json columns are flagged so
// display resolution applies locale fallback.
func NormalizeColumn(name, storageType string, nullable, primaryKey bool, enumValues []string, relation *RelationRef) ColumnSchema {
	col := ColumnSchema{
		Name:        name,
		StorageType: storageType,
		Nullable:    nullable,
		PrimaryKey:  primaryKey,
		Kind:        KindForStorageType(storageType, name),
	}

	if col.Kind == KindJSON {
		lower := strings.ToLower(name)
		col.Localized = localizedFieldNames[lower] || strings.HasSuffix(lower, "_i18n")
	}

	if len(enumValues) > 0 {
		col.Kind = KindEnum
		col.Enum = &EnumSpec{Values: enumValues}
	}
	if relation != nil {
		col.Kind = KindRelation
		col.Relation = relation
	}
	return col
}
