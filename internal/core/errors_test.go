package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	if KindOf(NewGridError(KindValidation, "orders", errors.New("bad"))) != KindValidation {
		t.Error("expected validation kind")
	}
	if KindOf(errors.New("plain")) != KindTransient {
		t.Error("expected plain errors to default to transient")
	}

	wrapped := fmt.Errorf("outer: %w", NewGridError(KindCommit, "orders", errors.New("inner")))
	if KindOf(wrapped) != KindCommit {
		t.Error("expected kind to survive wrapping")
	}
}

func TestIsSuperseded(t *testing.T) {
	if !IsSuperseded(NewGridError(KindSuperseded, "orders", errors.New("stale"))) {
		t.Error("expected superseded grid error to be recognized")
	}
	if !IsSuperseded(context.Canceled) {
		t.Error("expected context cancellation to be treated as superseded")
	}
	if IsSuperseded(errors.New("boom")) {
		t.Error("plain errors are not superseded")
	}
	if IsSuperseded(nil) {
		t.Error("nil is not superseded")
	}
}

func TestMapError_Kinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"validation", NewGridError(KindValidation, "orders", errors.New("x")), "GRID_VALIDATION"},
		{"commit", NewGridError(KindCommit, "orders", errors.New("x")), "GRID_COMMIT"},
		{"schema", NewGridError(KindSchema, "orders", errors.New("x")), "GRID_SCHEMA"},
		{"duplicate", errors.New("ERROR: duplicate key value violates unique constraint"), "DB_DUPLICATE"},
		{"foreign key", errors.New("violates foreign key constraint"), "DB_FOREIGN_KEY"},
		{"timeout", errors.New("context deadline exceeded (timeout)"), "DB_TIMEOUT"},
		{"connection", errors.New("connection refused"), "DB_CONNECTION"},
		{"fallback", errors.New("something else"), "GRID_TRANSIENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := MapError(tt.err)
			if msg.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, msg.Code)
			}
			if msg.Message == "" {
				t.Error("expected a non-empty user message")
			}
		})
	}
}

func TestGridError_Format(t *testing.T) {
	err := NewGridError(KindTransient, "orders", errors.New("boom"))
	if got := err.Error(); got != "orders: GRID_TRANSIENT: boom" {
		t.Errorf("unexpected format %q", got)
	}

	scopeless := NewGridError(KindSchema, "", errors.New("boom"))
	if got := scopeless.Error(); got != "GRID_SCHEMA: boom" {
		t.Errorf("unexpected format %q", got)
	}
}

func TestKindForStorageType(t *testing.T) {
	tests := []struct {
		storage string
		column  string
		want    FieldKind
	}{
		{"text", "name", KindText},
		{"uuid", "id", KindText},
		{"bigint", "qty", KindNumber},
		{"bigint", "price", KindPrice},
		{"numeric", "amount", KindPrice},
		{"boolean", "enabled", KindBool},
		{"date", "born_on", KindDate},
		{"timestamp with time zone", "created_at", KindDateTime},
		{"jsonb", "data_in", KindJSON},
		{"_text", "tags", KindArray},
		{"text[]", "tags", KindArray},
		{"weird_custom", "x", KindText},
	}

	for _, tt := range tests {
		t.Run(tt.storage+"/"+tt.column, func(t *testing.T) {
			if got := KindForStorageType(tt.storage, tt.column); got != tt.want {
				t.Errorf("KindForStorageType(%q, %q) = %v, want %v", tt.storage, tt.column, got, tt.want)
			}
		})
	}
}

func TestNormalizeColumn(t *testing.T) {
	col := NormalizeColumn("title", "jsonb", true, false, nil, nil)
	if col.Kind != KindJSON || !col.Localized {
		t.Errorf("expected localized json column, got %+v", col)
	}

	col = NormalizeColumn("status", "text", false, false, []string{"open", "closed"}, nil)
	if col.Kind != KindEnum || col.Enum == nil {
		t.Errorf("expected enum re-tagging, got %+v", col)
	}

	rel := &RelationRef{TargetCollection: "cities", ValueField: "id", LabelFields: []string{"name"}}
	col = NormalizeColumn("city_id", "uuid", true, false, nil, rel)
	if col.Kind != KindRelation || col.Relation != rel {
		t.Errorf("expected relation re-tagging, got %+v", col)
	}
}
