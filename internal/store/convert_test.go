package store

import (
	"testing"
)

func TestToPgText(t *testing.T) {
	if v := ToPgText("hello"); !v.Valid || v.String != "hello" {
		t.Errorf("expected valid 'hello', got %+v", v)
	}
	if v := ToPgText("  padded  "); !v.Valid || v.String != "padded" {
		t.Errorf("expected trimmed 'padded', got %+v", v)
	}
	if v := ToPgText("   "); v.Valid {
		t.Errorf("expected whitespace to be invalid, got %+v", v)
	}
}

func TestToPgDate(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		year  int
		month int
		day   int
	}{
		{"2026-03-15", true, 2026, 3, 15},
		{"3/15/2026", true, 2026, 3, 15},
		{"15.03.2026", true, 2026, 3, 15},
		{"Jan 2, 2026", true, 2026, 1, 2},
		{"20260315", true, 2026, 3, 15},
		{"not a date", false, 0, 0, 0},
		{"", false, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v := ToPgDate(tt.in)
			if v.Valid != tt.valid {
				t.Fatalf("ToPgDate(%q).Valid = %v, want %v", tt.in, v.Valid, tt.valid)
			}
			if !tt.valid {
				return
			}
			if v.Time.Year() != tt.year || int(v.Time.Month()) != tt.month || v.Time.Day() != tt.day {
				t.Errorf("ToPgDate(%q) = %v, want %d-%d-%d", tt.in, v.Time, tt.year, tt.month, tt.day)
			}
		})
	}
}

func TestToPgNumeric(t *testing.T) {
	valid := []string{"42", "-1.5", "$1,234.56", "(99.99)", "1e3", ".5"}
	for _, in := range valid {
		if v := ToPgNumeric(in); !v.Valid {
			t.Errorf("expected %q to be valid", in)
		}
	}

	invalid := []string{"", "abc", "12abc", "1.2.3"}
	for _, in := range invalid {
		if v := ToPgNumeric(in); v.Valid {
			t.Errorf("expected %q to be invalid", in)
		}
	}
}

func TestToPgNumeric_AccountingNegative(t *testing.T) {
	v := ToPgNumeric("(123.45)")
	if !v.Valid {
		t.Fatal("expected accounting format to parse")
	}
	f, err := v.Float64Value()
	if err != nil || !f.Valid {
		t.Fatalf("float conversion failed: %v", err)
	}
	if f.Float64 != -123.45 {
		t.Errorf("expected -123.45, got %v", f.Float64)
	}
}

func TestToPgBool(t *testing.T) {
	truthy := []string{"true", "T", "yes", "Y", "1", "on"}
	for _, in := range truthy {
		if v := ToPgBool(in); !v.Valid || !v.Bool {
			t.Errorf("expected %q to be true, got %+v", in, v)
		}
	}

	falsy := []string{"false", "F", "no", "N", "0", "off"}
	for _, in := range falsy {
		if v := ToPgBool(in); !v.Valid || v.Bool {
			t.Errorf("expected %q to be false, got %+v", in, v)
		}
	}

	for _, in := range []string{"", "maybe", "2"} {
		if v := ToPgBool(in); v.Valid {
			t.Errorf("expected %q to be invalid, got %+v", in, v)
		}
	}
}

func TestToPgUUID(t *testing.T) {
	id := "a3bb189e-8bf9-3888-9912-ace4e6543002"
	v := ToPgUUID(id)
	if !v.Valid {
		t.Fatal("expected valid uuid")
	}
	if PgUUIDToString(v) != id {
		t.Errorf("round trip mismatch: %s", PgUUIDToString(v))
	}

	if v := ToPgUUID("not-a-uuid"); v.Valid {
		t.Error("expected invalid uuid to be rejected")
	}
	if PgUUIDToString(ToPgUUID("")) != "" {
		t.Error("expected empty string for invalid uuid")
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`  plain  `, "plain"},
		{`="12345"`, "12345"},
		{`=SUM(A1)`, "SUM(A1)"},
		{`"quoted"`, "quoted"},
		{`'single'`, "single"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanCell(tt.in); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
