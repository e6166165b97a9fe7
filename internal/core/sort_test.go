package core

import "testing"

func TestSortCoordinator_PlainClickReplaces(t *testing.T) {
	c := NewSortCoordinator()
	c.Toggle("name", false)
	c.Toggle("city", false)

	entries := c.Entries()
	if len(entries) != 1 || entries[0].ColumnID != "city" {
		t.Fatalf("expected single entry on city, got %v", entries)
	}
	if !entries[0].Desc {
		t.Error("expected new sort to default descending")
	}
}

func TestSortCoordinator_PlainClickTogglesDirection(t *testing.T) {
	c := NewSortCoordinator()
	c.Toggle("name", false)
	c.Toggle("name", false)

	entries := c.Entries()
	if len(entries) != 1 || entries[0].Desc {
		t.Errorf("expected ascending after second click, got %v", entries)
	}
}

func TestSortCoordinator_AdditiveBuildsOrderedSpec(t *testing.T) {
	c := NewSortCoordinator()
	c.Toggle("name", false)
	c.Toggle("city", true)
	c.Toggle("qty", true)

	entries := c.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %v", entries)
	}
	if entries[0].ColumnID != "name" || entries[1].ColumnID != "city" || entries[2].ColumnID != "qty" {
		t.Errorf("expected insertion order preserved, got %v", entries)
	}

	if c.Priority("city") != 2 {
		t.Errorf("expected city priority 2, got %d", c.Priority("city"))
	}
	if c.Priority("missing") != 0 {
		t.Errorf("expected 0 for absent column, got %d", c.Priority("missing"))
	}

	// Additive click on an existing column flips its direction in place.
	c.Toggle("city", true)
	entries = c.Entries()
	if entries[1].ColumnID != "city" || entries[1].Desc {
		t.Errorf("expected city flipped ascending in place, got %v", entries)
	}
}

func TestSortCoordinator_PruneDropsMissingColumns(t *testing.T) {
	c := NewSortCoordinator()
	c.Set([]SortSpec{
		{ColumnID: "name", Desc: true},
		{ColumnID: "data_in.color", Desc: false},
		{ColumnID: "qty", Desc: true},
	})

	// The color extension column disappeared from the generated set.
	columns := []ColumnDef{
		{ID: ColumnSelect, Fixed: true},
		{ID: "name"},
		{ID: "qty"},
		{ID: ColumnActions, Fixed: true},
	}
	c.Prune(columns)

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 surviving entries, got %v", entries)
	}
	for _, e := range entries {
		if e.ColumnID == "data_in.color" {
			t.Error("expected vanished column to be pruned")
		}
	}
}

func TestSortCoordinator_PruneMemoizesColumnSet(t *testing.T) {
	c := NewSortCoordinator()
	columns := []ColumnDef{{ID: "name"}, {ID: "qty"}}
	c.Prune(columns)

	// Same column set again: entries added in between must survive, because
	// the pass short-circuits on an unchanged set.
	c.Set([]SortSpec{{ColumnID: "other", Desc: true}})
	c.Prune(columns)

	if len(c.Entries()) != 1 {
		t.Error("expected prune to be a no-op for an unchanged column set")
	}

	// A genuinely changed set prunes again.
	c.Prune([]ColumnDef{{ID: "name"}})
	if len(c.Entries()) != 0 {
		t.Errorf("expected entry dropped after set change, got %v", c.Entries())
	}
}

func TestSortCoordinator_Clear(t *testing.T) {
	c := NewSortCoordinator()
	c.Toggle("name", false)
	c.Clear()

	if len(c.Entries()) != 0 {
		t.Error("expected no entries after Clear")
	}
}
