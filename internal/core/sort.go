package core

// sort.go maintains the ordered multi-column sort specification and prunes
// entries whose columns disappear after a schema or visibility change.

import "sync"

// SortCoordinator holds the sort state of one grid instance.
// Safe for concurrent use.
type SortCoordinator struct {
	mu      sync.Mutex
	entries []SortSpec
	prevIDs map[string]bool // memoized column-id set of the last prune pass
}

// NewSortCoordinator returns an empty coordinator.
func NewSortCoordinator() *SortCoordinator {
	return &SortCoordinator{}
}

// Entries returns a copy of the current ordered sort specification.
func (c *SortCoordinator) Entries() []SortSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SortSpec, len(c.entries))
	copy(out, c.entries)
	return out
}

// Toggle handles a sort interaction on a column. A plain click (additive
// false) replaces the whole sort with a single toggled entry on that column;
// a modified click (additive true) appends or updates that column's entry
// while preserving the others, enabling stable multi-column ordering.
func (c *SortCoordinator) Toggle(columnID string, additive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !additive {
		desc := true
		if len(c.entries) == 1 && c.entries[0].ColumnID == columnID {
			desc = !c.entries[0].Desc
		}
		c.entries = []SortSpec{{ColumnID: columnID, Desc: desc}}
		return
	}

	for i, entry := range c.entries {
		if entry.ColumnID == columnID {
			c.entries[i].Desc = !entry.Desc
			return
		}
	}
	c.entries = append(c.entries, SortSpec{ColumnID: columnID, Desc: true})
}

// Set replaces the whole specification, e.g. when restoring persisted state.
func (c *SortCoordinator) Set(entries []SortSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make([]SortSpec, len(entries))
	copy(c.entries, entries)
}

// Clear drops the whole specification, e.g. on collection switch.
func (c *SortCoordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.prevIDs = nil
}

// Priority returns the 1-based sort priority of a column, or 0 when the
// column does not participate in the sort.
func (c *SortCoordinator) Priority(columnID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.entries {
		if entry.ColumnID == columnID {
			return i + 1
		}
	}
	return 0
}

// Prune drops entries referencing column ids absent from the generated
// column set. It is an explicit pass comparing the memoized previous set
// against the current one, run whenever the column set changes; when the
// set is unchanged it returns immediately.
func (c *SortCoordinator) Prune(columns []ColumnDef) {
	current := make(map[string]bool, len(columns))
	for _, col := range columns {
		current[col.ID] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if sameIDSet(c.prevIDs, current) {
		return
	}
	c.prevIDs = current

	kept := c.entries[:0]
	for _, entry := range c.entries {
		if current[entry.ColumnID] {
			kept = append(kept, entry)
		}
	}
	c.entries = kept
}

func sameIDSet(a, b map[string]bool) bool {
	if a == nil || len(a) != len(b) {
		return false
	}
	for id := range b {
		if !a[id] {
			return false
		}
	}
	return true
}
