package core

// edit.go tracks in-place edits as a diff against the last-known-good rows.
// Pending values live only in memory until CommitAll; server data is never
// touched by Begin. Rows commit independently: a failed row keeps its
// pending edits for retry while successful rows clear.

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// PrimaryKeyField is the conventional primary key column name used when the
// schema does not designate one.
const PrimaryKeyField = "id"

// RowKey extracts a row's primary key as a string. Rows without a usable key
// yield "" and are not editable.
func RowKey(row RowRecord) string {
	if v, ok := row[PrimaryKeyField]; ok && v != nil {
		return formatDisplay(v)
	}
	return ""
}

// RowError reports a per-row commit failure.
type RowError struct {
	RowKey string
	Err    error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %s: %v", e.RowKey, e.Err)
}

// CommitResult summarizes one CommitAll pass.
type CommitResult struct {
	Committed int
	Failed    []RowError
}

// Success reports whether every pending row committed.
func (r CommitResult) Success() bool { return len(r.Failed) == 0 }

// EditSession records pending per-row, per-field edits for one collection.
// Presence of any entry implies unsaved changes. Safe for concurrent use.
type EditSession struct {
	store      Store
	collection string

	mu      sync.RWMutex
	pending map[string]map[string]any // rowKey -> field -> pending value
}

// NewEditSession creates a session bound to a collection.
func NewEditSession(store Store, collection string) *EditSession {
	return &EditSession{
		store:      store,
		collection: collection,
		pending:    make(map[string]map[string]any),
	}
}

// Collection returns the collection this session is bound to.
func (s *EditSession) Collection() string { return s.collection }

// Begin stores a pending value for one cell without touching server data.
func (s *EditSession) Begin(rowKey, field string, value any) error {
	if rowKey == "" {
		return NewGridError(KindValidation, s.collection, fmt.Errorf("row has no primary key"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.pending[rowKey]
	if !ok {
		row = make(map[string]any)
		s.pending[rowKey] = row
	}
	row[field] = value
	return nil
}

// Pending returns the pending value for a cell, if any.
func (s *EditSession) Pending(rowKey, field string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if row, ok := s.pending[rowKey]; ok {
		if v, ok := row[field]; ok {
			return v, true
		}
	}
	return nil, false
}

// DisplayValue returns the pending value when present, else the fallback
// (the last-fetched server value).
func (s *EditSession) DisplayValue(rowKey, field string, fallback any) any {
	if v, ok := s.Pending(rowKey, field); ok {
		return v
	}
	return fallback
}

// HasPending reports whether any cell carries an uncommitted edit.
func (s *EditSession) HasPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending) > 0
}

// PendingRows returns the keys of all rows with uncommitted edits, sorted.
func (s *EditSession) PendingRows() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.pending))
	for key := range s.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// DiscardRow drops the pending edits of a single row.
func (s *EditSession) DiscardRow(rowKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, rowKey)
}

// DiscardAll drops every pending edit unconditionally. Called on collection
// switch and when edit mode toggles off; there is no partial carry-over.
func (s *EditSession) DiscardAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]map[string]any)
}

// CommitAll issues one update per pending row, merging all of that row's
// field changes. A row-level failure leaves that row's edits intact and does
// not block sibling rows. Committed rows clear immediately.
func (s *EditSession) CommitAll(ctx context.Context) CommitResult {
	result := CommitResult{}

	for _, rowKey := range s.PendingRows() {
		s.mu.RLock()
		fields := make(map[string]any, len(s.pending[rowKey]))
		for k, v := range s.pending[rowKey] {
			fields[k] = v
		}
		s.mu.RUnlock()

		if err := s.store.Update(ctx, s.collection, rowKey, fields); err != nil {
			result.Failed = append(result.Failed, RowError{
				RowKey: rowKey,
				Err:    NewGridError(KindCommit, s.collection, err),
			})
			continue
		}

		s.DiscardRow(rowKey)
		result.Committed++
	}

	return result
}
