package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func resolverState(page int) CollectionViewState {
	return CollectionViewState{Collection: "orders", Page: page, PageSize: 10, Locale: "en"}
}

func TestResolver_AppliesResult(t *testing.T) {
	store := newFakeStore()
	store.queryFn = func(params QueryParams) (*QueryResult, error) {
		return &QueryResult{
			Columns:    []ColumnSchema{{Name: "id", Kind: KindText, PrimaryKey: true}},
			Data:       []RowRecord{{"id": "1"}},
			Total:      1,
			TotalPages: 1,
		}, nil
	}

	r := NewResolver(store)
	snap, err := r.Resolve(context.Background(), resolverState(1), NewFilterEngine(0))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if snap.Generation != 1 {
		t.Errorf("expected generation 1, got %d", snap.Generation)
	}
	if len(snap.Rows) != 1 || snap.Total != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if r.State() != StateIdle {
		t.Error("expected resolver back in idle state")
	}
	if r.LastError() != "" {
		t.Errorf("expected no error banner, got %q", r.LastError())
	}
}

func TestResolver_DuplicateFetchSuppressed(t *testing.T) {
	store := newFakeStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	store.queryFn = func(params QueryParams) (*QueryResult, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
			<-release
		}
		return &QueryResult{Total: 0, TotalPages: 1}, nil
	}

	r := NewResolver(store)
	engine := NewFilterEngine(0)

	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), resolverState(1), engine)
		firstErr <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first fetch never reached the store")
	}

	// Identical state while the first fetch is in flight: suppressed without
	// touching the store.
	_, err := r.Resolve(context.Background(), resolverState(1), engine)
	if err == nil || KindOf(err) != KindSuperseded {
		t.Fatalf("expected superseded error for duplicate fetch, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected no second store call, got %d", atomic.LoadInt32(&calls))
	}

	// A different page is a new fetch; it bumps the generation.
	snap, err := r.Resolve(context.Background(), resolverState(2), engine)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if snap.Generation != 2 {
		t.Errorf("expected generation 2, got %d", snap.Generation)
	}

	// The original fetch resolves late and must be dropped silently.
	close(release)
	select {
	case err := <-firstErr:
		if !IsSuperseded(err) {
			t.Errorf("expected superseded drop for stale response, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first fetch never returned")
	}
}

func TestResolver_TransientErrorSetsBanner(t *testing.T) {
	store := newFakeStore()
	store.queryFn = func(params QueryParams) (*QueryResult, error) {
		return nil, context.DeadlineExceeded
	}

	r := NewResolver(store)
	_, err := r.Resolve(context.Background(), resolverState(1), NewFilterEngine(0))
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindTransient {
		t.Errorf("expected transient kind, got %v", KindOf(err))
	}
	if r.LastError() == "" {
		t.Error("expected collection-scoped error banner to be set")
	}
}

func TestResolver_TaxonomyRetagsColumn(t *testing.T) {
	store := newFakeStore()
	store.queryFn = func(params QueryParams) (*QueryResult, error) {
		return &QueryResult{
			Columns: []ColumnSchema{
				{Name: "id", Kind: KindText, PrimaryKey: true},
				{Name: "status_name", Kind: KindText},
			},
			TotalPages: 1,
		}, nil
	}

	r := NewResolver(store)
	r.SetTaxonomy("status_name", []SelectOption{
		{Value: "active", Label: "Active"},
		{Value: "archived", Label: "Archived"},
	})

	snap, err := r.Resolve(context.Background(), resolverState(1), NewFilterEngine(0))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	var status *ColumnSchema
	for i := range snap.Columns {
		if snap.Columns[i].Name == "status_name" {
			status = &snap.Columns[i]
		}
	}
	if status == nil {
		t.Fatal("expected status_name column")
	}
	if status.Kind != KindSelect || len(status.SelectOptions) != 2 {
		t.Errorf("expected select re-tagging, got kind %v with %d options", status.Kind, len(status.SelectOptions))
	}

	// Unrelated columns pass through untouched.
	if snap.Columns[0].Kind != KindText {
		t.Errorf("expected id column untouched, got %v", snap.Columns[0].Kind)
	}
}

func TestResolver_RelationLabels(t *testing.T) {
	store := newFakeStore()
	store.queryFn = func(params QueryParams) (*QueryResult, error) {
		if params.Collection == "cities" {
			return &QueryResult{
				Data: []RowRecord{
					{"id": "7", "name": "Belgrade"},
					{"id": "9", "name": "Nis"},
				},
				TotalPages: 1,
			}, nil
		}
		return &QueryResult{
			Columns: []ColumnSchema{
				{Name: "id", Kind: KindText, PrimaryKey: true},
				{Name: "city_id", Kind: KindRelation, Relation: &RelationRef{
					TargetCollection: "cities",
					ValueField:       "id",
					LabelFields:      []string{"name"},
				}},
			},
			Data:       []RowRecord{{"id": "1", "city_id": "7"}, {"id": "2", "city_id": "9"}},
			Total:      2,
			TotalPages: 1,
		}, nil
	}

	r := NewResolver(store)
	snap, err := r.Resolve(context.Background(), resolverState(1), NewFilterEngine(0))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if snap.Relations.Label("city_id", "7") != "Belgrade" {
		t.Errorf("expected resolved label Belgrade, got %q", snap.Relations.Label("city_id", "7"))
	}
	if snap.Relations.Label("city_id", "404") != "404" {
		t.Errorf("expected raw fallback for unknown value, got %q", snap.Relations.Label("city_id", "404"))
	}
}
