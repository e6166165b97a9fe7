package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GTFB/forlifely-sub001/internal/config"
	"github.com/GTFB/forlifely-sub001/internal/core"
)

// stubBackend serves fixed orders and customers collections from memory.
// Mutations are recorded for assertions.
type stubBackend struct {
	mu        sync.Mutex
	rows      []core.RowRecord
	customers []core.RowRecord
	updates   map[string]map[string]any
	upserts   []map[string]any
	deleted   []string
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		rows: []core.RowRecord{
			{"id": "r1", "name": "Acme Widget", "qty": int64(5), "status_name": "active", "customer_id": "c1"},
			{"id": "r2", "name": "Globex Gadget", "qty": int64(12), "status_name": "archived", "customer_id": "c2"},
			{"id": "r3", "name": "Acme Gear", "qty": int64(3), "status_name": "active", "customer_id": "c1"},
		},
		customers: []core.RowRecord{
			{"id": "c1", "name": "Acme Corp"},
			{"id": "c2", "name": "Globex Inc"},
		},
		updates: make(map[string]map[string]any),
	}
}

func ordersSchema() []core.ColumnSchema {
	return []core.ColumnSchema{
		{Name: "id", StorageType: "uuid", PrimaryKey: true, Kind: core.KindText},
		{Name: "name", StorageType: "text", Kind: core.KindText},
		{Name: "qty", StorageType: "bigint", Kind: core.KindNumber},
		{Name: "status_name", StorageType: "text", Kind: core.KindText},
		{Name: "customer_id", StorageType: "uuid", Kind: core.KindRelation, Relation: &core.RelationRef{
			TargetCollection: "customers",
			ValueField:       "id",
			LabelFields:      []string{"name"},
		}},
	}
}

func customersSchema() []core.ColumnSchema {
	return []core.ColumnSchema{
		{Name: "id", StorageType: "uuid", PrimaryKey: true, Kind: core.KindText},
		{Name: "name", StorageType: "text", Kind: core.KindText},
	}
}

func (b *stubBackend) Collections(ctx context.Context) ([]string, error) {
	return []string{"orders", "customers"}, nil
}

func (b *stubBackend) Schema(ctx context.Context, collection string) ([]core.ColumnSchema, error) {
	switch collection {
	case "orders":
		return ordersSchema(), nil
	case "customers":
		return customersSchema(), nil
	}
	return nil, fmt.Errorf("unknown collection: %s", collection)
}

func (b *stubBackend) Query(ctx context.Context, params core.QueryParams) (*core.QueryResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var source []core.RowRecord
	var schema []core.ColumnSchema
	switch params.Collection {
	case "orders":
		source, schema = b.rows, ordersSchema()
	case "customers":
		source, schema = b.customers, customersSchema()
	default:
		return nil, fmt.Errorf("unknown collection: %s", params.Collection)
	}

	matched := make([]core.RowRecord, 0, len(source))
	for _, row := range source {
		keep := true
		for _, f := range params.Filters {
			if !core.MatchesFilter(row, f) {
				keep = false
				break
			}
		}
		if keep {
			matched = append(matched, row)
		}
	}

	total := len(matched)
	page := core.Page(matched, params.Page, params.PageSize)
	totalPages := (total + params.PageSize - 1) / params.PageSize
	if totalPages < 1 {
		totalPages = 1
	}
	return &core.QueryResult{
		Data:       page,
		Columns:    schema,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

func (b *stubBackend) Create(ctx context.Context, collection string, fields map[string]any) (core.RowRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row := core.RowRecord{}
	for k, v := range fields {
		row[k] = v
	}
	if row["id"] == nil {
		row["id"] = fmt.Sprintf("r%d", len(b.rows)+1)
	}
	b.rows = append(b.rows, row)
	return row, nil
}

func (b *stubBackend) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	merged, ok := b.updates[key]
	if !ok {
		merged = make(map[string]any)
		b.updates[key] = merged
	}
	for k, v := range fields {
		merged[k] = v
	}
	return nil
}

func (b *stubBackend) Upsert(ctx context.Context, collection string, row map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upserts = append(b.upserts, row)
	return nil
}

func (b *stubBackend) Delete(ctx context.Context, collection, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, key)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 30 * time.Second},
		Grid: config.GridConfig{
			DefaultPageSize:  10,
			FallbackPageSize: 1000,
			DefaultLocale:    "en",
		},
		Import: config.ImportConfig{MaxFileSize: 1 << 20, Timeout: time.Minute},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T) (*Server, *stubBackend) {
	t.Helper()
	backend := newStubBackend()
	jobs := core.NewImportJobManager(backend, nil, time.Minute)
	return NewServer(testConfig(), backend, jobs), backend
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestListCollections(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/collections", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Collections []string `json:"collections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Collections) != 2 || resp.Collections[0] != "orders" {
		t.Errorf("collections = %v, want [orders customers]", resp.Collections)
	}
}

func TestGridState(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/collection/orders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp GridResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
	if len(resp.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(resp.Rows))
	}
	// 2 fixed + 5 schema columns, no extension keys in the stub rows
	if len(resp.Columns) != 7 {
		t.Errorf("columns = %d, want 7", len(resp.Columns))
	}
	if resp.Rows[0].Key != "r1" {
		t.Errorf("row key = %q, want r1", resp.Rows[0].Key)
	}
	if resp.Rows[0].Cells["name"] != "Acme Widget" {
		t.Errorf("name cell = %q", resp.Rows[0].Cells["name"])
	}
	if resp.Rows[0].Cells["customer_id"] != "Acme Corp" {
		t.Errorf("customer cell = %q, want resolved label", resp.Rows[0].Cells["customer_id"])
	}
}

func TestGridState_BooleanSearchFallback(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/collection/orders?search=Acme+AND+NOT+Gear", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp GridResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("total = %d, want 1", resp.Total)
	}
	if resp.Rows[0].Cells["name"] != "Acme Widget" {
		t.Errorf("name cell = %q, want Acme Widget", resp.Rows[0].Cells["name"])
	}
}

func TestGridState_QuickStatusFilter(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/collection/orders?status=active", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp GridResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestGridState_QuickFilterPagination(t *testing.T) {
	s, backend := newTestServer(t)

	backend.mu.Lock()
	rows := make([]core.RowRecord, 0, 50)
	for i := 1; i <= 50; i++ {
		status := "archived"
		if i <= 23 {
			status = "active"
		}
		rows = append(rows, core.RowRecord{
			"id":          fmt.Sprintf("o%02d", i),
			"name":        fmt.Sprintf("Order %02d", i),
			"qty":         int64(i),
			"status_name": status,
		})
	}
	backend.rows = rows
	backend.mu.Unlock()

	// Totals come from the whole filtered set, not the first server page.
	rec := doRequest(t, s, http.MethodGet, "/api/collection/orders?status=active&pageSize=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var resp GridResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 23 || resp.TotalPages != 5 {
		t.Fatalf("total = %d totalPages = %d, want 23 and 5", resp.Total, resp.TotalPages)
	}
	if resp.Page != 1 || len(resp.Rows) != 5 {
		t.Fatalf("page = %d rows = %d, want page 1 with 5 rows", resp.Page, len(resp.Rows))
	}

	// The page size persists as the collection default across requests.
	rec = doRequest(t, s, http.MethodGet, "/api/collection/orders?status=active&page=3", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.PageSize != 5 || resp.Page != 3 {
		t.Fatalf("page = %d pageSize = %d, want page 3 size 5", resp.Page, resp.PageSize)
	}
	if len(resp.Rows) != 5 || resp.Rows[0].Key != "o11" {
		t.Fatalf("rows = %d first = %q, want 5 rows starting at o11", len(resp.Rows), resp.Rows[0].Key)
	}

	// A page past the filtered range clamps to the last one.
	rec = doRequest(t, s, http.MethodGet, "/api/collection/orders?status=active&page=99", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Page != 5 || len(resp.Rows) != 3 {
		t.Errorf("page = %d rows = %d, want last page with 3 rows", resp.Page, len(resp.Rows))
	}
}

func TestGridState_SortToggle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/collection/orders?toggleSort=qty", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var resp GridResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Sort) != 1 || resp.Sort[0].ColumnID != "qty" || !resp.Sort[0].Desc {
		t.Fatalf("sort = %+v, want [qty desc]", resp.Sort)
	}

	// A modified click layers a second column onto the existing sort.
	rec = doRequest(t, s, http.MethodGet, "/api/collection/orders?toggleSort=name&additive=true", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Sort) != 2 || resp.Sort[0].ColumnID != "qty" || resp.Sort[1].ColumnID != "name" {
		t.Errorf("sort = %+v, want [qty name]", resp.Sort)
	}
}

func TestGridState_SortPrunesUnknownColumns(t *testing.T) {
	s, _ := newTestServer(t)

	sortParam := url.QueryEscape(`[{"id":"qty","desc":true},{"id":"ghost","desc":false}]`)
	rec := doRequest(t, s, http.MethodGet, "/api/collection/orders?sort="+sortParam, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp GridResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Sort) != 1 || resp.Sort[0].ColumnID != "qty" {
		t.Errorf("sort = %+v, want only qty after pruning", resp.Sort)
	}
}

func TestGridState_MalformedSearch(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/collection/orders?search=Acme+AND+(Gear", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != "GRID_VALIDATION" {
		t.Errorf("code = %q, want GRID_VALIDATION", resp.Code)
	}
}

func TestCreateRow(t *testing.T) {
	s, backend := newTestServer(t)

	body := []byte(`{"name":"New Thing","qty":7}`)
	rec := doRequest(t, s, http.MethodPost, "/api/collection/orders/rows", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.rows) != 4 {
		t.Errorf("rows = %d, want 4", len(backend.rows))
	}
}

func TestDeleteRow(t *testing.T) {
	s, backend := newTestServer(t)

	rec := doRequest(t, s, http.MethodDelete, "/api/collection/orders/rows/r2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.deleted) != 1 || backend.deleted[0] != "r2" {
		t.Errorf("deleted = %v, want [r2]", backend.deleted)
	}
}

func TestEditSessionFlow(t *testing.T) {
	s, backend := newTestServer(t)

	// Stage an edit
	body := []byte(`{"rowKey":"r1","column":"name","input":"Acme Rocket"}`)
	rec := doRequest(t, s, http.MethodPost, "/api/collection/orders/edit", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("begin status = %d, body: %s", rec.Code, rec.Body.String())
	}

	// Pending list shows the row; backend untouched
	rec = doRequest(t, s, http.MethodGet, "/api/collection/orders/edit", nil)
	var pending struct {
		HasPending bool     `json:"hasPending"`
		Rows       []string `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !pending.HasPending || len(pending.Rows) != 1 || pending.Rows[0] != "r1" {
		t.Fatalf("pending = %+v", pending)
	}
	backend.mu.Lock()
	if len(backend.updates) != 0 {
		t.Error("begin must not touch the backend")
	}
	backend.mu.Unlock()

	// Commit
	rec = doRequest(t, s, http.MethodPost, "/api/collection/orders/edit/commit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var result commitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.Success || result.Committed != 1 {
		t.Fatalf("commit result = %+v", result)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.updates["r1"]["name"] != "Acme Rocket" {
		t.Errorf("update = %v", backend.updates["r1"])
	}
}

func TestBeginEdit_NotEditableColumn(t *testing.T) {
	s, _ := newTestServer(t)

	// Primary key column is never editable
	body := []byte(`{"rowKey":"r1","column":"id","input":"other"}`)
	rec := doRequest(t, s, http.MethodPost, "/api/collection/orders/edit", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDiscardEdits(t *testing.T) {
	s, _ := newTestServer(t)

	body := []byte(`{"rowKey":"r1","column":"name","input":"Changed"}`)
	doRequest(t, s, http.MethodPost, "/api/collection/orders/edit", body)

	rec := doRequest(t, s, http.MethodPost, "/api/collection/orders/edit/discard", []byte(`{}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/collection/orders/edit", nil)
	var pending struct {
		HasPending bool `json:"hasPending"`
	}
	json.Unmarshal(rec.Body.Bytes(), &pending)
	if pending.HasPending {
		t.Error("expected pending edits to be discarded")
	}
}

func TestExportCSV(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/collection/orders/export?format=csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "orders_") || !strings.Contains(cd, ".csv") {
		t.Errorf("content disposition = %q", cd)
	}

	body := rec.Body.Bytes()
	if !bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}) {
		t.Error("expected UTF-8 BOM prefix")
	}
	lines := strings.Split(strings.TrimSpace(string(body[3:])), "\n")
	if len(lines) != 4 { // header + 3 rows
		t.Errorf("lines = %d, want 4", len(lines))
	}
	if !strings.Contains(string(body), "Acme Corp") {
		t.Error("expected relation labels in the export, not raw keys")
	}
}

func TestExportJSON_NoBOM(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/collection/orders/export?format=json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if bytes.HasPrefix(rec.Body.Bytes(), []byte{0xEF, 0xBB, 0xBF}) {
		t.Error("JSON export must not carry a BOM")
	}

	var rows []map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0]["customer_id"] != "Acme Corp" {
		t.Errorf("customer cell = %q, want resolved label", rows[0]["customer_id"])
	}
}

func TestImportFlow(t *testing.T) {
	s, backend := newTestServer(t)

	payload := []byte(`[{"name":"Imported A","qty":"1"},{"name":"Imported B","qty":"2"}]`)
	rec := doRequest(t, s, http.MethodPost, "/api/collection/orders/import?format=json", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var started struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if started.JobID == "" {
		t.Fatal("expected a job id")
	}

	// Result blocks until the job finishes
	rec = doRequest(t, s, http.MethodGet, "/api/import/"+started.JobID+"/result", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("result status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var result core.ImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.Success || result.ImportedCount != 2 {
		t.Fatalf("result = %+v", result)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.upserts) != 2 {
		t.Errorf("upserts = %d, want 2", len(backend.upserts))
	}
}

func TestImport_UnknownFormat(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/collection/orders/import?format=xml", []byte("<x/>"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestImportProgress_UnknownJob(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/import/nope/progress", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
