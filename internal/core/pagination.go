package core

// pagination.go binds the zero-based page index used by renderers to the
// one-based page number of the view state, and recomputes total pages when
// client-side filtering changes the effective row count.

import "sync"

// DefaultPageSize is used before the user picks one.
const DefaultPageSize = 10

// PaginationController holds pagination state for one grid instance plus
// the user-scoped per-collection page-size defaults that survive collection
// switches. Safe for concurrent use.
type PaginationController struct {
	mu       sync.Mutex
	page     int // one-based
	pageSize int
	defaults map[string]int // collection -> preferred page size
}

// NewPaginationController returns a controller on page 1 with the default
// page size.
func NewPaginationController() *PaginationController {
	return &PaginationController{
		page:     1,
		pageSize: DefaultPageSize,
		defaults: make(map[string]int),
	}
}

// Page returns the one-based page number.
func (p *PaginationController) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// PageIndex returns the zero-based index used by rendering code.
func (p *PaginationController) PageIndex() int {
	return p.Page() - 1
}

// SetPage sets the one-based page number, clamped to 1.
func (p *PaginationController) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = page
}

// SetPageIndex sets the page from a zero-based index.
func (p *PaginationController) SetPageIndex(index int) {
	p.SetPage(index + 1)
}

// PageSize returns the current page size.
func (p *PaginationController) PageSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageSize
}

// SetPageSize applies a new page size and persists it as the user's default
// for the collection, used on all future switches to it. Changing the size
// returns to the first page.
func (p *PaginationController) SetPageSize(collection string, size int) {
	if size < 1 {
		size = DefaultPageSize
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageSize = size
	p.page = 1
	if collection != "" {
		p.defaults[collection] = size
	}
}

// Reset switches the controller to a collection: first page, and the
// collection's remembered page size when one exists.
func (p *PaginationController) Reset(collection string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = 1
	if size, ok := p.defaults[collection]; ok {
		p.pageSize = size
	} else {
		p.pageSize = DefaultPageSize
	}
}

// TotalPages computes ceil(effectiveRowCount/pageSize), minimum 1.
// effectiveRowCount is the server total normally, or the client-filtered
// length whenever the filter engine is in client-fallback mode.
func (p *PaginationController) TotalPages(effectiveRowCount int) int {
	size := p.PageSize()
	if effectiveRowCount <= 0 {
		return 1
	}
	return (effectiveRowCount + size - 1) / size
}

// Clamp pulls the current page back into range after the total shrinks.
func (p *PaginationController) Clamp(totalPages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if totalPages < 1 {
		totalPages = 1
	}
	if p.page > totalPages {
		p.page = totalPages
	}
}
