// Package query holds filter types shared by repository list operations.
package query

import "github.com/vetiver-inc/vetiver/internal/shared/constants"

// PageFilter selects one page of a list result. The zero value asks for
// the first page with the default size.
type PageFilter struct {
	Page     int
	PageSize int
}

// Offset returns the row offset of the requested page.
func (f PageFilter) Offset() int {
	if f.Page <= 0 {
		return 0
	}
	return (f.Page - 1) * f.Limit()
}

// Limit returns the page size clamped to the configured bounds.
func (f PageFilter) Limit() int {
	if f.PageSize <= 0 {
		return constants.DefaultPageSize
	}
	if f.PageSize > constants.MaxPageSize {
		return constants.MaxPageSize
	}
	return f.PageSize
}
