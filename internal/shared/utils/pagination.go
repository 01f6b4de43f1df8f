package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vetiver-inc/vetiver/internal/shared/constants"
)

// Pagination holds normalized pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

// ParsePagination reads page and page_size from the query string.
// Missing or malformed values fall back to the defaults and page_size
// is capped at the configured maximum.
func ParsePagination(c *gin.Context) Pagination {
	page := parseQueryInt(c, "page", constants.DefaultPage)
	pageSize := parseQueryInt(c, "page_size", constants.DefaultPageSize)
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 1 {
			return n
		}
	}
	return defaultVal
}

// TotalPages returns how many pages total rows span, at least 1 so an
// empty list still renders as one empty page.
func TotalPages(total int64, pageSize int) int {
	if total == 0 || pageSize == 0 {
		return 1
	}
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if pages == 0 {
		return 1
	}
	return pages
}
