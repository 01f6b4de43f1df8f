package usage

import "fmt"

// Category identifies which kind of aggregate a pending delta belongs to.
// The set is closed: adding a category means touching every switch that
// consumes one, which is exactly the point.
type Category string

const (
	CategoryUser    Category = "user"
	CategoryAdmin   Category = "admin"
	CategoryService Category = "service"
	CategoryNode    Category = "node"
)

// AllCategories returns every valid category in reconciliation order.
func AllCategories() []Category {
	return []Category{CategoryUser, CategoryAdmin, CategoryService, CategoryNode}
}

// NewCategory validates and creates a category from a string.
func NewCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid usage category: %s", s)
	}
	return c, nil
}

// IsValid checks if the category is one of the defined values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryUser, CategoryAdmin, CategoryService, CategoryNode:
		return true
	}
	return false
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}
