package types

// PaginationResult is one page of a listing. Page numbers start at 1.
type PaginationResult[T any] struct {
	Items           []T  `json:"items"`
	TotalItems      int  `json:"total_items"`
	Page            int  `json:"page"`
	PageSize        int  `json:"page_size"`
	TotalPages      int  `json:"total_pages"`
	HasNextPage     bool `json:"has_next_page"`
	HasPreviousPage bool `json:"has_previous_page"`
}

// NewPage builds the page metadata for items, which must already be the
// slice at page out of totalItems.
func NewPage[T any](items []T, totalItems, page, pageSize int) *PaginationResult[T] {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (totalItems + pageSize - 1) / pageSize
	}
	return &PaginationResult[T]{
		Items:           items,
		TotalItems:      totalItems,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}
