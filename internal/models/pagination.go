package models

// Page bounds shared by paged list endpoints.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Pagination describes one page of a SQL paged list.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
