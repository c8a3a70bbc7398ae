package response

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// Page is a requested window of a list, 1-based.
type Page struct {
	Number  int
	PerPage int
}

// ParsePage reads ?page= and ?per_page=. Missing or invalid values fall back
// to the first page and defaultPerPage; per_page is capped at maxPerPage.
func ParsePage(c *gin.Context, defaultPerPage, maxPerPage int) Page {
	p := Page{Number: 1, PerPage: defaultPerPage}
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(c.Query("per_page")); err == nil && n > 0 {
		p.PerPage = min(n, maxPerPage)
	}
	return p
}

// Bounds returns the [start, end) slice indices of the page within total
// items. A page past the end yields an empty range.
func (p Page) Bounds(total int) (int, int) {
	start := min((p.Number-1)*p.PerPage, total)
	end := min(start+p.PerPage, total)
	return start, end
}

// Pagination describes the page against total items.
func (p Page) Pagination(total int) *Pagination {
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return &Pagination{
		Page:       p.Number,
		PerPage:    p.PerPage,
		TotalItems: total,
		TotalPages: pages,
	}
}
