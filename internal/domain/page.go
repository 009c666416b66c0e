package domain

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Page holds pagination parameters.
type Page struct {
	Page    int `query:"page" json:"page"`
	PerPage int `query:"per_page" json:"per_page"`
}

// Normalize clamps the page into a usable range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

func (p Page) Limit() int {
	return p.Normalize().PerPage
}

// Window returns the [start, end) slice bounds of the page over total items.
func (p Page) Window(total int) (int, int) {
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Limit()
	if end > total {
		end = total
	}
	return start, end
}

// Meta describes a paginated response.
type Meta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// BuildMeta derives response metadata for total items.
func BuildMeta(p Page, total int) Meta {
	n := p.Normalize()
	pages := 0
	if total > 0 {
		pages = (total + n.PerPage - 1) / n.PerPage
	}
	return Meta{Page: n.Page, PerPage: n.PerPage, Total: total, TotalPages: pages}
}
