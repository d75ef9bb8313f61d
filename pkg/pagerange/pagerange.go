// Package pagerange computes the page buttons shown by a pager for a result
// set whose total page count is known.
package pagerange

import "strconv"

// Token is one slot of a pager: either a page number or an ellipsis.
type Token struct {
	Page     int  `json:"page,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
}

// Ellipsis is the gap marker between non-adjacent page numbers.
var Ellipsis = Token{Ellipsis: true}

// PageToken returns the token for page n.
func PageToken(n int) Token {
	return Token{Page: n}
}

func (t Token) String() string {
	if t.Ellipsis {
		return "..."
	}
	return strconv.Itoa(t.Page)
}

// Visible reports whether a pager should be rendered at all. Compute assumes
// this holds; callers must not render a pager for fewer than two pages.
func Visible(totalPages, currentPage int) bool {
	return totalPages >= 2 && currentPage >= 1
}

// TotalPages returns the number of pages needed to show count items.
func TotalPages(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// Compute returns the ordered pager tokens for currentPage within totalPages,
// showing siblings pages on each side of the current one. The first and last
// pages are always present.
func Compute(totalPages, currentPage, siblings int) []Token {
	if totalPages < 0 {
		totalPages = 0
	}
	if siblings < 0 {
		siblings = 0
	}

	window := 5 + 2*siblings
	if totalPages <= window {
		return span(1, totalPages)
	}

	leftSibling := max(currentPage-siblings, 1)
	rightSibling := min(currentPage+siblings, totalPages)

	showLeftDots := leftSibling > 2
	showRightDots := rightSibling < totalPages-2

	edge := 3 + 2*siblings

	switch {
	case !showLeftDots && showRightDots:
		out := span(1, edge)
		return append(out, Ellipsis, PageToken(totalPages))

	case showLeftDots && !showRightDots:
		out := []Token{PageToken(1), Ellipsis}
		return append(out, span(totalPages-edge+1, totalPages)...)

	case showLeftDots && showRightDots:
		out := []Token{PageToken(1), Ellipsis}
		out = append(out, span(leftSibling, rightSibling)...)
		return append(out, Ellipsis, PageToken(totalPages))
	}

	// unreachable once totalPages exceeds the window
	return span(1, totalPages)
}

func span(from, to int) []Token {
	if to < from {
		return []Token{}
	}
	out := make([]Token, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, PageToken(i))
	}
	return out
}
