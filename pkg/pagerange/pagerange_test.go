package pagerange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pages(ns ...int) []Token {
	out := make([]Token, 0, len(ns))
	for _, n := range ns {
		if n == 0 {
			out = append(out, Ellipsis)
			continue
		}
		out = append(out, PageToken(n))
	}
	return out
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		current  int
		siblings int
		want     []Token
	}{
		{"both dots", 20, 10, 1, pages(1, 0, 9, 10, 11, 0, 20)},
		{"fits in window", 5, 1, 1, pages(1, 2, 3, 4, 5)},
		{"exactly window", 7, 4, 1, pages(1, 2, 3, 4, 5, 6, 7)},
		{"right dots only", 20, 1, 1, pages(1, 2, 3, 4, 5, 0, 20)},
		{"left dots only", 20, 20, 1, pages(1, 0, 16, 17, 18, 19, 20)},
		{"near start", 20, 3, 1, pages(1, 2, 3, 4, 5, 0, 20)},
		{"near end", 20, 18, 1, pages(1, 0, 16, 17, 18, 19, 20)},
		{"wider siblings", 30, 15, 2, pages(1, 0, 13, 14, 15, 16, 17, 0, 30)},
		{"zero siblings", 10, 5, 0, pages(1, 0, 5, 0, 10)},
		{"empty", 0, 1, 1, pages()},
		{"single page", 1, 1, 1, pages(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.total, tt.current, tt.siblings))
		})
	}
}

func TestCompute_EdgeAlwaysPresent(t *testing.T) {
	for current := 1; current <= 50; current++ {
		got := Compute(50, current, 1)
		assert.Equal(t, PageToken(1), got[0])
		assert.Equal(t, PageToken(50), got[len(got)-1])
		assert.Contains(t, got, PageToken(current))
	}
}

func TestVisible(t *testing.T) {
	assert.False(t, Visible(0, 1))
	assert.False(t, Visible(1, 1))
	assert.False(t, Visible(5, 0))
	assert.True(t, Visible(2, 1))
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 0, TotalPages(11, 0))
}

func TestTokenString(t *testing.T) {
	assert.Equal(t, "...", Ellipsis.String())
	assert.Equal(t, "7", PageToken(7).String())
}
