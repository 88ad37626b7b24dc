package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "/runs", 1, 10, 0},
		{"explicit", "/runs?page=3&limit=20", 3, 20, 40},
		{"capped limit", "/runs?limit=500", 1, 100, 0},
		{"garbage falls back", "/runs?page=abc&limit=-1", 1, 10, 0},
		{"zero page clamps", "/runs?page=0", 1, 10, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tc.url, nil)
			p := ParsePagination(r, 10, 100)
			assert.Equal(t, tc.wantPage, p.Page)
			assert.Equal(t, tc.wantLimit, p.Limit)
			assert.Equal(t, tc.wantOffset, p.Offset)
		})
	}
}

func TestNewPaginatedResponse(t *testing.T) {
	p := PaginationParams{Page: 2, Limit: 10, Offset: 10}

	resp := NewPaginatedResponse([]string{"a"}, p, 25)
	assert.Equal(t, 25, resp.Pagination.Total)
	assert.Equal(t, 3, resp.Pagination.TotalPages)
	assert.True(t, resp.Pagination.HasMore)

	last := NewPaginatedResponse([]string{"a"}, PaginationParams{Page: 3, Limit: 10, Offset: 20}, 25)
	assert.False(t, last.Pagination.HasMore)
}

func TestNewPaginatedResponseEmpty(t *testing.T) {
	resp := NewPaginatedResponse([]string{}, PaginationParams{Page: 1, Limit: 10}, 0)
	assert.Equal(t, 1, resp.Pagination.TotalPages)
	assert.False(t, resp.Pagination.HasMore)
}
