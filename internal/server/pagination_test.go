package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageParams(t *testing.T) {
	cases := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"defaults", "", 1, defaultPageLimit},
		{"explicit values", "?page=3&limit=50", 3, 50},
		{"limit is clamped", "?limit=5000", 1, maxPageLimit},
		{"zero and negative fall back", "?page=0&limit=-5", 1, defaultPageLimit},
		{"garbage falls back", "?page=abc&limit=xyz", 1, defaultPageLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/admin/users"+tc.query, nil)
			page, limit := pageParams(r)
			assert.Equal(t, tc.wantPage, page)
			assert.Equal(t, tc.wantLimit, limit)
		})
	}
}

func TestPaginated(t *testing.T) {
	t.Run("middle page", func(t *testing.T) {
		resp := paginated([]string{"a", "b"}, 2, 2, 5)
		assert.Equal(t, 3, resp.Pagination.TotalPages)
		assert.True(t, resp.Pagination.HasNext)
		assert.True(t, resp.Pagination.HasPrev)
	})

	t.Run("last page", func(t *testing.T) {
		resp := paginated([]string{"e"}, 3, 2, 5)
		assert.False(t, resp.Pagination.HasNext)
		assert.True(t, resp.Pagination.HasPrev)
	})

	t.Run("empty result", func(t *testing.T) {
		resp := paginated([]string{}, 1, 20, 0)
		assert.Equal(t, 0, resp.Pagination.TotalPages)
		assert.False(t, resp.Pagination.HasNext)
		assert.False(t, resp.Pagination.HasPrev)
	})
}
