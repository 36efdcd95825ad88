package httpx

import (
	"net/http"
	"strconv"
)

// DefaultPageSize caps listings that do not ask for a limit.
const DefaultPageSize = 50

// Pagination reads limit and offset query parameters, clamping them to sane
// values.
func Pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = DefaultPageSize
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
