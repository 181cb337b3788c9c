package composables

import (
	"net/http"
	"strconv"
)

type PaginationParams struct {
	Limit  int
	Offset int
	Page   int
}

// UsePaginated reads ?page= (1-based) and ?limit= from r. limit falls back to
// defaultLimit and is capped at maxLimit when maxLimit > 0.
func UsePaginated(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	q := r.URL.Query()

	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	return PaginationParams{
		Limit:  limit,
		Offset: (page - 1) * limit,
		Page:   page,
	}
}
