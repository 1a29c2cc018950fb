// Package files lists, aggregates and mutates file metadata on behalf of a
// signed-in user.
package files

import (
	"strings"

	"stash/internal/backend"
	"stash/internal/models"
)

// DefaultSort orders listings newest first.
const DefaultSort = "createdAt-desc"

// ListParams are the listing options accepted from callers.
type ListParams struct {
	Types  []models.FileType
	Search string
	Sort   string
	Limit  int
}

// BuildQuery describes the files visible to user: owned by them or shared
// with their email, narrowed by types and a name substring, ordered by
// sortSpec and capped at limit when limit > 0. It does not run the query.
func BuildQuery(user models.User, types []models.FileType, searchText, sortSpec string, limit int) []backend.Query {
	queries := []backend.Query{
		backend.Or(
			backend.Equal("owner", user.ID),
			backend.Contains("users", user.Email),
		),
	}

	if len(types) > 0 {
		values := make([]any, 0, len(types))
		for _, t := range types {
			values = append(values, string(t))
		}
		queries = append(queries, backend.Equal("type", values...))
	}
	if searchText != "" {
		queries = append(queries, backend.Contains("name", searchText))
	}

	field, ascending := parseSort(sortSpec)
	if ascending {
		queries = append(queries, backend.OrderAsc(field))
	} else {
		queries = append(queries, backend.OrderDesc(field))
	}

	if limit > 0 {
		queries = append(queries, backend.Limit(limit))
	}
	return queries
}

// parseSort splits "<field>-<direction>" on the first dash. Only "asc" sorts
// ascending.
func parseSort(spec string) (field string, ascending bool) {
	if spec == "" {
		spec = DefaultSort
	}
	field, dir, _ := strings.Cut(spec, "-")
	if field == "" {
		field, _, _ = strings.Cut(DefaultSort, "-")
	}
	return field, dir == "asc"
}
