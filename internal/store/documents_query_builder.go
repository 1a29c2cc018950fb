package store

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"stash/internal/backend"
)

const documentColumns = "id, data, created_at, updated_at"

var (
	errUnsupportedQuery = errors.New("unsupported query")
	attributePattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// systemAttributes map query attributes onto real columns.
var systemAttributes = map[string]string{
	"$id":        "id",
	"$createdAt": "created_at",
	"createdAt":  "created_at",
	"$updatedAt": "updated_at",
	"updatedAt":  "updated_at",
}

type documentQuery struct {
	selectSQL  string
	selectArgs []any
	countSQL   string
	countArgs  []any
}

type documentQueryBuilder struct {
	collection string
	where      []string
	args       []any
	order      []string
	limit      int
	hasLimit   bool
	offset     int
}

func buildDocumentQuery(collection string, queries []backend.Query) (documentQuery, error) {
	b := &documentQueryBuilder{collection: collection}
	b.where = append(b.where, "collection = ?")
	b.args = append(b.args, collection)

	for _, q := range queries {
		if err := b.apply(q); err != nil {
			return documentQuery{}, err
		}
	}

	where := " WHERE " + strings.Join(b.where, " AND ")
	countArgs := append([]any(nil), b.args...)

	query := "SELECT " + documentColumns + " FROM documents" + where + b.orderClause()
	args := append([]any(nil), b.args...)
	query, args = b.appendPagination(query, args)

	return documentQuery{
		selectSQL:  query,
		selectArgs: args,
		countSQL:   "SELECT COUNT(*) FROM documents" + where,
		countArgs:  countArgs,
	}, nil
}

func (b *documentQueryBuilder) apply(q backend.Query) error {
	switch q.Method {
	case backend.QueryEqual, backend.QueryContains, backend.QuerySearch, backend.QueryOr:
		frag, args, err := compilePredicate(q)
		if err != nil {
			return err
		}
		b.where = append(b.where, frag)
		b.args = append(b.args, args...)
	case backend.QueryOrderAsc, backend.QueryOrderDesc:
		expr, _, err := attributeExpr(q.Attribute)
		if err != nil {
			return err
		}
		dir := "DESC"
		if q.Method == backend.QueryOrderAsc {
			dir = "ASC"
		}
		b.order = append(b.order, expr+" "+dir)
	case backend.QueryLimit:
		n, err := q.IntValue()
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("limit must be >= 0, got %d", n)
		}
		b.limit = n
		b.hasLimit = true
	case backend.QueryOffset:
		n, err := q.IntValue()
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("offset must be >= 0, got %d", n)
		}
		b.offset = n
	default:
		return fmt.Errorf("%w: %q", errUnsupportedQuery, q.Method)
	}
	return nil
}

func (b *documentQueryBuilder) orderClause() string {
	if len(b.order) == 0 {
		return " ORDER BY created_at ASC, id ASC"
	}
	return " ORDER BY " + strings.Join(b.order, ", ") + ", id ASC"
}

func (b *documentQueryBuilder) appendPagination(query string, args []any) (string, []any) {
	if b.hasLimit {
		query += " LIMIT ?"
		args = append(args, b.limit)
	}
	if b.offset > 0 {
		if !b.hasLimit {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, b.offset)
	}
	return query, args
}

func compilePredicate(q backend.Query) (string, []any, error) {
	switch q.Method {
	case backend.QueryOr:
		if len(q.Queries) == 0 {
			return "", nil, fmt.Errorf("or requires at least one query")
		}
		parts := make([]string, 0, len(q.Queries))
		var args []any
		for _, sub := range q.Queries {
			frag, subArgs, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, frag)
			args = append(args, subArgs...)
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	case backend.QueryEqual:
		return compileEqual(q)
	case backend.QueryContains:
		return compileContains(q)
	case backend.QuerySearch:
		return compileSearch(q)
	default:
		return "", nil, fmt.Errorf("%w: %q is not a predicate", errUnsupportedQuery, q.Method)
	}
}

func compileEqual(q backend.Query) (string, []any, error) {
	expr, _, err := attributeExpr(q.Attribute)
	if err != nil {
		return "", nil, err
	}
	args, err := bindValues(q)
	if err != nil {
		return "", nil, err
	}
	if len(args) == 1 {
		return expr + " = ?", args, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	return expr + " IN (" + placeholders + ")", args, nil
}

// compileContains matches array membership for array attributes and a
// case-insensitive substring for string attributes.
func compileContains(q backend.Query) (string, []any, error) {
	expr, system, err := attributeExpr(q.Attribute)
	if err != nil {
		return "", nil, err
	}
	values, err := bindValues(q)
	if err != nil {
		return "", nil, err
	}

	parts := make([]string, 0, len(values))
	args := make([]any, 0, 2*len(values))
	for _, v := range values {
		if system {
			parts = append(parts, "instr(lower("+expr+"), lower(?)) > 0")
			args = append(args, v)
			continue
		}
		path := jsonPath(q.Attribute)
		parts = append(parts, "(CASE json_type(documents.data, '"+path+"')"+
			" WHEN 'array' THEN EXISTS (SELECT 1 FROM json_each(documents.data, '"+path+"') WHERE json_each.value = ?)"+
			" WHEN 'text' THEN instr(lower("+expr+"), lower(?)) > 0"+
			" ELSE 0 END)")
		args = append(args, v, v)
	}
	return joinAlternatives(parts), args, nil
}

// compileSearch matches documents containing any whitespace-separated term.
func compileSearch(q backend.Query) (string, []any, error) {
	expr, _, err := attributeExpr(q.Attribute)
	if err != nil {
		return "", nil, err
	}
	if len(q.Values) != 1 {
		return "", nil, fmt.Errorf("search on %s expects one term", q.Attribute)
	}
	term, ok := q.Values[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("search on %s expects a string term", q.Attribute)
	}
	words := strings.Fields(term)
	if len(words) == 0 {
		return "", nil, fmt.Errorf("search on %s requires a term", q.Attribute)
	}
	parts := make([]string, 0, len(words))
	args := make([]any, 0, len(words))
	for _, w := range words {
		parts = append(parts, "instr(lower("+expr+"), lower(?)) > 0")
		args = append(args, w)
	}
	return joinAlternatives(parts), args, nil
}

func joinAlternatives(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func attributeExpr(attribute string) (expr string, system bool, err error) {
	if col, ok := systemAttributes[attribute]; ok {
		return col, true, nil
	}
	if !attributePattern.MatchString(attribute) {
		return "", false, fmt.Errorf("invalid attribute %q", attribute)
	}
	return "json_extract(documents.data, '" + jsonPath(attribute) + "')", false, nil
}

func jsonPath(attribute string) string {
	return "$." + attribute
}

func bindValues(q backend.Query) ([]any, error) {
	if len(q.Values) == 0 {
		return nil, fmt.Errorf("%s on %s requires at least one value", q.Method, q.Attribute)
	}
	out := make([]any, 0, len(q.Values))
	for _, v := range q.Values {
		bound, err := bindValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", q.Method, q.Attribute, err)
		}
		out = append(out, bound)
	}
	return out, nil
}

// bindValue reduces named scalar types to the forms json_extract yields.
func bindValue(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Bool:
		if rv.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
