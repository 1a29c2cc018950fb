package backend

import (
	"fmt"
	"strings"
)

// QueryMethod names one query directive.
type QueryMethod string

const (
	QueryEqual     QueryMethod = "equal"
	QueryContains  QueryMethod = "contains"
	QuerySearch    QueryMethod = "search"
	QueryOr        QueryMethod = "or"
	QueryOrderAsc  QueryMethod = "orderAsc"
	QueryOrderDesc QueryMethod = "orderDesc"
	QueryLimit     QueryMethod = "limit"
	QueryOffset    QueryMethod = "offset"
)

// Query is one predicate, ordering, or pagination directive. A list of
// queries is combined with AND; Or nests alternatives.
type Query struct {
	Method    QueryMethod `json:"method"`
	Attribute string      `json:"attribute,omitempty"`
	Values    []any       `json:"values,omitempty"`
	Queries   []Query     `json:"queries,omitempty"`
}

// Equal matches documents whose attribute equals any of values.
func Equal(attribute string, values ...any) Query {
	return Query{Method: QueryEqual, Attribute: attribute, Values: values}
}

// Contains matches a substring of a string attribute, or membership of an
// array attribute.
func Contains(attribute string, values ...any) Query {
	return Query{Method: QueryContains, Attribute: attribute, Values: values}
}

// Search matches a full-text term against an attribute.
func Search(attribute, term string) Query {
	return Query{Method: QuerySearch, Attribute: attribute, Values: []any{term}}
}

func Or(queries ...Query) Query {
	return Query{Method: QueryOr, Queries: queries}
}

func OrderAsc(attribute string) Query {
	return Query{Method: QueryOrderAsc, Attribute: attribute}
}

func OrderDesc(attribute string) Query {
	return Query{Method: QueryOrderDesc, Attribute: attribute}
}

func Limit(n int) Query {
	return Query{Method: QueryLimit, Values: []any{n}}
}

func Offset(n int) Query {
	return Query{Method: QueryOffset, Values: []any{n}}
}

// IntValue returns the first value of a limit or offset directive.
func (q Query) IntValue() (int, error) {
	if len(q.Values) != 1 {
		return 0, fmt.Errorf("%s expects one value", q.Method)
	}
	switch v := q.Values[0].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s expects an integer, got %T", q.Method, q.Values[0])
	}
}

// String renders the directive for logs.
func (q Query) String() string {
	switch q.Method {
	case QueryOr:
		parts := make([]string, 0, len(q.Queries))
		for _, sub := range q.Queries {
			parts = append(parts, sub.String())
		}
		return "or(" + strings.Join(parts, ", ") + ")"
	case QueryOrderAsc, QueryOrderDesc:
		return fmt.Sprintf("%s(%s)", q.Method, q.Attribute)
	case QueryLimit, QueryOffset:
		return fmt.Sprintf("%s(%v)", q.Method, q.Values)
	default:
		return fmt.Sprintf("%s(%s, %v)", q.Method, q.Attribute, q.Values)
	}
}
