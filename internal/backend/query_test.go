package backend

import "testing"

func TestQueryConstructors(t *testing.T) {
	q := Or(Equal("owner", "u1"), Contains("users", "a@example.com"))
	if q.Method != QueryOr || len(q.Queries) != 2 {
		t.Fatalf("unexpected or query: %#v", q)
	}
	if q.Queries[0].Method != QueryEqual || q.Queries[0].Attribute != "owner" {
		t.Fatalf("unexpected first branch: %#v", q.Queries[0])
	}
	if got := q.String(); got != "or(equal(owner, [u1]), contains(users, [a@example.com]))" {
		t.Fatalf("unexpected string form: %s", got)
	}
}

func TestQueryIntValue(t *testing.T) {
	n, err := Limit(10).IntValue()
	if err != nil || n != 10 {
		t.Fatalf("expected 10, got %d (err: %v)", n, err)
	}
	n, err = Query{Method: QueryOffset, Values: []any{float64(3)}}.IntValue()
	if err != nil || n != 3 {
		t.Fatalf("expected 3, got %d (err: %v)", n, err)
	}
	if _, err := (Query{Method: QueryLimit, Values: []any{"ten"}}).IntValue(); err == nil {
		t.Fatal("expected error for non-integer limit")
	}
	if _, err := (Query{Method: QueryLimit}).IntValue(); err == nil {
		t.Fatal("expected error for missing limit value")
	}
}
