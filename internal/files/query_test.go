package files

import (
	"reflect"
	"testing"

	"stash/internal/backend"
	"stash/internal/models"
)

var userA = models.User{ID: "ua", Email: "a@example.com", AccountID: "ua"}

func TestBuildQueryBasePredicateIsOr(t *testing.T) {
	queries := BuildQuery(userA, nil, "", "", 0)
	if len(queries) != 2 {
		t.Fatalf("expected base predicate and order, got %v", queries)
	}
	want := backend.Or(backend.Equal("owner", "ua"), backend.Contains("users", "a@example.com"))
	if !reflect.DeepEqual(queries[0], want) {
		t.Fatalf("expected %v, got %v", want, queries[0])
	}
	if !reflect.DeepEqual(queries[1], backend.OrderDesc("createdAt")) {
		t.Fatalf("expected default createdAt desc, got %v", queries[1])
	}
}

func TestBuildQueryTypes(t *testing.T) {
	for _, q := range BuildQuery(userA, nil, "", "", 0) {
		if q.Attribute == "type" {
			t.Fatalf("expected no type restriction, got %v", q)
		}
	}

	queries := BuildQuery(userA, []models.FileType{models.FileTypeVideo, models.FileTypeAudio}, "", "", 0)
	want := backend.Equal("type", "video", "audio")
	if !reflect.DeepEqual(queries[1], want) {
		t.Fatalf("expected %v, got %v", want, queries[1])
	}
}

func TestBuildQuerySearchAndLimit(t *testing.T) {
	queries := BuildQuery(userA, nil, "report", "name-asc", 10)
	want := []backend.Query{
		backend.Or(backend.Equal("owner", "ua"), backend.Contains("users", "a@example.com")),
		backend.Contains("name", "report"),
		backend.OrderAsc("name"),
		backend.Limit(10),
	}
	if !reflect.DeepEqual(queries, want) {
		t.Fatalf("expected %v, got %v", want, queries)
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		spec      string
		field     string
		ascending bool
	}{
		{"", "createdAt", false},
		{"createdAt-desc", "createdAt", false},
		{"name-asc", "name", true},
		{"name-xyz", "name", false},
		{"size", "size", false},
		{"$createdAt-asc", "$createdAt", true},
		{"name-asc-extra", "name", false},
		{"-asc", "createdAt", true},
	}
	for _, tt := range tests {
		field, asc := parseSort(tt.spec)
		if field != tt.field || asc != tt.ascending {
			t.Fatalf("parseSort(%q) = (%q, %v), want (%q, %v)", tt.spec, field, asc, tt.field, tt.ascending)
		}
	}
}

func TestBuildQueryUnknownDirectionIsDescending(t *testing.T) {
	queries := BuildQuery(userA, nil, "", "name-xyz", 0)
	last := queries[len(queries)-1]
	if !reflect.DeepEqual(last, backend.OrderDesc("name")) {
		t.Fatalf("expected descending by name, got %v", last)
	}
}
