package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name  string   `json:"name"`
	Size  int64    `json:"size"`
	Users []string `json:"users"`
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, sample{Name: "a.txt", Size: 3, Users: []string{}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "{\n  \"name\": \"a.txt\",\n  \"size\": 3,\n  \"users\": []\n}\n"
	if buf.String() != want {
		t.Fatalf("unexpected json %q", buf.String())
	}
}

func TestYAMLFormatterUsesJSONFieldNames(t *testing.T) {
	var buf bytes.Buffer
	if err := (YAMLFormatter{}).Write(&buf, sample{Name: "a.txt", Size: 3, Users: []string{"b@example.com"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"name: a.txt", "size: 3", "users:", "- b@example.com"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in yaml output:\n%s", want, out)
		}
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", "json", "yaml", "yml"} {
		if _, err := New(name); err != nil {
			t.Fatalf("format %q: %v", name, err)
		}
	}
	if _, err := New("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
