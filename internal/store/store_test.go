package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type sentOTP struct {
	to        string
	code      string
	expiresAt time.Time
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentOTP
	err  error
}

func (r *recordingSender) SendOTP(_ context.Context, to, code string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentOTP{to: to, code: code, expiresAt: expiresAt})
	return nil
}

func (r *recordingSender) last(t *testing.T) sentOTP {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		t.Fatal("expected an otp to be sent")
	}
	return r.sent[len(r.sent)-1]
}

func testStore(t *testing.T) (*Store, *recordingSender) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "stash.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	sender := &recordingSender{}
	st.Configure(Options{Sender: sender})
	st.bcryptCost = bcrypt.MinCost
	return st, sender
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty db path")
	}
}

func TestCloseAndReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stash.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	if _, err := st.CreateDocument(ctx, "users", "u1", map[string]any{"email": "a@example.com"}); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	doc, err := st.GetDocument(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if doc.Fields["email"] != "a@example.com" {
		t.Fatalf("unexpected fields %v", doc.Fields)
	}
}

func TestDBTimeRoundTripSortsLexically(t *testing.T) {
	a := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := a.Add(1500 * time.Millisecond)
	fa, fb := dbFormatTime(a), dbFormatTime(b)
	if !(fa < fb) {
		t.Fatalf("expected %q < %q", fa, fb)
	}
	parsed, err := dbParseTime(fb)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(b) {
		t.Fatalf("expected %v, got %v", b, parsed)
	}
}
