package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"stash/internal/backend"
)

func TestEmailTokenAndSessionLifecycle(t *testing.T) {
	st, sender := testStore(t)
	ctx := context.Background()

	token, err := st.CreateEmailToken(ctx, "acct-1", " Alice@Example.com ")
	if err != nil {
		t.Fatalf("create email token: %v", err)
	}
	if token.AccountID != "acct-1" {
		t.Fatalf("expected hinted account id, got %q", token.AccountID)
	}
	sent := sender.last(t)
	if sent.to != "alice@example.com" {
		t.Fatalf("expected normalized recipient, got %q", sent.to)
	}
	if len(sent.code) != otpDigits {
		t.Fatalf("expected %d digit code, got %q", otpDigits, sent.code)
	}

	session, err := st.CreateSession(ctx, token.AccountID, sent.code)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Secret == "" || session.ID == "" {
		t.Fatalf("expected session id and secret, got %+v", session)
	}

	account, err := st.GetCurrentAccount(ctx, session.Secret)
	if err != nil {
		t.Fatalf("get current account: %v", err)
	}
	if account.ID != "acct-1" || account.Email != "alice@example.com" {
		t.Fatalf("unexpected account %+v", account)
	}

	if _, err := st.CreateSession(ctx, token.AccountID, sent.code); !errors.Is(err, backend.ErrInvalidToken) {
		t.Fatalf("expected consumed code to be rejected, got %v", err)
	}

	if err := st.DeleteSession(ctx, session.Secret, backend.CurrentSession); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := st.GetCurrentAccount(ctx, session.Secret); !errors.Is(err, backend.ErrNoSession) {
		t.Fatalf("expected no session after delete, got %v", err)
	}
	if err := st.DeleteSession(ctx, session.Secret, backend.CurrentSession); !errors.Is(err, backend.ErrNoSession) {
		t.Fatalf("expected ErrNoSession for revoked session, got %v", err)
	}
}

func TestCreateEmailTokenReusesAccount(t *testing.T) {
	st, _ := testStore(t)
	ctx := context.Background()

	first, err := st.CreateEmailToken(ctx, "acct-1", "bob@example.com")
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	second, err := st.CreateEmailToken(ctx, "acct-other", "BOB@example.com")
	if err != nil {
		t.Fatalf("second token: %v", err)
	}
	if first.AccountID != second.AccountID {
		t.Fatalf("expected same account, got %q and %q", first.AccountID, second.AccountID)
	}
}

func TestCreateEmailTokenSupersedesOutstandingCode(t *testing.T) {
	st, sender := testStore(t)
	ctx := context.Background()

	token, err := st.CreateEmailToken(ctx, "", "carol@example.com")
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	if token.AccountID == "" {
		t.Fatal("expected generated account id")
	}
	oldCode := sender.last(t).code

	if _, err := st.CreateEmailToken(ctx, "", "carol@example.com"); err != nil {
		t.Fatalf("second token: %v", err)
	}
	newCode := sender.last(t).code

	if oldCode != newCode {
		if _, err := st.CreateSession(ctx, token.AccountID, oldCode); !errors.Is(err, backend.ErrInvalidToken) {
			t.Fatalf("expected superseded code to fail, got %v", err)
		}
	}
	if _, err := st.CreateSession(ctx, token.AccountID, newCode); err != nil {
		t.Fatalf("expected latest code to succeed: %v", err)
	}
}

func TestCreateEmailTokenSendFailure(t *testing.T) {
	st, sender := testStore(t)
	ctx := context.Background()
	sender.err = errors.New("smtp down")

	if _, err := st.CreateEmailToken(ctx, "acct-1", "dan@example.com"); err == nil {
		t.Fatal("expected send failure")
	}

	var count int
	if err := st.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM email_tokens").Scan(&count); err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected unsent token to be removed, got %d", count)
	}
}

func TestCreateEmailTokenRequiresSender(t *testing.T) {
	st, _ := testStore(t)
	st.sender = nil
	if _, err := st.CreateEmailToken(context.Background(), "", "erin@example.com"); err == nil {
		t.Fatal("expected error without sender")
	}
}

func TestCreateSessionBurnsTokenAfterFailedAttempts(t *testing.T) {
	st, sender := testStore(t)
	ctx := context.Background()

	token, err := st.CreateEmailToken(ctx, "acct-1", "frank@example.com")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	code := sender.last(t).code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < maxTokenAttempts; i++ {
		if _, err := st.CreateSession(ctx, token.AccountID, wrong); !errors.Is(err, backend.ErrInvalidToken) {
			t.Fatalf("attempt %d: expected ErrInvalidToken, got %v", i, err)
		}
	}
	if _, err := st.CreateSession(ctx, token.AccountID, code); !errors.Is(err, backend.ErrInvalidToken) {
		t.Fatalf("expected burned token to reject the right code, got %v", err)
	}
}

func TestCreateSessionExpiredToken(t *testing.T) {
	st, sender := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	st.now = func() time.Time { return base }
	token, err := st.CreateEmailToken(ctx, "acct-1", "gina@example.com")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	st.now = func() time.Time { return base.Add(defaultTokenTTL + time.Second) }
	if _, err := st.CreateSession(ctx, token.AccountID, sender.last(t).code); !errors.Is(err, backend.ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestDeleteSessionByIDRequiresSameAccount(t *testing.T) {
	st, sender := testStore(t)
	ctx := context.Background()

	newSession := func(email string) (string, string) {
		token, err := st.CreateEmailToken(ctx, "", email)
		if err != nil {
			t.Fatalf("create token: %v", err)
		}
		s, err := st.CreateSession(ctx, token.AccountID, sender.last(t).code)
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		return s.ID, s.Secret
	}

	_, secretA := newSession("a@example.com")
	idB, secretB := newSession("b@example.com")

	if err := st.DeleteSession(ctx, secretA, idB); !errors.Is(err, backend.ErrNoSession) {
		t.Fatalf("expected foreign session delete to fail, got %v", err)
	}
	if _, err := st.GetCurrentAccount(ctx, secretB); err != nil {
		t.Fatalf("expected b's session to survive: %v", err)
	}
	if err := st.DeleteSession(ctx, secretB, idB); err != nil {
		t.Fatalf("delete own session by id: %v", err)
	}
}

func TestDeleteEmailTokensAndPurge(t *testing.T) {
	st, sender := testStore(t)
	ctx := context.Background()

	token, err := st.CreateEmailToken(ctx, "acct-1", "hank@example.com")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := st.DeleteEmailTokens(ctx, token.AccountID); err != nil {
		t.Fatalf("delete tokens: %v", err)
	}
	if _, err := st.CreateSession(ctx, token.AccountID, sender.last(t).code); !errors.Is(err, backend.ErrInvalidToken) {
		t.Fatalf("expected revoked token to fail, got %v", err)
	}

	if _, err := st.CreateEmailToken(ctx, "", "hank@example.com"); err != nil {
		t.Fatalf("reissue: %v", err)
	}
	session, err := st.CreateSession(ctx, token.AccountID, sender.last(t).code)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := st.DeleteSession(ctx, session.Secret, backend.CurrentSession); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	res, err := st.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if res.Tokens != 1 || res.Sessions != 1 {
		t.Fatalf("expected one consumed token and one revoked session purged, got %+v", res)
	}
}
