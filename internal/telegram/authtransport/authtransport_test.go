package authtransport

import (
	"fmt"
	"testing"

	"telegram-userbot/internal/domain/authflow"

	tdauth "github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

func TestLoginTokenToOutcomeSuccess(t *testing.T) {
	t.Parallel()
	got := loginTokenToOutcome(&tg.AuthLoginTokenSuccess{})
	if got.Kind != authflow.QrAuthorized {
		t.Fatalf("Kind = %v, want QrAuthorized", got.Kind)
	}
}

func TestLoginTokenToOutcomeMigrateTo(t *testing.T) {
	t.Parallel()
	got := loginTokenToOutcome(&tg.AuthLoginTokenMigrateTo{DCID: 2, Token: []byte("tok")})
	if got.Kind != authflow.QrPending {
		t.Fatalf("Kind = %v, want QrPending", got.Kind)
	}
	if got.DCID == nil || *got.DCID != 2 {
		t.Fatalf("DCID = %v, want pointer to 2", got.DCID)
	}
	if string(got.Token) != "tok" {
		t.Fatalf("Token = %q, want tok", got.Token)
	}
}

func TestLoginTokenToOutcomePending(t *testing.T) {
	t.Parallel()
	got := loginTokenToOutcome(&tg.AuthLoginToken{Expires: 1700001000, Token: []byte("tok2")})
	if got.Kind != authflow.QrPending {
		t.Fatalf("Kind = %v, want QrPending", got.Kind)
	}
	if got.ExpiresAt == nil || *got.ExpiresAt != 1700001000 {
		t.Fatalf("ExpiresAt = %v, want pointer to 1700001000", got.ExpiresAt)
	}
	if got.DCID != nil {
		t.Fatalf("DCID = %v, want nil (no migration)", got.DCID)
	}
}

func TestIsSignUpRequired(t *testing.T) {
	t.Parallel()

	if isSignUpRequired(fmt.Errorf("some unrelated error")) {
		t.Fatal("expected unrelated error to not match sign-up-required")
	}
	if !isSignUpRequired(&tdauth.SignUpRequired{}) {
		t.Fatal("expected *tdauth.SignUpRequired to match sign-up-required")
	}
	wrapped := fmt.Errorf("sign in: %w", &tdauth.SignUpRequired{})
	if !isSignUpRequired(wrapped) {
		t.Fatal("expected wrapped *tdauth.SignUpRequired to match via errors.As")
	}
}
