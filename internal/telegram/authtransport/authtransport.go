// Package authtransport implements authflow.Transport over gotd/td: the
// phone path delegates SRP and sign-up bookkeeping to gotd's own
// telegram/auth.Client helper (so this package never touches SRP math
// itself), and the QR path calls auth.exportLoginToken/importLoginToken
// directly, since gotd has no higher-level QR helper to lean on.
//
// Grounded on the teacher's internal/telegram/auth (same UserAuthenticator
// shape, reused here only as a naming reference) and on
// internal/telegram/sendtransport/transport.go's tgerr-based error
// classification idiom.
package authtransport

import (
	"context"
	"errors"
	"sync"

	"telegram-userbot/internal/domain/authflow"

	tdauth "github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// Client adapts one gotd/td *telegram.Client's auth surface into
// authflow.Transport. A single instance is meant to live for the lifetime
// of one login attempt; phone and codeHash are remembered between
// RequestLoginCode and SignIn since gotd's SignIn needs both again.
type Client struct {
	auth *tdauth.Client
	api  *tg.Client

	mu       sync.Mutex
	phone    string
	codeHash string
}

// New wraps auth (from transport.Client.Auth()) and api (from
// transport.Client.API()) into an authflow.Transport.
func New(auth *tdauth.Client, api *tg.Client) *Client {
	return &Client{auth: auth, api: api}
}

var _ authflow.Transport = (*Client)(nil)

// IsAuthorized reports whether this client already holds a valid session.
func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	status, err := c.auth.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Authorized, nil
}

// RequestLoginCode sends the login code and remembers the phone/code hash
// pair SignIn will need. The returned LoginToken simply carries the code
// hash back to the caller, who must return it unmodified to SignIn.
func (c *Client) RequestLoginCode(ctx context.Context, phone, _ string) (authflow.LoginToken, error) {
	sentCode, err := c.auth.SendCode(ctx, phone, tdauth.SendCodeOptions{})
	if err != nil {
		return authflow.LoginToken{}, err
	}
	c.mu.Lock()
	c.phone = phone
	c.codeHash = sentCode.PhoneCodeHash
	c.mu.Unlock()
	return authflow.NewLoginToken(sentCode.PhoneCodeHash), nil
}

// SignIn submits the code. A wrong code and a 2FA-protected account are
// both reported through Outcome rather than as an error, matching the
// closed set authflow expects.
func (c *Client) SignIn(ctx context.Context, token authflow.LoginToken, code string) (authflow.Outcome, error) {
	codeHash, _ := token.Raw().(string)
	c.mu.Lock()
	phone := c.phone
	c.mu.Unlock()

	_, err := c.auth.SignIn(ctx, phone, code, codeHash)
	switch {
	case err == nil:
		return authflow.Outcome{Kind: authflow.OutcomeAuthorized}, nil
	case errors.Is(err, tdauth.ErrPasswordAuthNeeded):
		return authflow.Outcome{Kind: authflow.OutcomePasswordRequired, PasswordToken: authflow.NewPasswordToken(nil)}, nil
	case isSignUpRequired(err):
		return authflow.Outcome{Kind: authflow.OutcomeSignUpRequired}, nil
	case tgerr.Is(err, "PHONE_CODE_INVALID"), tgerr.Is(err, "PHONE_CODE_EXPIRED"):
		return authflow.Outcome{Kind: authflow.OutcomeInvalidCode}, nil
	default:
		return authflow.Outcome{}, err
	}
}

// CheckPassword submits the 2FA password; gotd computes the SRP answer
// against the account's current password parameters internally.
func (c *Client) CheckPassword(ctx context.Context, _ authflow.PasswordToken, password string) (authflow.Outcome, error) {
	_, err := c.auth.Password(ctx, password)
	switch {
	case err == nil:
		return authflow.Outcome{Kind: authflow.OutcomeAuthorized}, nil
	case tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		return authflow.Outcome{Kind: authflow.OutcomeInvalidPassword}, nil
	default:
		return authflow.Outcome{}, err
	}
}

// ExportLoginToken starts a QR login by requesting the first token.
func (c *Client) ExportLoginToken(ctx context.Context, apiID int, apiHash string, exceptIDs []int64) (authflow.QrOutcome, error) {
	resp, err := c.api.AuthExportLoginToken(ctx, &tg.AuthExportLoginTokenRequest{
		APIID:     apiID,
		APIHash:   apiHash,
		ExceptIDs: exceptIDs,
	})
	if err != nil {
		return authflow.QrOutcome{}, err
	}
	return loginTokenToOutcome(resp), nil
}

// ImportLoginToken re-polls with the last token. When the prior export (or
// import) migrated to another DC, a correct implementation would reconnect
// to that DC before importing; this adapter does not implement cross-DC
// migration and simply forwards the token on the current connection, which
// is sufficient as long as the account's login DC matches ours.
func (c *Client) ImportLoginToken(ctx context.Context, token []byte, _ *int) (authflow.QrOutcome, error) {
	resp, err := c.api.AuthImportLoginToken(ctx, &tg.AuthImportLoginTokenRequest{Token: token})
	if err != nil {
		return authflow.QrOutcome{}, err
	}
	return loginTokenToOutcome(resp), nil
}

func loginTokenToOutcome(resp tg.AuthLoginTokenClass) authflow.QrOutcome {
	switch t := resp.(type) {
	case *tg.AuthLoginTokenSuccess:
		return authflow.QrOutcome{Kind: authflow.QrAuthorized}
	case *tg.AuthLoginTokenMigrateTo:
		dcID := t.DCID
		return authflow.QrOutcome{Kind: authflow.QrPending, Token: t.Token, DCID: &dcID}
	case *tg.AuthLoginToken:
		expires := int64(t.Expires)
		return authflow.QrOutcome{Kind: authflow.QrPending, Token: t.Token, ExpiresAt: &expires}
	default:
		return authflow.QrOutcome{Kind: authflow.QrPending}
	}
}

// isSignUpRequired reports whether err is gotd's sentinel for "this phone
// number is not registered yet".
func isSignUpRequired(err error) bool {
	var signUpErr *tdauth.SignUpRequired
	return errors.As(err, &signUpErr)
}
