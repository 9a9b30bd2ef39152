package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T, opts ...CodecOption) *Codec {
	t.Helper()
	codec, err := NewCodec("access-secret-for-tests", "refresh-secret-for-tests", opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func TestNewCodecRejectsBadSecrets(t *testing.T) {
	if _, err := NewCodec("", "refresh"); err == nil {
		t.Fatal("expected error for empty access secret")
	}
	if _, err := NewCodec("same", "same"); err == nil {
		t.Fatal("expected error for identical secrets")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	token, exp, err := codec.SignAccess("user-42", []string{"admin", "editor"}, 0)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiration, got %v", exp)
	}

	claims, err := codec.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "admin" || claims.Roles[1] != "editor" {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	token, _, err := codec.SignRefresh("user-42", "session-1", 0)
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}
	claims, err := codec.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.UserID != "user-42" || claims.ID != "session-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyDistinguishesExpiredFromMalformed(t *testing.T) {
	codec := newTestCodec(t)

	expired, _, err := codec.SignAccess("user-1", nil, -time.Minute)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	if _, err := codec.VerifyAccess(expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	if _, err := codec.VerifyAccess("definitely.not.ajwt"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
	if _, err := codec.VerifyAccess(""); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for empty token, got %v", err)
	}

	expiredRefresh, _, err := codec.SignRefresh("user-1", "session-1", -time.Second)
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}
	if _, err := codec.VerifyRefresh(expiredRefresh); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenClassesDoNotCrossVerify(t *testing.T) {
	codec := newTestCodec(t)

	access, _, err := codec.SignAccess("user-1", []string{"admin"}, 0)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	refresh, _, err := codec.SignRefresh("user-1", "session-1", 0)
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	if _, err := codec.VerifyRefresh(access); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("access token must not verify as refresh, got %v", err)
	}
	if _, err := codec.VerifyAccess(refresh); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("refresh token must not verify as access, got %v", err)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	codec := newTestCodec(t)
	other, err := NewCodec("other-access-secret", "other-refresh-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, _, err := other.SignAccess("user-1", nil, 0)
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}
	if _, err := codec.VerifyAccess(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for foreign signature, got %v", err)
	}
}
