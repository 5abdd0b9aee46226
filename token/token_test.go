package token_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chimerakang/changedesk"
	"github.com/chimerakang/changedesk/token"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func validClaims(exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"id":       7,
		"username": "bob",
		"role":     "supervisor",
		"exp":      exp.Unix(),
	}
}

type staticKeys struct{ key []byte }

func (s staticKeys) Keyfunc(context.Context) jwt.Keyfunc {
	return func(*jwt.Token) (interface{}, error) { return s.key, nil }
}

func TestDecode_Valid(t *testing.T) {
	raw := sign(t, validClaims(time.Now().Add(time.Hour)))

	claims, err := token.NewDecoder().Decode(context.Background(), raw)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	id := claims.Identity()
	if id.ID != 7 || id.Username != "bob" || id.Role != changedesk.RoleSupervisor {
		t.Errorf("Identity() = %+v", id)
	}
	if id.DisplayName != "bob" {
		t.Errorf("DisplayName = %q, want username fallback", id.DisplayName)
	}
	if id.ExpiresAt.IsZero() {
		t.Error("ExpiresAt should be set from exp")
	}
}

func TestDecode_FullName(t *testing.T) {
	c := validClaims(time.Now().Add(time.Hour))
	c["fullName"] = "Bob Diallo"
	claims, err := token.NewDecoder().Decode(context.Background(), sign(t, c))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got := claims.Identity().DisplayName; got != "Bob Diallo" {
		t.Errorf("DisplayName = %q", got)
	}
}

func TestDecode_Expired(t *testing.T) {
	raw := sign(t, validClaims(time.Now().Add(-10*time.Second)))

	_, err := token.NewDecoder().Decode(context.Background(), raw)
	if !errors.Is(err, token.ErrExpired) {
		t.Fatalf("Decode() error = %v, want ErrExpired", err)
	}
}

func TestDecode_ExpiryAtNowIsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	raw := sign(t, validClaims(now))

	d := token.NewDecoder(token.WithClock(func() time.Time { return now }))
	if _, err := d.Decode(context.Background(), raw); !errors.Is(err, token.ErrExpired) {
		t.Fatalf("Decode() error = %v, want ErrExpired", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"garbage",
		"a.b.c",
		"eyJhbGciOiJIUzI1NiJ9.bm90LWpzb24.sig",
		strings.Repeat(".", 5),
	}
	d := token.NewDecoder()
	for _, raw := range inputs {
		if _, err := d.Decode(context.Background(), raw); !errors.Is(err, token.ErrMalformed) {
			t.Errorf("Decode(%q) error = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestDecode_WrongClaimTypeIsMalformed(t *testing.T) {
	c := validClaims(time.Now().Add(time.Hour))
	c["id"] = "seven"
	if _, err := token.NewDecoder().Decode(context.Background(), sign(t, c)); !errors.Is(err, token.ErrMalformed) {
		t.Fatalf("Decode() error = %v, want ErrMalformed", err)
	}
}

func TestDecode_MissingClaims(t *testing.T) {
	for _, field := range []string{"id", "username", "role", "exp"} {
		c := validClaims(time.Now().Add(time.Hour))
		delete(c, field)
		_, err := token.NewDecoder().Decode(context.Background(), sign(t, c))
		if !errors.Is(err, token.ErrMissingClaim) {
			t.Errorf("without %s: error = %v, want ErrMissingClaim", field, err)
		}
	}
}

func TestDecode_UnknownRoleIsAccepted(t *testing.T) {
	c := validClaims(time.Now().Add(time.Hour))
	c["role"] = "auditor"
	claims, err := token.NewDecoder().Decode(context.Background(), sign(t, c))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if claims.Role.Valid() {
		t.Error("unknown role should not be valid")
	}
}

func TestDecode_VerifiesSignatureWhenKeySourceSet(t *testing.T) {
	raw := sign(t, validClaims(time.Now().Add(time.Hour)))

	good := token.NewDecoder(token.WithKeySource(staticKeys{key: testSecret}))
	if _, err := good.Decode(context.Background(), raw); err != nil {
		t.Fatalf("Decode() with matching key error: %v", err)
	}

	bad := token.NewDecoder(token.WithKeySource(staticKeys{key: []byte("other")}))
	if _, err := bad.Decode(context.Background(), raw); !errors.Is(err, token.ErrMalformed) {
		t.Fatalf("Decode() with wrong key error = %v, want ErrMalformed", err)
	}
}

func TestExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := token.NewDecoder(token.WithClock(func() time.Time { return now }))
	if d.Expired(time.Time{}) {
		t.Error("zero expiry should never be expired")
	}
	if !d.Expired(now) {
		t.Error("expiry at now should be expired")
	}
	if d.Expired(now.Add(time.Second)) {
		t.Error("future expiry should not be expired")
	}
}
