package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestSHA256HasherMatchesStoredFormat(t *testing.T) {
	h := SHA256Hasher{}
	got, err := h.Hash("password")
	if err != nil {
		t.Fatal(err)
	}
	// Hex sha256 of "password" as found in existing documents.
	const want = "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"
	if got != want {
		t.Errorf("Hash() = %s, want %s", got, want)
	}
	if !h.Verify(want, "password") {
		t.Error("Verify() rejected the right password")
	}
	if !h.Verify(strings.ToUpper(want), "password") {
		t.Error("Verify() should accept upper-case hex")
	}
	if h.Verify(want, "Password") {
		t.Error("Verify() accepted the wrong password")
	}
}

func TestVerifyDispatchesOnFormat(t *testing.T) {
	bc := BcryptHasher{Cost: bcrypt.MinCost}
	bHash, err := bc.Hash("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	sHash, _ := SHA256Hasher{}.Hash("s3cret")

	tests := []struct {
		name     string
		hasher   PasswordHasher
		stored   string
		password string
		want     bool
	}{
		{"bcrypt hasher reads bcrypt", bc, bHash, "s3cret", true},
		{"bcrypt hasher reads sha256", bc, sHash, "s3cret", true},
		{"sha256 hasher reads bcrypt", SHA256Hasher{}, bHash, "s3cret", true},
		{"wrong password bcrypt", bc, bHash, "nope", false},
		{"wrong password sha256", SHA256Hasher{}, sHash, "nope", false},
		{"empty stored hash", SHA256Hasher{}, "", "", false},
		{"garbage stored hash", bc, "$2a$broken", "s3cret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hasher.Verify(tt.stored, tt.password); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewHasher(t *testing.T) {
	if h, err := NewHasher("sha256"); err != nil || h == nil {
		t.Errorf("NewHasher(sha256) = %v, %v", h, err)
	}
	if h, err := NewHasher("BCRYPT"); err != nil {
		t.Errorf("NewHasher(BCRYPT) error = %v", err)
	} else if _, ok := h.(BcryptHasher); !ok {
		t.Errorf("NewHasher(BCRYPT) = %T", h)
	}
	if _, err := NewHasher("md5"); err == nil {
		t.Error("NewHasher(md5) should fail")
	}
}

func TestTokenIssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, expiry, err := issuer.Issue("0123456789ab")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if time.Until(expiry) <= 0 {
		t.Errorf("expiry %v is not in the future", expiry)
	}

	sub, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if sub != "0123456789ab" {
		t.Errorf("subject = %q", sub)
	}
}

func TestTokenRejections(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	good, _, _ := issuer.Issue("abc")

	expired := NewTokenIssuer("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, _ := expired.Issue("abc")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer: tokenIssuer, Subject: "abc", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name   string
		issuer *TokenIssuer
		token  string
	}{
		{"other secret", NewTokenIssuer("other", time.Hour), good},
		{"expired", issuer, old},
		{"alg none", issuer, unsigned},
		{"garbage", issuer, "not.a.token"},
		{"empty", issuer, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.issuer.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}
