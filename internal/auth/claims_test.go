package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := "test-secret-key-for-jwt-signing"

	tok, err := IssueToken("api-key", "bench-01", secret, 30*time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if tok.AccessToken == "" || tok.TokenType != "Bearer" {
		t.Fatalf("token = %+v", tok)
	}

	claims, err := ParseToken(tok.AccessToken, secret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "api-key" || claims.Station != "bench-01" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}

	diff := claims.ExpiresAt.Time.Sub(time.Now().Add(30 * time.Minute))
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiry off by %v", diff)
	}
}

func TestIssueToken_DefaultTTLAndSecret(t *testing.T) {
	tok, err := IssueToken("s", "st", "secret", 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	diff := tok.ExpiresAt.Sub(time.Now().Add(DefaultTTL))
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("default TTL off by %v", diff)
	}

	if _, err := IssueToken("s", "st", "", time.Minute); !errors.Is(err, ErrNoSecret) {
		t.Errorf("IssueToken(no secret) = %v, want ErrNoSecret", err)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	good, err := IssueToken("s", "st", "secret", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "s",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "s"},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", good.AccessToken, "other"},
		{"garbage", "not-a-valid-jwt", "secret"},
		{"empty", "", "secret"},
		{"malformed", "abc.def", "secret"},
		{"expired", expired, "secret"},
		{"missing subject", noSubject, "secret"},
		{"missing expiry", noExpiry, "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() = %v, want ErrTokenInvalid", err)
			}
		})
	}

	if _, err := ParseToken(good.AccessToken, ""); !errors.Is(err, ErrNoSecret) {
		t.Errorf("ParseToken(no secret) = %v, want ErrNoSecret", err)
	}
}

func TestCheckAPIKey(t *testing.T) {
	tests := []struct {
		given, configured string
		ok                bool
	}{
		{"k-123", "k-123", true},
		{"k-124", "k-123", false},
		{"", "k-123", false},
		{"", "", false},
		{"anything", "", false},
	}
	for _, tt := range tests {
		err := CheckAPIKey(tt.given, tt.configured)
		if (err == nil) != tt.ok {
			t.Errorf("CheckAPIKey(%q, %q) = %v, want ok=%v", tt.given, tt.configured, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("error = %v, want ErrInvalidCredentials", err)
		}
	}
}
