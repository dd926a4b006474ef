package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer   abc ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}

	for _, tt := range tests {
		got, err := ExtractToken(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExtractToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestTokenAuth_RoundTrip(t *testing.T) {
	a, err := NewTokenAuth("secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create auth: %v", err)
	}

	token, err := a.GenerateToken("user-1")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	owner, err := a.VerifyToken(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if owner != "user-1" {
		t.Errorf("Expected user-1, got %s", owner)
	}
}

func TestTokenAuth_Rejects(t *testing.T) {
	a, _ := NewTokenAuth("secret", time.Hour)
	other, _ := NewTokenAuth("other-secret", time.Hour)

	foreign, _ := other.GenerateToken("user-1")
	if _, err := a.VerifyToken(foreign); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}

	expired, _ := NewTokenAuth("secret", time.Nanosecond)
	stale, _ := expired.GenerateToken("user-1")
	time.Sleep(10 * time.Millisecond)
	if _, err := a.VerifyToken(stale); err == nil {
		t.Error("Expected expired token to be rejected")
	}

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: Issuer},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := a.VerifyToken(unsigned); err == nil {
		t.Error("Expected alg=none token to be rejected")
	}

	if _, err := a.GenerateToken(""); err == nil {
		t.Error("Expected empty user id to be rejected")
	}
	if _, err := NewTokenAuth("", 0); err == nil {
		t.Error("Expected empty secret to be rejected")
	}
}
