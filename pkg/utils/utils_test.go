package utils

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestJWT(t *testing.T) {
	secret := "supersecret"
	userID := "123"
	role := "tutor"

	token, err := GenerateToken(userID, role, secret)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if claims.UserID != userID {
		t.Errorf("Expected UserID %s, got %s", userID, claims.UserID)
	}

	if claims.Role != role {
		t.Errorf("Expected Role %s, got %s", role, claims.Role)
	}

	_, err = ValidateToken(token, "wrongsecret")
	if err == nil {
		t.Errorf("Expected error with wrong secret")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	secret := "supersecret"
	claims := Claims{
		UserID: "7",
		Role:   "student",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ValidateToken(token, secret); err == nil {
		t.Fatalf("Expected expired token to be rejected")
	}
}

func TestValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	secret := "supersecret"
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: "7", Role: "student"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ValidateToken(token, secret); err == nil {
		t.Fatalf("Expected HS512 token to be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc.def", "abc.def", true},
		{"  Bearer   abc.def  ", "abc.def", true},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
		{"Basic abc.def", "", false},
		{"abc.def", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v; expected %q, %v", tt.header, token, ok, tt.token, tt.ok)
		}
	}
}
