package directauth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIDTokenClaimsUnverified(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "00u1",
		"email": "user@example.com",
	}).SignedString([]byte("not-the-verifier-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := (&Token{IDToken: signed}).IDTokenClaims()
	if err != nil {
		t.Fatalf("IDTokenClaims: %v", err)
	}
	if claims["sub"] != "00u1" || claims["email"] != "user@example.com" {
		t.Fatalf("unexpected claims %v", claims)
	}

	if _, err := (&Token{}).IDTokenClaims(); !errors.Is(err, ErrNoIDToken) {
		t.Fatalf("expected ErrNoIDToken, got %v", err)
	}
	if _, err := (&Token{IDToken: "exampleIdToken"}).IDTokenClaims(); err == nil {
		t.Fatal("malformed id token must fail to parse")
	}
}

func TestTokenOAuth2Conversion(t *testing.T) {
	issued := time.Unix(testNow, 0)
	tok := &Token{
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		AccessToken:  "at",
		RefreshToken: "rt",
		IDToken:      "it",
		Scope:        "openid profile",
	}

	o := tok.OAuth2Token(issued)
	if o.AccessToken != "at" || o.RefreshToken != "rt" || o.TokenType != "Bearer" {
		t.Fatalf("unexpected oauth2 token %+v", o)
	}
	if !o.Expiry.Equal(issued.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", o.Expiry)
	}
	if o.Extra("id_token") != "it" {
		t.Fatalf("id_token extra missing")
	}
	if got := tok.Scopes(); len(got) != 2 || got[1] != "profile" {
		t.Fatalf("unexpected scopes %v", got)
	}
	if !(&Token{}).ExpiresAt(issued).IsZero() {
		t.Fatal("a token without expires_in has no expiry")
	}
}
