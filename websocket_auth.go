package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"driftpursuit/rewind/internal/auth"
)

// tokenLeeway tolerates small clock skew between issuer and server.
const tokenLeeway = 2 * time.Second

type websocketAuthenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type allowAllAuthenticator struct{}

func (allowAllAuthenticator) Authenticate(*http.Request) (string, error) {
	return "", nil
}

type tokenWebsocketAuthenticator struct {
	verifier *auth.TokenVerifier
}

func newTokenWebsocketAuthenticator(secret string) (websocketAuthenticator, error) {
	verifier, err := auth.NewTokenVerifier(secret, tokenLeeway)
	if err != nil {
		return nil, err
	}
	return &tokenWebsocketAuthenticator{verifier: verifier}, nil
}

// Authenticate validates the operator token and returns its subject.
func (a *tokenWebsocketAuthenticator) Authenticate(r *http.Request) (string, error) {
	if a == nil || a.verifier == nil {
		return "", errors.New("verifier not configured")
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", errors.New("missing auth token")
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
