package marketplace

import (
	"context"
	"errors"
	"strings"
)

// ErrNoCredential is returned when no bearer token is available for a call
var ErrNoCredential = errors.New("no auth token available")

// CredentialProvider supplies the bearer token attached to every backend call
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialProvider
type CredentialFunc func(ctx context.Context) (string, error)

// Token implements CredentialProvider
func (f CredentialFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticCredentials always returns the same token
type StaticCredentials string

// Token implements CredentialProvider
func (s StaticCredentials) Token(_ context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

type tokenKey struct{}

// WithBearerToken stores the caller's token on the context so that
// ContextCredentials can forward it.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// ContextCredentials forwards the token placed on the context by
// WithBearerToken. The gateway uses it to call the backend as the user.
type ContextCredentials struct{}

// Token implements CredentialProvider
func (ContextCredentials) Token(ctx context.Context) (string, error) {
	token, _ := ctx.Value(tokenKey{}).(string)
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}
