package query

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated no session token is available
	ErrNotAuthenticated = errors.New("Not authenticated")
	// ErrDisabled a parameterized read was called without its parameter
	ErrDisabled = errors.New("query disabled: missing parameter")
	// ErrEditWindowClosed the request can no longer be edited
	ErrEditWindowClosed = errors.New("edit window has closed")
	// ErrInvalidInput the payload carries a value the backend does not know
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoData a successful response carried no data
	ErrNoData = errors.New("response has no data")
)

// TokenSource supplies the bearer token of the signed-in user. It returns
// an empty token when nobody is signed in.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken always returns tok
func StaticToken(tok string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return tok, nil })
}

func resolveToken(ctx context.Context, ts TokenSource) (string, error) {
	if ts == nil {
		return "", ErrNotAuthenticated
	}
	tok, err := ts.Token(ctx)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if tok == "" {
		return "", ErrNotAuthenticated
	}
	return tok, nil
}
