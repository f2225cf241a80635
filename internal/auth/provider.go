package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/singleflight"
)

// Authenticator performs the login call against the marketplace.
// Consumers define this interface, not the HTTP implementation.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// Credentials are fixed per deployment; the marketplace issues one storefront
// token per credential pair.
type Credentials struct {
	Username string
	Password string
}

var ErrLoginFailed = errors.New("login failed")

// loginRetries is the number of additional attempts after the first
// failed login call.
const loginRetries = 2

// Provider supplies a valid bearer token to any caller, minimizing redundant
// login calls. Concurrent callers with no cached token share a single
// in-flight login via singleflight.
type Provider struct {
	store TokenStore
	auth  Authenticator
	creds Credentials
	sfg   singleflight.Group
}

func NewProvider(store TokenStore, auth Authenticator, creds Credentials) *Provider {
	return &Provider{
		store: store,
		auth:  auth,
		creds: creds,
	}
}

// Token returns the cached token if present, otherwise logs in and caches
// the result. Any number of concurrent callers produce at most one login
// call; all of them receive that call's result.
func (p *Provider) Token(ctx context.Context) (string, error) {
	token, err := p.store.Get(ctx)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, ErrNoToken) {
		return "", err
	}

	v, err, _ := p.sfg.Do("login", func() (interface{}, error) {
		// Another caller may have finished a login while we waited.
		if cached, errGet := p.store.Get(ctx); errGet == nil {
			return cached, nil
		}
		return p.login(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate clears the cached token, forcing the next Token call to log in
// again.
func (p *Provider) Invalidate(ctx context.Context) error {
	return p.store.Clear(ctx)
}

func (p *Provider) login(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= loginRetries; attempt++ {
		token, err := p.auth.Authenticate(ctx, p.creds.Username, p.creds.Password)
		if err == nil && token != "" {
			if errSet := p.store.Set(ctx, token); errSet != nil {
				log.Printf("failed to cache token: %v", errSet)
			}
			return token, nil
		}
		if err == nil {
			// An empty token is a failure, never a credential.
			err = errors.New("empty token in login response")
		}
		lastErr = err
	}

	if errClear := p.store.Clear(ctx); errClear != nil {
		log.Printf("failed to clear token after login failure: %v", errClear)
	}
	return "", fmt.Errorf("%w after %d attempts: %v", ErrLoginFailed, loginRetries+1, lastErr)
}
