package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrNoIDToken is returned when the provider answered without an id_token.
var ErrNoIDToken = errors.New("token response carried no id_token")

// Options configures a Resolver.
type Options struct {
	// Domain is the identity provider host, or a full base URL.
	Domain       string
	ClientID     string
	ClientSecret string
	Scope        string
	HTTPClient   *http.Client
}

// Resolver exchanges a user's email and password for the provider's stable subject id
// using the resource-owner password grant.
type Resolver struct {
	oauth      *oauth2.Config
	cache      Cache
	httpClient *http.Client
}

// NewResolver creates a resolver against the provider's /oauth/token endpoint. A nil
// cache gets an in-memory cache without expiry.
func NewResolver(opts Options, cache Cache) (*Resolver, error) {
	if strings.TrimSpace(opts.Domain) == "" || strings.TrimSpace(opts.ClientID) == "" {
		return nil, errors.New("identity resolver needs a domain and a client id")
	}
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	scope := opts.Scope
	if scope == "" {
		scope = "openid profile email"
	}
	return &Resolver{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Scopes:       strings.Fields(scope),
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL(opts.Domain),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		cache:      cache,
		httpClient: opts.HTTPClient,
	}, nil
}

func tokenURL(domain string) string {
	base := strings.TrimRight(strings.TrimSpace(domain), "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return base + "/oauth/token"
}

func (r *Resolver) Cache() Cache {
	return r.cache
}

// Resolve returns the cached subject for email, or performs the password grant and
// caches the subject of the returned id_token.
func (r *Resolver) Resolve(ctx context.Context, email, password string) (string, error) {
	if subject, ok, err := r.cache.Get(ctx, email); err != nil {
		return "", err
	} else if ok {
		return subject, nil
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	token, err := r.oauth.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return "", fmt.Errorf("password grant for %s: %w", email, err)
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return "", ErrNoIDToken
	}
	subject, err := SubjectFromIDToken(rawIDToken)
	if err != nil {
		return "", err
	}

	if err := r.cache.Set(ctx, email, subject); err != nil {
		return "", err
	}
	return subject, nil
}

// SubjectFromIDToken reads the sub claim without verifying the signature.
func SubjectFromIDToken(raw string) (string, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser(jwt.WithoutClaimsValidation()).ParseUnverified(raw, &claims); err != nil {
		return "", fmt.Errorf("parse id_token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("id_token has no subject")
	}
	return claims.Subject, nil
}
