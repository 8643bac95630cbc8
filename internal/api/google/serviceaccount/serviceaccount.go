// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package serviceaccount provides functions for working with Google service accounts.
//
// See https://developers.google.com/identity/protocols/oauth2/service-account.
package serviceaccount

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/request"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// LoadKey loads service account key from JSON byte slice.
func LoadKey(b []byte) (*Key, error) {
	var key Key
	if err := json.Unmarshal(b, &key); err != nil {
		return nil, fmt.Errorf("parsing service account key: %w", err)
	}
	if key.Type != "service_account" {
		return nil, fmt.Errorf("parsing service account key: type is %q, want \"service_account\"", key.Type)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, errors.New("parsing service account key: client_email and private_key are required")
	}
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(key.PrivateKey)); err != nil {
		return nil, fmt.Errorf("parsing service account key: %w", err)
	}
	key.TokenURI = cmp.Or(key.TokenURI, google.JWTTokenURL)
	return &key, nil
}

// Key represents a service account key.
type Key struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	AuthURI      string `json:"auth_uri"`
	TokenURI     string `json:"token_uri"`
}

// Token obtains an access token for service account identified by this key.
func (k *Key) Token(ctx context.Context, client *http.Client, scopes ...string) (*oauth2.Token, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(k.PrivateKey))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   k.ClientEmail,
		"aud":   k.TokenURI,
		"scope": strings.Join(scopes, " "),
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if k.PrivateKeyID != "" {
		tok.Header["kid"] = k.PrivateKeyID
	}
	sig, err := tok.SignedString(key)
	if err != nil {
		return nil, err
	}

	type response struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}

	resp, err := request.Make[response](ctx, request.Params{
		Method: http.MethodPost,
		URL:    k.TokenURI,
		Body: url.Values{
			"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
			"assertion":  {sig},
		},
		HTTPClient: client,
	})
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("token endpoint returned no access token")
	}

	return &oauth2.Token{
		AccessToken: resp.AccessToken,
		TokenType:   cmp.Or(resp.TokenType, "Bearer"),
		Expiry:      now.Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// TokenSource returns an [oauth2.TokenSource] that obtains tokens with
// [Key.Token] and reuses them until they expire.
//
// ctx is used for all token requests, so it should outlive the token source.
// If timeout is positive, each token request is bounded by it.
func (k *Key) TokenSource(ctx context.Context, client *http.Client, timeout time.Duration, scopes ...string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &tokenSource{
		ctx:     ctx,
		key:     k,
		client:  client,
		timeout: timeout,
		scopes:  scopes,
	})
}

type tokenSource struct {
	ctx     context.Context
	key     *Key
	client  *http.Client
	timeout time.Duration
	scopes  []string
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	ctx := ts.ctx
	if ts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ts.timeout)
		defer cancel()
	}
	return ts.key.Token(ctx, ts.client, ts.scopes...)
}
