// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package serviceaccount

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/testutil"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/google"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return pk
}

func keyJSON(t *testing.T, pk *rsa.PrivateKey, tokenURI string) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(pk)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "food-diary",
		"private_key_id": "key-1",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"client_email":   "bot@food-diary.iam.gserviceaccount.com",
		"token_uri":      tokenURI,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestLoadKey(t *testing.T) {
	t.Parallel()

	valid := keyJSON(t, genKey(t), "")

	k, err := LoadKey(valid)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, k.ClientEmail, "bot@food-diary.iam.gserviceaccount.com")
	testutil.AssertEqual(t, k.TokenURI, google.JWTTokenURL)

	cases := map[string]string{
		"not JSON":        `{"type":`,
		"wrong type":      `{"type":"authorized_user","client_email":"a@b","private_key":"x"}`,
		"no email":        `{"type":"service_account","private_key":"x"}`,
		"bad private key": `{"type":"service_account","client_email":"a@b","private_key":"not a key"}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadKey([]byte(in)); err == nil {
				t.Fatal("want error")
			}
		})
	}
}

func TestTokenSource(t *testing.T) {
	t.Parallel()

	pk := genKey(t)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.PostForm.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			http.Error(w, "bad grant_type "+got, http.StatusBadRequest)
			return
		}
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(r.PostForm.Get("assertion"), claims, func(*jwt.Token) (any, error) {
			return &pk.PublicKey, nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if claims["iss"] != "bot@food-diary.iam.gserviceaccount.com" || !strings.Contains(claims["scope"].(string), "spreadsheets") {
			http.Error(w, "bad claims", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "ya29.test",
			"token_type":   "Bearer",
			"expires_in":   3599,
		})
	}))
	defer srv.Close()

	k, err := LoadKey(keyJSON(t, pk, srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	ts := k.TokenSource(t.Context(), srv.Client(), 0, "https://www.googleapis.com/auth/spreadsheets", "https://www.googleapis.com/auth/drive")
	for range 2 {
		tok, err := ts.Token()
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, tok.AccessToken, "ya29.test")
		testutil.AssertEqual(t, tok.Valid(), true)
	}
	testutil.AssertEqual(t, requests.Load(), int32(1))
}

func TestTokenRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	k, err := LoadKey(keyJSON(t, genKey(t), srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k.Token(t.Context(), srv.Client()); err == nil || !strings.Contains(err.Error(), "invalid_grant") {
		t.Fatalf("Token() = %v, want invalid_grant error", err)
	}
}

func TestTokenSourceTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	k, err := LoadKey(keyJSON(t, genKey(t), srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err = k.TokenSource(t.Context(), srv.Client(), 50*time.Millisecond).Token()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Token() = %v, want deadline exceeded", err)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("token request took %v, must be bounded by the timeout", took)
	}
}
