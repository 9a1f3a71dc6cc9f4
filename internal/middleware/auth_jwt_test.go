package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignAndVerifyJWT(t *testing.T) {
	token, err := SignJWT("secret", "merchant-1", "en", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if claims.Subject != "merchant-1" || claims.Locale != "en" || claims.Issuer != Issuer {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyJWTRejects(t *testing.T) {
	expired, _ := SignJWT("secret", "u", "", -time.Minute)
	wrongKey, _ := SignJWT("other", "u", "", time.Hour)
	noSubject, _ := SignJWT("secret", "", "", time.Hour)
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))

	for name, token := range map[string]string{
		"expired":    expired,
		"wrong key":  wrongKey,
		"no subject": noSubject,
		"none alg":   noneAlg,
		"issuer":     foreign,
		"garbage":    "a.b.c",
	} {
		if _, err := VerifyJWT("secret", token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestAuthJWTMiddleware(t *testing.T) {
	token, _ := SignJWT("secret", "merchant-1", "en", time.Hour)
	var user, locale string
	h := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = UserIDFromContext(r.Context())
		locale = LocaleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || user != "merchant-1" || locale != "en" {
		t.Fatalf("code=%d user=%q locale=%q", rec.Code, user, locale)
	}

	ws := httptest.NewRequest(http.MethodGet, "/stream?access_token="+token, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, ws)
	if rec.Code != http.StatusOK {
		t.Fatalf("query token rejected: %d", rec.Code)
	}

	for _, header := range []string{"", "Basic abc", "Bearer nope"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: code = %d", header, rec.Code)
		}
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error.Code != "unauthorized" {
			t.Fatalf("%q: unexpected body %v", header, err)
		}
	}
}
