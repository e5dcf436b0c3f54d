package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireHost_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID: "host-123",
			Claims: map[string]interface{}{
				"role":  []interface{}{"Admin", "admin"},
				"email": "host@example.com",
				"name":  "Sam Host",
			},
		},
	}
	authn := NewAuthenticator(verifier)

	called := false
	handler := authn.RequireHost()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "host-123" || identity.Email != "host@example.com" || identity.DisplayName != "Sam Host" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		if len(identity.Roles) != 2 || !identity.IsAdmin() || !identity.HasRole(RoleHost) {
			t.Fatalf("expected deduplicated admin plus host role, got %v", identity.Roles)
		}
		if identity.Token() != verifier.token {
			t.Fatalf("expected decoded token to be retained")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/host/walls", nil)
	req.Header.Set("Authorization", "Bearer token-value")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !called {
		t.Fatalf("expected handler to be called")
	}
	if verifier.received != "token-value" {
		t.Fatalf("expected verifier to receive token-value, got %s", verifier.received)
	}
}

func TestRequireHost_MissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{})
	handler := authn.RequireHost()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute without a token")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer   "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
	}
}

func TestRequireHost_ExpiredToken(t *testing.T) {
	var logged []string
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenExpired}, WithAuthLogger(func(_ context.Context, event string, _ map[string]any) {
		logged = append(logged, event)
	}))

	handler := authn.RequireHost()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute on expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "token_expired" {
		t.Fatalf("expected token_expired error, got %v", body["error"])
	}
	if len(logged) != 1 || logged[0] != "auth.firebase.rejected" {
		t.Fatalf("expected rejection to be logged, got %v", logged)
	}
}

func TestRequireHost_GenericFailureIsInvalidToken(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: errors.New("boom")})
	handler := authn.RequireHost()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var body map[string]interface{}
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if rr.Code != http.StatusUnauthorized || body["error"] != "invalid_token" {
		t.Fatalf("expected 401 invalid_token, got %d %v", rr.Code, body)
	}
}

func TestRequireHost_RoleRestriction(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "host-1", Claims: map[string]interface{}{}}}
	authn := NewAuthenticator(verifier)

	handler := authn.RequireHost(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("plain hosts must not reach admin routes")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer host-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRolesFromClaims(t *testing.T) {
	cases := []struct {
		name   string
		claims map[string]interface{}
		want   []string
	}{
		{name: "string", claims: map[string]interface{}{"role": " Admin "}, want: []string{"admin"}},
		{name: "string slice", claims: map[string]interface{}{"role": []string{"host", "HOST", ""}}, want: []string{"host"}},
		{name: "map", claims: map[string]interface{}{"role": map[string]interface{}{"admin": true, "host": false}}, want: []string{"admin"}},
		{name: "missing", claims: map[string]interface{}{}, want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rolesFromClaims(tc.claims, "role")
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}

func TestIdentityCanManage(t *testing.T) {
	owner := &Identity{UID: "host-1", Roles: []string{RoleHost}}
	admin := &Identity{UID: "mod-9", Roles: []string{RoleHost, RoleAdmin}}
	var missing *Identity

	if !owner.CanManage("host-1") {
		t.Fatalf("owner should manage own wall")
	}
	if owner.CanManage("host-2") {
		t.Fatalf("owner must not manage another host's wall")
	}
	if !admin.CanManage("host-2") {
		t.Fatalf("admin should manage any wall")
	}
	if missing.CanManage("host-1") {
		t.Fatalf("nil identity must not manage")
	}
}
