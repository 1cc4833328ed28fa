package httpauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gatekit.org/auth"
)

type stubAuthorizer struct {
	wantToken string
	decision  auth.AccessDecision
	err       error

	gotPermission string
}

func (s *stubAuthorizer) AuthorizeRequest(ctx context.Context, tokenString, permission string) (auth.AccessDecision, error) {
	s.gotPermission = permission
	if s.err != nil {
		return s.decision, s.err
	}
	if tokenString != s.wantToken {
		return auth.AccessDecision{}, auth.ErrTokenBadSignature
	}
	return s.decision, nil
}

func requirePermission(perm string) PermissionFunc {
	return func(*http.Request) string { return perm }
}

func TestMiddlewarePassesUnguardedRequests(t *testing.T) {
	stub := &stubAuthorizer{}
	handler := Middleware(stub, requirePermission(""))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestMiddlewareMissingToken(t *testing.T) {
	stub := &stubAuthorizer{}
	handler := Middleware(stub, requirePermission("articles.read"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareAttachesSubject(t *testing.T) {
	stub := &stubAuthorizer{
		wantToken: "good-token",
		decision: auth.AccessDecision{
			Allowed: true,
			Subject: auth.Subject{PrincipalID: "u1", Roles: []string{"editor"}},
		},
	}
	var gotSubject auth.Subject
	var gotOK bool
	handler := Middleware(stub, requirePermission("articles.read"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, gotOK = auth.SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/articles", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !gotOK || gotSubject.PrincipalID != "u1" {
		t.Fatalf("subject not attached: %+v ok=%v", gotSubject, gotOK)
	}
	if stub.gotPermission != "articles.read" {
		t.Fatalf("permission not forwarded: %q", stub.gotPermission)
	}
}

func TestMiddlewareDeniedRequest(t *testing.T) {
	stub := &stubAuthorizer{
		wantToken: "good-token",
		decision:  auth.AccessDecision{Reason: auth.DenyInsufficientRole},
	}
	handler := Middleware(stub, requirePermission("articles.delete"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodDelete, "/articles/1", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareExpiredTokenHint(t *testing.T) {
	stub := &stubAuthorizer{err: auth.ErrTokenExpired}
	handler := Middleware(stub, requirePermission("articles.read"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/articles", nil)
	req.Header.Set("Authorization", "Bearer stale-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); !strings.Contains(got, "token expired") {
		t.Fatalf("expected refresh hint, got %q", got)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
	}
	for _, tc := range cases {
		got, err := ExtractBearerToken(tc.header)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("header %q: got %q, %v", tc.header, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("header %q: expected error", tc.header)
		}
	}
}
