package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"runbox/internal/auth"
)

func protectedEcho(t *testing.T, tokens *auth.TokenManager) http.Handler {
	t.Helper()
	return Auth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requester, ok := RequesterFromContext(r.Context())
		if !ok {
			t.Error("requester missing from context inside protected handler")
		}
		w.Write([]byte(requester.UserID))
	}))
}

func TestAuthAcceptsValidToken(t *testing.T) {
	tokens := auth.NewTokenManager("secret")
	token, err := tokens.Issue("user-42")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedEcho(t, tokens).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "user-42" {
		t.Errorf("handler saw user %q, want user-42", rec.Body.String())
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	tokens := auth.NewTokenManager("secret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	protectedEcho(t, tokens).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsForgedToken(t *testing.T) {
	tokens := auth.NewTokenManager("secret")
	forged, err := auth.NewTokenManager("other-secret").Issue("user-42")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	protectedEcho(t, tokens).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
