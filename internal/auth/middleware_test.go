package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAPIKey(t *testing.T) {
	v := NewValidator(NewKeyStore(NewCredential("acme", "s3cret")))

	var seenClient string
	handler := RequireAPIKey(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := ClientIDFromContext(r.Context())
		if err != nil {
			t.Errorf("client id missing from context: %v", err)
		}
		seenClient = id
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "acme", http.StatusUnauthorized},
		{"wrong secret", "acme:nope", http.StatusUnauthorized},
		{"valid", "ACME:s3cret", http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seenClient = ""
			req := httptest.NewRequest(http.MethodGet, "/blacklist", nil)
			if tc.header != "" {
				req.Header.Set(HeaderName, tc.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusNoContent && seenClient != "acme" {
				t.Fatalf("client id = %q, want acme", seenClient)
			}
			if tc.want != http.StatusNoContent && seenClient != "" {
				t.Fatal("handler ran for an unauthenticated request")
			}
		})
	}
}

func TestClientIDFromContextWithoutValue(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := ClientIDFromContext(req.Context()); err != ErrUnauthenticated {
		t.Fatalf("ClientIDFromContext returned %v, want ErrUnauthenticated", err)
	}
}
