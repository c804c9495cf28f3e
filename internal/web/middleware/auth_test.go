package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"missing", "", "", ErrMissingBearer},
		{"basic scheme", "Basic abc", "", ErrInvalidToken},
		{"empty token", "Bearer   ", "", ErrInvalidToken},
		{"valid", "Bearer tok-1", "tok-1", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got, err := extractBearer(req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("extractBearer() error = %v; want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("extractBearer() = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestStaticTokenVerifier(t *testing.T) {
	v := NewStaticTokenVerifier([]string{"alpha", " ", "beta "})

	for _, tok := range []string{"alpha", "beta"} {
		if err := v.Verify(context.Background(), tok); err != nil {
			t.Errorf("Verify(%q) = %v; want nil", tok, err)
		}
	}
	for _, tok := range []string{"", "gamma", "alph"} {
		if err := v.Verify(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q) = %v; want ErrInvalidToken", tok, err)
		}
	}

	empty := NewStaticTokenVerifier(nil)
	if err := empty.Verify(context.Background(), ""); err == nil {
		t.Error("verifier without tokens should refuse everything")
	}
}

func TestRequireToken(t *testing.T) {
	handler := RequireToken(NewStaticTokenVerifier([]string{"secret"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer secret", http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d; want %d", rec.Code, tc.want)
			}
		})
	}
}
