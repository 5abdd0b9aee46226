package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
	if c.HasToken() {
		t.Error("new client should carry no token")
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "localhost"}); err == nil {
		t.Fatal("expected error for URL without scheme")
	}
}

func TestBearerCredential(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"currencies": []any{}})
	})
	ctx := context.Background()

	if _, err := c.Currencies.List(ctx); err != nil {
		t.Fatal(err)
	}
	c.SetToken("abc")
	if !c.HasToken() {
		t.Fatal("HasToken() = false after SetToken")
	}
	if _, err := c.Currencies.List(ctx); err != nil {
		t.Fatal(err)
	}
	c.ClearToken()
	if _, err := c.Currencies.List(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"", "Bearer abc", ""}
	if len(seen) != len(want) {
		t.Fatalf("seen %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("request %d Authorization = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestAuthFailureObserver(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token expired"})
	})

	var got []AuthFailure
	c.OnAuthFailure(func(f AuthFailure) { got = append(got, f) })
	c.OnAuthFailure(nil)

	_, err := c.Transactions.List(context.Background(), TransactionFilter{})
	if !IsUnauthorized(err) {
		t.Fatalf("error = %v, want 401", err)
	}
	if len(got) != 1 {
		t.Fatalf("observer calls = %d, want 1", len(got))
	}
	f := got[0]
	if f.Method != http.MethodGet || f.Path != "/api/transactions" || f.Status != 401 || f.Message != "Token expired" {
		t.Errorf("failure = %+v", f)
	}
}

func TestAuthFailureObserver_LoginExempt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	})
	called := false
	c.OnAuthFailure(func(AuthFailure) { called = true })

	_, err := c.Auth.Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("expected login error")
	}
	if MessageOf(err, "fallback") != "Invalid credentials" {
		t.Errorf("MessageOf = %q", MessageOf(err, "fallback"))
	}
	if called {
		t.Error("login rejection must not reach auth failure observers")
	}
}

func TestAuthLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" || body["password"] != "secret" {
			t.Errorf("body = %v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "tok",
			"user":  map[string]any{"id": 7, "username": "alice", "role": "cashier", "fullName": "Alice A."},
		})
	})

	res, err := c.Auth.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "tok" || res.User.ID != 7 || res.User.FullName != "Alice A." {
		t.Errorf("result = %+v", res)
	}
}

func TestAuthLogin_NoToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": 1}})
	})
	if _, err := c.Auth.Login(context.Background(), "a", "b"); err == nil {
		t.Fatal("expected error for response without token")
	}
}

func TestErrorHelpers(t *testing.T) {
	err := &Error{Status: 500}
	if MessageOf(err, "Erreur de connexion") != "Erreur de connexion" {
		t.Error("empty message should fall back")
	}
	if MessageOf(errors.New("dial tcp: refused"), "generic") != "generic" {
		t.Error("transport error should fall back")
	}
	if IsUnauthorized(err) {
		t.Error("500 is not unauthorized")
	}
	if StatusOf(nil) != 0 {
		t.Error("StatusOf(nil) should be 0")
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.Currencies.List(context.Background())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if StatusOf(err) != 0 {
		t.Errorf("transport error carried status %d", StatusOf(err))
	}
}
