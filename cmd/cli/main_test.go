package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "taskhub")
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)})
	s, err := tok.SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// fakeAPI answers the handful of routes the CLI touches and records what it saw.
type fakeAPI struct {
	token    string
	lastAuth string
	lastBody map[string]any
	lastPath string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastAuth = r.Header.Get("Authorization")
	f.lastPath = r.Method + " " + r.URL.Path
	f.lastBody = nil
	_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/api/auth/login":
		if f.lastBody["password"] != "admin123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid username or password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(session{Token: f.token, User: userView{ID: "u-1", Username: "admin"}})
	case r.URL.Path == "/api/users/register":
		_ = json.NewEncoder(w).Encode(session{Message: "User registered successfully", Token: f.token, User: userView{ID: "u-2"}})
	case f.lastAuth != "Bearer "+f.token:
		w.WriteHeader(http.StatusUnauthorized)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == "/api/tasks":
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"t-1","status":"Pending"}`))
	case r.URL.Path == "/api/tasks" || r.URL.Path == "/api/users":
		_, _ = w.Write([]byte(`[{"id":"x"}]`))
	default:
		_, _ = w.Write([]byte(`{"id":"t-1"}`))
	}
}

func runCLI(t *testing.T, addr string, args ...string) (int, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	code := run(context.Background(), append([]string{"-addr", addr}, args...), &out, &errb)
	return code, out.String(), errb.String()
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	if got := cfgDir(); got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(tokenPath(), base) || !strings.HasSuffix(tokenPath(), "token.json") {
		t.Fatalf("tokenPath unexpected: %s", tokenPath())
	}
}

func Test_token_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadToken(); err == nil {
		t.Fatalf("expected error when token file missing")
	}
	if err := saveToken(tokenFile{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	tok, err := loadToken()
	if err != nil || tok != "tok" {
		t.Fatalf("loadToken: tok=%q err=%v", tok, err)
	}
	fi, err := os.Stat(tokenPath())
	if err != nil || fi.Mode().Perm() != 0o600 {
		t.Fatalf("token file perms: %v %v", fi, err)
	}
	if err := saveToken(tokenFile{AccessToken: "tok2", ExpiresAt: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("saveToken expired: %v", err)
	}
	if _, err := loadToken(); err == nil {
		t.Fatalf("want error for expired token")
	}
}

func Test_expiry(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	if got := expiry(signed(t, exp)); !got.Equal(exp) {
		t.Fatalf("expiry=%v want %v", got, exp)
	}
	if got := expiry("garbage"); got.Before(time.Now()) {
		t.Fatalf("garbage token should get a short future expiry, got %v", got)
	}
}

func Test_parseDue(t *testing.T) {
	t.Parallel()

	d, err := parseDue("2030-01-02")
	if err != nil || d.Format(time.DateOnly) != "2030-01-02" {
		t.Fatalf("date only: %v %v", d, err)
	}
	if _, err := parseDue("2030-01-02T10:00:00+02:00"); err != nil {
		t.Fatalf("rfc3339: %v", err)
	}
	if _, err := parseDue("tomorrow"); err == nil {
		t.Fatalf("want error for bad date")
	}
}

func Test_apiError_Message(t *testing.T) {
	t.Parallel()

	e := &apiError{Status: 400, Message: "Validation failed", Fields: map[string]string{"title": "cannot be blank"}}
	if !strings.Contains(e.Error(), "title: cannot be blank") {
		t.Fatalf("fields missing: %s", e.Error())
	}
	if (&apiError{Status: 404}).Error() != "http 404: Not Found" {
		t.Fatalf("fallback text: %s", (&apiError{Status: 404}).Error())
	}
}

func Test_run_LoginAndTaskCommands(t *testing.T) {
	_ = withTmpConfig(t)
	api := &fakeAPI{token: signed(t, time.Now().Add(time.Hour))}
	srv := httptest.NewServer(api)
	defer srv.Close()

	if code, _, _ := runCLI(t, srv.URL, "tasks"); code != 1 {
		t.Fatalf("tasks without login should fail, code=%d", code)
	}

	code, _, stderr := runCLI(t, srv.URL, "login", "-u", "admin", "-p", "wrong")
	if code != 1 || !strings.Contains(stderr, "Invalid username or password") {
		t.Fatalf("bad login: code=%d stderr=%q", code, stderr)
	}

	code, stdout, _ := runCLI(t, srv.URL, "login", "-u", "admin", "-p", "admin123")
	if code != 0 || strings.TrimSpace(stdout) != "ok" {
		t.Fatalf("login: code=%d out=%q", code, stdout)
	}

	code, stdout, _ = runCLI(t, srv.URL, "tasks")
	if code != 0 || api.lastAuth != "Bearer "+api.token || !strings.Contains(stdout, `"x"`) {
		t.Fatalf("tasks: code=%d auth=%q out=%q", code, api.lastAuth, stdout)
	}

	code, _, _ = runCLI(t, srv.URL, "add", "-title", "Write docs", "-due", "2030-01-02")
	if code != 0 || api.lastPath != "POST /api/tasks" || api.lastBody["title"] != "Write docs" {
		t.Fatalf("add: code=%d path=%q body=%v", code, api.lastPath, api.lastBody)
	}

	id := "6f1c2b9e-8d7a-4c3b-9e2f-1a2b3c4d5e6f"
	to := "0b7e1c2d-3e4f-4a5b-8c9d-0e1f2a3b4c5d"
	code, _, _ = runCLI(t, srv.URL, "edit", "-id", id, "-title", "T", "-due", "2030-01-02", "-status", "Completed")
	if code != 0 || api.lastPath != "PUT /api/tasks/"+id || api.lastBody["status"] != "Completed" {
		t.Fatalf("edit: code=%d path=%q body=%v", code, api.lastPath, api.lastBody)
	}

	code, _, _ = runCLI(t, srv.URL, "assign", "-id", id, "-to", to)
	if code != 0 || api.lastPath != "POST /api/tasks/"+id+"/assign/"+to {
		t.Fatalf("assign: code=%d path=%q", code, api.lastPath)
	}

	code, stdout, _ = runCLI(t, srv.URL, "rm", "-id", id)
	if code != 0 || strings.TrimSpace(stdout) != "deleted" {
		t.Fatalf("rm: code=%d out=%q", code, stdout)
	}

	if code, _, _ := runCLI(t, srv.URL, "rm", "-id", "nope"); code != 1 {
		t.Fatalf("rm with bad id should fail, code=%d", code)
	}
}

func Test_run_RegisterStoresToken(t *testing.T) {
	_ = withTmpConfig(t)
	api := &fakeAPI{token: signed(t, time.Now().Add(time.Hour))}
	srv := httptest.NewServer(api)
	defer srv.Close()

	code, stdout, _ := runCLI(t, srv.URL, "register", "-u", "bob", "-e", "bob@example.com", "-p", "pw")
	if code != 0 || strings.TrimSpace(stdout) != "u-2" {
		t.Fatalf("register: code=%d out=%q", code, stdout)
	}
	tok, err := loadToken()
	if err != nil || tok != api.token {
		t.Fatalf("token not stored: %q %v", tok, err)
	}
}

func Test_run_UsageAndVersion(t *testing.T) {
	_ = withTmpConfig(t)

	if code, _, stderr := runCLI(t, "http://127.0.0.1:1", "frobnicate"); code != 2 || !strings.Contains(stderr, "Commands:") {
		t.Fatalf("unknown command: code=%d stderr=%q", code, stderr)
	}
	if code, stdout, _ := runCLI(t, "http://127.0.0.1:1", "version"); code != 0 || !strings.HasPrefix(stdout, "th ") {
		t.Fatalf("version: code=%d out=%q", code, stdout)
	}
	if code, _, _ := runCLI(t, "http://127.0.0.1:1", "login", "-u", "x"); code != 1 {
		t.Fatalf("login missing -p: code=%d", code)
	}
}
