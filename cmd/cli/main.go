// Command th is a CLI client for the taskhub HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id,omitempty"`
}

var errNoToken = errors.New("no valid token (login required)")

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "taskhub")
	}
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "taskhub")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "taskhub")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errNoToken
		}
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errNoToken
	}
	return tf.AccessToken, nil
}

// expiry reads exp without verifying the signature; the server is the judge.
func expiry(tok string) time.Time {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(tok, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Now().Add(time.Hour)
	}
	return claims.ExpiresAt.Time
}

// ---- http client ----

type apiError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *apiError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("http %d: %s", e.Status, msg)
	}
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return fmt.Sprintf("http %d: %s (%s)", e.Status, msg, strings.Join(parts, "; "))
}

type client struct {
	base  string
	token string
	hc    *http.Client
}

func newClient(base, token string) *client {
	return &client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		hc:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		ae := &apiError{Status: resp.StatusCode}
		var eb struct {
			Message string            `json:"message"`
			Errors  map[string]string `json:"errors"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb) == nil {
			ae.Message, ae.Fields = eb.Message, eb.Errors
		}
		return ae
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type session struct {
	Message string   `json:"message,omitempty"`
	Token   string   `json:"token"`
	User    userView `json:"user"`
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// parseDue accepts RFC 3339 or a bare date (midnight UTC).
func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad due date %q: want YYYY-MM-DD or RFC3339", s)
	}
	return t.UTC(), nil
}

func validID(s string) error {
	if _, err := u.FromString(s); err != nil {
		return fmt.Errorf("bad id %q", s)
	}
	return nil
}

const usageText = `th CLI
Usage:
  th [-addr URL] <cmd> [args]

Commands:
  version
  register   -u <username> -e <email> -p <password>   (saves token)
  login      -u <username> -p <password>              (saves token)
  users
  tasks      [-id <uuid>]
  add        -title <t> [-desc <d>] -due <date>
  edit       -id <uuid> -title <t> [-desc <d>] -due <date> -status <Pending|InProgress|Completed>
  rm         -id <uuid>
  assign     -id <uuid> -to <user uuid>
`

var (
	version   = "dev"
	buildDate = "unknown"
)

var errUsage = errors.New("usage")

// ---- main ----

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	gfs := flag.NewFlagSet("th", flag.ContinueOnError)
	gfs.SetOutput(stderr)
	addr := gfs.String("addr", envOr("TASKHUB_ADDR", "http://localhost:5000"), "server base URL")
	gfs.Usage = func() { fmt.Fprint(stderr, usageText) }
	if err := gfs.Parse(args); err != nil {
		return 2
	}
	if gfs.NArg() < 1 {
		gfs.Usage()
		return 2
	}

	cmd, rest := gfs.Arg(0), gfs.Args()[1:]
	err := dispatch(ctx, cmd, rest, *addr, stdout, stderr)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		fmt.Fprint(stderr, usageText)
		return 2
	default:
		fmt.Fprintln(stderr, err)
		return 1
	}
}

func dispatch(ctx context.Context, cmd string, args []string, addr string, stdout, stderr io.Writer) error {
	newFS := func(name string) *flag.FlagSet {
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		return fs
	}

	authed := func() (*client, error) {
		tok, err := loadToken()
		if err != nil {
			return nil, err
		}
		return newClient(addr, tok), nil
	}

	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "th %s (%s)\n", version, buildDate)
		return nil

	case "register":
		fs := newFS("register")
		user := fs.String("u", "", "username")
		email := fs.String("e", "", "email")
		pass := fs.String("p", "", "password")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *user == "" || *email == "" || *pass == "" {
			return fmt.Errorf("need -u, -e and -p")
		}
		var s session
		in := map[string]string{"username": *user, "email": *email, "password": *pass}
		if err := newClient(addr, "").do(ctx, http.MethodPost, "/api/users/register", in, &s); err != nil {
			return err
		}
		if err := storeSession(s); err != nil {
			return err
		}
		fmt.Fprintln(stdout, s.User.ID)
		return nil

	case "login":
		fs := newFS("login")
		user := fs.String("u", "", "username")
		pass := fs.String("p", "", "password")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *user == "" || *pass == "" {
			return fmt.Errorf("need -u and -p")
		}
		var s session
		in := map[string]string{"username": *user, "password": *pass}
		if err := newClient(addr, "").do(ctx, http.MethodPost, "/api/auth/login", in, &s); err != nil {
			return err
		}
		if err := storeSession(s); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "ok")
		return nil

	case "users":
		c, err := authed()
		if err != nil {
			return err
		}
		var out []map[string]any
		if err := c.do(ctx, http.MethodGet, "/api/users", nil, &out); err != nil {
			return err
		}
		printJSON(stdout, out)
		return nil

	case "tasks":
		fs := newFS("tasks")
		id := fs.String("id", "", "task id (uuid, optional)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		c, err := authed()
		if err != nil {
			return err
		}
		if *id == "" {
			var out []map[string]any
			if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &out); err != nil {
				return err
			}
			printJSON(stdout, out)
			return nil
		}
		if err := validID(*id); err != nil {
			return err
		}
		var out map[string]any
		if err := c.do(ctx, http.MethodGet, "/api/tasks/"+*id, nil, &out); err != nil {
			return err
		}
		printJSON(stdout, out)
		return nil

	case "add":
		fs := newFS("add")
		title := fs.String("title", "", "title")
		desc := fs.String("desc", "", "description")
		due := fs.String("due", "", "due date (YYYY-MM-DD or RFC3339)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *title == "" || *due == "" {
			return fmt.Errorf("need -title and -due")
		}
		dueAt, err := parseDue(*due)
		if err != nil {
			return err
		}
		c, err := authed()
		if err != nil {
			return err
		}
		in := map[string]any{"title": *title, "description": *desc, "dueDate": dueAt}
		var out map[string]any
		if err := c.do(ctx, http.MethodPost, "/api/tasks", in, &out); err != nil {
			return err
		}
		printJSON(stdout, out)
		return nil

	case "edit":
		fs := newFS("edit")
		id := fs.String("id", "", "task id (uuid)")
		title := fs.String("title", "", "title")
		desc := fs.String("desc", "", "description")
		due := fs.String("due", "", "due date (YYYY-MM-DD or RFC3339)")
		st := fs.String("status", "Pending", "Pending|InProgress|Completed")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == "" || *title == "" || *due == "" {
			return fmt.Errorf("need -id, -title and -due")
		}
		if err := validID(*id); err != nil {
			return err
		}
		dueAt, err := parseDue(*due)
		if err != nil {
			return err
		}
		c, err := authed()
		if err != nil {
			return err
		}
		in := map[string]any{"title": *title, "description": *desc, "dueDate": dueAt, "status": *st}
		var out map[string]any
		if err := c.do(ctx, http.MethodPut, "/api/tasks/"+*id, in, &out); err != nil {
			return err
		}
		printJSON(stdout, out)
		return nil

	case "rm":
		fs := newFS("rm")
		id := fs.String("id", "", "task id (uuid)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := validID(*id); err != nil {
			return err
		}
		c, err := authed()
		if err != nil {
			return err
		}
		if err := c.do(ctx, http.MethodDelete, "/api/tasks/"+*id, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "deleted")
		return nil

	case "assign":
		fs := newFS("assign")
		id := fs.String("id", "", "task id (uuid)")
		to := fs.String("to", "", "assignee user id (uuid)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := validID(*id); err != nil {
			return err
		}
		if err := validID(*to); err != nil {
			return err
		}
		c, err := authed()
		if err != nil {
			return err
		}
		var out map[string]any
		if err := c.do(ctx, http.MethodPost, "/api/tasks/"+*id+"/assign/"+*to, nil, &out); err != nil {
			return err
		}
		printJSON(stdout, out)
		return nil

	default:
		return errUsage
	}
}

func storeSession(s session) error {
	if s.Token == "" {
		return errors.New("server returned no token")
	}
	return saveToken(tokenFile{AccessToken: s.Token, ExpiresAt: expiry(s.Token), UserID: s.User.ID})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
