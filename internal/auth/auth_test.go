package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/pulsewire/internal/auth"
	"github.com/torosent/pulsewire/internal/config"
)

type tokenServer struct {
	calls atomic.Int32
	srv   *httptest.Server
}

func newTokenServer(t *testing.T, handler func(n int32, w http.ResponseWriter, r *http.Request)) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(ts.calls.Add(1), w, r)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func TestClientCredentialsRequest(t *testing.T) {
	ts := newTokenServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "pulsewire" || pass != "s3cret" {
			t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("scope"); got != "metrics.write metrics.read" {
			t.Errorf("scope = %q", got)
		}
		fmt.Fprint(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	})

	p := auth.NewClientCredentials(auth.ClientCredentialsOptions{
		TokenURL:     ts.srv.URL,
		ClientID:     "pulsewire",
		ClientSecret: "s3cret",
		Scopes:       []string{"metrics.write", "metrics.read"},
	})
	defer p.Close()

	req := httptest.NewRequest(http.MethodPost, "http://collector/metrics", nil)
	if err := p.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader() error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", got)
	}
}

func TestClientCredentialsCachesUntilRefreshWindow(t *testing.T) {
	ts := newTokenServer(t, func(n int32, w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":60}`, n)
	})

	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	p := auth.NewClientCredentials(auth.ClientCredentialsOptions{
		TokenURL:            ts.srv.URL,
		ClientID:            "id",
		ClientSecret:        "secret",
		RefreshBeforeExpiry: 10 * time.Second,
		Now:                 clock,
	})

	ctx := context.Background()
	first, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	advance(49 * time.Second)
	second, _ := p.Token(ctx)
	if first != "tok-1" || second != "tok-1" {
		t.Fatalf("tokens = %q, %q; want cached tok-1", first, second)
	}

	advance(2 * time.Second)
	third, _ := p.Token(ctx)
	if third != "tok-2" {
		t.Fatalf("token after refresh window = %q, want tok-2", third)
	}

	p.Invalidate()
	if fourth, _ := p.Token(ctx); fourth != "tok-3" {
		t.Fatalf("token after Invalidate = %q, want tok-3", fourth)
	}
	if got := ts.calls.Load(); got != 3 {
		t.Errorf("token endpoint calls = %d, want 3", got)
	}
}

func TestClientCredentialsSharesInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	ts := newTokenServer(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		<-release
		fmt.Fprint(w, `{"access_token":"shared","expires_in":300}`)
	})

	p := auth.NewClientCredentials(auth.ClientCredentialsOptions{TokenURL: ts.srv.URL, ClientID: "id", ClientSecret: "s"})

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = p.Token(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, tok := range tokens {
		if tok != "shared" {
			t.Fatalf("caller %d got %q", i, tok)
		}
	}
	if got := ts.calls.Load(); got != 1 {
		t.Errorf("token endpoint calls = %d, want 1", got)
	}
}

func TestClientCredentialsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"oauth error", http.StatusBadRequest, `{"error":"invalid_client","error_description":"bad secret"}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"missing token", http.StatusOK, `{"token_type":"Bearer"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			p := auth.NewClientCredentials(auth.ClientCredentialsOptions{TokenURL: ts.srv.URL, ClientID: "id", ClientSecret: "s"})

			req := httptest.NewRequest(http.MethodPost, "http://collector/metrics", nil)
			err := p.InjectHeader(context.Background(), req)
			if !errors.Is(err, auth.ErrTokenUnavailable) {
				t.Fatalf("InjectHeader() error = %v, want ErrTokenUnavailable", err)
			}
			if req.Header.Get("Authorization") != "" {
				t.Error("Authorization set despite failure")
			}
		})
	}
}

func TestClientCredentialsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := auth.NewClientCredentials(auth.ClientCredentialsOptions{TokenURL: url, ClientID: "id", ClientSecret: "s"})
	if _, err := p.Token(context.Background()); !errors.Is(err, auth.ErrTokenUnavailable) {
		t.Fatalf("Token() error = %v, want ErrTokenUnavailable", err)
	}
}

func TestStatic(t *testing.T) {
	p := auth.NewStatic("abc")
	tok, err := p.Token(context.Background())
	if err != nil || tok != "abc" {
		t.Fatalf("Token() = %q, %v", tok, err)
	}
	req := httptest.NewRequest(http.MethodGet, "http://collector", nil)
	if err := p.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader() error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("Authorization = %q", got)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Defaults()
	if p := auth.FromConfig(&cfg, nil); p != nil {
		t.Fatalf("FromConfig() = %T, want nil without credentials", p)
	}

	cfg.AuthToken = "tok"
	if _, ok := auth.FromConfig(&cfg, nil).(*auth.Static); !ok {
		t.Fatal("expected Static provider for auth token")
	}

	cfg.AuthToken = ""
	cfg.OAuth = config.OAuthConfig{TokenURL: "https://idp/token", ClientID: "id", ClientSecret: "s"}
	if _, ok := auth.FromConfig(&cfg, nil).(*auth.ClientCredentials); !ok {
		t.Fatal("expected ClientCredentials provider for oauth config")
	}

	if auth.FromConfig(nil, nil) != nil {
		t.Fatal("FromConfig(nil) should be nil")
	}
}
