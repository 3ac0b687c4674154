package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/torosent/pulsewire/internal/logging"
)

const (
	defaultTokenTimeout  = 30 * time.Second
	defaultTokenLifetime = time.Hour
	maxTokenBodyBytes    = 64 << 10
)

// ErrTokenUnavailable matches every token fetch failure via errors.Is.
var ErrTokenUnavailable = errors.New("collector token unavailable")

// ClientCredentialsOptions configures a ClientCredentials provider.
type ClientCredentialsOptions struct {
	TokenURL            string
	ClientID            string
	ClientSecret        string
	Scopes              []string
	RefreshBeforeExpiry time.Duration // renew this long before the token expires

	HTTPClient *http.Client
	Logger     *zap.Logger
	Now        func() time.Time
}

// ClientCredentials implements the OAuth2 client credentials grant with a
// cached token. Concurrent callers share one in-flight fetch.
type ClientCredentials struct {
	opt ClientCredentialsOptions

	mu       sync.Mutex
	cond     *sync.Cond
	fetching bool
	token    string
	expiry   time.Time
}

func NewClientCredentials(opt ClientCredentialsOptions) *ClientCredentials {
	if opt.HTTPClient == nil {
		opt.HTTPClient = &http.Client{Timeout: defaultTokenTimeout}
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.RefreshBeforeExpiry < 0 {
		opt.RefreshBeforeExpiry = 0
	}
	opt.Logger = logging.OrNop(opt.Logger)

	p := &ClientCredentials{opt: opt}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *ClientCredentials) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.token != "" && p.opt.Now().Before(p.expiry) {
			return p.token, nil
		}
		if !p.fetching {
			break
		}
		p.cond.Wait()
	}

	p.fetching = true
	p.mu.Unlock()
	token, lifetime, err := p.fetch(ctx)
	p.mu.Lock()
	p.fetching = false
	p.cond.Broadcast()

	if err != nil {
		return "", err
	}
	p.token = token
	p.expiry = p.opt.Now().Add(lifetime - p.opt.RefreshBeforeExpiry)
	p.opt.Logger.Debug("collector token refreshed", zap.Duration("lifetime", lifetime))
	return token, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (p *ClientCredentials) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expiry = time.Time{}
}

func (p *ClientCredentials) fetch(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if len(p.opt.Scopes) > 0 {
		form.Set("scope", strings.Join(p.opt.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opt.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("%w: build request: %v", ErrTokenUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.opt.ClientID, p.opt.ClientSecret)

	resp, err := p.opt.HTTPClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBodyBytes))
	if err != nil {
		return "", 0, fmt.Errorf("%w: read response: %v", ErrTokenUnavailable, err)
	}

	if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		return "", 0, fmt.Errorf("%w: %s: %s", ErrTokenUnavailable, msg.String(), gjson.GetBytes(body, "error_description").String())
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%w: token endpoint returned status %d", ErrTokenUnavailable, resp.StatusCode)
	}

	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", 0, fmt.Errorf("%w: no access_token in response", ErrTokenUnavailable)
	}
	lifetime := defaultTokenLifetime
	if secs := gjson.GetBytes(body, "expires_in").Int(); secs > 0 {
		lifetime = time.Duration(secs) * time.Second
	}
	return token, lifetime, nil
}

func (p *ClientCredentials) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	setBearer(req, token)
	return nil
}

func (p *ClientCredentials) Close() error {
	p.opt.HTTPClient.CloseIdleConnections()
	return nil
}
