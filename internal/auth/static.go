package auth

import (
	"context"
	"net/http"
)

// Static returns a pre-configured token.
type Static struct {
	token string
}

func NewStatic(token string) *Static {
	return &Static{token: token}
}

func (p *Static) Token(context.Context) (string, error) {
	return p.token, nil
}

func (p *Static) InjectHeader(_ context.Context, req *http.Request) error {
	setBearer(req, p.token)
	return nil
}

func (p *Static) Close() error {
	return nil
}
