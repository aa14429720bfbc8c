package executor

import (
	"context"
	"net/http"
)

// Fetcher is the network seam for strategy execution.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPFetcher fetches through an *http.Client.
//
// The client must reach the network directly; wiring a client whose
// transport routes back through the cache layer would recurse.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch issues the request with the given context.
func (f HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req.WithContext(ctx))
}

var _ Fetcher = HTTPFetcher{}
