// Package intercept routes eligible requests through the configured
// caching strategies and synthesizes an offline fallback when neither
// the network nor the cache can serve.
package intercept

import (
	"fmt"
	"log"
	"net/http"

	"github.com/louisbranch/cachegate/internal/gateway/executor"
	"github.com/louisbranch/cachegate/internal/gateway/monitor"
	"github.com/louisbranch/cachegate/internal/gateway/offline"
	"github.com/louisbranch/cachegate/internal/gateway/strategy"
)

// Config wires the interceptor's collaborators.
type Config struct {
	Selector *strategy.Selector
	Executor *executor.Executor

	// Monitor records per-request counters. Optional.
	Monitor *monitor.Monitor

	// Passthrough carries requests the interceptor does not handle.
	// Defaults to http.DefaultTransport.
	Passthrough http.RoundTripper
}

// Interceptor decides per request whether to serve through the cache
// layer or hand off to the passthrough transport untouched.
type Interceptor struct {
	selector    *strategy.Selector
	executor    *executor.Executor
	monitor     *monitor.Monitor
	passthrough http.RoundTripper
}

// New builds an Interceptor from cfg.
func New(cfg Config) (*Interceptor, error) {
	if cfg.Selector == nil {
		return nil, fmt.Errorf("selector is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	passthrough := cfg.Passthrough
	if passthrough == nil {
		passthrough = http.DefaultTransport
	}
	return &Interceptor{
		selector:    cfg.Selector,
		executor:    cfg.Executor,
		monitor:     cfg.Monitor,
		passthrough: passthrough,
	}, nil
}

// Do serves a single request. Requests outside the interception scope
// go straight to the passthrough transport and their failures are
// returned untouched.
func (i *Interceptor) Do(req *http.Request) (*http.Response, error) {
	if i == nil {
		return nil, fmt.Errorf("interceptor is not configured")
	}
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("request is required")
	}
	if !eligible(req) {
		return i.passthrough.RoundTrip(req)
	}

	st, logical := i.selector.Select(req)
	resp, outcome, err := i.executor.Execute(req.Context(), st, logical, req)
	i.record(outcome)
	if err != nil {
		// A caller that went away gets its own error back, never a
		// synthesized document.
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, err
		}
		log.Printf("request failed, serving offline fallback method=%s url=%s: %v", req.Method, req.URL, err)
		return offline.Response(req), nil
	}
	return resp, nil
}

// eligible reports whether the request participates in caching. Only
// GET requests over http or https do; everything else passes through.
func eligible(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	switch req.URL.Scheme {
	case "http", "https":
		return true
	}
	return false
}

func (i *Interceptor) record(o executor.Outcome) {
	if i.monitor == nil {
		return
	}
	if o.Hit {
		i.monitor.RecordHit(o.Duration)
	}
	if o.Miss {
		i.monitor.RecordMiss()
	}
	if o.Network {
		i.monitor.RecordNetwork(o.Duration)
	}
}
