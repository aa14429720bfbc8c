package intercept

import (
	"fmt"
	"net/http"
)

// RoundTripper adapts an Interceptor to http.RoundTripper so a plain
// *http.Client can route its traffic through the cache layer.
type RoundTripper struct {
	Interceptor *Interceptor
}

var _ http.RoundTripper = RoundTripper{}

// RoundTrip implements http.RoundTripper.
func (rt RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.Interceptor == nil {
		return nil, fmt.Errorf("interceptor is not configured")
	}
	return rt.Interceptor.Do(req)
}
