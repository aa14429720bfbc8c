package app

import (
	"io"
	"log"
	"net/http"
	"strings"

	gateerrors "github.com/louisbranch/cachegate/internal/gateway/errors"
	"github.com/louisbranch/cachegate/internal/gateway/intercept"
	"github.com/louisbranch/cachegate/internal/platform/httpx"
	"github.com/louisbranch/cachegate/internal/platform/requestctx"
)

// hopByHopHeaders are the connection-scoped fields a forward proxy must not
// relay, per RFC 9110 section 7.6.1.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// newProxyHandler serves proxied requests through the interceptor. Clients
// point their HTTP proxy setting at this handler; requests arrive with
// absolute URLs.
func newProxyHandler(interceptor *intercept.Interceptor) http.Handler {
	proxy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodConnect {
			http.Error(w, "CONNECT tunneling is not supported", http.StatusNotImplemented)
			return
		}
		if r.URL == nil || !r.URL.IsAbs() {
			http.Error(w, "proxy requests must use an absolute URL", http.StatusBadRequest)
			return
		}

		outbound := r.Clone(r.Context())
		outbound.RequestURI = ""
		removeHopByHopHeaders(outbound.Header)

		resp, err := interceptor.Do(outbound)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			status := gateerrors.HTTPStatus(err)
			if gateerrors.KindOf(err) == gateerrors.KindUnknown {
				status = http.StatusBadGateway
			}
			log.Printf(
				"proxy request failed method=%s url=%s request_id=%s: %v",
				r.Method, r.URL, requestctx.RequestIDFromContext(r.Context()), err,
			)
			http.Error(w, http.StatusText(status), status)
			return
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				log.Printf("close proxied body url=%s: %v", r.URL, closeErr)
			}
		}()

		removeHopByHopHeaders(resp.Header)
		copyHeader(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			log.Printf("copy proxied body method=%s url=%s: %v", r.Method, r.URL, err)
		}
	})

	return httpx.Chain(proxy, httpx.RecoverPanic(), httpx.RequestID())
}

func copyHeader(dst, src http.Header) {
	for name, values := range src {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}

// removeHopByHopHeaders strips connection-scoped fields, including any listed
// in the Connection header itself.
func removeHopByHopHeaders(header http.Header) {
	for _, value := range header.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				header.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		header.Del(name)
	}
}
