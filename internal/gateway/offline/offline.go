// Package offline builds fallback responses for total cache-and-network failure.
package offline

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

//go:embed offline.html
var offlineHTML []byte

// jsonMessage explains the failure to API clients.
const jsonMessage = "the network is unreachable and no cached copy exists"

// IsNavigation reports whether the request expects an HTML document.
func IsNavigation(req *http.Request) bool {
	if req == nil {
		return false
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// AcceptsJSON reports whether the request declares it accepts JSON.
func AcceptsJSON(req *http.Request) bool {
	if req == nil {
		return false
	}
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// Response builds the offline fallback for a request: navigations get the
// embedded HTML document with status 200 and a retry affordance, JSON
// clients a structured 503, and everything else a plain-text 503.
func Response(req *http.Request) *http.Response {
	switch {
	case IsNavigation(req):
		return newResponse(req, http.StatusOK, "text/html; charset=utf-8", offlineHTML)
	case AcceptsJSON(req):
		body, err := json.Marshal(map[string]string{
			"error":   "Offline",
			"message": jsonMessage,
		})
		if err != nil {
			body = []byte(`{"error":"Offline"}`)
		}
		return newResponse(req, http.StatusServiceUnavailable, "application/json", body)
	default:
		return newResponse(req, http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte("503 Service Unavailable"))
	}
}

func newResponse(req *http.Request, status int, contentType string, body []byte) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", contentType)
	header.Set("Cache-Control", "no-store")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
