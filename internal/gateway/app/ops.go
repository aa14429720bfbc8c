package app

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/louisbranch/cachegate/internal/gateway/control"
	gateerrors "github.com/louisbranch/cachegate/internal/gateway/errors"
	"github.com/louisbranch/cachegate/internal/platform/httpx"
	"github.com/louisbranch/cachegate/internal/platform/requestctx"
)

// newOpsHandler serves the operational surface: liveness, Prometheus
// metrics, and the JSON control channel over HTTP and websocket.
func newOpsHandler(registry *prometheus.Registry, dispatcher *control.Dispatcher, verifier control.Verifier) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/control", httpx.Chain(
		newControlHandler(dispatcher, verifier),
		httpx.RequireMethod(http.MethodPost),
	))
	mux.Handle("/control/ws", newControlWSHandler(dispatcher, verifier))

	return httpx.Chain(mux, httpx.RecoverPanic(), httpx.RequestID())
}

// newControlHandler dispatches one control message per POST request.
func newControlHandler(dispatcher *control.Dispatcher, verifier control.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := verifier.Authorize(r.Header.Get("Authorization")); err != nil {
			_ = httpx.WriteJSONError(w, gateerrors.HTTPStatus(err), err.Error())
			return
		}

		var msg control.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			_ = httpx.WriteJSONError(w, http.StatusBadRequest, "invalid control message")
			return
		}

		resp, err := dispatcher.Dispatch(r.Context(), msg)
		if err != nil {
			log.Printf(
				"control message failed type=%s request_id=%s: %v",
				msg.Type, requestctx.RequestIDFromContext(r.Context()), err,
			)
			_ = httpx.WriteJSONError(w, gateerrors.HTTPStatus(err), err.Error())
			return
		}
		_ = httpx.WriteJSON(w, http.StatusOK, resp)
	})
}
