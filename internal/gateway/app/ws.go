package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/cachegate/internal/gateway/control"
	gateerrors "github.com/louisbranch/cachegate/internal/gateway/errors"
)

const (
	// maxControlFrameBytes caps a single control frame payload.
	maxControlFrameBytes = 16 * 1024
	// maxControlFramesPerSecond bounds how fast one connection may issue
	// control messages.
	maxControlFramesPerSecond = 20
	// maxDecodeErrorsPerConn closes connections that keep sending garbage.
	maxDecodeErrorsPerConn = 3
)

// wsFrame is the websocket control envelope. Requests carry a control
// message type; replies are control.result or control.error frames echoing
// the request id.
type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// wsPeer serializes frame writes to one connection.
type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{encoder: json.NewEncoder(conn)}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// newControlWSHandler upgrades authorized GET requests and serves control
// messages over a persistent connection.
func newControlWSHandler(dispatcher *control.Dispatcher, verifier control.Verifier) http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleControlConn(conn, dispatcher)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := verifier.Authorize(r.Header.Get("Authorization")); err != nil {
			log.Printf("control websocket unauthorized remote=%s: %v", r.RemoteAddr, err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
}

func handleControlConn(conn *websocket.Conn, dispatcher *control.Dispatcher) {
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("close control websocket: %v", err)
		}
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	peer := newWSPeer(conn)
	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			writeWSError(peer, "", "INVALID_ARGUMENT", "invalid control frame")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxControlFrameBytes {
			writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxControlFramesPerSecond {
			writeWSError(peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		resp, err := dispatcher.Dispatch(ctx, control.Message{Type: frame.Type, Payload: frame.Payload})
		if err != nil {
			writeWSError(peer, frame.RequestID, wsCodeForError(err), err.Error())
			continue
		}
		if err := peer.writeFrame(wsFrame{
			Type:      "control.result",
			RequestID: frame.RequestID,
			Payload:   mustJSON(resp),
		}); err != nil {
			log.Printf("write control result frame: %v", err)
			return
		}
	}
}

// wsCodeForError maps error kinds onto wire-level error codes.
func wsCodeForError(err error) string {
	switch gateerrors.KindOf(err) {
	case gateerrors.KindInvalidInput:
		return "INVALID_ARGUMENT"
	case gateerrors.KindUnknownMessageType:
		return "UNKNOWN_MESSAGE_TYPE"
	case gateerrors.KindUnauthorized:
		return "UNAUTHENTICATED"
	case gateerrors.KindNetworkUnavailable, gateerrors.KindUnavailable, gateerrors.KindNoCachedResponse, gateerrors.KindHTTPError:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

func writeWSError(peer *wsPeer, requestID, code, message string) {
	frame := wsFrame{
		Type:      "control.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{Code: code, Message: message, Retryable: code == "UNAVAILABLE"},
		}),
	}
	if err := peer.writeFrame(frame); err != nil {
		log.Printf("write control error frame: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	encoded, err := json.Marshal(v)
	if err != nil {
		log.Printf("marshal control frame payload: %v", err)
		return json.RawMessage(`{}`)
	}
	return encoded
}
