package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/stopify/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

// WebSocketConfig holds settings for the WebSocket transport
type WebSocketConfig struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	MaxMessageSize   int64
}

// DefaultWebSocketConfig returns default WebSocket transport configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      90 * time.Second,
		MaxMessageSize:   64 * 1024,
	}
}

// WebSocketTransport subscribes to {baseURL}/ws/room/{code}. Every text frame carries one
// enveloped notification.
type WebSocketTransport struct {
	baseURL string
	dialer  *websocket.Dialer
	config  WebSocketConfig
}

// NewWebSocketTransport creates a WebSocket transport. http(s) base URLs are mapped to
// ws(s).
func NewWebSocketTransport(baseURL string, config WebSocketConfig) *WebSocketTransport {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	return &WebSocketTransport{
		baseURL: base,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		config: config,
	}
}

func (t *WebSocketTransport) Name() string { return "websocket" }

// StreamURL returns the subscription URL for a room code
func (t *WebSocketTransport) StreamURL(code string) string {
	return t.baseURL + "/ws/room/" + url.PathEscape(code)
}

func (t *WebSocketTransport) Subscribe(ctx context.Context, code string) (Stream, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.StreamURL(code), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", t.StreamURL(code), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", t.StreamURL(code), err)
	}

	if t.config.MaxMessageSize > 0 {
		conn.SetReadLimit(t.config.MaxMessageSize)
	}

	s := &wsStream{
		conn:        conn,
		readTimeout: t.config.ReadTimeout,
		closed:      make(chan struct{}),
	}
	s.extendDeadline()
	conn.SetPingHandler(func(data string) error {
		s.extendDeadline()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// Unblock ReadMessage when the subscription is cancelled
	go func() {
		select {
		case <-ctx.Done():
		case <-s.closed:
		}
		conn.Close()
	}()

	return s, nil
}

type wsStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	closed      chan struct{}
	closeOnce   sync.Once
}

func (s *wsStream) extendDeadline() {
	if s.readTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

func (s *wsStream) Next(ctx context.Context) (RawEvent, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return RawEvent{}, ctx.Err()
			}
			return RawEvent{}, fmt.Errorf("read websocket: %w", err)
		}
		s.extendDeadline()

		if msgType != websocket.TextMessage {
			continue
		}

		env, err := events.DecodeEnvelope(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed websocket frame")
			continue
		}
		return RawEvent{ID: env.ID, Name: env.Event, Data: env.Data}, nil
	}
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && werr != websocket.ErrCloseSent {
			log.Debug().Err(werr).Msg("failed to send websocket close frame")
		}
		close(s.closed)
		s.conn.Close()
	})
	return nil
}
