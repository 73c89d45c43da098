package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/r3labs/sse/v2"
)

// SSETransport subscribes to GET {baseURL}/stream/room/{code} as a server-sent event
// stream. Each named SSE event is one notification.
type SSETransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewSSETransport creates an SSE transport. httpClient may be nil.
func NewSSETransport(baseURL string, httpClient *http.Client) *SSETransport {
	return &SSETransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (t *SSETransport) Name() string { return "sse" }

// StreamURL returns the subscription URL for a room code
func (t *SSETransport) StreamURL(code string) string {
	return t.baseURL + "/stream/room/" + url.PathEscape(code)
}

// Subscribe connects and returns once the server has accepted the stream
func (t *SSETransport) Subscribe(ctx context.Context, code string) (Stream, error) {
	client := sse.NewClient(t.StreamURL(code))
	// The channel owns reconnects; the client must give up on the first failure.
	client.ReconnectStrategy = &backoff.StopBackOff{}
	if t.httpClient != nil {
		client.Connection = t.httpClient
	}

	connected := make(chan struct{})
	var once sync.Once
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("stream returned status code: %d, response: %s", resp.StatusCode, string(body))
		}
		once.Do(func() { close(connected) })
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &sseStream{
		msgs:   make(chan RawEvent),
		errs:   make(chan error, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		err := client.SubscribeRawWithContext(subCtx, func(msg *sse.Event) {
			ev := RawEvent{
				ID:   string(msg.ID),
				Name: string(msg.Event),
				Data: msg.Data,
			}
			if ev.Name == "" {
				ev.Name = "message"
			}
			select {
			case s.msgs <- ev:
			case <-subCtx.Done():
			}
		})
		if err == nil {
			err = io.EOF
		}
		s.errs <- err
	}()

	select {
	case <-connected:
		return s, nil
	case err := <-s.errs:
		cancel()
		<-s.done
		return nil, fmt.Errorf("subscribe to %s: %w", t.StreamURL(code), err)
	case <-ctx.Done():
		cancel()
		<-s.done
		return nil, ctx.Err()
	}
}

type sseStream struct {
	msgs   chan RawEvent
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *sseStream) Next(ctx context.Context) (RawEvent, error) {
	select {
	case ev := <-s.msgs:
		return ev, nil
	case err := <-s.errs:
		return RawEvent{}, err
	case <-ctx.Done():
		return RawEvent{}, ctx.Err()
	}
}

func (s *sseStream) Close() error {
	s.cancel()
	<-s.done
	return nil
}
