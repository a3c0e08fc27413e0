// Package sse implements mcpclient.Transport over HTTP with a server-sent
// events stream for inbound messages and HTTP POST for outbound ones. It is
// adapted from the teacher's SSEClient (TangGee-go-mcp's sse.go), dropping
// the server-side SSEServer/session-registry half (this client core has no
// server role) and translating the iter.Seq-based read loop plus
// ready-channel handshake into the channel-shaped mcpclient.Transport
// contract.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	gosse "github.com/tmaxmax/go-sse"

	"github.com/tidalfoundry/mcpclient"
)

// Transport connects to connectURL to receive an SSE stream, and learns the
// POST endpoint for outbound messages from the stream's initial "endpoint"
// event, exactly as the teacher's SSEClient does. Build one per connection
// attempt with New.
type Transport struct {
	httpClient *http.Client
	connectURL string
	headers    map[string]string
	logger     *slog.Logger

	mu         sync.Mutex
	messageURL string

	messages chan mcpclient.Message
	errs     chan error
	closed   chan string
	stderr   chan []byte

	endpointReady chan struct{}
	endpointOnce  sync.Once
	done          chan struct{}
	closeOnce     sync.Once
}

// New builds an SSE Transport. httpClient defaults to http.DefaultClient
// when nil; logger defaults to slog.Default() when nil.
func New(connectURL string, headers map[string]string, httpClient *http.Client, logger *slog.Logger) *Transport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		httpClient:    httpClient,
		connectURL:    connectURL,
		headers:       headers,
		logger:        logger,
		messages:      make(chan mcpclient.Message),
		errs:          make(chan error, 1),
		closed:        make(chan string, 1),
		stderr:        make(chan []byte),
		endpointReady: make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Connect opens the SSE stream and blocks until the server's initial
// "endpoint" event has been received (or ctx is done), since no message can
// be sent before the POST endpoint is known.
func (t *Transport) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.connectURL, nil)
	if err != nil {
		return mcpclient.NewTransportError("build SSE request", err)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return mcpclient.NewTransportError("connect to SSE stream", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return mcpclient.NewTransportError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	go t.readLoop(resp.Body)

	select {
	case <-t.endpointReady:
		return nil
	case <-ctx.Done():
		return mcpclient.NewTransportError("timed out waiting for SSE endpoint event", ctx.Err())
	case <-t.done:
		return mcpclient.NewTransportError("transport closed before endpoint event", nil)
	}
}

func (t *Transport) readLoop(body io.ReadCloser) {
	defer func() {
		body.Close()
		t.signalClosed("SSE stream ended")
	}()

	for ev, err := range gosse.Read(body, nil) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				t.reportError(mcpclient.NewTransportError("read SSE stream", err))
			}
			return
		}

		switch ev.Type {
		case "endpoint":
			u, err := url.Parse(ev.Data)
			if err != nil || u.String() == "" {
				t.reportError(mcpclient.NewTransportError("invalid endpoint event", err))
				return
			}
			t.mu.Lock()
			t.messageURL = u.String()
			t.mu.Unlock()
			t.endpointOnce.Do(func() { close(t.endpointReady) })
		case "message":
			msg, err := mcpclient.Decode([]byte(ev.Data))
			if err != nil {
				t.logger.Warn("sse: dropping malformed message", "err", err)
				continue
			}
			select {
			case t.messages <- msg:
			case <-t.done:
				return
			}
		default:
			select {
			case t.stderr <- []byte(strings.TrimSpace(ev.Type + ": " + ev.Data)):
			default:
			}
		}
	}
}

func (t *Transport) reportError(err error) {
	select {
	case t.errs <- err:
	default:
	}
}

func (t *Transport) signalClosed(reason string) {
	t.closeOnce.Do(func() {
		close(t.done)
		t.closed <- reason
		close(t.closed)
	})
}

// Send POSTs the encoded message to the endpoint learned during Connect.
func (t *Transport) Send(ctx context.Context, msg mcpclient.Message) error {
	t.mu.Lock()
	messageURL := t.messageURL
	t.mu.Unlock()
	if messageURL == "" {
		return mcpclient.NewTransportError("send before endpoint known", nil)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return mcpclient.NewTransportError("marshal message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, messageURL, bytes.NewReader(raw))
	if err != nil {
		return mcpclient.NewTransportError("build POST request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return mcpclient.NewTransportError("post message", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return mcpclient.NewTransportError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	return nil
}

// Close marks the transport closed and emits the Closed signal. Idempotent.
// It does not close the SSE response body: the read loop returns when it
// next tries to deliver a message, when the stream ends, or when the context
// passed to Connect is done.
func (t *Transport) Close() error {
	t.signalClosed("closed by client")
	return nil
}

func (t *Transport) Messages() <-chan mcpclient.Message { return t.messages }
func (t *Transport) Errors() <-chan error               { return t.errs }
func (t *Transport) Closed() <-chan string               { return t.closed }
func (t *Transport) Stderr() <-chan []byte               { return t.stderr }
