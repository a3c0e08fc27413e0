package mcpclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// mockTransport is a hand-rolled Transport double, grounded on the teacher's
// own preference for hand-rolled fakes over a mocking framework (client_test.go
// uses plain structs implementing the watcher interfaces, not a generated
// mock). Tests drive the connection engine by writing to inbound (and
// closedCh) and reading from sent.
type mockTransport struct {
	connectErr error

	sent     chan Message
	inbound  chan Message
	errsCh   chan error
	closedCh chan string
	stderrCh chan []byte

	closeFn func() error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		sent:     make(chan Message, 16),
		inbound:  make(chan Message, 16),
		errsCh:   make(chan error, 1),
		closedCh: make(chan string, 1),
		stderrCh: make(chan []byte, 1),
	}
}

func (m *mockTransport) Connect(ctx context.Context) error { return m.connectErr }

func (m *mockTransport) Send(ctx context.Context, msg Message) error {
	m.sent <- msg
	return nil
}

func (m *mockTransport) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}
	select {
	case m.closedCh <- "closed by client":
	default:
	}
	return nil
}

func (m *mockTransport) Messages() <-chan Message { return m.inbound }
func (m *mockTransport) Errors() <-chan error      { return m.errsCh }
func (m *mockTransport) Closed() <-chan string     { return m.closedCh }
func (m *mockTransport) Stderr() <-chan []byte     { return m.stderrCh }

// awaitSent reads the next message the connection handed to the transport,
// failing the test if none arrives in time.
func awaitSent(t *testing.T, mt *mockTransport) Message {
	t.Helper()
	select {
	case msg := <-mt.sent:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transport.Send")
		return Message{}
	}
}

func testClientConfig() ClientConfig {
	return ClientConfig{ClientInfo: Info{Name: "test-client", Version: "0.0.1"}}.withDefaults()
}

// completeHandshake drives transport through a full successful initialize
// exchange and returns once the connection reports Ready.
func completeHandshake(t *testing.T, conn *Connection, mt *mockTransport, serverInfo Info, protocolVersion string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	connectCompletion := conn.ConnectAsync(ctx)

	initReq := awaitSent(t, mt)
	if initReq.Method != methodInitialize {
		t.Fatalf("first sent message method = %q, want %q", initReq.Method, methodInitialize)
	}

	result := initializeResult{ProtocolVersion: protocolVersion, ServerInfo: serverInfo}
	resultBs, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal initializeResult: %v", err)
	}
	mt.inbound <- Message{JSONRPC: JSONRPCVersion, ID: initReq.ID, Result: resultBs}

	initializedNotif := awaitSent(t, mt)
	if initializedNotif.Method != methodInitialized {
		t.Fatalf("second sent message method = %q, want %q", initializedNotif.Method, methodInitialized)
	}

	if _, err := connectCompletion.Wait(ctx); err != nil {
		t.Fatalf("ConnectAsync failed: %v", err)
	}
	if conn.Status() != StatusReady {
		t.Fatalf("Status() = %v, want StatusReady", conn.Status())
	}
}

func TestHappyPathHandshakeAndRequest(t *testing.T) {
	mt := newMockTransport()
	conn := NewConnection(ServerConfig{Name: "srv"}, testClientConfig(), func() Transport { return mt })

	completeHandshake(t, conn, mt, Info{Name: "S", Version: "1"}, preferredProtocolVersion)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	completion := conn.SendAsync(ctx, "tools/list", nil, true)
	req := awaitSent(t, mt)

	mt.inbound <- Message{JSONRPC: JSONRPCVersion, ID: req.ID, Result: json.RawMessage(`{"tools":[]}`)}

	reply, err := completion.Wait(ctx)
	if err != nil {
		t.Fatalf("SendAsync completion failed: %v", err)
	}
	if string(reply.Result) != `{"tools":[]}` {
		t.Errorf("reply.Result = %s, want %s", reply.Result, `{"tools":[]}`)
	}
	if conn.Status() != StatusReady {
		t.Errorf("Status() after reply = %v, want StatusReady", conn.Status())
	}
}

func TestServerReportedErrorFailsCompletionOnly(t *testing.T) {
	mt := newMockTransport()
	conn := NewConnection(ServerConfig{Name: "srv"}, testClientConfig(), func() Transport { return mt })
	completeHandshake(t, conn, mt, Info{Name: "S", Version: "1"}, preferredProtocolVersion)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	completion := conn.SendAsync(ctx, "tools/call", map[string]string{"name": "x"}, true)
	req := awaitSent(t, mt)

	mt.inbound <- Message{
		JSONRPC: JSONRPCVersion,
		ID:      req.ID,
		Error:   &Error{Code: ErrCodeMethodNotFound, Message: "Method not found"},
	}

	_, err := completion.Wait(ctx)
	if err == nil {
		t.Fatal("expected completion to fail, got nil error")
	}
	reqErr, ok := err.(*RequestError)
	if !ok {
		t.Fatalf("err = %T, want *RequestError", err)
	}
	if reqErr.Code != ErrCodeMethodNotFound || reqErr.Message != "Method not found" {
		t.Errorf("reqErr = %+v, want code=%d message=%q", reqErr, ErrCodeMethodNotFound, "Method not found")
	}
	if conn.Status() != StatusReady {
		t.Errorf("Status() = %v, want StatusReady (a request error must not take the connection down)", conn.Status())
	}
}

func TestVersionMismatchAccepted(t *testing.T) {
	mt := newMockTransport()
	conn := NewConnection(ServerConfig{Name: "srv"}, testClientConfig(), func() Transport { return mt })

	completeHandshake(t, conn, mt, Info{Name: "S", Version: "1"}, "2025-01-01")

	if conn.NegotiatedProtocolVersion() != "2025-01-01" {
		t.Errorf("NegotiatedProtocolVersion() = %q, want %q", conn.NegotiatedProtocolVersion(), "2025-01-01")
	}
	if conn.Status() != StatusReady {
		t.Errorf("Status() = %v, want StatusReady", conn.Status())
	}
}

func TestEmptyProtocolVersionFailsConnect(t *testing.T) {
	mt := newMockTransport()
	conn := NewConnection(ServerConfig{Name: "srv"}, testClientConfig(), func() Transport { return mt })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	completion := conn.ConnectAsync(ctx)
	initReq := awaitSent(t, mt)

	mt.inbound <- Message{
		JSONRPC: JSONRPCVersion,
		ID:      initReq.ID,
		Result:  json.RawMessage(`{"protocolVersion":"","serverInfo":{"name":"S","version":"1"}}`),
	}

	_, err := completion.Wait(ctx)
	if err == nil {
		t.Fatal("expected ConnectAsync to fail on empty protocol version")
	}
	if _, ok := err.(*ConnectionError); !ok {
		t.Errorf("err = %T, want *ConnectionError", err)
	}

	// Status() and closeFn race the same channel select loop; give the
	// engine a moment to process failConnect before asserting.
	time.Sleep(10 * time.Millisecond)
	if conn.Status() != StatusError {
		t.Errorf("Status() = %v, want StatusError", conn.Status())
	}
}

func TestTransportDropMidFlightFailsPendingAndGoesError(t *testing.T) {
	mt := newMockTransport()
	conn := NewConnection(ServerConfig{Name: "srv"}, testClientConfig(), func() Transport { return mt })
	completeHandshake(t, conn, mt, Info{Name: "S", Version: "1"}, preferredProtocolVersion)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	completion := conn.SendAsync(ctx, "tools/list", nil, true)
	awaitSent(t, mt)

	mt.closedCh <- "process exited"

	_, err := completion.Wait(ctx)
	if err == nil {
		t.Fatal("expected pending request to fail after unexpected transport close")
	}
	if _, ok := err.(*ConnectionError); !ok {
		t.Errorf("err = %T, want *ConnectionError", err)
	}

	time.Sleep(10 * time.Millisecond)
	if conn.Status() != StatusError {
		t.Errorf("Status() = %v, want StatusError", conn.Status())
	}

	followUp := conn.SendAsync(ctx, "tools/list", nil, true)
	if _, err := followUp.Wait(ctx); err == nil {
		t.Error("expected SendAsync to fail immediately once the connection is in StatusError")
	}
}

func TestTimeoutNamesOperationAndLeavesEntryPending(t *testing.T) {
	mt := newMockTransport()
	conn := NewConnection(ServerConfig{Name: "srv"}, testClientConfig(), func() Transport { return mt })
	completeHandshake(t, conn, mt, Info{Name: "S", Version: "1"}, preferredProtocolVersion)

	ctx := context.Background()
	completion := conn.SendAsync(ctx, "slow/method", nil, true)
	req := awaitSent(t, mt)

	_, err := awaitWithTimeout(ctx, completion, 50*time.Millisecond, "slow/method")
	if err == nil {
		t.Fatal("expected TimeoutError, got nil")
	}
	timeoutErr, ok := err.(*TimeoutError)
	if !ok {
		t.Fatalf("err = %T, want *TimeoutError", err)
	}
	if timeoutErr.Operation != "slow/method" {
		t.Errorf("timeoutErr.Operation = %q, want %q", timeoutErr.Operation, "slow/method")
	}

	// The late reply is still routed: a reply arriving after the caller gave
	// up is dropped with a warning, not an error, and does not panic.
	mt.inbound <- Message{JSONRPC: JSONRPCVersion, ID: req.ID, Result: json.RawMessage(`{}`)}
	time.Sleep(10 * time.Millisecond)
}

func TestMissingServerInfoDefaultsToUnknown(t *testing.T) {
	mt := newMockTransport()
	conn := NewConnection(ServerConfig{Name: "srv"}, testClientConfig(), func() Transport { return mt })

	completeHandshake(t, conn, mt, Info{}, preferredProtocolVersion)

	info := conn.ServerInfo()
	if info.Name != unknownServerName {
		t.Errorf("ServerInfo().Name = %q, want %q", info.Name, unknownServerName)
	}
	if info.Version != unknownServerVersion {
		t.Errorf("ServerInfo().Version = %q, want %q", info.Version, unknownServerVersion)
	}
}

func TestNotificationDispatchedToEventSink(t *testing.T) {
	mt := newMockTransport()
	sink := &recordingEventSink{events: make(chan Event, 4)}
	cfg := testClientConfig()
	cfg.EventSink = sink
	conn := NewConnection(ServerConfig{Name: "srv"}, cfg, func() Transport { return mt })
	completeHandshake(t, conn, mt, Info{Name: "S", Version: "1"}, preferredProtocolVersion)

	mt.inbound <- Message{JSONRPC: JSONRPCVersion, Method: methodToolsListChanged}

	select {
	case ev := <-sink.events:
		if _, ok := ev.(ToolsListChanged); !ok {
			t.Errorf("event = %T, want ToolsListChanged", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched event")
	}
}

func TestEventSinkPanicDoesNotCrashConnection(t *testing.T) {
	mt := newMockTransport()
	cfg := testClientConfig()
	cfg.EventSink = panicSink{}
	conn := NewConnection(ServerConfig{Name: "srv"}, cfg, func() Transport { return mt })
	completeHandshake(t, conn, mt, Info{Name: "S", Version: "1"}, preferredProtocolVersion)

	mt.inbound <- Message{JSONRPC: JSONRPCVersion, Method: methodToolsListChanged}
	time.Sleep(10 * time.Millisecond)

	if conn.Status() != StatusReady {
		t.Errorf("Status() after sink panic = %v, want StatusReady", conn.Status())
	}
}

type recordingEventSink struct {
	events chan Event
}

func (s *recordingEventSink) Dispatch(event Event) { s.events <- event }

type panicSink struct{}

func (panicSink) Dispatch(event Event) { panic("boom") }
