package mcpclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// TransportFactory builds a fresh Transport for one connect attempt. The
// connection engine calls it exactly once per attempt (spec §4.4: "create
// transport" is a side effect of ConnectAsync), never sharing a transport
// across attempts or connections.
type TransportFactory func() Transport

// initializeParams is the params object of the initialize request, per
// spec §6.
type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Info               `json:"clientInfo"`
}

// initializeResult is the result object of a successful initialize
// response, per spec §6.
type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Info               `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

type connState struct {
	status          ConnectionStatus
	protocolVersion string
	serverInfo      Info
	serverCaps      ServerCapabilities
}

// Connection is C4: the per-server connection engine. It drives a single
// server through the lifecycle in spec §4.4, multiplexes concurrent outbound
// requests over one transport, correlates replies, and routes notifications
// through an EventSink. All state-machine mutation happens on a single
// goroutine (run), grounded directly on the teacher's start() event loop in
// client.go, which already serializes pending-map and cancellation
// bookkeeping through channels; this generalizes that loop to the full state
// machine.
type Connection struct {
	name      string
	serverCfg ServerConfig
	clientCfg ClientConfig
	factory   TransportFactory
	idGen     *IDGenerator
	logger    *slog.Logger

	state            atomic.Pointer[connState]
	currentTransport atomic.Pointer[Transport]

	registerCh   chan registerPendingMsg
	removeCh     chan removePendingMsg
	connectCh    chan connectMsg
	disconnectCh chan disconnectMsg
}

type registerPendingMsg struct {
	id          string
	checkStatus bool
	completion  *Completion[Message]
	ack         chan error
}

type removePendingMsg struct {
	id string
}

type connectMsg struct {
	ctx        context.Context
	completion *Completion[*Connection]
}

type disconnectMsg struct {
	completion *Completion[struct{}]
}

// NewConnection builds a Connection in StatusDisconnected and starts its
// event loop. The loop persists for the lifetime of the Connection value,
// across however many connect/disconnect cycles it goes through.
func NewConnection(serverCfg ServerConfig, clientCfg ClientConfig, factory TransportFactory) *Connection {
	clientCfg = clientCfg.withDefaults()
	c := &Connection{
		name:         serverCfg.Name,
		serverCfg:    serverCfg,
		clientCfg:    clientCfg,
		factory:      factory,
		idGen:        NewIDGenerator(clientCfg.IDPrefix),
		logger:       clientCfg.Logger,
		registerCh:   make(chan registerPendingMsg),
		removeCh:     make(chan removePendingMsg),
		connectCh:    make(chan connectMsg),
		disconnectCh: make(chan disconnectMsg),
	}
	c.state.Store(&connState{status: StatusDisconnected})
	go c.run()
	return c
}

// Name returns the server name this connection was built for.
func (c *Connection) Name() string { return c.name }

// Status returns the current lifecycle state.
func (c *Connection) Status() ConnectionStatus { return c.state.Load().status }

// NegotiatedProtocolVersion returns the protocol version accepted during the
// last successful handshake, empty if never handshaked.
func (c *Connection) NegotiatedProtocolVersion() string { return c.state.Load().protocolVersion }

// ServerInfo returns the remote server's identity, populated after a
// successful handshake.
func (c *Connection) ServerInfo() Info { return c.state.Load().serverInfo }

// ServerCapabilities returns the remote server's capability descriptor,
// populated after a successful handshake.
func (c *Connection) ServerCapabilities() ServerCapabilities { return c.state.Load().serverCaps }

func (c *Connection) publish(mutate func(*connState)) {
	cur := *c.state.Load()
	mutate(&cur)
	c.state.Store(&cur)
}

// ConnectAsync drives the connection to StatusReady (or StatusError), per
// spec §4.4. It is idempotent: a call made while a previous attempt is still
// Connecting/Handshaking observes that same attempt rather than starting a
// second one.
func (c *Connection) ConnectAsync(ctx context.Context) *Completion[*Connection] {
	completion := NewCompletion[*Connection](nil)
	msg := connectMsg{ctx: ctx, completion: completion}
	select {
	case c.connectCh <- msg:
	case <-ctx.Done():
		completion.Fail(ctx.Err())
	}
	return completion
}

// SendAsync submits a request and returns a completion resolving with the
// server's Response, or failing with *RequestError if the server replied
// with a JSON-RPC error, per spec §4.4 and testable scenario S2. Passing
// checkStatus=false skips the StatusReady check when the request is
// registered; the handshake does not go through SendAsync, and Manager
// always passes true.
func (c *Connection) SendAsync(ctx context.Context, method string, params any, checkStatus bool) *Completion[Message] {
	id := c.idGen.Next()
	msg, err := NewRequest(id, method, params)
	if err != nil {
		completion := NewCompletion[Message](nil)
		completion.Fail(NewClientError(err.Error()))
		return completion
	}

	cancelFn := func() {
		select {
		case c.removeCh <- removePendingMsg{id: id.String()}:
		default:
		}
	}
	completion := NewCompletion[Message](cancelFn)

	ack := make(chan error, 1)
	reg := registerPendingMsg{id: id.String(), checkStatus: checkStatus, completion: completion, ack: ack}
	select {
	case c.registerCh <- reg:
	case <-ctx.Done():
		completion.Fail(NewClientError("cancelled"))
		return completion
	}

	if err := <-ack; err != nil {
		completion.Fail(err)
		return completion
	}

	if err := c.transportSend(ctx, msg); err != nil {
		select {
		case c.removeCh <- removePendingMsg{id: id.String()}:
		default:
		}
		completion.Fail(NewTransportError("send failed", err))
		return completion
	}

	return completion
}

// transportSend hands msg to the transport of the current connect attempt
// (currentTransport, stored by the run loop per attempt) so SendAsync can
// send without routing through the run loop (spec ordering
// guarantee 3 only requires pending-map insertion, done above via
// registerCh, to precede this call).
func (c *Connection) transportSend(ctx context.Context, msg Message) error {
	t := c.currentTransport.Load()
	if t == nil {
		return NewClientError("not connected")
	}
	return (*t).Send(ctx, msg)
}

// DisconnectAsync transitions the connection to StatusClosing then
// StatusClosed, rejecting every outstanding pending request with
// ConnectionError("closing"). Idempotent: calling it on an already-terminal
// connection resolves immediately.
func (c *Connection) DisconnectAsync() *Completion[struct{}] {
	completion := NewCompletion[struct{}](nil)
	c.disconnectCh <- disconnectMsg{completion: completion}
	return completion
}

// run is the single goroutine that owns status, the pending-request map, and
// the active transport for this connection's entire lifetime.
func (c *Connection) run() {
	pending := make(map[string]*Completion[Message])

	var (
		transport    Transport
		msgsCh       <-chan Message
		errsCh       <-chan error
		closedCh     <-chan string
		stderrCh     <-chan []byte
		activeConnect *Completion[*Connection]
		connectWaiters []*Completion[*Connection]
		disconnectWaiters []*Completion[struct{}]
		attemptID    uint64
		initID       string
		connectCtx   context.Context

		connectResultCh  = make(chan attemptResult[error])
		initSendResultCh = make(chan attemptResult[error])
		readyNotifyCh    = make(chan attemptResult[error])
		closeWatchdog    <-chan time.Time
	)

	failConnect := func(err error) {
		c.publish(func(s *connState) { s.status = StatusError })
		if transport != nil {
			_ = transport.Close()
		}
		for id, comp := range pending {
			comp.Fail(err)
			delete(pending, id)
		}
		if activeConnect != nil {
			activeConnect.Fail(err)
			activeConnect = nil
		}
		for _, w := range connectWaiters {
			w.Fail(err)
		}
		connectWaiters = nil
	}

	succeedConnect := func() {
		c.publish(func(s *connState) { s.status = StatusReady })
		if activeConnect != nil {
			activeConnect.Resolve(c)
			activeConnect = nil
		}
		for _, w := range connectWaiters {
			w.Resolve(c)
		}
		connectWaiters = nil
	}

	for {
		select {
		case m := <-c.connectCh:
			status := c.Status()
			switch {
			case status.CanConnect():
				attemptID++
				myAttempt := attemptID
				activeConnect = m.completion
				connectCtx = m.ctx
				c.publish(func(s *connState) {
					s.status = StatusConnecting
					s.protocolVersion = ""
					s.serverInfo = Info{}
					s.serverCaps = ServerCapabilities{}
				})
				transport = c.factory()
				msgsCh = transport.Messages()
				errsCh = transport.Errors()
				closedCh = transport.Closed()
				stderrCh = transport.Stderr()
				c.currentTransport.Store(&transport)

				go func(t Transport, ctx context.Context, id uint64) {
					err := t.Connect(ctx)
					connectResultCh <- attemptResult[error]{attempt: id, value: err}
				}(transport, connectCtx, myAttempt)

			case status == StatusConnecting || status == StatusHandshaking:
				connectWaiters = append(connectWaiters, m.completion)

			default:
				m.completion.Fail(NewConnectionError("bad state", nil))
			}

		case res := <-connectResultCh:
			if res.attempt != attemptID {
				continue
			}
			if res.value != nil {
				failConnect(NewConnectionError("transport connect failed", res.value))
				continue
			}
			c.publish(func(s *connState) { s.status = StatusHandshaking })
			initID = c.idGen.NextUUID().String()
			myAttempt := attemptID
			go func(t Transport, ctx context.Context, id uint64) {
				params := initializeParams{
					ProtocolVersion: preferredProtocolVersion,
					Capabilities:    c.clientCfg.Capabilities,
					ClientInfo:      c.clientCfg.ClientInfo,
				}
				msg, err := NewRequest(NewStringID(initID), methodInitialize, params)
				if err == nil {
					sctx, cancel := context.WithTimeout(ctx, c.serverCfg.timeoutOrDefault())
					defer cancel()
					err = t.Send(sctx, msg)
				}
				initSendResultCh <- attemptResult[error]{attempt: id, value: err}
			}(transport, connectCtx, myAttempt)

		case res := <-initSendResultCh:
			if res.attempt != attemptID {
				continue
			}
			if res.value != nil {
				failConnect(NewConnectionError("failed to send initialize", res.value))
			}

		case res := <-readyNotifyCh:
			if res.attempt != attemptID {
				continue
			}
			if res.value != nil {
				failConnect(NewConnectionError("failed to send initialized notification", res.value))
				continue
			}
			succeedConnect()

		case msg, ok := <-msgsCh:
			if !ok {
				continue
			}
			c.handleMessage(msg, initID, pending, &attemptID, readyNotifyCh, transport, connectCtx, failConnect)

		case err := <-errsCh:
			c.logger.Error("transport error", slog.String("server", c.name), slog.Any("err", err))
			failConnect(NewConnectionError("transport error", err))

		case reason := <-closedCh:
			status := c.Status()
			if status == StatusClosing {
				c.publish(func(s *connState) { s.status = StatusClosed })
				for _, w := range disconnectWaiters {
					w.Resolve(struct{}{})
				}
				disconnectWaiters = nil
				closeWatchdog = nil
			} else if status != StatusClosed && status != StatusError {
				c.logger.Warn("transport closed unexpectedly", slog.String("server", c.name), slog.String("reason", reason))
				failConnect(NewConnectionError("transport closed unexpectedly", nil))
			}
			// A close signal observed after Closed/Error is a late signal
			// from an already-abandoned transport; ignored per spec §5.

		case bs := <-stderrCh:
			c.logger.Debug("transport stderr", slog.String("server", c.name), slog.String("data", string(bs)))

		case <-closeWatchdog:
			c.publish(func(s *connState) { s.status = StatusClosed })
			for _, w := range disconnectWaiters {
				w.Resolve(struct{}{})
			}
			disconnectWaiters = nil
			closeWatchdog = nil

		case reg := <-c.registerCh:
			if reg.checkStatus && c.Status() != StatusReady {
				reg.ack <- NewClientError("not ready")
				continue
			}
			pending[reg.id] = reg.completion
			reg.ack <- nil

		case rm := <-c.removeCh:
			if comp, ok := pending[rm.id]; ok {
				delete(pending, rm.id)
				_ = comp // caller already failed/resolved it directly
			}

		case dm := <-c.disconnectCh:
			status := c.Status()
			if status.Terminal() {
				dm.completion.Resolve(struct{}{})
				continue
			}
			c.publish(func(s *connState) { s.status = StatusClosing })
			for id, comp := range pending {
				comp.Fail(NewConnectionError("closing", nil))
				delete(pending, id)
			}
			if activeConnect != nil {
				activeConnect.Fail(NewConnectionError("closing", nil))
				activeConnect = nil
			}
			for _, w := range connectWaiters {
				w.Fail(NewConnectionError("closing", nil))
			}
			connectWaiters = nil
			disconnectWaiters = append(disconnectWaiters, dm.completion)
			if transport != nil {
				if err := transport.Close(); err != nil {
					c.logger.Warn("transport close error", slog.String("server", c.name), slog.Any("err", err))
				}
			}
			timer := time.NewTimer(c.clientCfg.DisconnectWatchdog)
			closeWatchdog = timer.C
		}
	}
}

type attemptResult[T any] struct {
	attempt uint64
	value   T
}

func (c *Connection) handleMessage(
	msg Message,
	initID string,
	pending map[string]*Completion[Message],
	attemptID *uint64,
	readyNotifyCh chan attemptResult[error],
	transport Transport,
	connectCtx context.Context,
	failConnect func(error),
) {
	if msg.ID != nil && msg.ID.String() == initID && c.Status() == StatusHandshaking {
		c.handleInitializeResponse(msg, transport, connectCtx, *attemptID, readyNotifyCh, failConnect)
		return
	}

	switch msg.Kind() {
	case KindResponse:
		id := msg.ID.String()
		comp, ok := pending[id]
		if !ok {
			c.logger.Warn("response for unknown or already-resolved request", slog.String("server", c.name), slog.String("id", id))
			return
		}
		delete(pending, id)
		if msg.Error != nil {
			comp.Fail(NewRequestError(msg.Error))
			return
		}
		comp.Resolve(msg)

	case KindNotification:
		c.dispatchNotification(msg)

	case KindRequest:
		c.logger.Debug("inbound server request not handled by core", slog.String("server", c.name), slog.String("method", msg.Method))

	default:
		c.logger.Warn("malformed inbound message dropped", slog.String("server", c.name))
	}
}

func (c *Connection) dispatchNotification(msg Message) {
	var event Event
	switch msg.Method {
	case methodToolsListChanged:
		event = newToolsListChanged(c.name)
	case methodResourcesListChanged:
		event = newResourcesListChanged(c.name)
	case methodPromptsListChanged:
		event = newPromptsListChanged(c.name)
	case methodResourcesDidChange:
		var params struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.logger.Warn("malformed resources/didChange params", slog.String("server", c.name), slog.Any("err", err))
			return
		}
		event = newResourceChanged(c.name, params.URI)
	case methodLoggingLog:
		event = newLogReceived(c.name, msg.Params)
	case methodSamplingCreateMessage:
		event = newSamplingRequestReceived(c.name, msg.Params)
	default:
		c.logger.Warn("unknown notification method", slog.String("server", c.name), slog.String("method", msg.Method))
		return
	}

	if c.clientCfg.EventSink == nil {
		c.logger.Debug("no event sink configured, dropping notification", slog.String("server", c.name))
		return
	}
	safeDispatch(c.logger, c.clientCfg.EventSink, event)
}

func (c *Connection) handleInitializeResponse(
	msg Message,
	transport Transport,
	connectCtx context.Context,
	attempt uint64,
	readyNotifyCh chan attemptResult[error],
	failConnect func(error),
) {
	if msg.Error != nil {
		failConnect(NewConnectionError("initialize failed", NewRequestError(msg.Error)))
		return
	}

	var result initializeResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		failConnect(NewConnectionError("malformed initialize result", NewProtocolError(err.Error())))
		return
	}

	if result.ProtocolVersion == "" {
		failConnect(NewConnectionError("empty protocol version", nil))
		return
	}
	if result.ProtocolVersion != preferredProtocolVersion {
		c.logger.Warn("server negotiated a different protocol version",
			slog.String("server", c.name),
			slog.String("preferred", preferredProtocolVersion),
			slog.String("negotiated", result.ProtocolVersion))
	}

	serverInfo := result.ServerInfo
	if serverInfo.Name == "" {
		serverInfo.Name = unknownServerName
	}
	if serverInfo.Version == "" {
		serverInfo.Version = unknownServerVersion
	}

	c.publish(func(s *connState) {
		s.protocolVersion = result.ProtocolVersion
		s.serverInfo = serverInfo
		s.serverCaps = result.Capabilities
	})

	go func(t Transport, ctx context.Context, id uint64) {
		notif, err := NewNotification(methodInitialized, nil)
		if err == nil {
			sctx, cancel := context.WithTimeout(ctx, c.serverCfg.timeoutOrDefault())
			defer cancel()
			err = t.Send(sctx, notif)
		}
		readyNotifyCh <- attemptResult[error]{attempt: id, value: err}
	}(transport, connectCtx, attempt)
}
