package mcphost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// connState tracks where a client is in its connection lifecycle. The state
// only ever moves forward: a closed client is never reused, and a new server
// process means a new Client.
type connState int

const (
	stateDisconnected connState = iota
	stateStarting
	stateAwaitingHandshake
	stateReady
	stateShuttingDown
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateStarting:
		return "starting"
	case stateAwaitingHandshake:
		return "awaiting-handshake"
	case stateReady:
		return "ready"
	case stateShuttingDown:
		return "shutting-down"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientOption is a function that configures a client.
type ClientOption func(*Client)

// NotificationHandler receives notifications the server pushes between
// responses. The handler runs on the goroutine performing the active
// operation while the client's internal lock is held, so it must return
// promptly and must not call back into the client.
type NotificationHandler func(msg JSONRPCMessage)

// Client implements a Model Context Protocol (MCP) host client that drives a
// single server over a Transport. It owns the connection lifecycle from
// process launch through the initialize handshake to staged shutdown, and it
// exchanges requests in strict lockstep: every operation blocks until its
// response arrives, and at most one request is ever outstanding.
//
// Request ids are issued from a counter owned by the connection, starting at
// 1 with the initialize request, so a response can always be attributed
// unambiguously. A response carrying any other id means the two sides have
// lost sync and the connection is torn down.
//
// A Client must be created using NewClient() and requires Connect() to be
// called before any operations can be performed. A Client serves one
// connection: after Close() it cannot be reconnected. All methods are safe
// for concurrent use; concurrent operations are serialized.
type Client struct {
	info            Info
	capabilities    ClientCapabilities
	transport       Transport
	protocolVersion string

	notificationHandler NotificationHandler
	logger              *slog.Logger

	// mu serializes Connect and every operation end to end, enforcing the
	// one-request-in-flight discipline and guarding nextID.
	mu     sync.Mutex
	nextID RequestID

	// stateMu guards the fields below so Close and the accessors never wait
	// behind an operation blocked on the server.
	stateMu            sync.Mutex
	state              connState
	serverInfo         Info
	serverCapabilities ServerCapabilities
	negotiatedVersion  string
	instructions       string

	closeOnce sync.Once
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientCapabilities sets the capabilities the client declares to the
// server during the initialize handshake.
func WithClientCapabilities(capabilities ClientCapabilities) ClientOption {
	return func(c *Client) {
		c.capabilities = capabilities
	}
}

// WithProtocolVersion overrides the protocol revision requested during the
// initialize handshake.
func WithProtocolVersion(version string) ClientOption {
	return func(c *Client) {
		c.protocolVersion = version
	}
}

// WithNotificationHandler sets the handler invoked for notifications the
// server sends.
func WithNotificationHandler(handler NotificationHandler) ClientOption {
	return func(c *Client) {
		c.notificationHandler = handler
	}
}

// NewClient creates a new Model Context Protocol (MCP) client with the
// specified configuration. The info parameter identifies this client to the
// server during the handshake. The transport carries the connection's byte
// stream; a Command transport makes the client own the server process end to
// end.
//
// The client will not be connected until Connect() is called, and should be
// shut down with Close() when it is no longer needed.
func NewClient(
	info Info,
	transport Transport,
	options ...ClientOption,
) *Client {
	c := &Client{
		info:            info,
		transport:       transport,
		logger:          slog.Default(),
		protocolVersion: DefaultProtocolVersion,
		state:           stateDisconnected,
		nextID:          1,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Connect starts the transport and performs the initialize handshake: it
// sends the initialize request (always id 1), waits for the server's
// response, and acknowledges with the initialized notification. Once Connect
// returns nil the client is ready and the negotiated protocol version,
// server info, and server capabilities are available from the accessors.
//
// A failure to start the transport leaves the client disconnected and
// matches ErrLaunchFailed. Any failure after that point closes the
// connection deterministically: the error matches ErrHandshakeFailed (an
// error response from the server is reported as a *HandshakeError carrying
// the server's code and message), the process is torn down, and the
// initialized notification is never sent.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.transition(stateDisconnected, stateStarting) {
		switch c.currentState() {
		case stateShuttingDown, stateClosed:
			return ErrConnectionClosed
		default:
			return errors.New("client already connected")
		}
	}

	if err := c.transport.Start(ctx); err != nil {
		if !c.transition(stateStarting, stateDisconnected) {
			return ErrConnectionClosed
		}
		return fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	if !c.transition(stateStarting, stateAwaitingHandshake) {
		// Close arrived while the transport was coming up and left the
		// teardown to us.
		_ = c.transport.Close()
		return ErrConnectionClosed
	}

	if err := c.handshake(ctx); err != nil {
		c.fail(err)
		return err
	}

	if !c.transition(stateAwaitingHandshake, stateReady) {
		return ErrConnectionClosed
	}

	c.logger.Info("connected",
		slog.String("server", c.serverInfo.Name),
		slog.String("serverVersion", c.serverInfo.Version),
		slog.String("protocolVersion", c.negotiatedVersion))

	return nil
}

// ListTools retrieves a paginated list of available tools from the server.
// It returns a ListToolsResult containing tool metadata and pagination
// information.
func (c *Client) ListTools(ctx context.Context, params ListToolsParams) (ListToolsResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return ListToolsResult{}, err
	}

	res, err := c.exchange(ctx, MethodToolsList, params)
	if err != nil {
		return ListToolsResult{}, err
	}
	if res.Error != nil {
		return ListToolsResult{}, &OperationError{
			Method:  MethodToolsList,
			Code:    res.Error.Code,
			Message: res.Error.Message,
		}
	}

	var result ListToolsResult
	if err := jsonAPI.Unmarshal(res.Result, &result); err != nil {
		return ListToolsResult{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return result, nil
}

// CallTool executes a specific tool and returns its result. A tool that ran
// but reported a failure comes back with IsError set rather than an error;
// an error is returned only when the exchange itself failed.
func (c *Client) CallTool(ctx context.Context, params CallToolParams) (CallToolResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return CallToolResult{}, err
	}

	res, err := c.exchange(ctx, MethodToolsCall, params)
	if err != nil {
		return CallToolResult{}, err
	}
	if res.Error != nil {
		return CallToolResult{}, &OperationError{
			Method:  MethodToolsCall,
			Code:    res.Error.Code,
			Message: res.Error.Message,
		}
	}

	var result CallToolResult
	if err := jsonAPI.Unmarshal(res.Result, &result); err != nil {
		return CallToolResult{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return result, nil
}

// ListResources retrieves a paginated list of available resources from the
// server. Resource support is optional: when the server did not declare the
// resources capability, or answers the request with an error, ListResources
// returns an empty result instead of failing.
func (c *Client) ListResources(ctx context.Context, params ListResourcesParams) (ListResourcesResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return ListResourcesResult{}, err
	}

	if c.serverCapabilities.Resources == nil {
		c.logger.Debug("server does not support resources, listing none")
		return ListResourcesResult{}, nil
	}

	res, err := c.exchange(ctx, MethodResourcesList, params)
	if err != nil {
		return ListResourcesResult{}, err
	}
	if res.Error != nil {
		c.logger.Debug("server declined resources/list, listing none",
			slog.Int("code", res.Error.Code),
			slog.String("message", res.Error.Message))
		return ListResourcesResult{}, nil
	}

	var result ListResourcesResult
	if err := jsonAPI.Unmarshal(res.Result, &result); err != nil {
		return ListResourcesResult{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return result, nil
}

// ReadResource retrieves the content of a specific resource by URI. The
// result carries one or more contents entries, each either text or a
// base64-encoded blob.
func (c *Client) ReadResource(ctx context.Context, params ReadResourceParams) (ReadResourceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return ReadResourceResult{}, err
	}

	res, err := c.exchange(ctx, MethodResourcesRead, params)
	if err != nil {
		return ReadResourceResult{}, err
	}
	if res.Error != nil {
		return ReadResourceResult{}, &OperationError{
			Method:  MethodResourcesRead,
			Code:    res.Error.Code,
			Message: res.Error.Message,
		}
	}

	var result ReadResourceResult
	if err := jsonAPI.Unmarshal(res.Result, &result); err != nil {
		return ReadResourceResult{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return result, nil
}

// Ping checks that the server is still answering requests.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return err
	}

	res, err := c.exchange(ctx, methodPing, nil)
	if err != nil {
		return err
	}
	if res.Error != nil {
		return &OperationError{
			Method:  methodPing,
			Code:    res.Error.Code,
			Message: res.Error.Message,
		}
	}

	return nil
}

// Close shuts the connection down: it stops accepting operations, tears the
// transport down in stages, and waits for any in-flight exchange to drain.
// A Close that lands while Connect is still bringing the transport up lets
// Connect finish the teardown and waits for it. Close is idempotent and never
// fails; operations attempted afterwards return ErrConnectionClosed.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.stateMu.Lock()
		prev := c.state
		if prev == stateDisconnected || prev == stateClosed {
			c.state = stateClosed
			c.stateMu.Unlock()
			return
		}
		c.state = stateShuttingDown
		c.stateMu.Unlock()

		c.logger.Info("shutting down connection")

		// While the state is starting, Connect is between launching the
		// transport and its next transition; closing here could race the
		// transport coming up. The failed transition makes Connect tear it
		// down instead.
		if prev != stateStarting {
			_ = c.transport.Close()
		}

		// An in-flight exchange wakes up from the closed transport; wait for
		// it to drain before declaring the client closed.
		c.mu.Lock()
		c.setState(stateClosed)
		c.mu.Unlock()
	})
}

// ServerInfo returns the server's name and version as reported during the
// handshake.
func (c *Client) ServerInfo() Info {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.serverInfo
}

// ServerCapabilities returns the capabilities the server declared during the
// handshake.
func (c *Client) ServerCapabilities() ServerCapabilities {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.serverCapabilities
}

// ProtocolVersion returns the protocol revision negotiated during the
// handshake, or the empty string before Connect completes.
func (c *Client) ProtocolVersion() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.negotiatedVersion
}

// Instructions returns the usage instructions the server provided during the
// handshake, if any.
func (c *Client) Instructions() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.instructions
}

// PromptServerSupported returns true if the server supports prompt management.
func (c *Client) PromptServerSupported() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.serverCapabilities.Prompts != nil
}

// ResourceServerSupported returns true if the server supports resource management.
func (c *Client) ResourceServerSupported() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.serverCapabilities.Resources != nil
}

// ToolServerSupported returns true if the server supports tool management.
func (c *Client) ToolServerSupported() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.serverCapabilities.Tools != nil
}

// LoggingServerSupported returns true if the server supports logging.
func (c *Client) LoggingServerSupported() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.serverCapabilities.Logging != nil
}

func (c *Client) currentState() connState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) setState(s connState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// transition advances the lifecycle only when the client is still in from,
// reporting whether the step was taken. Close may run at any point between
// two steps; a failed transition means it won and the connection must not
// come up.
func (c *Client) transition(from, to connState) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state != from {
		return false
	}
	c.state = to
	return true
}

func (c *Client) readyLocked() error {
	switch c.currentState() {
	case stateReady:
		return nil
	case stateShuttingDown, stateClosed:
		return ErrConnectionClosed
	default:
		return ErrNotReady
	}
}

// fail tears the connection down after an unrecoverable fault. Faults that
// merely reflect a concurrent Close are not reported as failures.
func (c *Client) fail(reason error) {
	c.stateMu.Lock()
	closing := c.state == stateShuttingDown || c.state == stateClosed
	c.state = stateClosed
	c.stateMu.Unlock()

	if !closing {
		c.logger.Error("connection failed", slog.String("err", reason.Error()))
	}
	_ = c.transport.Close()
}

func (c *Client) handshake(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: c.protocolVersion,
		Capabilities:    c.capabilities,
		ClientInfo:      c.info,
	}
	paramsBs, err := jsonAPI.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal initialize params: %w", err)
	}

	id := c.nextID
	c.nextID++

	frame, err := EncodeMessage(JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  methodInitialize,
		Params:  paramsBs,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if err := c.transport.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("%w: failed to send initialize request: %w", ErrHandshakeFailed, err)
	}

	res, err := c.awaitResponse(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if res.Error != nil {
		return &HandshakeError{Code: res.Error.Code, Message: res.Error.Message}
	}

	var result initializeResult
	if err := jsonAPI.Unmarshal(res.Result, &result); err != nil {
		return fmt.Errorf("%w: failed to unmarshal initialize result: %w", ErrHandshakeFailed, err)
	}

	c.stateMu.Lock()
	c.serverInfo = result.ServerInfo
	c.serverCapabilities = result.Capabilities
	c.negotiatedVersion = result.ProtocolVersion
	c.instructions = result.Instructions
	c.stateMu.Unlock()

	// The server may start normal operation only after this acknowledgment.
	notif, err := EncodeMessage(JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  methodNotificationsInitialized,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if err := c.transport.WriteFrame(ctx, notif); err != nil {
		return fmt.Errorf("%w: failed to send initialized notification: %w", ErrHandshakeFailed, err)
	}

	return nil
}

// exchange performs one request-response round trip: it assigns the next
// request id, writes the request, and blocks until the matching response
// arrives. Notifications received in the meantime are dispatched; a frame
// that cannot be decoded fails only this exchange with a synthesized
// parse-error result, while a stream end, an id mismatch, or a cancelled
// context makes the reply unattributable and closes the connection.
func (c *Client) exchange(ctx context.Context, method string, params any) (JSONRPCMessage, error) {
	var paramsBs []byte
	if params != nil {
		var err error
		paramsBs, err = jsonAPI.Marshal(params)
		if err != nil {
			return JSONRPCMessage{}, fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	id := c.nextID
	c.nextID++

	frame, err := EncodeMessage(JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  paramsBs,
	})
	if err != nil {
		return JSONRPCMessage{}, err
	}

	c.logger.Debug("sending request",
		slog.Int64("id", int64(id)),
		slog.String("method", method))

	if err := c.transport.WriteFrame(ctx, frame); err != nil {
		c.fail(fmt.Errorf("failed to write request: %w", err))
		return JSONRPCMessage{}, fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}

	res, err := c.awaitResponse(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedMessage):
			c.logger.Warn("received undecodable frame",
				slog.String("method", method),
				slog.String("err", err.Error()))
			return JSONRPCMessage{}, &OperationError{
				Method:  method,
				Code:    jsonRPCParseErrorCode,
				Message: "parse error",
			}
		case errors.Is(err, io.EOF):
			c.fail(err)
			return JSONRPCMessage{}, fmt.Errorf("%w: server closed the stream", ErrConnectionClosed)
		default:
			c.fail(err)
			return JSONRPCMessage{}, err
		}
	}

	c.logger.Debug("received response", slog.Int64("id", int64(res.ID)))

	return res, nil
}

// awaitResponse reads frames until the response with the given id arrives.
func (c *Client) awaitResponse(ctx context.Context, id RequestID) (JSONRPCMessage, error) {
	for {
		frame, err := c.transport.ReadFrame(ctx)
		if err != nil {
			return JSONRPCMessage{}, err
		}

		msg, err := DecodeMessage(frame)
		if err != nil {
			return JSONRPCMessage{}, err
		}

		if msg.isNotification() {
			c.dispatchNotification(msg)
			continue
		}
		if !msg.isResponse() {
			// A server-initiated request; this client never answers those.
			c.logger.Warn("ignoring unexpected server request", slog.String("method", msg.Method))
			continue
		}
		if msg.ID != id {
			return JSONRPCMessage{}, fmt.Errorf("%w: received id %d, awaiting id %d",
				ErrCorrelationMismatch, msg.ID, id)
		}

		return msg, nil
	}
}

func (c *Client) dispatchNotification(msg JSONRPCMessage) {
	c.logger.Debug("received notification", slog.String("method", msg.Method))
	if c.notificationHandler != nil {
		c.notificationHandler(msg)
	}
}
